package http

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"

	"financeflow/internal/core"
	"financeflow/internal/log"
)

// securityMetrics tracks security-related events.
type securityMetrics struct {
	rateLimitHits  int64
	rejectedAccess int64
}

// trustedProxies defines networks that are trusted to set forwarding headers.
var trustedProxies = []*net.IPNet{
	parsecidr("127.0.0.0/8"),    // localhost
	parsecidr("10.0.0.0/8"),     // private networks
	parsecidr("172.16.0.0/12"),  // private networks
	parsecidr("192.168.0.0/16"), // private networks
}

func parsecidr(cidr string) *net.IPNet {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		panic(fmt.Sprintf("failed to parse trusted proxy CIDR %s: %v", cidr, err))
	}
	return network
}

func isTrustedProxy(ip net.IP) bool {
	for _, network := range trustedProxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// extractClientIP returns the peer address, or the first forwarded address
// when the peer is a trusted proxy.
func extractClientIP(r *http.Request) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}
	parsed := net.ParseIP(directIP)
	if parsed == nil || !isTrustedProxy(parsed) {
		return directIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if xri := r.Header.Get("X-Real-IP"); net.ParseIP(xri) != nil {
		return xri
	}
	return directIP
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// requireSession rejects requests while nobody is logged in.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.svc.CurrentUser(); err != nil {
			s.respondError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireSameUser restricts /users/{userID} routes to the session owner.
// Other users look absent.
func (s *Server) requireSameUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "userID")
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		if err := s.checkOwner(id); err != nil {
			s.respondError(w, r, core.NewNotFound("user", id))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authorizeAccount loads the account named by the accountID path parameter
// and checks it belongs to the session owner.
func (s *Server) authorizeAccount(r *http.Request, accountID int64) (core.Account, error) {
	a, err := s.svc.GetAccount(r.Context(), accountID)
	if err != nil {
		return core.Account{}, err
	}
	if err := s.checkOwner(a.UserID); err != nil {
		return core.Account{}, core.NewNotFound("account", accountID)
	}
	return a, nil
}

func (s *Server) authorizeTransaction(r *http.Request, id int64) (core.Transaction, error) {
	t, err := s.svc.GetTransaction(r.Context(), id)
	if err != nil {
		return core.Transaction{}, err
	}
	if _, err := s.authorizeAccount(r, t.AccountID); err != nil {
		return core.Transaction{}, core.NewNotFound("transaction", id)
	}
	return t, nil
}

var errForeignUser = errors.New("resource belongs to another user")

func (s *Server) checkOwner(userID int64) error {
	current, err := s.svc.CurrentUser()
	if err != nil {
		return err
	}
	if current.ID != userID {
		atomic.AddInt64(&s.metrics.rejectedAccess, 1)
		s.logger.Warn("Rejected access to foreign resource", log.FieldUserID, current.ID, "owner_id", userID)
		return errForeignUser
	}
	return nil
}
