package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"financeflow/internal/bank"
	"financeflow/internal/core"
	"financeflow/internal/log"
	"financeflow/internal/services"
	"financeflow/internal/storage/memory"
)

var now = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

const password = "S3cure!pass"

type testServer struct {
	t   *testing.T
	srv *Server
	svc *services.FinanceService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	feed, err := bank.New(bank.Config{Provider: bank.ProviderMock, Seed: 1, Now: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("new feed: %v", err)
	}
	logger := log.New(log.Config{Output: io.Discard})
	svc := services.NewFinanceService(memory.New(), feed,
		services.WithClock(func() time.Time { return now }),
		services.WithSecretKey("test-secret"),
		services.WithLogger(logger),
	)
	srv := NewServer(":0", svc, logger)
	t.Cleanup(func() { srv.limiter.stop() })
	return &testServer{t: t, srv: srv, svc: svc}
}

func (ts *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			ts.t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) expect(rec *httptest.ResponseRecorder, status int) {
	ts.t.Helper()
	if rec.Code != status {
		ts.t.Fatalf("status = %d, want %d; body: %s", rec.Code, status, rec.Body.String())
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

// login registers username and opens a session for it.
func (ts *testServer) login(username string) userResponse {
	ts.t.Helper()
	rec := ts.do(http.MethodPost, "/api/users", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": password,
	})
	ts.expect(rec, http.StatusCreated)
	rec = ts.do(http.MethodPost, "/api/login", map[string]string{"username": username, "password": password})
	ts.expect(rec, http.StatusOK)
	return decode[userResponse](ts.t, rec)
}

func (ts *testServer) account(userID int64) accountResponse {
	ts.t.Helper()
	rec := ts.do(http.MethodPost, fmt.Sprintf("/api/users/%d/accounts", userID), map[string]any{
		"name":    "Checking",
		"balance": 100,
	})
	ts.expect(rec, http.StatusCreated)
	return decode[accountResponse](ts.t, rec)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	ts.expect(ts.do(http.MethodGet, "/healthz", nil), http.StatusOK)
	ts.expect(ts.do(http.MethodGet, "/readyz", nil), http.StatusOK)

	rec := ts.do(http.MethodGet, "/healthz", nil)
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
}

func TestSessionRequired(t *testing.T) {
	ts := newTestServer(t)
	ts.expect(ts.do(http.MethodGet, "/api/me", nil), http.StatusUnauthorized)
	ts.expect(ts.do(http.MethodGet, "/api/users/1/accounts", nil), http.StatusUnauthorized)

	u := ts.login("alice")
	rec := ts.do(http.MethodGet, "/api/me", nil)
	ts.expect(rec, http.StatusOK)
	if me := decode[userResponse](t, rec); me.ID != u.ID || me.Username != "alice" {
		t.Errorf("me = %+v", me)
	}

	ts.expect(ts.do(http.MethodPost, "/api/logout", nil), http.StatusNoContent)
	ts.expect(ts.do(http.MethodGet, "/api/me", nil), http.StatusUnauthorized)
}

func TestUserErrors(t *testing.T) {
	ts := newTestServer(t)
	ts.login("alice")

	tests := []struct {
		name   string
		path   string
		body   any
		status int
		field  string
	}{
		{"duplicate username", "/api/users", map[string]string{"username": "alice", "email": "other@example.com", "password": password}, http.StatusConflict, ""},
		{"weak password", "/api/users", map[string]string{"username": "bob", "email": "bob@example.com", "password": "short"}, http.StatusBadRequest, "password"},
		{"unknown field", "/api/users", map[string]string{"username": "bob", "nickname": "b"}, http.StatusBadRequest, "body"},
		{"bad credentials", "/api/login", map[string]string{"username": "alice", "password": "wrong"}, http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(http.MethodPost, tt.path, tt.body)
			ts.expect(rec, tt.status)
			if got := decode[errorResponse](t, rec); got.Field != tt.field {
				t.Errorf("field = %q, want %q", got.Field, tt.field)
			}
		})
	}
}

func TestForeignUserLooksAbsent(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.login("alice")
	acct := ts.account(alice.ID)
	rec := ts.do(http.MethodPost, fmt.Sprintf("/api/accounts/%d/transactions", acct.ID), map[string]any{
		"amount":   12.5,
		"category": "Food",
	})
	ts.expect(rec, http.StatusCreated)
	tx := decode[transactionResponse](t, rec)

	ts.login("bob")
	for _, path := range []string{
		fmt.Sprintf("/api/users/%d/accounts", alice.ID),
		fmt.Sprintf("/api/users/%d/dashboard", alice.ID),
		fmt.Sprintf("/api/transactions/%d", tx.ID),
	} {
		ts.expect(ts.do(http.MethodGet, path, nil), http.StatusNotFound)
	}
	ts.expect(ts.do(http.MethodDelete, fmt.Sprintf("/api/transactions/%d", tx.ID), nil), http.StatusNotFound)
	ts.expect(ts.do(http.MethodPost, fmt.Sprintf("/api/accounts/%d/import", acct.ID), map[string]any{"records": []any{}}), http.StatusNotFound)

	if ts.srv.metrics.rejectedAccess == 0 {
		t.Error("expected rejected access to be counted")
	}
}

func TestTransactionLifecycle(t *testing.T) {
	ts := newTestServer(t)
	u := ts.login("alice")
	acct := ts.account(u.ID)

	rec := ts.do(http.MethodPost, fmt.Sprintf("/api/accounts/%d/transactions", acct.ID), map[string]any{
		"description": "Groceries",
		"amount":      42.1,
		"category":    "Food",
		"date":        "2025-03-10",
	})
	ts.expect(rec, http.StatusCreated)
	tx := decode[transactionResponse](t, rec)
	if tx.Type != "Expense" || tx.Category != "Food" || !tx.Date.Equal(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("created = %+v", tx)
	}

	rec = ts.do(http.MethodPatch, fmt.Sprintf("/api/transactions/%d", tx.ID), map[string]any{"amount": 50})
	ts.expect(rec, http.StatusOK)
	if got := decode[transactionResponse](t, rec); got.Amount != 50 || got.Description != "Groceries" {
		t.Errorf("updated = %+v", got)
	}

	rec = ts.do(http.MethodGet, fmt.Sprintf("/api/users/%d/transactions?account=%d&days=30", u.ID, acct.ID), nil)
	ts.expect(rec, http.StatusOK)
	if list := decode[[]transactionResponse](t, rec); len(list) != 1 {
		t.Fatalf("listed %d transactions, want 1", len(list))
	}

	ts.expect(ts.do(http.MethodDelete, fmt.Sprintf("/api/transactions/%d", tx.ID), nil), http.StatusNoContent)
	ts.expect(ts.do(http.MethodGet, fmt.Sprintf("/api/transactions/%d", tx.ID), nil), http.StatusNotFound)
}

func TestCreateTransactionValidation(t *testing.T) {
	ts := newTestServer(t)
	u := ts.login("alice")
	acct := ts.account(u.ID)
	path := fmt.Sprintf("/api/accounts/%d/transactions", acct.ID)

	tests := []struct {
		name  string
		body  map[string]any
		field string
	}{
		{"bad date", map[string]any{"amount": 1, "date": "10/03/2025"}, "date"},
		{"unknown category", map[string]any{"amount": 1, "category": "Yachts"}, "category"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(http.MethodPost, path, tt.body)
			ts.expect(rec, http.StatusBadRequest)
			if got := decode[errorResponse](t, rec); got.Field != tt.field {
				t.Errorf("field = %q, want %q", got.Field, tt.field)
			}
		})
	}

	ts.expect(ts.do(http.MethodPost, "/api/accounts/abc/transactions", map[string]any{"amount": 1}), http.StatusBadRequest)
	ts.expect(ts.do(http.MethodPost, "/api/accounts/999/transactions", map[string]any{"amount": 1}), http.StatusNotFound)
}

func TestImport(t *testing.T) {
	ts := newTestServer(t)
	u := ts.login("alice")
	acct := ts.account(u.ID)

	body := map[string]any{"records": []map[string]any{
		{"external_id": "x-1", "amount": 10, "date": "2025-03-01"},
		{"external_id": "x-1", "amount": 10, "date": "2025-03-01"},
		{"external_id": "x-2", "date": "2025-03-02"},
	}}
	rec := ts.do(http.MethodPost, fmt.Sprintf("/api/accounts/%d/import", acct.ID), body)
	ts.expect(rec, http.StatusOK)
	res := decode[importResponse](t, rec)
	if res.Created != 1 || res.Skipped != 1 || len(res.Rejected) != 1 {
		t.Fatalf("import = %+v", res)
	}
	if res.Rejected[0].Record != 3 || res.Rejected[0].Field != "amount" {
		t.Errorf("rejection = %+v", res.Rejected[0])
	}
}

func TestBudgetsAndDashboard(t *testing.T) {
	ts := newTestServer(t)
	u := ts.login("alice")
	acct := ts.account(u.ID)

	rec := ts.do(http.MethodPut, fmt.Sprintf("/api/users/%d/budgets/Food", u.ID), map[string]any{"monthly_limit": 50})
	ts.expect(rec, http.StatusOK)
	if b := decode[budgetResponse](t, rec); b.Category != "Food" || b.MonthlyLimit != 50 {
		t.Errorf("budget = %+v", b)
	}
	ts.expect(ts.do(http.MethodPut, fmt.Sprintf("/api/users/%d/budgets/Yachts", u.ID), map[string]any{"monthly_limit": 50}), http.StatusBadRequest)

	ts.do(http.MethodPost, fmt.Sprintf("/api/accounts/%d/transactions", acct.ID), map[string]any{"amount": 60, "category": "Food", "date": "2025-03-14"})

	rec = ts.do(http.MethodGet, fmt.Sprintf("/api/users/%d/budgets", u.ID), nil)
	ts.expect(rec, http.StatusOK)
	if list := decode[[]budgetResponse](t, rec); len(list) != 1 {
		t.Errorf("budgets = %+v", list)
	}

	rec = ts.do(http.MethodGet, fmt.Sprintf("/api/users/%d/dashboard", u.ID), nil)
	ts.expect(rec, http.StatusOK)
	var dash map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &dash); err != nil {
		t.Fatalf("decode dashboard: %v", err)
	}
	if len(dash) == 0 {
		t.Error("empty dashboard")
	}

	ts.expect(ts.do(http.MethodGet, fmt.Sprintf("/api/users/%d/categories?days=7", u.ID), nil), http.StatusOK)
	ts.expect(ts.do(http.MethodGet, fmt.Sprintf("/api/users/%d/categories?days=-1", u.ID), nil), http.StatusBadRequest)
}

func TestReport(t *testing.T) {
	ts := newTestServer(t)
	u := ts.login("alice")
	acct := ts.account(u.ID)
	ts.do(http.MethodPost, fmt.Sprintf("/api/accounts/%d/transactions", acct.ID), map[string]any{"amount": 25, "category": "Food", "date": "2025-02-10"})

	base := fmt.Sprintf("/api/users/%d/reports/2025/2", u.ID)

	rec := ts.do(http.MethodGet, base, nil)
	ts.expect(rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), `"2025-02"`) {
		t.Errorf("json report missing period: %s", rec.Body.String())
	}

	rec = ts.do(http.MethodGet, base+"?format=csv", nil)
	ts.expect(rec, http.StatusOK)
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "report-2025-02.csv") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if !strings.Contains(rec.Body.String(), "25.00") {
		t.Errorf("csv report missing amount: %s", rec.Body.String())
	}

	ts.expect(ts.do(http.MethodGet, base+"?format=xml", nil), http.StatusBadRequest)
	ts.expect(ts.do(http.MethodGet, fmt.Sprintf("/api/users/%d/reports/2025/13", u.ID), nil), http.StatusBadRequest)

	rec = ts.do(http.MethodGet, fmt.Sprintf("/api/users/%d/months/2025/2", u.ID), nil)
	ts.expect(rec, http.StatusOK)
	if snap := decode[core.MonthSnapshot](t, rec); snap.Expenses != 25 || snap.Net != -25 || snap.Month != 2 {
		t.Errorf("month snapshot = %+v", snap)
	}
	ts.expect(ts.do(http.MethodGet, fmt.Sprintf("/api/users/%d/months/2025/0", u.ID), nil), http.StatusBadRequest)
}

func TestSync(t *testing.T) {
	ts := newTestServer(t)
	u := ts.login("alice")
	rec := ts.do(http.MethodPost, fmt.Sprintf("/api/users/%d/accounts", u.ID), map[string]any{
		"name":         "Linked",
		"external_id":  "mock_account_001",
		"access_token": "tok",
	})
	ts.expect(rec, http.StatusCreated)
	acct := decode[accountResponse](t, rec)
	if !acct.HasToken || acct.ExternalID != "mock_account_001" {
		t.Fatalf("account = %+v", acct)
	}

	rec = ts.do(http.MethodPost, fmt.Sprintf("/api/users/%d/sync", u.ID), nil)
	ts.expect(rec, http.StatusOK)
	var out struct {
		Imported map[string]int `json:"imported"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := out.Imported[fmt.Sprint(acct.ID)]; !ok {
		t.Errorf("sync result = %+v", out.Imported)
	}
}

func TestRateLimiter(t *testing.T) {
	clock := now
	rl := &rateLimiter{clients: map[string]*clientInfo{}, now: func() time.Time { return clock }, stopCleanup: make(chan struct{})}
	m := &securityMetrics{}

	for i := 0; i < requestsPerMinute; i++ {
		if !rl.allow("1.2.3.4", m) {
			t.Fatalf("request %d rejected", i+1)
		}
	}
	if rl.allow("1.2.3.4", m) {
		t.Fatal("request over budget allowed")
	}
	if !rl.allow("5.6.7.8", m) {
		t.Error("other client rejected")
	}
	if m.rateLimitHits != 1 {
		t.Errorf("rateLimitHits = %d, want 1", m.rateLimitHits)
	}

	clock = clock.Add(61 * time.Second)
	if !rl.allow("1.2.3.4", m) {
		t.Error("window did not reset")
	}

	clock = clock.Add(11 * time.Minute)
	rl.cleanupStaleEntries()
	if len(rl.clients) != 0 {
		t.Errorf("stale entries left: %d", len(rl.clients))
	}
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		want       string
	}{
		{"direct", "203.0.113.9:5000", "", "203.0.113.9"},
		{"untrusted peer ignores header", "203.0.113.9:5000", "198.51.100.1", "203.0.113.9"},
		{"trusted proxy", "10.0.0.2:5000", "198.51.100.1, 10.0.0.2", "198.51.100.1"},
		{"trusted proxy bad header", "10.0.0.2:5000", "garbage", "10.0.0.2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := extractClientIP(r); got != tt.want {
				t.Errorf("extractClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	ts := newTestServer(t)
	u := ts.login("alice")
	rec := ts.do(http.MethodGet, fmt.Sprintf("/api/users/%d/transactions?days=abc", u.ID), nil)
	ts.expect(rec, http.StatusBadRequest)
	if got := decode[errorResponse](t, rec); got.Field != "days" {
		t.Errorf("field = %q", got.Field)
	}
}
