package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"financeflow/internal/importer"
	"financeflow/internal/report"
	"financeflow/internal/services"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.svc.Ping(ctx); err != nil {
		s.logger.WarnContext(ctx, "Readiness check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// ===================== Users & session =====================

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	u, err := s.svc.CreateUser(r.Context(), services.NewUser{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUser(u))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	u, err := s.svc.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUser(u))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.svc.Logout()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u, err := s.svc.CurrentUser()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUser(u))
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	userID, _ := pathID(r, "userID")
	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	u, err := s.svc.UpdateUser(r.Context(), userID, services.UserUpdate{
		Email:         req.Email,
		FullName:      req.FullName,
		Password:      req.Password,
		MonthlyBudget: req.MonthlyBudget,
		Currency:      req.Currency,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUser(u))
}

// ===================== Accounts =====================

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, _ := pathID(r, "userID")
	accounts, err := s.svc.ListAccounts(r.Context(), userID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	out := make([]accountResponse, len(accounts))
	for i, a := range accounts {
		out[i] = toAccount(a)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	userID, _ := pathID(r, "userID")
	var req createAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	a, err := s.svc.AddAccount(r.Context(), userID, services.NewAccount{
		Name:          req.Name,
		AccountNumber: req.AccountNumber,
		BankName:      req.BankName,
		Balance:       req.Balance,
		Currency:      req.Currency,
		ExternalID:    req.ExternalID,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if req.ExternalID != "" && req.AccessToken != "" {
		if a, err = s.svc.LinkAccount(r.Context(), a.ID, req.ExternalID, req.AccessToken); err != nil {
			s.respondError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, toAccount(a))
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	userID, _ := pathID(r, "userID")
	results, err := s.svc.SyncTransactions(r.Context(), userID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	out := make(map[string]int, len(results))
	for id, n := range results {
		out[fmt.Sprint(id)] = n
	}
	writeJSON(w, http.StatusOK, map[string]any{"imported": out})
}

// ===================== Transactions =====================

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, _ := pathID(r, "userID")
	days, err := queryInt(r, "days", 30)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var accountID *int64
	if raw := r.URL.Query().Get("account"); raw != "" {
		id, err := queryInt(r, "account", 0)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		v := int64(id)
		accountID = &v
	}
	txs, err := s.svc.ListTransactions(r.Context(), userID, accountID, days)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactions(txs))
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathID(r, "accountID")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if _, err := s.authorizeAccount(r, accountID); err != nil {
		s.respondError(w, r, err)
		return
	}
	var req createTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	in := services.NewTransaction{
		Description: req.Description,
		Amount:      req.Amount,
		Type:        req.Type,
		Category:    req.Category,
		Merchant:    req.Merchant,
	}
	if req.Date != "" {
		if in.Date, err = importer.ParseDate(req.Date); err != nil {
			s.respondError(w, r, fieldError("date", err))
			return
		}
	}
	t, err := s.svc.CreateTransaction(r.Context(), accountID, in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransaction(t))
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathID(r, "accountID")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if _, err := s.authorizeAccount(r, accountID); err != nil {
		s.respondError(w, r, err)
		return
	}
	var req importRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	res, err := s.svc.ImportTransactions(r.Context(), accountID, req.Records)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toImport(res))
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	t, err := s.authorizeTransaction(r, id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransaction(t))
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if _, err := s.authorizeTransaction(r, id); err != nil {
		s.respondError(w, r, err)
		return
	}
	var req updateTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	in := services.TransactionUpdate{
		Description: req.Description,
		Amount:      req.Amount,
		Type:        req.Type,
		Category:    req.Category,
		Merchant:    req.Merchant,
	}
	if req.Date != nil {
		d, err := importer.ParseDate(*req.Date)
		if err != nil {
			s.respondError(w, r, fieldError("date", err))
			return
		}
		in.Date = &d
	}
	t, err := s.svc.UpdateTransaction(r.Context(), id, in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransaction(t))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if _, err := s.authorizeTransaction(r, id); err != nil {
		s.respondError(w, r, err)
		return
	}
	if _, err := s.svc.DeleteTransaction(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ===================== Budgets =====================

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	userID, _ := pathID(r, "userID")
	budgets, err := s.svc.ListBudgets(r.Context(), userID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	out := make([]budgetResponse, len(budgets))
	for i, b := range budgets {
		out[i] = toBudget(b)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSetBudget(w http.ResponseWriter, r *http.Request) {
	userID, _ := pathID(r, "userID")
	var req budgetRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	b, err := s.svc.SetBudget(r.Context(), userID, chi.URLParam(r, "category"), req.MonthlyLimit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBudget(b))
}

// ===================== Analytics =====================

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	userID, _ := pathID(r, "userID")
	d, err := s.svc.DashboardData(r.Context(), userID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	userID, _ := pathID(r, "userID")
	year, err := pathInt(r, "year")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	month, err := pathInt(r, "month")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	doc, err := s.svc.MonthlyReport(r.Context(), userID, year, month)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		w.Header().Set("Content-Type", "application/json")
		report.WriteJSON(w, doc)
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="report-%s.csv"`, doc.Period))
		if err := report.WriteCSV(w, doc); err != nil {
			s.logger.ErrorContext(r.Context(), "Failed to write CSV report", "error", err)
		}
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported format %q", format))
	}
}

func (s *Server) handleMonth(w http.ResponseWriter, r *http.Request) {
	userID, _ := pathID(r, "userID")
	year, err := pathInt(r, "year")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	month, err := pathInt(r, "month")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	snap, err := s.svc.MonthSnapshot(r.Context(), userID, year, month)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	userID, _ := pathID(r, "userID")
	days, err := queryInt(r, "days", 30)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	a, err := s.svc.CategoryAnalysis(r.Context(), userID, days)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}
