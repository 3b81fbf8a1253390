package http

import (
	"time"

	"financeflow/internal/core"
	"financeflow/internal/importer"
)

type userResponse struct {
	ID            int64     `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	FullName      string    `json:"full_name,omitempty"`
	MonthlyBudget float64   `json:"monthly_budget"`
	Currency      string    `json:"currency"`
	CreatedAt     time.Time `json:"created_at"`
}

func toUser(u core.User) userResponse {
	return userResponse{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		FullName:      u.FullName,
		MonthlyBudget: u.MonthlyBudget,
		Currency:      u.Currency,
		CreatedAt:     u.CreatedAt,
	}
}

type accountResponse struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	AccountNumber string    `json:"account_number"`
	Name          string    `json:"name"`
	BankName      string    `json:"bank_name,omitempty"`
	Balance       float64   `json:"balance"`
	Currency      string    `json:"currency"`
	ExternalID    string    `json:"external_id,omitempty"`
	HasToken      bool      `json:"has_token"`
	CreatedAt     time.Time `json:"created_at"`
}

func toAccount(a core.Account) accountResponse {
	return accountResponse{
		ID:            a.ID,
		UserID:        a.UserID,
		AccountNumber: a.AccountNumber,
		Name:          a.Name,
		BankName:      a.BankName,
		Balance:       core.Round2(a.Balance),
		Currency:      a.Currency,
		ExternalID:    a.ExternalID,
		HasToken:      a.AccessToken != "",
		CreatedAt:     a.CreatedAt,
	}
}

type transactionResponse struct {
	ID          int64                `json:"id"`
	AccountID   int64                `json:"account_id"`
	Description string               `json:"description,omitempty"`
	Amount      float64              `json:"amount"`
	Type        core.TransactionType `json:"transaction_type"`
	Category    core.Category        `json:"category"`
	Date        time.Time            `json:"date"`
	Merchant    string               `json:"merchant,omitempty"`
	ExternalID  string               `json:"external_id,omitempty"`
}

func toTransaction(t core.Transaction) transactionResponse {
	return transactionResponse{
		ID:          t.ID,
		AccountID:   t.AccountID,
		Description: t.Description,
		Amount:      t.Amount,
		Type:        t.Type,
		Category:    t.Category,
		Date:        t.Date,
		Merchant:    t.Merchant,
		ExternalID:  t.ExternalID,
	}
}

func toTransactions(txs []core.Transaction) []transactionResponse {
	out := make([]transactionResponse, len(txs))
	for i, t := range txs {
		out[i] = toTransaction(t)
	}
	return out
}

type budgetResponse struct {
	ID           int64         `json:"id"`
	Category     core.Category `json:"category"`
	MonthlyLimit float64       `json:"monthly_limit"`
}

func toBudget(b core.Budget) budgetResponse {
	return budgetResponse{ID: b.ID, Category: b.Category, MonthlyLimit: b.MonthlyLimit}
}

type rejection struct {
	Record int    `json:"record"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

type importResponse struct {
	Created  int         `json:"created"`
	Skipped  int         `json:"skipped"`
	Rejected []rejection `json:"rejected"`
	Imported []int64     `json:"transaction_ids"`
}

func toImport(res importer.Result) importResponse {
	out := importResponse{
		Created:  len(res.Created),
		Skipped:  res.Skipped,
		Rejected: make([]rejection, 0, len(res.Rejected)),
		Imported: make([]int64, 0, len(res.Created)),
	}
	for _, ve := range res.Rejected {
		out.Rejected = append(out.Rejected, rejection{Record: ve.Record, Field: ve.Field, Reason: ve.Reason})
	}
	for _, t := range res.Created {
		out.Imported = append(out.Imported, t.ID)
	}
	return out
}

type createUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type updateUserRequest struct {
	Email         *string  `json:"email"`
	FullName      *string  `json:"full_name"`
	Password      *string  `json:"password"`
	MonthlyBudget *float64 `json:"monthly_budget"`
	Currency      *string  `json:"currency"`
}

type createAccountRequest struct {
	Name          string  `json:"name"`
	AccountNumber string  `json:"account_number"`
	BankName      string  `json:"bank_name"`
	Balance       float64 `json:"balance"`
	Currency      string  `json:"currency"`
	ExternalID    string  `json:"external_id"`
	AccessToken   string  `json:"access_token"`
}

type createTransactionRequest struct {
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Type        string  `json:"transaction_type"`
	Category    string  `json:"category"`
	Date        string  `json:"date"`
	Merchant    string  `json:"merchant"`
}

type updateTransactionRequest struct {
	Description *string  `json:"description"`
	Amount      *float64 `json:"amount"`
	Type        *string  `json:"transaction_type"`
	Category    *string  `json:"category"`
	Date        *string  `json:"date"`
	Merchant    *string  `json:"merchant"`
}

type importRequest struct {
	Records []core.RawRecord `json:"records"`
}

type budgetRequest struct {
	MonthlyLimit float64 `json:"monthly_limit"`
}
