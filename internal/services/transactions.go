package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"financeflow/internal/amqp"
	"financeflow/internal/core"
	"financeflow/internal/importer"
	"financeflow/internal/log"
)

// NewTransaction is a manually entered transaction. Category defaults to
// Other and Type to Expense; Date defaults to now.
type NewTransaction struct {
	Description string
	Amount      float64
	Type        string
	Category    string
	Date        time.Time
	Merchant    string
}

func (f *FinanceService) CreateTransaction(ctx context.Context, accountID int64, in NewTransaction) (core.Transaction, error) {
	account, err := f.store.GetAccount(ctx, accountID)
	if err != nil {
		return core.Transaction{}, err
	}
	t := core.Transaction{
		AccountID:   accountID,
		Description: strings.TrimSpace(in.Description),
		Amount:      core.Round2(in.Amount),
		Date:        in.Date.UTC(),
		Merchant:    strings.TrimSpace(in.Merchant),
	}
	if t.Amount <= 0 {
		return core.Transaction{}, &core.ValidationError{Field: "amount", Reason: core.ErrInvalidAmount.Error()}
	}
	if t.Date.IsZero() {
		t.Date = f.now().UTC()
	}
	if t.Type, err = parseTypeOr(in.Type, core.Expense); err != nil {
		return core.Transaction{}, err
	}
	if t.Category, err = parseCategoryOr(in.Category, core.Other); err != nil {
		return core.Transaction{}, err
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if err := f.store.CreateTransaction(ctx, &t); err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	f.engine.Invalidate(account.UserID)
	f.logger.InfoContext(ctx, "Transaction saved",
		log.FieldTransaction, t.ID,
		log.FieldAccountID, accountID,
		log.FieldCategory, t.Category,
		"amount", t.Amount)
	f.publish(ctx, amqp.NewTransactionSaved(account.UserID, accountID, t.ID))
	return t, nil
}

func (f *FinanceService) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	return f.store.GetTransaction(ctx, id)
}

// TransactionUpdate holds the fields to change; nil fields are left alone.
type TransactionUpdate struct {
	Description *string
	Amount      *float64
	Type        *string
	Category    *string
	Date        *time.Time
	Merchant    *string
}

func (f *FinanceService) UpdateTransaction(ctx context.Context, id int64, in TransactionUpdate) (core.Transaction, error) {
	t, err := f.store.GetTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}
	if in.Description != nil {
		t.Description = strings.TrimSpace(*in.Description)
	}
	if in.Amount != nil {
		amount := core.Round2(*in.Amount)
		if amount <= 0 {
			return core.Transaction{}, &core.ValidationError{Field: "amount", Reason: core.ErrInvalidAmount.Error()}
		}
		t.Amount = amount
	}
	if in.Type != nil {
		if t.Type, err = core.ParseTransactionType(*in.Type); err != nil {
			return core.Transaction{}, &core.ValidationError{Field: "transaction_type", Reason: err.Error()}
		}
	}
	if in.Category != nil {
		if t.Category, err = core.ParseCategory(*in.Category); err != nil {
			return core.Transaction{}, &core.ValidationError{Field: "category", Reason: err.Error()}
		}
	}
	if in.Date != nil {
		t.Date = in.Date.UTC()
	}
	if in.Merchant != nil {
		t.Merchant = strings.TrimSpace(*in.Merchant)
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if err := f.store.UpdateTransaction(ctx, &t); err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	userID := f.invalidateAccount(ctx, t.AccountID)
	f.publish(ctx, amqp.NewTransactionSaved(userID, t.AccountID, t.ID))
	return t, nil
}

// DeleteTransaction removes a transaction by id. It reports false when the
// id is unknown.
func (f *FinanceService) DeleteTransaction(ctx context.Context, id int64) (bool, error) {
	t, err := f.store.GetTransaction(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	deleted, err := f.store.DeleteTransaction(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete transaction: %w", err)
	}
	if !deleted {
		return false, nil
	}

	userID := f.invalidateAccount(ctx, t.AccountID)
	f.logger.InfoContext(ctx, "Transaction deleted", log.FieldTransaction, id, log.FieldAccountID, t.AccountID)
	f.publish(ctx, amqp.NewTransactionDeleted(userID, t.AccountID, id))
	return true, nil
}

// ListTransactions returns the user's transactions of the last daysBack
// days, newest first. A non-nil accountID narrows the list to one account,
// which must belong to the user. daysBack <= 0 disables the window.
func (f *FinanceService) ListTransactions(ctx context.Context, userID int64, accountID *int64, daysBack int) ([]core.Transaction, error) {
	accounts, err := f.ListAccounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(accounts))
	for _, a := range accounts {
		if accountID == nil || a.ID == *accountID {
			ids = append(ids, a.ID)
		}
	}
	if accountID != nil && len(ids) == 0 {
		return nil, core.NewNotFound("account", *accountID)
	}
	if len(ids) == 0 {
		return []core.Transaction{}, nil
	}

	filter := core.TransactionFilter{AccountIDs: ids}
	if daysBack > 0 {
		filter.From = f.now().UTC().AddDate(0, 0, -daysBack)
	}
	return f.store.ListTransactions(ctx, filter)
}

// ImportTransactions runs one atomic import batch into accountID.
func (f *FinanceService) ImportTransactions(ctx context.Context, accountID int64, records []core.RawRecord) (importer.Result, error) {
	res, err := f.importer.Import(ctx, accountID, records)
	if err != nil {
		return res, err
	}
	if len(res.Created) > 0 {
		userID := f.invalidateAccount(ctx, accountID)
		f.publish(ctx, amqp.NewTransactionsImported(userID, accountID, len(res.Created)))
	}
	return res, nil
}

// invalidateAccount drops the cached snapshots of the account owner and
// returns the owner id, 0 when the account cannot be read.
func (f *FinanceService) invalidateAccount(ctx context.Context, accountID int64) int64 {
	a, err := f.store.GetAccount(ctx, accountID)
	if err != nil {
		f.logger.WarnContext(ctx, "Failed to resolve account owner", log.FieldAccountID, accountID, log.FieldError, err)
		return 0
	}
	f.engine.Invalidate(a.UserID)
	return a.UserID
}

func parseTypeOr(s string, def core.TransactionType) (core.TransactionType, error) {
	if strings.TrimSpace(s) == "" {
		return def, nil
	}
	t, err := core.ParseTransactionType(s)
	if err != nil {
		return "", &core.ValidationError{Field: "transaction_type", Reason: err.Error()}
	}
	return t, nil
}

func parseCategoryOr(s string, def core.Category) (core.Category, error) {
	if strings.TrimSpace(s) == "" {
		return def, nil
	}
	c, err := core.ParseCategory(s)
	if err != nil {
		return "", &core.ValidationError{Field: "category", Reason: err.Error()}
	}
	return c, nil
}
