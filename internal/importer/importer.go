// Package importer persists externally sourced transactions for one account,
// skipping records whose external id is already known.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"financeflow/internal/core"
	"financeflow/internal/log"
	"financeflow/internal/storage"
)

// Accepted date layouts, tried in order.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Result describes the outcome of one import batch.
type Result struct {
	Created  []core.Transaction
	Skipped  int
	Rejected []*core.ValidationError
}

type Importer struct {
	store  storage.Store
	logger *slog.Logger
}

func New(store storage.Store, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{store: store, logger: logger}
}

// Import validates records and persists the new ones into accountID as a
// single unit of work. Malformed records are reported in Result.Rejected and
// do not stop the batch. A store failure rolls the whole batch back and is
// returned as *core.ImportFailure.
func (i *Importer) Import(ctx context.Context, accountID int64, records []core.RawRecord) (Result, error) {
	var res Result

	err := i.store.WithTx(ctx, func(repo storage.Repository) error {
		if _, err := repo.GetAccount(ctx, accountID); err != nil {
			return err
		}

		seen := make(map[string]struct{}, len(records))
		for idx, rec := range records {
			tx, verr := Normalize(rec)
			if verr != nil {
				verr.Record = idx + 1
				res.Rejected = append(res.Rejected, verr)
				continue
			}

			if tx.ExternalID != "" {
				if _, dup := seen[tx.ExternalID]; dup {
					res.Skipped++
					continue
				}
				seen[tx.ExternalID] = struct{}{}

				exists, err := repo.ExternalIDExists(ctx, tx.ExternalID)
				if err != nil {
					return &core.ImportFailure{AccountID: accountID, Err: err}
				}
				if exists {
					res.Skipped++
					continue
				}
			}

			tx.AccountID = accountID
			if err := repo.CreateTransaction(ctx, &tx); err != nil {
				return &core.ImportFailure{AccountID: accountID, Err: err}
			}
			res.Created = append(res.Created, tx)
		}
		return nil
	})
	if err != nil {
		var failure *core.ImportFailure
		if errors.As(err, &failure) {
			i.logger.ErrorContext(ctx, "Import batch rolled back",
				"account_id", accountID, "records", len(records), "error", failure.Err)
			return Result{}, err
		}
		if errors.Is(err, core.ErrNotFound) {
			return Result{}, err
		}
		return Result{}, &core.ImportFailure{AccountID: accountID, Err: err}
	}

	i.logger.InfoContext(ctx, "Import batch committed", log.NewFields().
		WithAccount(accountID).
		WithImport(len(res.Created), res.Skipped, len(res.Rejected)).
		ToSlice()...)

	return res, nil
}

// Normalize turns a raw record into an unsaved transaction, applying the
// Other/Expense defaults.
func Normalize(rec core.RawRecord) (core.Transaction, *core.ValidationError) {
	if rec.Amount == nil {
		return core.Transaction{}, &core.ValidationError{Field: "amount", Reason: "missing"}
	}
	amount := *rec.Amount
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return core.Transaction{}, &core.ValidationError{Field: "amount", Reason: "not a finite number"}
	}

	if strings.TrimSpace(rec.Date) == "" {
		return core.Transaction{}, &core.ValidationError{Field: "date", Reason: "missing"}
	}
	date, err := ParseDate(rec.Date)
	if err != nil {
		return core.Transaction{}, &core.ValidationError{Field: "date", Reason: err.Error()}
	}

	category := core.Other
	if strings.TrimSpace(rec.Category) != "" {
		if category, err = core.ParseCategory(rec.Category); err != nil {
			return core.Transaction{}, &core.ValidationError{Field: "category", Reason: err.Error()}
		}
	}

	typ := core.Expense
	if strings.TrimSpace(rec.Type) != "" {
		if typ, err = core.ParseTransactionType(rec.Type); err != nil {
			return core.Transaction{}, &core.ValidationError{Field: "transaction_type", Reason: err.Error()}
		}
	}

	return core.Transaction{
		Description: strings.TrimSpace(rec.Description),
		Merchant:    strings.TrimSpace(rec.Merchant),
		Amount:      math.Abs(amount),
		Type:        typ,
		Category:    category,
		Date:        date,
		ExternalID:  strings.TrimSpace(rec.ExternalID),
	}, nil
}

// ParseDate accepts ISO-8601 dates with or without time and offset. Dates
// without an offset are taken as UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
