package importer

import (
	"context"
	"errors"
	"testing"
	"time"

	"financeflow/internal/core"
	"financeflow/internal/storage"
	"financeflow/internal/storage/memory"
	"financeflow/internal/storage/storagetest"
)

func amount(v float64) *float64 { return &v }

func setup(t *testing.T) (*memory.Store, core.Account) {
	t.Helper()
	s := memory.New()
	_, a := storagetest.SeedAccount(t, s)
	return s, a
}

func TestImport_SkipsDuplicatesInBatch(t *testing.T) {
	s, a := setup(t)
	imp := New(s, nil)

	records := []core.RawRecord{
		{ExternalID: "ext-1", Amount: amount(10), Date: "2025-03-01", Category: "Food"},
		{ExternalID: "ext-1", Amount: amount(99), Date: "2025-03-02", Category: "Food"},
	}
	res, err := imp.Import(context.Background(), a.ID, records)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(res.Created) != 1 || res.Skipped != 1 {
		t.Fatalf("expected 1 created and 1 skipped, got %d/%d", len(res.Created), res.Skipped)
	}
	if res.Created[0].Amount != 10 {
		t.Fatalf("first occurrence should win, got amount %v", res.Created[0].Amount)
	}

	txs, _ := s.ListTransactions(context.Background(), core.TransactionFilter{})
	if len(txs) != 1 || txs[0].ExternalID != "ext-1" {
		t.Fatalf("expected exactly one ext-1 transaction, got %+v", txs)
	}
}

func TestImport_Idempotent(t *testing.T) {
	s, a := setup(t)
	imp := New(s, nil)
	ctx := context.Background()

	records := []core.RawRecord{
		{ExternalID: "a", Amount: amount(5), Date: "2025-03-01T10:00:00"},
		{ExternalID: "b", Amount: amount(7), Date: "2025-03-02T10:00:00Z", Type: "Income", Category: "Salary"},
		{Amount: amount(3), Date: "2025-03-03"}, // no external id
	}
	first, err := imp.Import(ctx, a.ID, records)
	if err != nil || len(first.Created) != 3 {
		t.Fatalf("first import: %d created, %v", len(first.Created), err)
	}

	second, err := imp.Import(ctx, a.ID, records[:2])
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if len(second.Created) != 0 || second.Skipped != 2 {
		t.Fatalf("re-import should be a no-op, got %d created %d skipped", len(second.Created), second.Skipped)
	}

	txs, _ := s.ListTransactions(ctx, core.TransactionFilter{})
	if len(txs) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(txs))
	}
}

func TestImport_Defaults(t *testing.T) {
	s, a := setup(t)
	res, err := New(s, nil).Import(context.Background(), a.ID, []core.RawRecord{
		{Amount: amount(-42.5), Date: "2025-02-10", Description: " coffee "},
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	tx := res.Created[0]
	if tx.Category != core.Other || tx.Type != core.Expense {
		t.Fatalf("expected Other/Expense defaults, got %s/%s", tx.Category, tx.Type)
	}
	if tx.Amount != 42.5 || tx.Description != "coffee" || tx.AccountID != a.ID {
		t.Fatalf("unexpected transaction %+v", tx)
	}
}

func TestImport_RejectsMalformedRecords(t *testing.T) {
	s, a := setup(t)
	records := []core.RawRecord{
		{ExternalID: "ok-1", Amount: amount(1), Date: "2025-03-01"},
		{ExternalID: "no-amount", Date: "2025-03-01"},
		{ExternalID: "no-date", Amount: amount(1)},
		{ExternalID: "bad-date", Amount: amount(1), Date: "yesterday"},
		{ExternalID: "bad-cat", Amount: amount(1), Date: "2025-03-01", Category: "Groceries"},
		{ExternalID: "ok-2", Amount: amount(2), Date: "2025-03-01", Category: "transport"},
	}
	res, err := New(s, nil).Import(context.Background(), a.ID, records)
	if err != nil {
		t.Fatalf("malformed records must not fail the batch: %v", err)
	}
	if len(res.Created) != 2 {
		t.Fatalf("expected 2 created, got %d", len(res.Created))
	}
	if len(res.Rejected) != 4 {
		t.Fatalf("expected 4 rejected, got %d", len(res.Rejected))
	}
	wantFields := []string{"amount", "date", "date", "category"}
	for i, ve := range res.Rejected {
		if ve.Field != wantFields[i] || ve.Record != i+2 {
			t.Errorf("rejection %d: got field %s record %d", i, ve.Field, ve.Record)
		}
	}
	if exists, _ := s.ExternalIDExists(context.Background(), "no-amount"); exists {
		t.Fatalf("rejected record was persisted")
	}
}

func TestImport_UnknownAccount(t *testing.T) {
	s, _ := setup(t)
	_, err := New(s, nil).Import(context.Background(), 999, []core.RawRecord{{Amount: amount(1), Date: "2025-03-01"}})
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// failingStore injects a write failure after n successful inserts inside a
// unit of work.
type failingStore struct {
	*memory.Store
	n int
}

func (f *failingStore) WithTx(ctx context.Context, fn func(repo storage.Repository) error) error {
	return f.Store.WithTx(ctx, func(repo storage.Repository) error {
		return fn(&failingRepo{Repository: repo, left: f.n})
	})
}

type failingRepo struct {
	storage.Repository
	left int
}

func (r *failingRepo) CreateTransaction(ctx context.Context, t *core.Transaction) error {
	if r.left == 0 {
		return errors.New("disk I/O error")
	}
	r.left--
	return r.Repository.CreateTransaction(ctx, t)
}

func TestImport_RollbackOnStoreFailure(t *testing.T) {
	s, a := setup(t)
	store := &failingStore{Store: s, n: 2}

	records := []core.RawRecord{
		{ExternalID: "r-1", Amount: amount(1), Date: "2025-03-01"},
		{ExternalID: "r-2", Amount: amount(2), Date: "2025-03-02"},
		{ExternalID: "r-3", Amount: amount(3), Date: "2025-03-03"},
	}
	res, err := New(store, nil).Import(context.Background(), a.ID, records)

	var failure *core.ImportFailure
	if !errors.As(err, &failure) {
		t.Fatalf("expected ImportFailure, got %v", err)
	}
	if failure.AccountID != a.ID {
		t.Fatalf("unexpected account in failure: %d", failure.AccountID)
	}
	if len(res.Created) != 0 {
		t.Fatalf("failed batch must not report created transactions")
	}

	txs, _ := s.ListTransactions(context.Background(), core.TransactionFilter{})
	if len(txs) != 0 {
		t.Fatalf("expected full rollback, found %d transactions", len(txs))
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	for _, in := range []string{
		"2025-03-01T10:30:00",
		"2025-03-01T10:30:00Z",
		"2025-03-01T11:30:00+01:00",
		"2025-03-01T10:30:00.000000",
		"2025-03-01 10:30:00",
	} {
		got, err := ParseDate(in)
		if err != nil || !got.Equal(want) {
			t.Errorf("ParseDate(%q) = %v, %v", in, got, err)
		}
	}
	if d, err := ParseDate("2025-03-01"); err != nil || d.Hour() != 0 {
		t.Errorf("date-only: %v, %v", d, err)
	}
	if _, err := ParseDate("01/03/2025"); err == nil {
		t.Errorf("expected error for non-ISO date")
	}
}
