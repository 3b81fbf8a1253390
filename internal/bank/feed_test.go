package bank

import (
	"context"
	"errors"
	"testing"
	"time"

	"financeflow/internal/core"
)

var mockNow = time.Date(2025, 3, 15, 23, 59, 0, 0, time.UTC)

func newTestMock(seed int64) *Mock {
	m := NewMock(seed)
	m.now = func() time.Time { return mockNow }
	return m
}

func TestMock_Deterministic(t *testing.T) {
	ctx := context.Background()
	a, err := newTestMock(42).FetchTransactions(ctx, "mock_account_001", 30)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	b, _ := newTestMock(42).FetchTransactions(ctx, "mock_account_001", 30)
	if len(a) == 0 {
		t.Fatalf("expected generated records over 31 days")
	}
	if len(a) != len(b) {
		t.Fatalf("expected equal feeds, got %d and %d records", len(a), len(b))
	}
	for i := range a {
		if a[i].ExternalID != b[i].ExternalID || *a[i].Amount != *b[i].Amount || a[i].Date != b[i].Date {
			t.Fatalf("record %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}

	other, _ := newTestMock(42).FetchTransactions(ctx, "mock_account_002", 30)
	seen := map[string]bool{}
	for _, r := range a {
		seen[r.ExternalID] = true
	}
	for _, r := range other {
		if seen[r.ExternalID] {
			t.Fatalf("external id %s shared between accounts", r.ExternalID)
		}
	}
}

func TestMock_RecordsAreImportable(t *testing.T) {
	records, _ := newTestMock(7).FetchTransactions(context.Background(), "mock_account_001", 60)
	start := mockNow.AddDate(0, 0, -61)
	ids := map[string]bool{}
	for i, r := range records {
		if ids[r.ExternalID] {
			t.Fatalf("duplicate external id %s", r.ExternalID)
		}
		ids[r.ExternalID] = true

		if _, err := core.ParseCategory(r.Category); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if r.Amount == nil || *r.Amount <= 0 {
			t.Fatalf("record %d: bad amount", i)
		}
		d, err := time.Parse(mockDateLayout, r.Date)
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if d.After(mockNow) || d.Before(start) {
			t.Fatalf("record %d outside window: %s", i, r.Date)
		}
		if i > 0 && records[i-1].Date < r.Date {
			t.Fatalf("records not sorted newest first at %d", i)
		}
	}
}

func TestMock_WindowIsPrefix(t *testing.T) {
	ctx := context.Background()
	short, _ := newTestMock(3).FetchTransactions(ctx, "mock_account_001", 5)
	long, _ := newTestMock(3).FetchTransactions(ctx, "mock_account_001", 30)
	ids := map[string]bool{}
	for _, r := range long {
		ids[r.ExternalID] = true
	}
	for _, r := range short {
		if !ids[r.ExternalID] {
			t.Fatalf("record %s of the short window missing from the long one", r.ExternalID)
		}
	}
}

func TestMock_AccountsAndBalance(t *testing.T) {
	m := NewMock(0)
	accounts, err := m.Accounts(context.Background())
	if err != nil || len(accounts) != 2 {
		t.Fatalf("accounts: %v (%v)", accounts, err)
	}
	if b, _ := m.Balance(context.Background(), "mock_account_001"); b != 2500.50 {
		t.Fatalf("balance %v", b)
	}
	if b, _ := m.Balance(context.Background(), "unknown"); b != 0 {
		t.Fatalf("unknown account balance %v", b)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default is mock", Config{}, false},
		{"mock", Config{Provider: ProviderMock}, false},
		{"plaid", Config{Provider: ProviderPlaid, APIKey: "k"}, false},
		{"gocardless without key", Config{Provider: ProviderGoCardless}, true},
		{"unknown", Config{Provider: "swift"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRemote_NotImplemented(t *testing.T) {
	feed, err := New(Config{Provider: ProviderPlaid, APIKey: "k"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := feed.FetchTransactions(context.Background(), "x", 30); !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("expected ErrNotImplemented, got %v", err)
	}
	if _, err := feed.Balance(context.Background(), "x"); !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("expected ErrNotImplemented, got %v", err)
	}
}
