package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"financeflow/internal/cache"
	"financeflow/internal/core"
	"financeflow/internal/storage/memory"
	"financeflow/internal/storage/storagetest"
)

var fixedNow = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store   *memory.Store
	user    core.User
	account core.Account
	engine  *Engine
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	s := memory.New()
	u, a := storagetest.SeedAccount(t, s)
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return &fixture{store: s, user: u, account: a, engine: New(s, opts...)}
}

func (f *fixture) add(t *testing.T, typ core.TransactionType, cat core.Category, amount float64, date time.Time) {
	t.Helper()
	tx := core.Transaction{AccountID: f.account.ID, Amount: amount, Type: typ, Category: cat, Date: date}
	if err := f.store.CreateTransaction(context.Background(), &tx); err != nil {
		t.Fatalf("create transaction: %v", err)
	}
}

func (f *fixture) budget(t *testing.T, cat core.Category, limit float64) {
	t.Helper()
	b := core.Budget{UserID: f.user.ID, Category: cat, MonthlyLimit: limit}
	if err := f.store.UpsertBudget(context.Background(), &b); err != nil {
		t.Fatalf("upsert budget: %v", err)
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 9, 0, 0, 0, time.UTC)
}

func newUserWithoutAccounts(t *testing.T, f *fixture) int64 {
	t.Helper()
	u := core.User{Username: "noacc", Email: "noacc@example.com", PasswordHash: "x", Currency: "EUR"}
	if err := f.store.CreateUser(context.Background(), &u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u.ID
}

func TestTotalBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	second := core.Account{UserID: f.user.ID, AccountNumber: "ACC-2", Name: "Savings", Balance: 50.25, Currency: "EUR"}
	if err := f.store.CreateAccount(ctx, &second); err != nil {
		t.Fatalf("create account: %v", err)
	}
	got, err := f.engine.TotalBalance(ctx, f.user.ID)
	if err != nil || got != 150.25 {
		t.Fatalf("expected 150.25, got %v (%v)", got, err)
	}

	none := newUserWithoutAccounts(t, f)
	if got, err := f.engine.TotalBalance(ctx, none); err != nil || got != 0 {
		t.Fatalf("expected 0 for user without accounts, got %v (%v)", got, err)
	}
}

func TestSpendingByCategory(t *testing.T) {
	f := newFixture(t)
	f.add(t, core.Expense, core.Food, 10, date(2025, 3, 1))
	f.add(t, core.Expense, core.Food, 5.5, date(2025, 2, 20))
	f.add(t, core.Expense, core.Transport, 0, date(2025, 3, 2))  // zero sum
	f.add(t, core.Expense, core.Shopping, 80, date(2025, 1, 1))  // outside window
	f.add(t, core.Expense, core.Shopping, 70, date(2025, 3, 20)) // in the future
	f.add(t, core.Income, core.Salary, 2500, date(2025, 3, 1))   // not an expense

	got, err := f.engine.SpendingByCategory(context.Background(), f.user.ID, 30)
	if err != nil {
		t.Fatalf("spending: %v", err)
	}
	if len(got) != 1 || got[core.Food] != 15.5 {
		t.Fatalf("expected only Food=15.5, got %v", got)
	}
	for c, v := range got {
		if v == 0 {
			t.Fatalf("category %s has zero sum", c)
		}
	}

	none := newUserWithoutAccounts(t, f)
	empty, err := f.engine.SpendingByCategory(context.Background(), none, 30)
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty mapping, got %v (%v)", empty, err)
	}
}

func TestBudgetStatus_Exceeded(t *testing.T) {
	f := newFixture(t)
	for i, amount := range []float64{10, 20, 30} {
		f.add(t, core.Expense, core.Food, amount, date(2025, 3, 2+i))
	}
	f.budget(t, core.Food, 50)

	statuses, err := f.engine.BudgetStatus(context.Background(), f.user.ID)
	if err != nil {
		t.Fatalf("budget status: %v", err)
	}
	want := core.BudgetStatus{Category: core.Food, Limit: 50, Spent: 60, Remaining: 0, Percentage: 100, Exceeded: true}
	if len(statuses) != 1 || statuses[0] != want {
		t.Fatalf("got %+v, want %+v", statuses, want)
	}
}

func TestBudgetStatus_Bounds(t *testing.T) {
	f := newFixture(t)
	f.add(t, core.Expense, core.Transport, 25, date(2025, 3, 3))
	f.add(t, core.Expense, core.Transport, 1000, date(2025, 2, 27)) // previous month
	f.add(t, core.Expense, core.Shopping, 5, date(2025, 3, 1))
	f.budget(t, core.Transport, 100)
	f.budget(t, core.Shopping, 0)
	f.budget(t, core.Healthcare, 40)

	statuses, err := f.engine.BudgetStatus(context.Background(), f.user.ID)
	if err != nil {
		t.Fatalf("budget status: %v", err)
	}
	if len(statuses) != 3 {
		t.Fatalf("expected 3 statuses, got %d", len(statuses))
	}
	for _, s := range statuses {
		if s.Percentage < 0 || s.Percentage > 100 || s.Remaining < 0 {
			t.Fatalf("out of bounds: %+v", s)
		}
	}

	byCat := map[core.Category]core.BudgetStatus{}
	for _, s := range statuses {
		byCat[s.Category] = s
	}
	if s := byCat[core.Transport]; s.Spent != 25 || s.Percentage != 25 || s.Remaining != 75 || s.Exceeded {
		t.Fatalf("transport: %+v", s)
	}
	if s := byCat[core.Shopping]; s.Percentage != 0 || !s.Exceeded || s.Remaining != 0 {
		t.Fatalf("zero limit: %+v", s)
	}
	if s := byCat[core.Healthcare]; s.Spent != 0 || s.Remaining != 40 || s.Exceeded {
		t.Fatalf("untouched budget: %+v", s)
	}
}

func TestMonthlyBalanceTrend(t *testing.T) {
	f := newFixture(t)
	f.add(t, core.Income, core.Salary, 2500, date(2025, 3, 1))
	f.add(t, core.Expense, core.Food, 100, date(2025, 3, 2))
	f.add(t, core.Expense, core.Food, 40, date(2025, 1, 10))
	f.add(t, core.Transfer, core.Other, 999, date(2025, 1, 11))

	seq := f.engine.MonthlyBalanceTrend(context.Background(), f.user.ID, 3)
	trend, err := CollectTrend(seq)
	if err != nil {
		t.Fatalf("trend: %v", err)
	}

	// 30-day steps back from 2025-03-01 land on 2024-12-31 and 2025-01-30,
	// so February is skipped.
	wantMonths := []string{"2024-12", "2025-01", "2025-03"}
	if len(trend) != len(wantMonths) {
		t.Fatalf("expected %d entries, got %+v", len(wantMonths), trend)
	}
	for i, m := range wantMonths {
		if trend[i].Month != m {
			t.Fatalf("entry %d: got %s, want %s", i, trend[i].Month, m)
		}
	}
	if trend[1].Expenses != 40 || trend[1].Income != 0 || trend[1].Net != -40 {
		t.Fatalf("january: %+v", trend[1])
	}
	if trend[2].Income != 2500 || trend[2].Net != 2400 {
		t.Fatalf("march: %+v", trend[2])
	}

	again, err := CollectTrend(seq)
	if err != nil || len(again) != len(trend) || again[2] != trend[2] {
		t.Fatalf("sequence should be restartable, got %+v (%v)", again, err)
	}
}

func TestMonthlyBalanceTrend_Drift(t *testing.T) {
	f := newFixture(t)
	trend, err := CollectTrend(f.engine.MonthlyBalanceTrend(context.Background(), f.user.ID, 6))
	if err != nil {
		t.Fatalf("trend: %v", err)
	}
	want := []string{"2024-10", "2024-11", "2024-12", "2024-12", "2025-01", "2025-03"}
	if len(trend) > 6 || len(trend) != len(want) {
		t.Fatalf("unexpected length %d", len(trend))
	}
	for i := range want {
		if trend[i].Month != want[i] {
			t.Fatalf("entry %d: got %s, want %s", i, trend[i].Month, want[i])
		}
		if i > 0 && trend[i].Month < trend[i-1].Month {
			t.Fatalf("trend not ascending at %d", i)
		}
	}
}

func TestMonthlyBalanceTrend_EarlyStopAndEmpty(t *testing.T) {
	f := newFixture(t)
	n := 0
	for range f.engine.MonthlyBalanceTrend(context.Background(), f.user.ID, 12) {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Fatalf("expected to stop after 2 entries, got %d", n)
	}

	none := newUserWithoutAccounts(t, f)
	trend, err := CollectTrend(f.engine.MonthlyBalanceTrend(context.Background(), none, 6))
	if err != nil || len(trend) != 0 {
		t.Fatalf("expected no entries without accounts, got %+v (%v)", trend, err)
	}
	if trend, _ := CollectTrend(f.engine.MonthlyBalanceTrend(context.Background(), f.user.ID, 0)); len(trend) != 0 {
		t.Fatalf("expected no entries for monthsBack=0")
	}
}

func TestSnapshotCache(t *testing.T) {
	snapshots := cache.NewLRUCache[core.MonthSnapshot](16, 0)
	f := newFixture(t, WithSnapshotCache(snapshots))
	ctx := context.Background()
	f.add(t, core.Expense, core.Food, 40, date(2025, 1, 10))

	jan, err := f.engine.Snapshot(ctx, f.user.ID, 2025, 1)
	if err != nil || jan.Expenses != 40 {
		t.Fatalf("snapshot: %+v (%v)", jan, err)
	}
	if _, err := f.engine.Snapshot(ctx, f.user.ID, 2025, 3); err != nil {
		t.Fatalf("current month snapshot: %v", err)
	}
	if snapshots.Size() != 1 {
		t.Fatalf("only the closed month should be cached, size=%d", snapshots.Size())
	}

	f.add(t, core.Expense, core.Food, 10, date(2025, 1, 12))
	stale, _ := f.engine.Snapshot(ctx, f.user.ID, 2025, 1)
	if stale.Expenses != 40 {
		t.Fatalf("expected cached value before invalidation, got %v", stale.Expenses)
	}

	f.engine.Invalidate(f.user.ID)
	fresh, _ := f.engine.Snapshot(ctx, f.user.ID, 2025, 1)
	if fresh.Expenses != 50 {
		t.Fatalf("expected recomputed value 50, got %v", fresh.Expenses)
	}

	if _, err := f.engine.Snapshot(ctx, f.user.ID, 2025, 13); !core.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCategoryAnalysis(t *testing.T) {
	f := newFixture(t)
	f.add(t, core.Expense, core.Food, 10.111, date(2025, 3, 1))
	f.add(t, core.Expense, core.Transport, 20, date(2025, 3, 2))
	f.add(t, core.Expense, core.Shopping, 20, date(2025, 3, 3))

	got, err := f.engine.CategoryAnalysis(context.Background(), f.user.ID, 30)
	if err != nil {
		t.Fatalf("category analysis: %v", err)
	}
	if got.TotalSpent != 50.11 || got.PeriodDays != 30 {
		t.Fatalf("unexpected totals %+v", got)
	}
	want := []core.CategoryAmount{
		{Category: core.Transport, Amount: 20},
		{Category: core.Shopping, Amount: 20},
		{Category: core.Food, Amount: 10.11},
	}
	for i := range want {
		if got.Categories[i] != want[i] {
			t.Fatalf("entry %d: got %+v, want %+v", i, got.Categories[i], want[i])
		}
	}
}

func TestAccountMonthlySummary(t *testing.T) {
	f := newFixture(t)
	f.add(t, core.Income, core.Salary, 2500, date(2025, 2, 1))
	f.add(t, core.Expense, core.Food, 12.345, date(2025, 2, 3))

	s, err := f.engine.AccountMonthlySummary(context.Background(), f.account.ID, 2025, 2)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if s.Income != 2500 || s.Expenses != 12.35 || s.TransactionCount != 2 || s.Period != "2025-02" {
		t.Fatalf("unexpected summary %+v", s)
	}
	if s.Net < 2487.65 || s.Net > 2487.66 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if _, err := f.engine.AccountMonthlySummary(context.Background(), 999, 2025, 2); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
