// Package analytics computes read-only aggregates over a user's accounts,
// transactions and budgets. Every figure is derived from the store; the
// optional snapshot cache only short-circuits closed months.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"financeflow/internal/cache"
	"financeflow/internal/core"
	"financeflow/internal/storage"
)

const (
	DefaultHighSpendThreshold   = 3000.0
	DefaultMaterialityThreshold = 500.0

	insightsWindowDays   = 90
	insightsTrendMonths  = 3
	topCategoriesInsight = 3
)

type Engine struct {
	repo        storage.Repository
	now         func() time.Time
	highSpend   float64
	materiality float64
	snapshots   cache.Cache[core.MonthSnapshot]
	logger      *slog.Logger
}

type Option func(*Engine)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithThresholds(highSpend, materiality float64) Option {
	return func(e *Engine) {
		e.highSpend = highSpend
		e.materiality = materiality
	}
}

// WithSnapshotCache enables caching of closed-month aggregates.
func WithSnapshotCache(c cache.Cache[core.MonthSnapshot]) Option {
	return func(e *Engine) { e.snapshots = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func New(repo storage.Repository, opts ...Option) *Engine {
	e := &Engine{
		repo:        repo,
		now:         time.Now,
		highSpend:   DefaultHighSpendThreshold,
		materiality: DefaultMaterialityThreshold,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) clock() time.Time {
	return e.now().UTC()
}

// TotalBalance sums the cached balance of every account of the user.
func (e *Engine) TotalBalance(ctx context.Context, userID int64) (float64, error) {
	accounts, err := e.repo.ListAccounts(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("total balance: %w", err)
	}
	total := 0.0
	for _, a := range accounts {
		total += a.Balance
	}
	return total, nil
}

// SpendingByCategory sums Expense transactions dated within the trailing
// window [now-windowDays, now]. Categories without spend are absent.
func (e *Engine) SpendingByCategory(ctx context.Context, userID int64, windowDays int) (map[core.Category]float64, error) {
	if windowDays < 0 {
		windowDays = 0
	}
	now := e.clock()

	ids, err := e.accountIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("spending by category: %w", err)
	}
	spending := map[core.Category]float64{}
	if len(ids) == 0 {
		return spending, nil
	}

	txs, err := e.repo.ListTransactions(ctx, core.TransactionFilter{
		AccountIDs: ids,
		From:       now.AddDate(0, 0, -windowDays),
		Type:       core.Expense,
	})
	if err != nil {
		return nil, fmt.Errorf("spending by category: %w", err)
	}
	for _, t := range txs {
		if t.Date.After(now) {
			continue
		}
		spending[t.Category] += t.Amount
	}
	for c, v := range spending {
		if v == 0 {
			delete(spending, c)
		}
	}
	return spending, nil
}

// BudgetStatus evaluates every budget of the user against the Expense
// transactions of the current calendar month up to now.
func (e *Engine) BudgetStatus(ctx context.Context, userID int64) ([]core.BudgetStatus, error) {
	budgets, err := e.repo.ListBudgets(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("budget status: %w", err)
	}
	statuses := make([]core.BudgetStatus, 0, len(budgets))
	if len(budgets) == 0 {
		return statuses, nil
	}

	now := e.clock()
	ids, err := e.accountIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("budget status: %w", err)
	}

	spent := map[core.Category]float64{}
	if len(ids) > 0 {
		txs, err := e.repo.ListTransactions(ctx, core.TransactionFilter{
			AccountIDs: ids,
			From:       startOfMonth(now),
			Type:       core.Expense,
		})
		if err != nil {
			return nil, fmt.Errorf("budget status: %w", err)
		}
		for _, t := range txs {
			if !t.Date.After(now) {
				spent[t.Category] += t.Amount
			}
		}
	}

	for _, b := range budgets {
		statuses = append(statuses, evaluateBudget(b, spent[b.Category]))
	}
	return statuses, nil
}

func evaluateBudget(b core.Budget, spent float64) core.BudgetStatus {
	percentage := 0.0
	if b.MonthlyLimit > 0 {
		percentage = clamp(spent/b.MonthlyLimit*100, 0, 100)
	}
	return core.BudgetStatus{
		Category:   b.Category,
		Limit:      b.MonthlyLimit,
		Spent:      spent,
		Remaining:  max(0, b.MonthlyLimit-spent),
		Percentage: percentage,
		Exceeded:   spent > b.MonthlyLimit,
	}
}

// CategoryAnalysis ranks the trailing window's spending by category.
func (e *Engine) CategoryAnalysis(ctx context.Context, userID int64, daysBack int) (core.CategoryAnalysis, error) {
	spending, err := e.SpendingByCategory(ctx, userID, daysBack)
	if err != nil {
		return core.CategoryAnalysis{}, err
	}
	total := 0.0
	for _, v := range spending {
		total += v
	}
	categories := Ranked(spending)
	for i := range categories {
		categories[i].Amount = core.Round2(categories[i].Amount)
	}
	return core.CategoryAnalysis{
		TotalSpent: core.Round2(total),
		Categories: categories,
		PeriodDays: daysBack,
	}, nil
}

// Ranked orders category amounts by amount descending, ties by category
// order.
func Ranked(amounts map[core.Category]float64) []core.CategoryAmount {
	out := make([]core.CategoryAmount, 0, len(amounts))
	for c, v := range amounts {
		out = append(out, core.CategoryAmount{Category: c, Amount: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[i].Amount > out[j].Amount
		}
		return out[i].Category.Ordinal() < out[j].Category.Ordinal()
	})
	return out
}

func (e *Engine) accountIDs(ctx context.Context, userID int64) ([]int64, error) {
	accounts, err := e.repo.ListAccounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(accounts))
	for _, a := range accounts {
		ids = append(ids, a.ID)
	}
	return ids, nil
}

func startOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}
