package analytics

import (
	"context"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"

	"financeflow/internal/core"
)

// monthStepDays is the fixed step used to walk back from the current month.
// Calendar months are not all 30 days long, so long trends can repeat or
// skip a month.
const monthStepDays = 30

// MonthlyBalanceTrend yields up to monthsBack entries, oldest first, ending
// with the current month. Each range over the sequence queries the store
// again. A user without accounts yields nothing.
func (e *Engine) MonthlyBalanceTrend(ctx context.Context, userID int64, monthsBack int) iter.Seq2[core.MonthTrend, error] {
	return func(yield func(core.MonthTrend, error) bool) {
		if monthsBack <= 0 {
			return
		}
		now := e.clock()
		ids, err := e.accountIDs(ctx, userID)
		if err != nil {
			yield(core.MonthTrend{}, fmt.Errorf("balance trend: %w", err))
			return
		}
		if len(ids) == 0 {
			return
		}

		first := startOfMonth(now)
		for i := monthsBack - 1; i >= 0; i-- {
			start := startOfMonth(first.AddDate(0, 0, -monthStepDays*i))
			snap, err := e.monthTotals(ctx, userID, ids, start, now)
			if err != nil {
				yield(core.MonthTrend{}, fmt.Errorf("balance trend: %w", err))
				return
			}
			entry := core.MonthTrend{
				Month:    start.Format("2006-01"),
				Income:   snap.Income,
				Expenses: snap.Expenses,
				Net:      snap.Net,
			}
			if !yield(entry, nil) {
				return
			}
		}
	}
}

// CollectTrend drains a trend sequence, stopping at the first error.
func CollectTrend(seq iter.Seq2[core.MonthTrend, error]) ([]core.MonthTrend, error) {
	out := []core.MonthTrend{}
	for entry, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

// Snapshot returns the income/expense aggregate of one calendar month.
func (e *Engine) Snapshot(ctx context.Context, userID int64, year, month int) (core.MonthSnapshot, error) {
	if err := validatePeriod(year, month); err != nil {
		return core.MonthSnapshot{}, err
	}
	ids, err := e.accountIDs(ctx, userID)
	if err != nil {
		return core.MonthSnapshot{}, fmt.Errorf("snapshot: %w", err)
	}
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	if len(ids) == 0 {
		return core.MonthSnapshot{UserID: userID, Year: year, Month: month, ComputedAt: e.clock()}, nil
	}
	return e.monthTotals(ctx, userID, ids, start, e.clock())
}

// Invalidate drops every cached snapshot of the user.
func (e *Engine) Invalidate(userID int64) {
	if e.snapshots == nil {
		return
	}
	prefix := strconv.FormatInt(userID, 10) + ":"
	if n := e.snapshots.DeleteFunc(func(key string) bool { return strings.HasPrefix(key, prefix) }); n > 0 {
		e.logger.Debug("Invalidated analytics snapshots", "user_id", userID, "count", n)
	}
}

// monthTotals aggregates [start, start+1 month). Months that ended before
// the current one are served from and stored into the snapshot cache.
func (e *Engine) monthTotals(ctx context.Context, userID int64, ids []int64, start, now time.Time) (core.MonthSnapshot, error) {
	end := start.AddDate(0, 1, 0)
	closed := !end.After(startOfMonth(now))
	key := fmt.Sprintf("%d:%04d-%02d", userID, start.Year(), int(start.Month()))

	if closed && e.snapshots != nil {
		if snap, ok := e.snapshots.Get(key); ok {
			return snap, nil
		}
	}

	txs, err := e.repo.ListTransactions(ctx, core.TransactionFilter{AccountIDs: ids, From: start, To: end})
	if err != nil {
		return core.MonthSnapshot{}, err
	}
	income, expenses := sumByType(txs)
	snap := core.MonthSnapshot{
		UserID:     userID,
		Year:       start.Year(),
		Month:      int(start.Month()),
		Income:     income,
		Expenses:   expenses,
		Net:        income - expenses,
		ComputedAt: now,
	}

	if closed && e.snapshots != nil {
		e.snapshots.Set(key, snap)
	}
	return snap, nil
}

func sumByType(txs []core.Transaction) (income, expenses float64) {
	for _, t := range txs {
		switch t.Type {
		case core.Income:
			income += t.Amount
		case core.Expense:
			expenses += t.Amount
		}
	}
	return income, expenses
}

func validatePeriod(year, month int) error {
	if month < 1 || month > 12 {
		return &core.ValidationError{Field: "month", Reason: fmt.Sprintf("%d is not between 1 and 12", month)}
	}
	if year < 1 || year > 9999 {
		return &core.ValidationError{Field: "year", Reason: fmt.Sprintf("%d is out of range", year)}
	}
	return nil
}
