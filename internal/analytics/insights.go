package analytics

import (
	"context"
	"fmt"
	"time"

	"financeflow/internal/core"
)

// Insights summarises the last 90 days and the last 3 months of activity and
// picks a single recommendation.
func (e *Engine) Insights(ctx context.Context, userID int64) (core.Insights, error) {
	spending, err := e.SpendingByCategory(ctx, userID, insightsWindowDays)
	if err != nil {
		return core.Insights{}, err
	}
	trend, err := CollectTrend(e.MonthlyBalanceTrend(ctx, userID, insightsTrendMonths))
	if err != nil {
		return core.Insights{}, err
	}
	statuses, err := e.BudgetStatus(ctx, userID)
	if err != nil {
		return core.Insights{}, err
	}
	balance, err := e.TotalBalance(ctx, userID)
	if err != nil {
		return core.Insights{}, err
	}

	avg := 0.0
	if len(trend) > 0 {
		total := 0.0
		for _, m := range trend {
			total += m.Expenses
		}
		avg = total / float64(len(trend))
	}

	ranked := Ranked(spending)
	if len(ranked) > topCategoriesInsight {
		ranked = ranked[:topCategoriesInsight]
	}

	alerts := []core.BudgetStatus{}
	for _, s := range statuses {
		if s.Exceeded {
			alerts = append(alerts, s)
		}
	}

	rec := e.recommend(alerts, avg, ranked)

	top := make([]core.CategoryAmount, len(ranked))
	for i, c := range ranked {
		top[i] = core.CategoryAmount{Category: c.Category, Amount: core.Round2(c.Amount)}
	}

	return core.Insights{
		TotalBalance:          core.Round2(balance),
		AverageMonthlyExpense: core.Round2(avg),
		TopCategories:         top,
		BudgetAlerts:          alerts,
		Recommendation:        rec,
	}, nil
}

func (e *Engine) recommend(alerts []core.BudgetStatus, avgMonthly float64, top []core.CategoryAmount) core.Recommendation {
	switch {
	case len(alerts) > 0:
		noun := "categories"
		if len(alerts) == 1 {
			noun = "category"
		}
		return core.Recommendation{
			Kind:    core.RecommendBudgetExceeded,
			Message: fmt.Sprintf("You have exceeded your budget in %d %s.", len(alerts), noun),
		}
	case avgMonthly > e.highSpend:
		return core.Recommendation{
			Kind:    core.RecommendHighSpending,
			Message: fmt.Sprintf("Your average monthly spending (%.2f) is high. Consider reviewing your expenses.", avgMonthly),
		}
	case len(top) > 0 && top[0].Amount > e.materiality:
		return core.Recommendation{
			Kind:    core.RecommendSavings,
			Message: fmt.Sprintf("%s is your largest expense (%.2f). Look for savings there.", top[0].Category, top[0].Amount),
		}
	default:
		return core.Recommendation{
			Kind:    core.RecommendHealthy,
			Message: "Your finances look healthy. Keep it up!",
		}
	}
}

// MonthlyReport aggregates one calendar month across all of the user's
// accounts. Users without accounts get an empty report.
func (e *Engine) MonthlyReport(ctx context.Context, userID int64, year, month int) (core.MonthlyReport, error) {
	if err := validatePeriod(year, month); err != nil {
		return core.MonthlyReport{}, err
	}
	report := core.MonthlyReport{
		Period:            fmt.Sprintf("%04d-%02d", year, month),
		CategoryBreakdown: map[core.Category]float64{},
		Accounts:          []core.AccountRef{},
	}

	accounts, err := e.repo.ListAccounts(ctx, userID)
	if err != nil {
		return core.MonthlyReport{}, fmt.Errorf("monthly report: %w", err)
	}
	if len(accounts) == 0 {
		return report, nil
	}
	ids := make([]int64, 0, len(accounts))
	for _, a := range accounts {
		ids = append(ids, a.ID)
		report.Accounts = append(report.Accounts, core.AccountRef{ID: a.ID, Name: a.Name})
	}

	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	txs, err := e.repo.ListTransactions(ctx, core.TransactionFilter{AccountIDs: ids, From: start, To: start.AddDate(0, 1, 0)})
	if err != nil {
		return core.MonthlyReport{}, fmt.Errorf("monthly report: %w", err)
	}

	income, expenses := sumByType(txs)
	breakdown := map[core.Category]float64{}
	for _, t := range txs {
		if t.Type == core.Expense {
			breakdown[t.Category] += t.Amount
		}
	}
	for c, v := range breakdown {
		if r := core.Round2(v); r != 0 {
			report.CategoryBreakdown[c] = r
		}
	}

	report.TotalIncome = core.Round2(income)
	report.TotalExpenses = core.Round2(expenses)
	report.NetBalance = core.Round2(income - expenses)
	report.TransactionCount = len(txs)
	return report, nil
}

// AccountMonthlySummary aggregates one account over one calendar month.
func (e *Engine) AccountMonthlySummary(ctx context.Context, accountID int64, year, month int) (core.AccountSummary, error) {
	if err := validatePeriod(year, month); err != nil {
		return core.AccountSummary{}, err
	}
	if _, err := e.repo.GetAccount(ctx, accountID); err != nil {
		return core.AccountSummary{}, err
	}
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	txs, err := e.repo.ListTransactions(ctx, core.TransactionFilter{
		AccountIDs: []int64{accountID},
		From:       start,
		To:         start.AddDate(0, 1, 0),
	})
	if err != nil {
		return core.AccountSummary{}, fmt.Errorf("account summary: %w", err)
	}
	income, expenses := sumByType(txs)
	return core.AccountSummary{
		AccountID:        accountID,
		Period:           fmt.Sprintf("%04d-%02d", year, month),
		Income:           core.Round2(income),
		Expenses:         core.Round2(expenses),
		Net:              core.Round2(income - expenses),
		TransactionCount: len(txs),
	}, nil
}
