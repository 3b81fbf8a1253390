package core

import "time"

// CategoryAmount is an amount aggregated by category.
type CategoryAmount struct {
	Category Category `json:"category"`
	Amount   float64  `json:"amount"`
}

// MonthTrend is one entry of the monthly balance trend.
type MonthTrend struct {
	Month    string  `json:"month"` // YYYY-MM
	Income   float64 `json:"income"`
	Expenses float64 `json:"expenses"`
	Net      float64 `json:"net"`
}

// MonthSnapshot is the cached income/expense aggregate of one calendar month.
type MonthSnapshot struct {
	UserID     int64     `json:"user_id"`
	Year       int       `json:"year"`
	Month      int       `json:"month"`
	Income     float64   `json:"income"`
	Expenses   float64   `json:"expenses"`
	Net        float64   `json:"net"`
	ComputedAt time.Time `json:"computed_at"`
}

type BudgetStatus struct {
	Category   Category `json:"category"`
	Limit      float64  `json:"limit"`
	Spent      float64  `json:"spent"`
	Remaining  float64  `json:"remaining"`
	Percentage float64  `json:"percentage"`
	Exceeded   bool     `json:"exceeded"`
}

type RecommendationKind string

const (
	RecommendBudgetExceeded RecommendationKind = "budget_exceeded"
	RecommendHighSpending   RecommendationKind = "high_spending"
	RecommendSavings        RecommendationKind = "savings_opportunity"
	RecommendHealthy        RecommendationKind = "healthy"
)

type Recommendation struct {
	Kind    RecommendationKind `json:"kind"`
	Message string             `json:"message"`
}

type Insights struct {
	TotalBalance          float64          `json:"total_balance"`
	AverageMonthlyExpense float64          `json:"avg_monthly_expense"`
	TopCategories         []CategoryAmount `json:"top_categories"`
	BudgetAlerts          []BudgetStatus   `json:"budget_alerts"`
	Recommendation        Recommendation   `json:"recommendation"`
}

// AccountRef identifies an account in a report.
type AccountRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type MonthlyReport struct {
	Period            string               `json:"period"`
	TotalIncome       float64              `json:"total_income"`
	TotalExpenses     float64              `json:"total_expenses"`
	NetBalance        float64              `json:"net_balance"`
	CategoryBreakdown map[Category]float64 `json:"category_breakdown"`
	TransactionCount  int                  `json:"transaction_count"`
	Accounts          []AccountRef         `json:"accounts"`
}

// AccountSummary aggregates one account over one calendar month.
type AccountSummary struct {
	AccountID        int64   `json:"account_id"`
	Period           string  `json:"period"`
	Income           float64 `json:"income"`
	Expenses         float64 `json:"expenses"`
	Net              float64 `json:"net"`
	TransactionCount int     `json:"transaction_count"`
}

type Dashboard struct {
	TotalBalance       float64              `json:"total_balance"`
	Insights           Insights             `json:"insights"`
	SpendingByCategory map[Category]float64 `json:"spending_by_category"`
	BudgetStatus       []BudgetStatus       `json:"budget_status"`
	BalanceTrend       []MonthTrend         `json:"balance_trend"`
}

type CategoryAnalysis struct {
	TotalSpent float64          `json:"total_spent"`
	Categories []CategoryAmount `json:"categories"`
	PeriodDays int              `json:"period_days"`
}
