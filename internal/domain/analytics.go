package domain

import "github.com/shopspring/decimal"

// ============================================================
// Budget analysis
// ============================================================

// BudgetStatus is the headline of an analysis.
type BudgetStatus struct {
	TotalIncome  decimal.Decimal `json:"total_income"`
	TotalExpense decimal.Decimal `json:"total_expense"`
	Balance      decimal.Decimal `json:"balance"`
	SavingsRatio decimal.Decimal `json:"savings_ratio"` // percent, two decimals
	Status       string          `json:"status"`
}

// CategoryShare is one row of the expense distribution.
type CategoryShare struct {
	Category   string          `json:"category"`
	Amount     decimal.Decimal `json:"amount"`
	Percentage decimal.Decimal `json:"percentage"`
}

// TrendPoint is one chronological bucket of the income/expense trend.
type TrendPoint struct {
	Period  string          `json:"period"`
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Balance decimal.Decimal `json:"balance"`
}

// AnalysisReport is the canonical output of the budget analyzer. It is built
// fresh for every request and never persisted.
type AnalysisReport struct {
	BudgetStatus        BudgetStatus    `json:"budget_status"`
	ExpenseDistribution []CategoryShare `json:"expense_distribution"`
	MonthlyTrend        []TrendPoint    `json:"monthly_trend"`
	Insights            []string        `json:"insights"`
}

// ============================================================
// Presenters (dashboard, reports, charts)
// ============================================================

// CategorySummary is a per-category total.
type CategorySummary struct {
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total"`
}

// PeriodSummary is a per-period total.
type PeriodSummary struct {
	Period string          `json:"period"`
	Total  decimal.Decimal `json:"total"`
}

// Dashboard is returned by GET /v1/dashboard.
type Dashboard struct {
	TotalExpenses   decimal.Decimal   `json:"total_expenses"`
	TotalIncome     decimal.Decimal   `json:"total_income"`
	Balance         decimal.Decimal   `json:"balance"`
	CurrentMonth    string            `json:"current_month"`
	CategorySummary []CategorySummary `json:"category_summary"`
	MonthlySummary  []PeriodSummary   `json:"monthly_summary"`
	RecentExpenses  []Expense         `json:"recent_expenses"`
	Status          string            `json:"status"`
}

// Report is returned by GET /v1/reports.
type Report struct {
	MonthlyExpenses  []PeriodSummary   `json:"monthly_expenses"`
	CategoryExpenses []CategorySummary `json:"category_expenses"`
}

// TrendResponse is returned by GET /v1/trends.
type TrendResponse struct {
	Granularity string       `json:"granularity"`
	Points      []TrendPoint `json:"points"`
}

// ChartData carries parallel label/value arrays ready for a chart library.
type ChartData struct {
	PieLabels   []string  `json:"pie_labels"`
	PieValues   []float64 `json:"pie_values"`
	TrendLabels []string  `json:"trend_labels"`
	IncomeData  []float64 `json:"income_data"`
	ExpenseData []float64 `json:"expense_data"`
	BalanceData []float64 `json:"balance_data"`
}
