package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/boddenberg/finance-tracker-go/internal/domain"
)

// DominantShareThreshold is the category share (percent) that must be
// strictly exceeded before a dominant-category insight is emitted.
const DominantShareThreshold = 50

// DefaultCurrency prefixes absolute amounts in status and insight messages.
const DefaultCurrency = "₹"

// BalancedInsight is emitted when no other rule fires.
const BalancedInsight = "Your spending is balanced. Keep up the good work!"

var hundred = decimal.NewFromInt(100)

// Analyzer derives budget reports. The zero value uses DefaultCurrency and
// MonthLabel.
type Analyzer struct {
	Currency   string
	MonthLabel LabelFunc
}

// NewAnalyzer returns an Analyzer rendering amounts with currency.
func NewAnalyzer(currency string) Analyzer {
	return Analyzer{Currency: currency, MonthLabel: MonthLabel}
}

// Analyze builds a report with the default analyzer.
func Analyze(incomes []domain.Income, expenses []domain.Expense) *domain.AnalysisReport {
	return Analyzer{}.Analyze(incomes, expenses)
}

// Analyze computes totals, the savings ratio, the status message, the
// expense distribution, the monthly trend and the insights. Inputs are
// read only and are expected to belong to a single user.
func (a Analyzer) Analyze(incomes []domain.Income, expenses []domain.Expense) *domain.AnalysisReport {
	totalIncome := Sum(incomes)
	totalExpense := Sum(expenses)
	balance := totalIncome.Sub(totalExpense)

	status := domain.BudgetStatus{
		TotalIncome:  totalIncome,
		TotalExpense: totalExpense,
		Balance:      balance,
		SavingsRatio: Percentage(balance, totalIncome),
	}
	status.Status = a.statusMessage(status)

	distribution := Distribution(expenses)
	trend := a.trend(incomes, expenses)

	return &domain.AnalysisReport{
		BudgetStatus:        status,
		ExpenseDistribution: distribution,
		MonthlyTrend:        trend,
		Insights:            a.insights(trend, distribution),
	}
}

// Percentage returns round(part/whole*100, 2), or zero when whole is zero.
func Percentage(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Mul(hundred).DivRound(whole, 2)
}

// Distribution groups expenses by category and sorts them by amount,
// largest first. Equal amounts keep their first-encounter order.
func Distribution(expenses []domain.Expense) []domain.CategoryShare {
	total := Sum(expenses)
	groups := GroupByCategory(expenses)

	out := make([]domain.CategoryShare, 0, len(groups))
	for _, g := range groups {
		out = append(out, domain.CategoryShare{
			Category:   g.Category,
			Amount:     g.Total,
			Percentage: Percentage(g.Total, total),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Amount.GreaterThan(out[j].Amount) })
	return out
}

func (a Analyzer) currency() string {
	if a.Currency == "" {
		return DefaultCurrency
	}
	return a.Currency
}

func (a Analyzer) monthLabel() LabelFunc {
	if a.MonthLabel == nil {
		return MonthLabel
	}
	return a.MonthLabel
}

func (a Analyzer) statusMessage(s domain.BudgetStatus) string {
	switch s.Balance.Sign() {
	case 1:
		return fmt.Sprintf("Within budget. You are saving %s%% of your income.", FormatPercent(s.SavingsRatio))
	case 0:
		return "Breaking even. No savings this period."
	default:
		return fmt.Sprintf("Overspent. You are over budget by %s.", a.FormatAmount(s.Balance.Abs()))
	}
}

func (a Analyzer) trend(incomes []domain.Income, expenses []domain.Expense) []domain.TrendPoint {
	label := a.monthLabel()
	flows := Join(Bucket(incomes, Month, label), Bucket(expenses, Month, label))

	out := make([]domain.TrendPoint, 0, len(flows))
	for _, f := range flows {
		out = append(out, domain.TrendPoint{
			Period:  f.Label,
			Income:  f.Income,
			Expense: f.Expense,
			Balance: f.Balance,
		})
	}
	return out
}

func (a Analyzer) insights(trend []domain.TrendPoint, distribution []domain.CategoryShare) []string {
	var out []string

	for _, p := range trend {
		if p.Balance.IsNegative() {
			out = append(out, fmt.Sprintf("You overspent in %s by %s. Check big expenses.",
				p.Period, a.FormatAmount(p.Balance.Abs())))
		}
	}

	if len(distribution) > 0 {
		top := distribution[0]
		if top.Percentage.GreaterThan(decimal.NewFromInt(DominantShareThreshold)) {
			out = append(out, fmt.Sprintf("Most expenses are on %s (%s%%). Consider reducing or spreading it.",
				top.Category, FormatPercent(top.Percentage)))
		}
	}

	if len(out) == 0 {
		out = append(out, BalancedInsight)
	}
	return out
}

// FormatAmount renders an amount with the analyzer currency and two decimals.
func (a Analyzer) FormatAmount(d decimal.Decimal) string {
	return a.currency() + d.StringFixed(2)
}

// FormatPercent renders a percentage with at least one decimal: 100 -> "100.0",
// 33.33 -> "33.33".
func FormatPercent(d decimal.Decimal) string {
	s := d.Round(2).String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
