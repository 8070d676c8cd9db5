package service_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/boddenberg/finance-tracker-go/internal/analysis"
	"github.com/boddenberg/finance-tracker-go/internal/domain"
	"github.com/boddenberg/finance-tracker-go/internal/infra/cache"
	"github.com/boddenberg/finance-tracker-go/internal/infra/memory"
	"github.com/boddenberg/finance-tracker-go/internal/infra/observability"
	"github.com/boddenberg/finance-tracker-go/internal/infra/resilience"
	"github.com/boddenberg/finance-tracker-go/internal/infra/supabase"
	"github.com/boddenberg/finance-tracker-go/internal/port"
	"github.com/boddenberg/finance-tracker-go/internal/service"
)

type reportFixture struct {
	reports *service.ReportService
	ledger  *service.LedgerService
	store   *memory.Store
	metrics *observability.Metrics
}

func newReportFixture(t *testing.T, store port.RecordStore) *reportFixture {
	t.Helper()
	mem := memory.NewStore()
	if store == nil {
		store = mem
	}
	reportCache := cache.New[*domain.AnalysisReport](time.Minute)
	t.Cleanup(reportCache.Close)

	metrics := observability.NewMetrics()
	cfg := resilience.Config{MaxRetries: 1, InitialBackoff: time.Millisecond, MaxConcurrency: 4}
	reports := service.NewReportService(store, reportCache, analysis.NewAnalyzer("₹"),
		resilience.NewCircuitBreaker("record-store"), cfg, metrics, zap.NewNop())
	ledger := service.NewLedgerService(store, reports, metrics, zap.NewNop())
	return &reportFixture{reports: reports, ledger: ledger, store: mem, metrics: metrics}
}

func (f *reportFixture) expense(t *testing.T, owner, amount, date, category string) {
	t.Helper()
	in := &domain.ExpenseInput{Amount: decimal.RequireFromString(amount), Date: date}
	if category != "" {
		c, err := f.ledger.CreateCategory(context.Background(), &domain.CategoryInput{Name: category})
		if err != nil {
			var conflict *domain.ErrConflict
			require.ErrorAs(t, err, &conflict)
			cats, _ := f.ledger.ListCategories(context.Background())
			for _, existing := range cats {
				if existing.Name == category {
					c = &existing
				}
			}
		}
		in.CategoryID = c.ID
	}
	_, err := f.ledger.AddExpense(context.Background(), owner, in)
	require.NoError(t, err)
}

func (f *reportFixture) income(t *testing.T, owner, amount, date string) {
	t.Helper()
	_, err := f.ledger.AddIncome(context.Background(), owner, &domain.IncomeInput{Amount: decimal.RequireFromString(amount), Date: date})
	require.NoError(t, err)
}

func TestAnalyze_ScopedToOwner(t *testing.T) {
	f := newReportFixture(t, nil)
	f.income(t, "alice", "1000", "2024-01-01")
	f.expense(t, "alice", "600", "2024-01-05", "Food")
	f.expense(t, "alice", "500", "2024-01-10", "Food")
	f.expense(t, "bob", "9999", "2024-01-10", "Rent")

	r, err := f.reports.Analyze(context.Background(), "alice")
	require.NoError(t, err)

	assert.True(t, r.BudgetStatus.TotalExpense.Equal(decimal.NewFromInt(1100)))
	assert.True(t, r.BudgetStatus.Balance.Equal(decimal.NewFromInt(-100)))
	require.Len(t, r.ExpenseDistribution, 1)
	assert.Equal(t, "Food", r.ExpenseDistribution[0].Category)
	assert.Len(t, r.Insights, 2)
}

func TestAnalyze_MemoizesUntilRecordsChange(t *testing.T) {
	f := newReportFixture(t, nil)
	f.income(t, "alice", "100", "2024-01-01")

	first, err := f.reports.Analyze(context.Background(), "alice")
	require.NoError(t, err)
	second, err := f.reports.Analyze(context.Background(), "alice")
	require.NoError(t, err)
	assert.Same(t, first, second, "unchanged records reuse the cached report")

	f.expense(t, "alice", "30", "2024-01-02", "")

	third, err := f.reports.Analyze(context.Background(), "alice")
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.True(t, third.BudgetStatus.Balance.Equal(decimal.NewFromInt(70)))

	snap := f.metrics.GetAnalysisSnapshot()
	assert.Equal(t, int64(3), snap.TotalAnalyses)
	assert.InDelta(t, 1.0/3.0, snap.CacheHitRate, 1e-9)
}

func TestDashboard(t *testing.T) {
	f := newReportFixture(t, nil)
	f.income(t, "alice", "2000", "2024-03-01")
	f.expense(t, "alice", "100", "2024-02-10", "Food")
	f.expense(t, "alice", "300", "2024-03-02", "Rent")
	f.expense(t, "alice", "50", "2024-03-05", "Food")
	for i := 0; i < 10; i++ {
		f.expense(t, "alice", "1", "2024-01-01", "")
	}

	today := time.Date(2024, time.March, 20, 12, 0, 0, 0, time.UTC)
	d, err := f.reports.Dashboard(context.Background(), "alice", today)
	require.NoError(t, err)

	assert.True(t, d.TotalExpenses.Equal(decimal.NewFromInt(460)))
	assert.True(t, d.TotalIncome.Equal(decimal.NewFromInt(2000)))
	assert.Equal(t, "Mar 2024", d.CurrentMonth)

	require.Len(t, d.CategorySummary, 2)
	assert.Equal(t, "Rent", d.CategorySummary[0].Category)
	assert.Equal(t, "Food", d.CategorySummary[1].Category)
	assert.True(t, d.CategorySummary[1].Total.Equal(decimal.NewFromInt(50)))

	require.Len(t, d.MonthlySummary, 3)
	assert.Equal(t, []string{"Jan 2024", "Feb 2024", "Mar 2024"},
		[]string{d.MonthlySummary[0].Period, d.MonthlySummary[1].Period, d.MonthlySummary[2].Period})

	require.Len(t, d.RecentExpenses, 10)
	assert.Equal(t, 5, d.RecentExpenses[0].Date.Day())
	assert.Contains(t, d.Status, "Within budget")
}

func TestReport_Ordering(t *testing.T) {
	f := newReportFixture(t, nil)
	f.expense(t, "alice", "10", "2024-02-01", "Food")
	f.expense(t, "alice", "70", "2023-12-01", "Rent")
	f.expense(t, "alice", "20", "2024-01-01", "Food")

	r, err := f.reports.Report(context.Background(), "alice")
	require.NoError(t, err)

	require.Len(t, r.MonthlyExpenses, 3)
	assert.Equal(t, "Dec 2023", r.MonthlyExpenses[0].Period)
	assert.Equal(t, "Feb 2024", r.MonthlyExpenses[2].Period)

	require.Len(t, r.CategoryExpenses, 2)
	assert.Equal(t, "Rent", r.CategoryExpenses[0].Category)
	assert.True(t, r.CategoryExpenses[1].Total.Equal(decimal.NewFromInt(30)))
}

func TestTrend_WeekOfMonth(t *testing.T) {
	f := newReportFixture(t, nil)
	f.income(t, "alice", "100", "2024-09-01")
	f.expense(t, "alice", "40", "2024-09-30", "")
	f.expense(t, "alice", "10", "2024-09-29", "")

	tr, err := f.reports.Trend(context.Background(), "alice", analysis.WeekOfMonth)
	require.NoError(t, err)

	assert.Equal(t, "week-of-month", tr.Granularity)
	require.Len(t, tr.Points, 2)
	assert.Equal(t, "2024-09-First Week", tr.Points[0].Period)
	assert.True(t, tr.Points[0].Expense.IsZero())
	assert.Equal(t, "2024-09-Fifth Week", tr.Points[1].Period)
	assert.True(t, tr.Points[1].Balance.Equal(decimal.NewFromInt(-50)))
}

func TestCharts_ParallelArrays(t *testing.T) {
	f := newReportFixture(t, nil)
	f.income(t, "alice", "500", "2024-01-01")
	f.expense(t, "alice", "120.5", "2024-02-01", "Food")
	f.expense(t, "alice", "80", "2024-02-03", "Rent")

	c, err := f.reports.Charts(context.Background(), "alice")
	require.NoError(t, err)

	assert.Equal(t, []string{"Food", "Rent"}, c.PieLabels)
	assert.Equal(t, []float64{120.5, 80}, c.PieValues)
	assert.Equal(t, []string{"Jan 2024", "Feb 2024"}, c.TrendLabels)
	assert.Equal(t, []float64{500, 0}, c.IncomeData)
	assert.Equal(t, []float64{0, 200.5}, c.ExpenseData)
	assert.Equal(t, []float64{500, -200.5}, c.BalanceData)
}

func TestExportCSV(t *testing.T) {
	f := newReportFixture(t, nil)
	f.income(t, "alice", "100", "2024-01-01")

	var buf bytes.Buffer
	require.NoError(t, f.reports.ExportCSV(context.Background(), "alice", &buf))

	r := csv.NewReader(&buf)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	require.NoError(t, err)

	assert.Equal(t, []string{"Budget status"}, rows[0])
	assert.Equal(t, []string{"Total income", "100.00"}, rows[1])
	assert.Equal(t, []string{"Savings ratio (%)", "100.00"}, rows[4])
	assert.Equal(t, []string{"Category", "Amount", "Percentage"}, rows[6])
	assert.Equal(t, []string{"Period", "Income", "Expense", "Balance"}, rows[7])
	assert.Equal(t, []string{"Jan 2024", "100.00", "0.00", "100.00"}, rows[8])
	assert.Equal(t, []string{"Insights"}, rows[9])
	assert.Equal(t, []string{analysis.BalancedInsight}, rows[10])
}

func TestAnalyze_StoreFailure(t *testing.T) {
	store := &failingStore{Store: memory.NewStore(), err: errors.New("database is locked")}
	f := newReportFixture(t, store)

	_, err := f.reports.Analyze(context.Background(), "alice")

	var ext *domain.ErrExternalService
	require.ErrorAs(t, err, &ext)
	assert.Equal(t, 1.0, f.metrics.GetAnalysisSnapshot().ErrorRate)
}

func TestAnalyze_CancelledContext(t *testing.T) {
	f := newReportFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.reports.Analyze(ctx, "alice")
	assert.ErrorIs(t, err, context.Canceled)
}

// reorderedStore serves a fixed expense slice so tests can change the order
// the store returns between calls.
type reorderedStore struct {
	*memory.Store
	expenses []domain.Expense
}

func (r *reorderedStore) ListExpenses(_ context.Context, _ string, _ domain.ListFilter) ([]domain.Expense, error) {
	return r.expenses, nil
}

func TestAnalyze_ReorderedRecordsAreNotServedFromCache(t *testing.T) {
	day := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	food := domain.Expense{ID: "e1", OwnerID: "alice", Amount: decimal.NewFromInt(50), Date: day, Category: &domain.Category{ID: "c1", Name: "Food"}}
	rent := domain.Expense{ID: "e2", OwnerID: "alice", Amount: decimal.NewFromInt(50), Date: day, Category: &domain.Category{ID: "c2", Name: "Rent"}}
	store := &reorderedStore{Store: memory.NewStore(), expenses: []domain.Expense{food, rent}}
	f := newReportFixture(t, store)

	first, err := f.reports.Analyze(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, first.ExpenseDistribution, 2)
	assert.Equal(t, "Food", first.ExpenseDistribution[0].Category)

	store.expenses = []domain.Expense{rent, food}
	second, err := f.reports.Analyze(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, second.ExpenseDistribution, 2)
	assert.Equal(t, "Rent", second.ExpenseDistribution[0].Category)
	assert.Equal(t, analysis.NewAnalyzer("₹").Analyze(nil, store.expenses).ExpenseDistribution, second.ExpenseDistribution)
}

func newSupabaseReportFixture(t *testing.T, status int) (*reportFixture, *int64, *int64) {
	t.Helper()
	var incomeHits, expenseHits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rest/v1/incomes":
			atomic.AddInt64(&incomeHits, 1)
		case "/rest/v1/expenses":
			atomic.AddInt64(&expenseHits, 1)
		}
		w.WriteHeader(status)
		w.Write([]byte(`{"message":"rejected"}`))
	}))
	t.Cleanup(srv.Close)

	cfg := resilience.Config{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxConcurrency: 1}
	client := supabase.NewClient(srv.Client(), srv.URL, "anon", "service-role",
		resilience.NewCircuitBreaker("supabase-report-test"), cfg, zap.NewNop())
	return newReportFixture(t, client), &incomeHits, &expenseHits
}

func TestAnalyze_SupabaseClientErrorIsNotRetried(t *testing.T) {
	f, incomeHits, expenseHits := newSupabaseReportFixture(t, http.StatusBadRequest)

	_, err := f.reports.Analyze(context.Background(), "alice")

	var ext *domain.ErrExternalService
	require.ErrorAs(t, err, &ext)
	// The sibling list may be cancelled before it reaches the server.
	assert.LessOrEqual(t, atomic.LoadInt64(incomeHits), int64(1))
	assert.LessOrEqual(t, atomic.LoadInt64(expenseHits), int64(1))
	assert.GreaterOrEqual(t, atomic.LoadInt64(incomeHits)+atomic.LoadInt64(expenseHits), int64(1))
}

func TestAnalyze_SupabaseServerErrorRetriedOnlyByClient(t *testing.T) {
	f, incomeHits, expenseHits := newSupabaseReportFixture(t, http.StatusBadGateway)

	_, err := f.reports.Analyze(context.Background(), "alice")

	require.Error(t, err)
	// The client retries MaxRetries times; the service adds no loop of its own.
	assert.LessOrEqual(t, atomic.LoadInt64(incomeHits), int64(3))
	assert.LessOrEqual(t, atomic.LoadInt64(expenseHits), int64(3))
}
