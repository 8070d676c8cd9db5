package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/boddenberg/finance-tracker-go/internal/analysis"
	"github.com/boddenberg/finance-tracker-go/internal/domain"
	"github.com/boddenberg/finance-tracker-go/internal/infra/observability"
	"github.com/boddenberg/finance-tracker-go/internal/infra/resilience"
	"github.com/boddenberg/finance-tracker-go/internal/port"
)

var reportTracer = otel.Tracer("service/report")

const (
	analysisCache       = "analysis"
	recentExpensesLimit = 10
)

// records is one user's materialized ledger.
type records struct {
	incomes  []domain.Income
	expenses []domain.Expense
}

// ReportService is the read side of the tracker. Every request loads the
// user's records, runs the analysis engine and shapes the result for a
// presenter (dashboard, tabular report, trend, charts, CSV export).
type ReportService struct {
	store         port.RecordStore
	cache         port.PrefixCache[*domain.AnalysisReport]
	analyzer      analysis.Analyzer
	breaker       *gobreaker.CircuitBreaker
	resilienceCfg resilience.Config
	storeGuarded  bool
	bulkhead      *resilience.Bulkhead
	metrics       *observability.Metrics
	logger        *zap.Logger
}

// NewReportService creates the report service with all dependencies injected.
func NewReportService(
	store port.RecordStore,
	cache port.PrefixCache[*domain.AnalysisReport],
	analyzer analysis.Analyzer,
	breaker *gobreaker.CircuitBreaker,
	cfg resilience.Config,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *ReportService {
	g, ok := store.(resilience.Guarded)
	return &ReportService{
		store:         store,
		cache:         cache,
		analyzer:      analyzer,
		breaker:       breaker,
		resilienceCfg: cfg,
		storeGuarded:  ok && g.Guarded(),
		bulkhead:      resilience.NewBulkhead(cfg.MaxConcurrency),
		metrics:       metrics,
		logger:        logger,
	}
}

// ============================================================
// Analysis: GET /v1/analysis
// ============================================================

// Analyze returns the budget analysis of every record the user owns.
func (s *ReportService) Analyze(ctx context.Context, ownerID string) (*domain.AnalysisReport, error) {
	ctx, span := reportTracer.Start(ctx, "ReportService.Analyze")
	defer span.End()
	span.SetAttributes(attribute.String("owner.id", ownerID))

	recs, err := s.load(ctx, ownerID, "analysis")
	if err != nil {
		s.metrics.IncrAnalysis("error")
		return nil, err
	}
	report := s.analyze(ownerID, recs)
	span.SetAttributes(attribute.Int("insights", len(report.Insights)))
	return report, nil
}

// Invalidate drops the memoized reports of ownerID.
func (s *ReportService) Invalidate(ownerID string) {
	if n := s.cache.DeletePrefix(ownerID + ":"); n > 0 {
		s.logger.Debug("analysis cache invalidated", zap.String("owner_id", ownerID), zap.Int("entries", n))
	}
}

// ============================================================
// Dashboard: GET /v1/dashboard
// ============================================================

// Dashboard summarises all-time totals, the category split of the month
// containing today, the monthly expense history and the latest expenses.
func (s *ReportService) Dashboard(ctx context.Context, ownerID string, today time.Time) (*domain.Dashboard, error) {
	ctx, span := reportTracer.Start(ctx, "ReportService.Dashboard")
	defer span.End()

	recs, err := s.load(ctx, ownerID, "dashboard")
	if err != nil {
		return nil, err
	}
	report := s.analyze(ownerID, recs)

	var thisMonth []domain.Expense
	for _, e := range recs.expenses {
		if e.Date.Year() == today.Year() && e.Date.Month() == today.Month() {
			thisMonth = append(thisMonth, e)
		}
	}

	recent := make([]domain.Expense, len(recs.expenses))
	copy(recent, recs.expenses)
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].Date.After(recent[j].Date) })
	if len(recent) > recentExpensesLimit {
		recent = recent[:recentExpensesLimit]
	}

	return &domain.Dashboard{
		TotalExpenses:   report.BudgetStatus.TotalExpense,
		TotalIncome:     report.BudgetStatus.TotalIncome,
		Balance:         report.BudgetStatus.Balance,
		CurrentMonth:    s.monthLabel()(analysis.KeyFor(today, analysis.Month)),
		CategorySummary: categorySummaries(analysis.Distribution(thisMonth)),
		MonthlySummary:  s.monthlyExpenses(recs.expenses),
		RecentExpenses:  recent,
		Status:          report.BudgetStatus.Status,
	}, nil
}

// ============================================================
// Reports: GET /v1/reports
// ============================================================

// Report returns monthly expense totals in calendar order and category
// totals from largest to smallest.
func (s *ReportService) Report(ctx context.Context, ownerID string) (*domain.Report, error) {
	ctx, span := reportTracer.Start(ctx, "ReportService.Report")
	defer span.End()

	recs, err := s.load(ctx, ownerID, "report")
	if err != nil {
		return nil, err
	}

	return &domain.Report{
		MonthlyExpenses:  s.monthlyExpenses(recs.expenses),
		CategoryExpenses: categorySummaries(analysis.Distribution(recs.expenses)),
	}, nil
}

// ============================================================
// Trends: GET /v1/trends
// ============================================================

// Trend joins income and expense totals at the requested granularity.
func (s *ReportService) Trend(ctx context.Context, ownerID string, g analysis.Granularity) (*domain.TrendResponse, error) {
	ctx, span := reportTracer.Start(ctx, "ReportService.Trend")
	defer span.End()
	span.SetAttributes(attribute.String("granularity", string(g)))

	recs, err := s.load(ctx, ownerID, "trend")
	if err != nil {
		return nil, err
	}

	label := analysis.DefaultLabel(g)
	if g == analysis.Month {
		label = s.monthLabel()
	}
	flows := analysis.Join(analysis.Bucket(recs.incomes, g, label), analysis.Bucket(recs.expenses, g, label))

	points := make([]domain.TrendPoint, 0, len(flows))
	for _, f := range flows {
		points = append(points, domain.TrendPoint{Period: f.Label, Income: f.Income, Expense: f.Expense, Balance: f.Balance})
	}
	return &domain.TrendResponse{Granularity: string(g), Points: points}, nil
}

// ============================================================
// Charts: GET /v1/analysis/charts
// ============================================================

// Charts flattens the analysis into parallel label/value arrays.
func (s *ReportService) Charts(ctx context.Context, ownerID string) (*domain.ChartData, error) {
	report, err := s.Analyze(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return ChartsFromReport(report), nil
}

// ChartsFromReport converts a report into chart series. Pie slices follow
// the distribution order; trend series follow the trend order.
func ChartsFromReport(r *domain.AnalysisReport) *domain.ChartData {
	out := &domain.ChartData{
		PieLabels:   make([]string, 0, len(r.ExpenseDistribution)),
		PieValues:   make([]float64, 0, len(r.ExpenseDistribution)),
		TrendLabels: make([]string, 0, len(r.MonthlyTrend)),
		IncomeData:  make([]float64, 0, len(r.MonthlyTrend)),
		ExpenseData: make([]float64, 0, len(r.MonthlyTrend)),
		BalanceData: make([]float64, 0, len(r.MonthlyTrend)),
	}
	for _, c := range r.ExpenseDistribution {
		out.PieLabels = append(out.PieLabels, c.Category)
		out.PieValues = append(out.PieValues, c.Amount.InexactFloat64())
	}
	for _, p := range r.MonthlyTrend {
		out.TrendLabels = append(out.TrendLabels, p.Period)
		out.IncomeData = append(out.IncomeData, p.Income.InexactFloat64())
		out.ExpenseData = append(out.ExpenseData, p.Expense.InexactFloat64())
		out.BalanceData = append(out.BalanceData, p.Balance.InexactFloat64())
	}
	return out
}

// ============================================================
// Export: GET /v1/reports/export.csv
// ============================================================

// ExportCSV writes the analysis as a sectioned CSV document.
func (s *ReportService) ExportCSV(ctx context.Context, ownerID string, w io.Writer) error {
	report, err := s.Analyze(ctx, ownerID)
	if err != nil {
		return err
	}
	return WriteReportCSV(w, report)
}

// WriteReportCSV renders the status block, the distribution table, the
// trend table and the insights, separated by blank lines.
func WriteReportCSV(w io.Writer, r *domain.AnalysisReport) error {
	cw := csv.NewWriter(w)
	st := r.BudgetStatus

	rows := [][]string{
		{"Budget status"},
		{"Total income", st.TotalIncome.StringFixed(2)},
		{"Total expense", st.TotalExpense.StringFixed(2)},
		{"Balance", st.Balance.StringFixed(2)},
		{"Savings ratio (%)", st.SavingsRatio.StringFixed(2)},
		{"Status", st.Status},
		{},
		{"Category", "Amount", "Percentage"},
	}
	for _, c := range r.ExpenseDistribution {
		rows = append(rows, []string{c.Category, c.Amount.StringFixed(2), c.Percentage.StringFixed(2)})
	}
	rows = append(rows, []string{}, []string{"Period", "Income", "Expense", "Balance"})
	for _, p := range r.MonthlyTrend {
		rows = append(rows, []string{p.Period, p.Income.StringFixed(2), p.Expense.StringFixed(2), p.Balance.StringFixed(2)})
	}
	rows = append(rows, []string{}, []string{"Insights"})
	for _, in := range r.Insights {
		rows = append(rows, []string{in})
	}

	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// ============================================================
// Internal helpers
// ============================================================

// load fetches incomes and expenses concurrently behind the bulkhead and
// the record-store breaker. Stores with their own breaker are called
// directly.
func (s *ReportService) load(ctx context.Context, ownerID, operation string) (*records, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() { s.metrics.RecordDuration(operation, time.Since(start)) }()

	if err := s.bulkhead.Acquire(ctx); err != nil {
		return nil, &domain.ErrTimeout{Operation: operation}
	}
	defer s.bulkhead.Release()

	var recs records
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		list, err := guardedCall(gCtx, s, func(ctx context.Context) ([]domain.Income, error) {
			return s.store.ListIncomes(ctx, ownerID, domain.ListFilter{})
		})
		if err != nil {
			return s.loadError("list_incomes", ownerID, err)
		}
		recs.incomes = list
		return nil
	})

	g.Go(func() error {
		list, err := guardedCall(gCtx, s, func(ctx context.Context) ([]domain.Expense, error) {
			return s.store.ListExpenses(ctx, ownerID, domain.ListFilter{})
		})
		if err != nil {
			return s.loadError("list_expenses", ownerID, err)
		}
		recs.expenses = list
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &recs, nil
}

func guardedCall[T any](ctx context.Context, s *ReportService, fn func(context.Context) (T, error)) (T, error) {
	if s.storeGuarded {
		return fn(ctx)
	}
	return resilience.Call(ctx, s.breaker, s.resilienceCfg, fn)
}

func (s *ReportService) loadError(op, ownerID string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.ErrTimeout{Operation: op}
	}
	if errors.Is(err, context.Canceled) || isDomainError(err) {
		return err
	}
	s.metrics.IncrStoreError(op)
	s.logger.Error("failed to load records",
		zap.String("operation", op),
		zap.String("owner_id", ownerID),
		zap.Error(err),
	)
	return &domain.ErrExternalService{Service: "record-store", Err: err}
}

// analyze returns the memoized report for these exact records, computing
// and storing it on a miss.
func (s *ReportService) analyze(ownerID string, recs *records) *domain.AnalysisReport {
	key := ownerID + ":" + fingerprint(recs)
	if cached, ok := s.cache.Get(key); ok {
		s.metrics.IncrCacheHit(analysisCache)
		s.metrics.IncrAnalysis("success")
		return cached
	}
	s.metrics.IncrCacheMiss(analysisCache)

	report := s.analyzer.Analyze(recs.incomes, recs.expenses)
	s.recordInsights(report)
	s.metrics.IncrAnalysis("success")
	s.cache.Set(key, report)
	return report
}

func (s *ReportService) recordInsights(r *domain.AnalysisReport) {
	overspent := 0
	for _, p := range r.MonthlyTrend {
		if p.Balance.IsNegative() {
			overspent++
		}
	}
	if overspent > 0 {
		s.metrics.RecordInsights(observability.InsightOverspend, overspent)
	}
	if len(r.ExpenseDistribution) > 0 &&
		r.ExpenseDistribution[0].Percentage.GreaterThan(decimal.NewFromInt(analysis.DominantShareThreshold)) {
		s.metrics.RecordInsights(observability.InsightDominant, 1)
	}
	if len(r.Insights) == 1 && r.Insights[0] == analysis.BalancedInsight {
		s.metrics.RecordInsights(observability.InsightBalanced, 1)
	}
}

func (s *ReportService) monthLabel() analysis.LabelFunc {
	if s.analyzer.MonthLabel != nil {
		return s.analyzer.MonthLabel
	}
	return analysis.MonthLabel
}

func (s *ReportService) monthlyExpenses(expenses []domain.Expense) []domain.PeriodSummary {
	buckets := analysis.Bucket(expenses, analysis.Month, s.monthLabel())
	out := make([]domain.PeriodSummary, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, domain.PeriodSummary{Period: b.Label, Total: b.Total})
	}
	return out
}

func categorySummaries(shares []domain.CategoryShare) []domain.CategorySummary {
	out := make([]domain.CategorySummary, 0, len(shares))
	for _, c := range shares {
		out = append(out, domain.CategorySummary{Category: c.Category, Total: c.Amount})
	}
	return out
}

// fingerprint hashes the analysis-relevant fields of every record in load
// order. Tied categories keep first-seen order in the distribution, so the
// same records in a different order must not share a cache entry.
func fingerprint(recs *records) string {
	d := xxhash.New()
	for _, in := range recs.incomes {
		writeFields(d, "i", in.ID, in.Amount.String(), in.Date.Format(dateLayout))
	}
	for _, e := range recs.expenses {
		writeFields(d, "e", e.ID, e.Amount.String(), e.Date.Format(dateLayout), e.CategoryName())
	}
	n := uint64(len(recs.incomes))<<32 | uint64(len(recs.expenses))
	return strconv.FormatUint(d.Sum64(), 16) + "-" + strconv.FormatUint(n, 16)
}

func writeFields(d *xxhash.Digest, fields ...string) {
	for _, f := range fields {
		_, _ = d.WriteString(f)
		_, _ = d.Write([]byte{0})
	}
}
