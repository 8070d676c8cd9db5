package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"

	"github.com/boddenberg/finance-tracker-go/internal/domain"
)

// Insight kinds counted by RecordInsights.
const (
	InsightOverspend = "overspend"
	InsightDominant  = "dominant_category"
	InsightBalanced  = "balanced"
)

// Metrics holds all Prometheus metrics for the tracker.
type Metrics struct {
	// Registry owns these metrics; /metrics serves it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	storeErrors     *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	analysesTotal   *prometheus.CounterVec
	insightsTotal   *prometheus.CounterVec
	recordsWritten  *prometheus.CounterVec
}

// NewMetrics creates a private registry and registers the tracker metrics
// in it, so it can be called repeatedly (tests) without duplicate
// collector panics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tracker_operation_duration_seconds",
				Help:    "Duration of service operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		storeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_store_errors_total",
				Help: "Record store failures by operation.",
			},
			[]string{"operation"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		analysesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_analyses_total",
				Help: "Budget analyses computed, by outcome.",
			},
			[]string{"status"},
		),
		insightsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_insights_total",
				Help: "Insights emitted, by kind.",
			},
			[]string{"kind"},
		),
		recordsWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_records_written_total",
				Help: "Ledger writes by record type and action.",
			},
			[]string{"record", "action"},
		),
	}
}

// RecordDuration records the duration of an operation.
func (m *Metrics) RecordDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrStoreError increments the store error counter.
func (m *Metrics) IncrStoreError(operation string) {
	m.storeErrors.WithLabelValues(operation).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrAnalysis counts an analysis with status "success" or "error".
func (m *Metrics) IncrAnalysis(status string) {
	m.analysesTotal.WithLabelValues(status).Inc()
}

// RecordInsights counts insights of one kind.
func (m *Metrics) RecordInsights(kind string, n int) {
	m.insightsTotal.WithLabelValues(kind).Add(float64(n))
}

// IncrRecordWrite counts a ledger write such as ("expense", "create").
func (m *Metrics) IncrRecordWrite(record, action string) {
	m.recordsWritten.WithLabelValues(record, action).Inc()
}

// GetAnalysisSnapshot summarises the analysis counters for
// GET /v1/metrics/analysis.
func (m *Metrics) GetAnalysisSnapshot() *domain.AnalysisMetrics {
	success := getCounterValue(m.analysesTotal, "success")
	failed := getCounterValue(m.analysesTotal, "error")
	hits := getCounterValue(m.cacheHits, "analysis")
	misses := getCounterValue(m.cacheMisses, "analysis")
	overspend := getCounterValue(m.insightsTotal, InsightOverspend)
	dominant := getCounterValue(m.insightsTotal, InsightDominant)
	balanced := getCounterValue(m.insightsTotal, InsightBalanced)

	total := success + failed
	errorRate := float64(0)
	if total > 0 {
		errorRate = failed / total
	}
	cacheHitRate := float64(0)
	if hits+misses > 0 {
		cacheHitRate = hits / (hits + misses)
	}

	return &domain.AnalysisMetrics{
		TotalAnalyses:    int64(total),
		ErrorRate:        errorRate,
		CacheHitRate:     cacheHitRate,
		InsightsEmitted:  int64(overspend + dominant + balanced),
		OverspendAlerts:  int64(overspend),
		DominantWarnings: int64(dominant),
		Period:           "all_time",
	}
}

// getCounterValue reads the current value of one series of a CounterVec.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
