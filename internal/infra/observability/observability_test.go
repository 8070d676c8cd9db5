package observability_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/boddenberg/finance-tracker-go/internal/infra/observability"
)

func TestNewMetrics_Independent(t *testing.T) {
	// A private registry per instance must not panic on re-registration.
	a := observability.NewMetrics()
	b := observability.NewMetrics()
	a.IncrAnalysis("success")

	if got := b.GetAnalysisSnapshot().TotalAnalyses; got != 0 {
		t.Errorf("expected isolated registries, got %d analyses", got)
	}
}

func TestGetAnalysisSnapshot(t *testing.T) {
	m := observability.NewMetrics()
	m.IncrAnalysis("success")
	m.IncrAnalysis("success")
	m.IncrAnalysis("success")
	m.IncrAnalysis("error")
	m.IncrCacheHit("analysis")
	m.IncrCacheMiss("analysis")
	m.RecordInsights(observability.InsightOverspend, 2)
	m.RecordInsights(observability.InsightDominant, 1)

	snap := m.GetAnalysisSnapshot()

	if snap.TotalAnalyses != 4 {
		t.Errorf("expected 4 analyses, got %d", snap.TotalAnalyses)
	}
	if snap.ErrorRate != 0.25 {
		t.Errorf("expected error rate 0.25, got %f", snap.ErrorRate)
	}
	if snap.CacheHitRate != 0.5 {
		t.Errorf("expected cache hit rate 0.5, got %f", snap.CacheHitRate)
	}
	if snap.InsightsEmitted != 3 || snap.OverspendAlerts != 2 || snap.DominantWarnings != 1 {
		t.Errorf("unexpected insight counters: %+v", snap)
	}
}

func TestZapLoggerMiddleware_LevelsByStatus(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	r := chi.NewRouter()
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Get("/ok", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/missing/{id}", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNotFound) })
	r.Get("/boom", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusInternalServerError) })

	for _, path := range []string{"/ok", "/missing/42", "/boom"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("expected 3 log entries, got %d", len(entries))
	}
	if entries[0].Level != zap.InfoLevel || entries[1].Level != zap.WarnLevel || entries[2].Level != zap.ErrorLevel {
		t.Errorf("unexpected levels: %v %v %v", entries[0].Level, entries[1].Level, entries[2].Level)
	}
	if route := entries[1].ContextMap()["route"]; route != "/missing/{id}" {
		t.Errorf("expected route pattern, got %v", route)
	}
}

func TestInitTracer_Disabled(t *testing.T) {
	shutdown, err := observability.InitTracer(context.Background(), false, "", "tracker-test")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("expected no-op shutdown, got %v", err)
	}
}

func TestNewLogger_FallsBackToInfo(t *testing.T) {
	logger := observability.NewLogger("chatty")
	if logger.Core().Enabled(zap.DebugLevel) {
		t.Error("expected debug to be disabled for an unknown level")
	}
	if !observability.NewLogger("debug").Core().Enabled(zap.DebugLevel) {
		t.Error("expected debug to be enabled")
	}
}
