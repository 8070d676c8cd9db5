package handler

import (
	"bytes"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/finance-tracker-go/internal/analysis"
	"github.com/boddenberg/finance-tracker-go/internal/service"
)

// ============================================================
// Reports & analysis
// ============================================================

func dashboardHandler(reports *service.ReportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/dashboard")
		defer span.End()

		month, err := parseMonth(r, time.Now())
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		dash, err := reports.Dashboard(ctx, OwnerIDFromContext(ctx), month)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, dash)
	}
}

func reportHandler(reports *service.ReportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/reports")
		defer span.End()

		rep, err := reports.Report(ctx, OwnerIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, rep)
	}
}

// exportCSVHandler buffers the export so a failure mid-way still yields a
// JSON error instead of a truncated file.
func exportCSVHandler(reports *service.ReportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/reports/export.csv")
		defer span.End()

		var buf bytes.Buffer
		if err := reports.ExportCSV(ctx, OwnerIDFromContext(ctx), &buf); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="report.csv"`)
		w.WriteHeader(http.StatusOK)
		if _, err := buf.WriteTo(w); err != nil {
			logger.Warn("csv export: write failed", zap.Error(err))
		}
	}
}

func analysisHandler(reports *service.ReportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/analysis")
		defer span.End()

		rep, err := reports.Analyze(ctx, OwnerIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		span.SetAttributes(attribute.Int("analysis.insights", len(rep.Insights)))
		writeJSON(w, http.StatusOK, rep)
	}
}

func chartsHandler(reports *service.ReportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/analysis/charts")
		defer span.End()

		charts, err := reports.Charts(ctx, OwnerIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, charts)
	}
}

func trendHandler(reports *service.ReportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/trends")
		defer span.End()

		g, err := analysis.ParseGranularity(r.URL.Query().Get("granularity"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.String("trend.granularity", string(g)))

		trend, err := reports.Trend(ctx, OwnerIDFromContext(ctx), g)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, trend)
	}
}
