package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/boddenberg/finance-tracker-go/internal/domain"
	"github.com/boddenberg/finance-tracker-go/internal/infra/observability"
	"github.com/boddenberg/finance-tracker-go/internal/service"
)

var tracer = otel.Tracer("handler")

// Pinger reports whether the record store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services bundles what the router serves. A nil LedgerService, ReportService
// or AuthService leaves the /v1 API unmounted; operational endpoints always work.
type Services struct {
	Ledger  *service.LedgerService
	Reports *service.ReportService
	Auth    *service.AuthService
	Store   Pinger
}

// Options tunes the HTTP surface.
type Options struct {
	// RequestTimeout bounds every /v1 request; zero disables it.
	RequestTimeout time.Duration
	// AllowedOrigins enables CORS for browser clients when non-empty.
	AllowedOrigins []string
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svc Services, opts Options, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			ExposedHeaders:   []string{"Content-Disposition"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svc.Store, logger))
	r.Get("/readyz", readyzHandler(svc.Store))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	if svc.Ledger == nil || svc.Reports == nil || svc.Auth == nil {
		return r
	}

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		if opts.RequestTimeout > 0 {
			r.Use(middleware.Timeout(opts.RequestTimeout))
		}

		r.Post("/auth/register", authRegisterHandler(svc.Auth, logger))
		r.Post("/auth/login", authLoginHandler(svc.Auth, logger))

		r.Group(func(r chi.Router) {
			r.Use(JWTAuthMiddleware(svc.Auth, logger))

			r.Get("/auth/me", authMeHandler(logger))

			// Expenses
			r.Get("/expenses", listExpensesHandler(svc.Ledger, logger))
			r.Post("/expenses", addExpenseHandler(svc.Ledger, logger))
			r.Get("/expenses/{expenseId}", getExpenseHandler(svc.Ledger, logger))
			r.Put("/expenses/{expenseId}", updateExpenseHandler(svc.Ledger, logger))
			r.Delete("/expenses/{expenseId}", deleteExpenseHandler(svc.Ledger, logger))

			// Incomes
			r.Get("/incomes", listIncomesHandler(svc.Ledger, logger))
			r.Post("/incomes", addIncomeHandler(svc.Ledger, logger))
			r.Delete("/incomes/{incomeId}", deleteIncomeHandler(svc.Ledger, logger))

			// Categories
			r.Get("/categories", listCategoriesHandler(svc.Ledger, logger))
			r.Post("/categories", createCategoryHandler(svc.Ledger, logger))

			// Reports
			r.Get("/dashboard", dashboardHandler(svc.Reports, logger))
			r.Get("/reports", reportHandler(svc.Reports, logger))
			r.Get("/reports/export.csv", exportCSVHandler(svc.Reports, logger))
			r.Get("/analysis", analysisHandler(svc.Reports, logger))
			r.Get("/analysis/charts", chartsHandler(svc.Reports, logger))
			r.Get("/trends", trendHandler(svc.Reports, logger))

			r.Get("/metrics/analysis", analysisMetricsHandler(metrics))
		})
	})

	return r
}

// ============================================================
// Operational
// ============================================================

func healthzHandler(store Pinger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checked := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "tracker-api", Status: "healthy", LastChecked: checked},
		}

		if store != nil {
			start := time.Now()
			err := store.Ping(r.Context())
			status := "healthy"
			if err != nil {
				logger.Warn("healthz: record store ping failed", zap.Error(err))
				status = "degraded"
			}
			services = append(services, domain.ServiceHealth{
				Name:        "record-store",
				Status:      status,
				LatencyMs:   time.Since(start).Milliseconds(),
				LastChecked: checked,
			})
		}

		overall := "healthy"
		for _, s := range services {
			if s.Status != "healthy" {
				overall = s.Status
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{Status: overall, Services: services})
	}
}

func readyzHandler(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store != nil {
			if err := store.Ping(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func analysisMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetAnalysisSnapshot())
	}
}
