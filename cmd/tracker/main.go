package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/boddenberg/finance-tracker-go/internal/analysis"
	"github.com/boddenberg/finance-tracker-go/internal/config"
	"github.com/boddenberg/finance-tracker-go/internal/domain"
	"github.com/boddenberg/finance-tracker-go/internal/handler"
	"github.com/boddenberg/finance-tracker-go/internal/infra/cache"
	"github.com/boddenberg/finance-tracker-go/internal/infra/memory"
	"github.com/boddenberg/finance-tracker-go/internal/infra/observability"
	"github.com/boddenberg/finance-tracker-go/internal/infra/resilience"
	"github.com/boddenberg/finance-tracker-go/internal/infra/sqlite"
	"github.com/boddenberg/finance-tracker-go/internal/infra/supabase"
	"github.com/boddenberg/finance-tracker-go/internal/port"
	"github.com/boddenberg/finance-tracker-go/internal/service"
)

const serviceName = "finance-tracker"

// backend is what every data backend provides.
type backend interface {
	port.RecordStore
	port.UserStore
}

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	if cfg.IsDevSecret() {
		logger.Warn("JWT_SECRET not set, using the development secret")
	}

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("data_backend", cfg.DataBackend),
		zap.Duration("request_timeout", cfg.RequestTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Duration("jwt_access_ttl", cfg.JWTAccessTTL),
	)

	ctx := context.Background()

	// --- Tracing ---
	shutdown, err := observability.InitTracer(ctx, cfg.TracingEnabled, cfg.OTLPEndpoint, serviceName)
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	cb := resilience.NewCircuitBreaker("record-store")

	// --- Store ---
	store, closeStore, err := openBackend(ctx, cfg, resilienceCfg, logger)
	if err != nil {
		logger.Fatal("failed to open record store", zap.Error(err))
	}
	defer closeStore()

	// --- Cache ---
	reportCache := cache.New[*domain.AnalysisReport](cfg.CacheTTL)
	defer reportCache.Close()

	// --- Services ---
	analyzer := analysis.NewAnalyzer(cfg.CurrencySymbol)
	reportSvc := service.NewReportService(store, reportCache, analyzer, cb, resilienceCfg, metrics, logger)
	ledgerSvc := service.NewLedgerService(store, reportSvc, metrics, logger)
	authSvc := service.NewAuthService(store, cfg.JWTSecret, cfg.JWTAccessTTL, logger)

	// --- Router ---
	router := handler.NewRouter(handler.Services{
		Ledger:  ledgerSvc,
		Reports: reportSvc,
		Auth:    authSvc,
		Store:   store,
	}, handler.Options{
		RequestTimeout: cfg.RequestTimeout,
		AllowedOrigins: cfg.AllowedOrigins,
	}, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func openBackend(ctx context.Context, cfg *config.Config, rcfg resilience.Config, logger *zap.Logger) (backend, func(), error) {
	switch cfg.DataBackend {
	case config.BackendSupabase:
		logger.Info("using Supabase as data backend", zap.String("supabase_url", cfg.SupabaseURL))
		client := supabase.NewClient(
			&http.Client{Timeout: cfg.HTTPTimeout},
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			resilience.NewCircuitBreaker("supabase"),
			rcfg,
			logger,
		)
		if err := client.Ping(ctx); err != nil {
			return nil, nil, fmt.Errorf("reach supabase: %w", err)
		}
		return client, func() {}, nil
	case config.BackendSQLite:
		s, err := sqlite.Open(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				logger.Warn("closing sqlite store", zap.Error(err))
			}
		}, nil
	default:
		logger.Info("using in-memory record store; data is lost on restart")
		return memory.NewStore(), func() {}, nil
	}
}
