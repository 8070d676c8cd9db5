package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Data backends selectable with DATA_BACKEND.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendSupabase = "supabase"
)

const devJWTSecret = "tracker-default-dev-secret-change-me"

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port           int
	LogLevel       string
	RequestTimeout time.Duration
	AllowedOrigins []string

	// Storage
	DataBackend string
	SQLitePath  string

	// Supabase (PostgREST)
	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string
	HTTPTimeout        time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache
	CacheTTL time.Duration

	// Observability
	OTLPEndpoint   string
	TracingEnabled bool

	// JWT / Auth
	JWTSecret    string
	JWTAccessTTL time.Duration

	// Presentation
	CurrencySymbol string
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:           getEnvInt("PORT", 8080),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),

		DataBackend: strings.ToLower(getEnv("DATA_BACKEND", BackendMemory)),
		SQLitePath:  getEnv("SQLITE_DB_PATH", "./data/tracker.db"),

		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseAnonKey:    getEnv("SUPABASE_ANON_KEY", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
		HTTPTimeout:        getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 50),

		CacheTTL: getEnvDuration("CACHE_TTL", 5*time.Minute),

		OTLPEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		TracingEnabled: getEnvBool("TRACING_ENABLED", false),

		JWTSecret:    getEnv("JWT_SECRET", devJWTSecret),
		JWTAccessTTL: getEnvDuration("JWT_ACCESS_TTL", 24*time.Hour),

		CurrencySymbol: getEnv("CURRENCY_SYMBOL", "₹"),
	}
}

// IsDevSecret reports whether the JWT secret is still the built-in default.
func (c *Config) IsDevSecret() bool {
	return c.JWTSecret == devJWTSecret
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var problems []string

	if c.Port < 1 || c.Port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", c.Port))
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	switch c.DataBackend {
	case BackendMemory:
	case BackendSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			problems = append(problems, "SQLite database path cannot be empty when using sqlite backend")
		}
	case BackendSupabase:
		if c.SupabaseURL == "" || c.SupabaseServiceKey == "" {
			problems = append(problems, "SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY are required when using supabase backend")
		}
		if c.HTTPTimeout <= 0 {
			problems = append(problems, fmt.Sprintf("invalid HTTP timeout %v: must be positive", c.HTTPTimeout))
		}
	default:
		problems = append(problems, fmt.Sprintf("invalid data backend '%s': must be one of [%s %s %s]", c.DataBackend, BackendMemory, BackendSQLite, BackendSupabase))
	}

	if c.MaxRetries < 0 {
		problems = append(problems, fmt.Sprintf("invalid max retries %d: must not be negative", c.MaxRetries))
	}
	if c.MaxConcurrency < 1 {
		problems = append(problems, fmt.Sprintf("invalid max concurrency %d: must be at least 1", c.MaxConcurrency))
	}
	if c.CacheTTL <= 0 {
		problems = append(problems, fmt.Sprintf("invalid cache TTL %v: must be positive", c.CacheTTL))
	}
	if c.RequestTimeout <= 0 {
		problems = append(problems, fmt.Sprintf("invalid request timeout %v: must be positive", c.RequestTimeout))
	}
	if len(c.JWTSecret) < 16 {
		problems = append(problems, "JWT secret must be at least 16 characters")
	}
	if c.JWTAccessTTL <= 0 {
		problems = append(problems, fmt.Sprintf("invalid JWT access TTL %v: must be positive", c.JWTAccessTTL))
	}
	if c.TracingEnabled && c.OTLPEndpoint == "" {
		problems = append(problems, "OTLP endpoint is required when tracing is enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvList splits a comma-separated variable, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
