package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boddenberg/finance-tracker-go/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{
		"PORT", "LOG_LEVEL", "DATA_BACKEND", "CACHE_TTL", "CURRENCY_SYMBOL", "TRACING_ENABLED",
		"JWT_SECRET", "JWT_ACCESS_TTL", "MAX_RETRIES", "MAX_CONCURRENCY", "REQUEST_TIMEOUT",
	} {
		t.Setenv(k, "")
	}

	cfg := config.Load()

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, config.BackendMemory, cfg.DataBackend)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, "₹", cfg.CurrencySymbol)
	assert.False(t, cfg.TracingEnabled)
	assert.True(t, cfg.IsDevSecret())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATA_BACKEND", "SQLite")
	t.Setenv("SQLITE_DB_PATH", "/tmp/x.db")
	t.Setenv("CACHE_TTL", "30s")
	t.Setenv("TRACING_ENABLED", "true")
	t.Setenv("CURRENCY_SYMBOL", "$")
	t.Setenv("MAX_RETRIES", "not-a-number")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example, ,https://b.example")

	cfg := config.Load()

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, config.BackendSQLite, cfg.DataBackend)
	assert.Equal(t, "/tmp/x.db", cfg.SQLitePath)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.True(t, cfg.TracingEnabled)
	assert.Equal(t, "$", cfg.CurrencySymbol)
	assert.Equal(t, 3, cfg.MaxRetries, "unparsable values fall back to the default")
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestValidate_AggregatesProblems(t *testing.T) {
	cfg := config.Load()
	cfg.Port = 0
	cfg.DataBackend = "postgres"
	cfg.MaxConcurrency = 0
	cfg.JWTSecret = "short"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid port 0")
	assert.Contains(t, err.Error(), "invalid data backend 'postgres'")
	assert.Contains(t, err.Error(), "invalid max concurrency 0")
	assert.Contains(t, err.Error(), "JWT secret")
}

func TestValidate_SQLiteNeedsPath(t *testing.T) {
	cfg := config.Load()
	cfg.DataBackend = config.BackendSQLite
	cfg.SQLitePath = " "

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SQLite database path")
}

func TestValidate_SupabaseNeedsCredentials(t *testing.T) {
	t.Setenv("DATA_BACKEND", "Supabase")
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("SUPABASE_SERVICE_ROLE_KEY", "")
	cfg := config.Load()

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SUPABASE_URL")

	cfg.SupabaseURL = "https://project.supabase.co"
	cfg.SupabaseServiceKey = "service-role"
	assert.NoError(t, cfg.Validate())
}

func TestLoadDotEnv_EnvironmentWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("TRACKER_TEST_A=from-file\nTRACKER_TEST_B=\"quoted\"\n"), 0o600))

	t.Setenv("TRACKER_TEST_A", "from-env")
	t.Setenv("TRACKER_TEST_B", "")
	os.Unsetenv("TRACKER_TEST_B")

	require.NoError(t, config.LoadDotEnv(path))
	t.Cleanup(func() { os.Unsetenv("TRACKER_TEST_B") })

	assert.Equal(t, "from-env", os.Getenv("TRACKER_TEST_A"))
	assert.Equal(t, "quoted", os.Getenv("TRACKER_TEST_B"))
}

func TestLoadDotEnv_MissingFile(t *testing.T) {
	assert.Error(t, config.LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}
