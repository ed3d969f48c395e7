package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/tour-engine/config"
)

func write(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	for _, k := range []string{"TOUR_DB_DSN", "TOUR_HTTP_PORT", "STRIPE_SECRET_KEY", "REDIS_ADDR"} {
		t.Setenv(k, "")
	}

	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))

	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
	assert.Equal(t, ":8080", cfg.Server.Addr())
	assert.Equal(t, 30*time.Second, cfg.Server.Shutdown())
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.Interval())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	// GIVEN: a file setting only some keys
	// WHEN:  it is loaded
	// THEN:  set keys win and the rest keep their defaults
	path := write(t, `
[server]
http_port = 9090

[database]
driver = "postgres"
dsn = "postgres://localhost/tours"

[redis]
addr = "localhost:6379"
`)

	cfg, err := config.Load(path)

	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.HTTPPort)
	assert.Equal(t, 30, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, 600, cfg.Redis.RouteTTL)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("TOUR_DB_DSN", "/var/lib/tours.db")
	t.Setenv("TOUR_HTTP_PORT", "7000")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("REDIS_ADDR", "redis:6379")
	path := write(t, `
[payments]
provider = "stripe"
`)

	cfg, err := config.Load(path)

	require.NoError(t, err)
	assert.Equal(t, "/var/lib/tours.db", cfg.Database.DSN)
	assert.Equal(t, 7000, cfg.Server.HTTPPort)
	assert.Equal(t, "sk_test_123", cfg.Payments.StripeSecretKey)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad toml", `[server`},
		{"port", "[server]\nhttp_port = 0"},
		{"driver", "[database]\ndriver = \"mysql\""},
		{"stripe without key", "[payments]\nprovider = \"stripe\""},
		{"rate limit", "[rate_limit]\nenabled = true\nburst = 0"},
		{"scheduler interval", "[scheduler]\npending_interval = 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("STRIPE_SECRET_KEY", "")

			_, err := config.Load(write(t, tt.body))

			assert.Error(t, err)
		})
	}
}

func TestLoad_BadPortEnv(t *testing.T) {
	t.Setenv("TOUR_HTTP_PORT", "eighty")

	_, err := config.Load("")

	assert.ErrorIs(t, err, config.ErrInvalid)
}
