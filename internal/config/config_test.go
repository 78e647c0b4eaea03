package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/campaign-dispatcher/internal/errors"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(envOf(map[string]string{"REDIS_URL": "redis://localhost:6379/0"}))
	require.NoError(t, err)

	assert.Equal(t, DriverRedis, cfg.StoreDriver)
	assert.Equal(t, "default", cfg.Namespace)
	assert.Equal(t, 5, cfg.Dispatch.Concurrency)
	assert.Equal(t, 40, cfg.Dispatch.EmailsPerAccountPerHour)
	assert.Equal(t, time.Second, cfg.Dispatch.PerEmailDelay)
	assert.Equal(t, 300, cfg.Dispatch.MaxEvents)
	assert.Equal(t, 3, cfg.Dispatch.MaxRetries)
	assert.Equal(t, 10000, cfg.Dispatch.MaxRetryBacklog)
	assert.Equal(t, 30*time.Minute, cfg.Dispatch.LockTTL)
	assert.Equal(t, "campaign_ticks", cfg.TickQueue)
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(envOf(map[string]string{
		"STORE_DRIVER":                "POSTGRES",
		"DB_HOST":                     "db",
		"DB_USER":                     "u",
		"DB_PASSWORD":                 "p",
		"DB_NAME":                     "dispatch",
		"SEND_CONCURRENCY":            "3",
		"EMAILS_PER_ACCOUNT_PER_HOUR": "25",
		"PER_EMAIL_DELAY_MS":          "250",
		"TICK_LOCK_TTL":               "45m",
		"TICK_INTERVAL":               "1h",
	}))
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, "postgres://u:p@db:5432/dispatch?sslmode=disable", cfg.DatabaseURL)
	assert.Equal(t, 3, cfg.Dispatch.Concurrency)
	assert.Equal(t, 25, cfg.Dispatch.EmailsPerAccountPerHour)
	assert.Equal(t, 250*time.Millisecond, cfg.Dispatch.PerEmailDelay)
	assert.Equal(t, 45*time.Minute, cfg.Dispatch.LockTTL)
	assert.Equal(t, time.Hour, cfg.TickInterval)
}

func TestFromEnvRejectsMissingStoreConnection(t *testing.T) {
	_, err := FromEnv(envOf(map[string]string{}))
	require.Error(t, err)
	assert.True(t, appErrors.IsConfig(err))
	assert.Contains(t, err.Error(), "REDIS_URL")
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	cases := map[string]map[string]string{
		"non-integer": {"REDIS_URL": "redis://x", "SEND_CONCURRENCY": "many"},
		"zero pool":   {"REDIS_URL": "redis://x", "SEND_CONCURRENCY": "0"},
		"short ttl":   {"REDIS_URL": "redis://x", "TICK_LOCK_TTL": "10s"},
		"bad driver":  {"STORE_DRIVER": "mongo"},
	}
	for name, env := range cases {
		env := env
		t.Run(name, func(t *testing.T) {
			_, err := FromEnv(envOf(env))
			require.Error(t, err)
			assert.True(t, appErrors.IsConfig(err))
		})
	}
}
