package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seat-hold-engine/internal/model"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "test")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("JWT_SECRET", "s3cret")
}

func TestLoad_MemoryDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("LEDGER_DRIVER", "Memory")

	cfg := Load()
	assert.Equal(t, DriverMemory, cfg.LedgerDriver)
	assert.Equal(t, 600*time.Second, cfg.HoldTTL)
	assert.Equal(t, 6, cfg.MaxSeatsPerOrder)
	assert.Equal(t, model.Layout{Rows: "ABCDEFGHIJ", Cols: 12}, cfg.Layout)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, 2*time.Second, cfg.SweepMinGap)
	assert.True(t, cfg.EventsEnabled)
	assert.Empty(t, cfg.DBHost)
}

func TestLoad_MySQLAndOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("LEDGER_DRIVER", "mysql")
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "3306")
	t.Setenv("DB_NAME", "cinema")
	t.Setenv("HOLD_TTL_SECONDS", "90")
	t.Setenv("SEAT_ROWS", "abc")
	t.Setenv("SEAT_COLS", "8")
	t.Setenv("SEAT_MAX_PER_ORDER", "0")
	t.Setenv("AMQP_URL", "amqp://guest:guest@mq:5672/")
	t.Setenv("EVENTS_ENABLED", "off")

	cfg := Load()
	require.Equal(t, DriverMySQL, cfg.LedgerDriver)
	assert.Equal(t, "db", cfg.DBHost)
	assert.Equal(t, 90*time.Second, cfg.HoldTTL)
	assert.Equal(t, model.Layout{Rows: "ABC", Cols: 8}, cfg.Layout)
	assert.Equal(t, 1, cfg.MaxSeatsPerOrder)
	assert.Equal(t, "amqp://guest:guest@mq:5672/", cfg.AMQPURL)
	assert.False(t, cfg.EventsEnabled)
}

func TestLoadLedger_NoServerVars(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("APP_PORT", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("LEDGER_DRIVER", "memory")
	t.Setenv("SEAT_ROWS", "abc")
	t.Setenv("SEAT_COLS", "5")
	t.Setenv("LOG_LEVEL", "")

	cfg := LoadLedger()
	assert.Equal(t, DriverMemory, cfg.LedgerDriver)
	assert.Equal(t, model.Layout{Rows: "ABC", Cols: 5}, cfg.Layout)
	assert.Empty(t, cfg.JWTSecret)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("X_BOOL", "YES")
	t.Setenv("X_INT", "nope")
	t.Setenv("X_DUR", "1500ms")

	assert.True(t, envBool("X_BOOL", false))
	assert.Equal(t, 7, envInt("X_INT", 7))
	assert.Equal(t, 1500*time.Millisecond, envDur("X_DUR", 0))
	assert.Equal(t, "d", envStr("X_UNSET", "d"))
}

func TestLoadRateLimitConfig_Clamps(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	rl := LoadRateLimitConfig()
	assert.Equal(t, 1, rl.Capacity)
	assert.Equal(t, 10*time.Second, rl.TTL)
}

func TestRedisOptions(t *testing.T) {
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_DB", "2")

	opts := RedisOptions()
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Nil(t, opts.TLSConfig)
}
