package config // package config loads application configuration from environment variables

import (
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/seat-hold-engine/internal/model"
)

// Ledger drivers accepted by LEDGER_DRIVER.
const (
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env          string // application environment (e.g. "dev", "prod")
	Port         string // HTTP port to listen on
	LedgerDriver string // "mysql" or "memory"
	DBUser       string // database username
	DBPass       string // database password (optional)
	DBHost       string // database host address
	DBPort       string // database port number
	DBName       string // database name
	JWTSecret    string // secret used to sign and verify service JWTs

	HoldTTL          time.Duration // lifetime of a seat hold
	MaxSeatsPerOrder int           // upper bound on seats in one hold request
	Layout           model.Layout  // seat grid used to validate seat codes

	SweepInterval time.Duration // period of the background expiry sweep
	SweepMinGap   time.Duration // minimum gap between inline sweeps

	LogLevel  string // logrus level name
	LogFormat string // "text" or "json"

	AMQPURL            string // RabbitMQ URL; empty disables publishing
	EventsEnabled      bool   // publish seats.confirmed after confirmation
	ConfirmationLogDir string // directory for the confirmation consumer log
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
	cfg := Config{
		Env:          must("APP_ENV"),
		Port:         must("APP_PORT"),
		LedgerDriver: strings.ToLower(envStr("LEDGER_DRIVER", DriverMySQL)),
		JWTSecret:    must("JWT_SECRET"),

		HoldTTL:          time.Duration(envInt("HOLD_TTL_SECONDS", 600)) * time.Second,
		MaxSeatsPerOrder: envInt("SEAT_MAX_PER_ORDER", 6),
		Layout: model.Layout{
			Rows: strings.ToUpper(envStr("SEAT_ROWS", "ABCDEFGHIJ")),
			Cols: envInt("SEAT_COLS", 12),
		},

		SweepInterval: envDur("SWEEP_INTERVAL", 30*time.Second),
		SweepMinGap:   envDur("SWEEP_MIN_GAP", 2*time.Second),

		LogLevel:  envStr("LOG_LEVEL", "info"),
		LogFormat: envStr("LOG_FORMAT", "text"),

		AMQPURL:            envStr("RABBITMQ_URL", envStr("AMQP_URL", "")),
		EventsEnabled:      envBool("EVENTS_ENABLED", true),
		ConfirmationLogDir: envStr("CONFIRMATION_LOG_DIR", "logs"),
	}

	loadDB(&cfg)

	if cfg.HoldTTL <= 0 {
		logrus.Fatalf("HOLD_TTL_SECONDS must be positive")
	}
	if cfg.MaxSeatsPerOrder < 1 {
		cfg.MaxSeatsPerOrder = 1
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 30 * time.Second
	}
	return cfg
}

// LoadLedger reads only what is needed to reach the seat ledger: the
// driver, database credentials, seat grid and JWT secret.  It is used by
// tools that do not serve HTTP.  JWT_SECRET is optional here.
func LoadLedger() Config {
	cfg := Config{
		LedgerDriver: strings.ToLower(envStr("LEDGER_DRIVER", DriverMySQL)),
		JWTSecret:    envStr("JWT_SECRET", ""),
		Layout: model.Layout{
			Rows: strings.ToUpper(envStr("SEAT_ROWS", "ABCDEFGHIJ")),
			Cols: envInt("SEAT_COLS", 12),
		},
		LogLevel:  envStr("LOG_LEVEL", "warn"),
		LogFormat: envStr("LOG_FORMAT", "text"),
	}
	loadDB(&cfg)
	return cfg
}

func loadDB(cfg *Config) {
	switch cfg.LedgerDriver {
	case DriverMySQL:
		cfg.DBUser = must("DB_USER")
		cfg.DBPass = envStr("DB_PASS", "") // empty allowed
		cfg.DBHost = must("DB_HOST")
		cfg.DBPort = must("DB_PORT")
		cfg.DBName = must("DB_NAME")
	case DriverMemory:
	default:
		logrus.Fatalf("invalid LEDGER_DRIVER %q (want mysql or memory)", cfg.LedgerDriver)
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v := envStr(key, "")
	if v == "" {
		logrus.Fatalf("missing required env var: %s", key)
	}
	return v
}
