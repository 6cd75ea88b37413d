// Package config loads daemon configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	envDatabaseURL    = "CIRCULATION_DATABASE_URL"
	envHTTPAddr       = "CIRCULATION_HTTP_ADDR"
	envLogLevel       = "CIRCULATION_LOG_LEVEL"
	envPoolMaxConns   = "CIRCULATION_POOL_MAX_CONNS"
	envSweepSchedule  = "CIRCULATION_SWEEP_SCHEDULE"
	envExpirySchedule = "CIRCULATION_EXPIRY_SCHEDULE"
	envClaimWindow    = "CIRCULATION_CLAIM_WINDOW"
	envWebhookURL     = "CIRCULATION_NOTIFY_WEBHOOK_URL"
	envDBAdapter      = "CIRCULATION_DB_ADAPTER"

	defaultHTTPAddr     = ":8080"
	defaultLogLevel     = "info"
	defaultPoolMaxConns = 10

	// every 15 minutes, on the hour pattern used by the circulation desk
	defaultSweepSchedule  = "*/15 * * * *"
	defaultExpirySchedule = "*/15 * * * *"

	defaultClaimWindow = 48 * time.Hour
)

// ErrMissingDatabaseURL is returned when the database URL is not set.
var ErrMissingDatabaseURL = errors.New(envDatabaseURL + " must be set")

// Config holds everything the daemon needs to start.
type Config struct {
	DatabaseURL    string
	HTTPAddr       string
	LogLevel       string
	PoolMaxConns   int32
	SweepSchedule  string
	ExpirySchedule string
	ClaimWindow    time.Duration
	WebhookURL     string
	Adapter        DBAdapter
}

// Load reads the configuration from the environment, applying defaults for
// everything except the database URL.
func Load() (Config, error) {
	cfg := Config{
		DatabaseURL:    os.Getenv(envDatabaseURL),
		HTTPAddr:       getenvOr(envHTTPAddr, defaultHTTPAddr),
		LogLevel:       getenvOr(envLogLevel, defaultLogLevel),
		PoolMaxConns:   defaultPoolMaxConns,
		SweepSchedule:  getenvOr(envSweepSchedule, defaultSweepSchedule),
		ExpirySchedule: getenvOr(envExpirySchedule, defaultExpirySchedule),
		ClaimWindow:    defaultClaimWindow,
		WebhookURL:     os.Getenv(envWebhookURL),
		Adapter:        DBAdapter(getenvOr(envDBAdapter, string(AdapterPGX))),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, ErrMissingDatabaseURL
	}

	switch cfg.Adapter {
	case AdapterPGX, AdapterSQLDB, AdapterSQLX:
	default:
		return Config{}, fmt.Errorf("invalid %s: %q", envDBAdapter, cfg.Adapter)
	}

	if raw := os.Getenv(envPoolMaxConns); raw != "" {
		parsed, parseErr := strconv.ParseInt(raw, 10, 32)
		if parseErr != nil || parsed < 1 {
			return Config{}, fmt.Errorf("invalid %s: %q", envPoolMaxConns, raw)
		}

		cfg.PoolMaxConns = int32(parsed)
	}

	if raw := os.Getenv(envClaimWindow); raw != "" {
		parsed, parseErr := time.ParseDuration(raw)
		if parseErr != nil || parsed <= 0 {
			return Config{}, fmt.Errorf("invalid %s: %q", envClaimWindow, raw)
		}

		cfg.ClaimWindow = parsed
	}

	return cfg, nil
}

// PGXPoolConfig builds the pgx pool configuration for the daemon.
func (c Config) PGXPoolConfig() (*pgxpool.Config, error) {
	poolCfg, parseErr := pgxpool.ParseConfig(c.DatabaseURL)
	if parseErr != nil {
		return nil, parseErr
	}

	poolCfg.MaxConns = c.PoolMaxConns

	return poolCfg, nil
}

func getenvOr(key string, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return fallback
}
