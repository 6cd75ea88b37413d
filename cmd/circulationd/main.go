// circulationd is the circulation daemon: it serves the REST API, runs the
// scheduled overdue sweep and reservation-claim expiry, and exposes
// Prometheus metrics.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"

	"github.com/unilib/circulation-go/circulation"
	"github.com/unilib/circulation-go/circulation/postgresengine"
	"github.com/unilib/circulation-go/internal/config"
	"github.com/unilib/circulation-go/internal/httpapi"
	"github.com/unilib/circulation-go/internal/logging"
	"github.com/unilib/circulation-go/internal/metrics"
	"github.com/unilib/circulation-go/notify"
)

const (
	shutdownTimeout = 10 * time.Second
	jobTimeout      = 2 * time.Minute
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	cfg, cfgErr := config.Load()
	if cfgErr != nil {
		logging.NewDefaultAdapter(os.Stderr, "error").Error("invalid configuration", "error", cfgErr.Error())
		return cfgErr
	}

	logger := logging.NewDefaultAdapter(os.Stderr, cfg.LogLevel)
	collector := metrics.NewCollector()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notifier, notifierErr := buildNotifier(cfg, logger)
	if notifierErr != nil {
		logger.Error("failed to build notifier", "error", notifierErr.Error())
		return notifierErr
	}

	ledgerOptions := []postgresengine.Option{
		postgresengine.WithLogger(logger),
		postgresengine.WithMetricsCollector(collector),
		postgresengine.WithNotifier(notifier),
		postgresengine.WithClaimWindow(cfg.ClaimWindow),
	}

	ledger, closeDB, ledgerErr := buildLedger(ctx, cfg, ledgerOptions)
	if ledgerErr != nil {
		logger.Error("failed to create ledger", "error", ledgerErr.Error())
		return ledgerErr
	}
	defer closeDB()

	logger.Info("database connected", "adapter", string(cfg.Adapter))

	if schemaErr := ledger.InitSchema(ctx); schemaErr != nil {
		logger.Error("failed to initialize schema", "error", schemaErr.Error())
		return schemaErr
	}

	scheduler, schedulerErr := startScheduler(cfg, ledger, logger)
	if schedulerErr != nil {
		logger.Error("failed to start scheduler", "error", schedulerErr.Error())
		return schedulerErr
	}

	router := httpapi.NewAPI(ledger, logger, collector).Router()
	router.Handle("/metrics", collector.Handler())

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErrs := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		serverErrs <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case serveErr := <-serverErrs:
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("http server failed", "error", serveErr.Error())
			return serveErr
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	<-scheduler.Stop().Done()

	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error("http server shutdown failed", "error", shutdownErr.Error())
		return shutdownErr
	}

	logger.Info("shutdown complete")

	return nil
}

// buildLedger connects through the configured database adapter. All three
// adapters drive the same engine.
func buildLedger(ctx context.Context, cfg config.Config, options []postgresengine.Option) (*postgresengine.Ledger, func(), error) {
	switch cfg.Adapter {
	case config.AdapterSQLDB:
		db, openErr := cfg.OpenSQLDB(ctx)
		if openErr != nil {
			return nil, nil, openErr
		}

		ledger, ledgerErr := postgresengine.NewLedgerFromSQLDB(db, options...)
		if ledgerErr != nil {
			_ = db.Close()
			return nil, nil, ledgerErr
		}

		return ledger, func() { _ = db.Close() }, nil

	case config.AdapterSQLX:
		db, openErr := cfg.OpenSQLX(ctx)
		if openErr != nil {
			return nil, nil, openErr
		}

		ledger, ledgerErr := postgresengine.NewLedgerFromSQLX(db, options...)
		if ledgerErr != nil {
			_ = db.Close()
			return nil, nil, ledgerErr
		}

		return ledger, func() { _ = db.Close() }, nil

	default:
		poolCfg, poolCfgErr := cfg.PGXPoolConfig()
		if poolCfgErr != nil {
			return nil, nil, poolCfgErr
		}

		pool, poolErr := pgxpool.NewWithConfig(ctx, poolCfg)
		if poolErr != nil {
			return nil, nil, poolErr
		}

		ledger, ledgerErr := postgresengine.NewLedgerFromPGXPool(pool, options...)
		if ledgerErr != nil {
			pool.Close()
			return nil, nil, ledgerErr
		}

		return ledger, pool.Close, nil
	}
}

func buildNotifier(cfg config.Config, logger circulation.Logger) (circulation.Notifier, error) {
	if cfg.WebhookURL == "" {
		return notify.NewLogDispatcher(logger), nil
	}

	return notify.NewWebhookDispatcher(cfg.WebhookURL)
}

// startScheduler wires the periodic jobs. The ledger operations are
// idempotent, so overlapping or repeated runs are harmless.
func startScheduler(cfg config.Config, ledger *postgresengine.Ledger, logger circulation.Logger) (*cron.Cron, error) {
	scheduler := cron.New()

	if _, err := scheduler.AddFunc(cfg.SweepSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		if _, sweepErr := ledger.SweepOverdue(ctx); sweepErr != nil {
			logger.Error("overdue sweep failed", "error", sweepErr.Error())
		}
	}); err != nil {
		return nil, err
	}

	if _, err := scheduler.AddFunc(cfg.ExpirySchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		if _, expireErr := ledger.ExpireReservationClaims(ctx); expireErr != nil {
			logger.Error("claim expiry failed", "error", expireErr.Error())
		}
	}); err != nil {
		return nil, err
	}

	scheduler.Start()

	return scheduler, nil
}
