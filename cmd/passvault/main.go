package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	codecadapter "github.com/ericfisherdev/passvault/internal/adapter/driven/codec"
	leveldbadapter "github.com/ericfisherdev/passvault/internal/adapter/driven/leveldb"
	metricsadapter "github.com/ericfisherdev/passvault/internal/adapter/driven/metrics"
	sqliteadapter "github.com/ericfisherdev/passvault/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/passvault/internal/adapter/driving/http"
	"github.com/ericfisherdev/passvault/internal/application"
	"github.com/ericfisherdev/passvault/internal/config"
	"github.com/ericfisherdev/passvault/internal/domain/port/driven"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on invalid values).
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"store_backend", cfg.StoreBackend,
		"db_path", cfg.DBPath,
		"owner_id", cfg.OwnerID,
		"codec", cfg.Codec,
		"storage_byte_cost", cfg.StorageByteCost,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode). The ledger always
	// lives here, even when state is kept in LevelDB.
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", db.Path())

	// 4. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	version, err := sqliteadapter.SchemaVersion(db.Writer)
	if err != nil {
		return err
	}
	slog.Info("migrations complete", "schema_version", version)

	// 5. Select the state backend.
	var kv driven.KVStore
	switch cfg.StoreBackend {
	case config.BackendLevelDB:
		store, err := leveldbadapter.Open(cfg.LevelDBPath)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := store.Close(); closeErr != nil {
				slog.Error("error closing leveldb", "error", closeErr)
			}
		}()
		kv = store
		slog.Info("leveldb opened", "path", cfg.LevelDBPath)
	default:
		kv = sqliteadapter.NewStateRepo(db)
	}

	c, err := codecadapter.New(cfg.Codec, cfg.Secret, cfg.OwnerID)
	if err != nil {
		return err
	}

	// 6. Metrics registry.
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := metricsadapter.NewPrometheus(reg)

	// 7. Refund dispatcher. Runs on a context that outlives the signal so
	// queued refunds are drained after the server stops accepting calls.
	ledger := sqliteadapter.NewLedgerRepo(db)
	dispatcherCtx, stopDispatcher := context.WithCancel(context.WithoutCancel(ctx))
	dispatcher := application.NewRefundDispatcher(ledger, logger, cfg.RefundQueue)
	go dispatcher.Start(dispatcherCtx)

	// 8. Account manager.
	accountant := application.NewStorageAccountant(cfg.ByteCost(), cfg.RefundFloorAmount())
	manager := application.NewAccountManager(cfg.OwnerID, kv, c, accountant, dispatcher, metrics, logger)
	if err := manager.Initialize(ctx); err != nil {
		stopDispatcher()
		return err
	}

	healthSvc := application.NewHealthService(kv, dispatcher)

	var limiter *httphandler.RateLimiter
	if cfg.RateLimit > 0 {
		limiter = httphandler.NewRateLimiter(cfg.RateLimit, cfg.RateBurst)
	}

	apiHandler := httphandler.NewHandler(manager, ledger, healthSvc, logger)
	handler := httphandler.NewServeMux(apiHandler, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), limiter, logger)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			stop()
		}
	}()

	slog.Info("passvault started",
		"listen_addr", cfg.ListenAddr,
		"store_backend", cfg.StoreBackend,
	)

	// 9. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 10. Graceful shutdown: stop accepting calls, then drain refunds.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	stopDispatcher()
	select {
	case <-dispatcher.Done():
	case <-shutdownCtx.Done():
		pending, _ := dispatcher.Backlog()
		slog.Error("refund queue not drained", "pending", pending)
	}

	slog.Info("shutdown complete")
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level()}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
