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

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	googleadapter "github.com/ericfisherdev/quotapool/internal/adapter/driven/google"
	sqliteadapter "github.com/ericfisherdev/quotapool/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/quotapool/internal/adapter/driving/http"
	"github.com/ericfisherdev/quotapool/internal/application"
	"github.com/ericfisherdev/quotapool/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on missing required env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"keys", len(cfg.APIKeys),
		"daily_limit", cfg.DailyQuotaLimit,
		"warn_threshold", cfg.WarnThreshold,
		"emergency_threshold", cfg.EmergencyThreshold,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Wire the pool over its store and seed usage records.
	store := sqliteadapter.NewKeyUsageRepo(db)
	pool := application.NewKeyPool(store, cfg.APIKeys, application.Thresholds{
		DailyLimit: cfg.DailyQuotaLimit,
		Warn:       cfg.WarnThreshold,
		Emergency:  cfg.EmergencyThreshold,
	})
	if err := pool.Init(ctx); err != nil {
		return err
	}

	// 6. Wire the executor with the transport-boundary classifier and probe.
	executor := application.NewExecutor(pool, googleadapter.NewClassifier())
	probe := googleadapter.NewProbe(cfg.ProbeURL)

	// 7. Register the HTTP control surface.
	handler := httphandler.NewHandler(pool, executor, probe.Check, cfg.ProbeCost, slog.Default())
	mux := httphandler.NewServeMux(handler, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("quotapool started", "listen_addr", cfg.ListenAddr)

	// 8. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 9. Graceful shutdown with 10s timeout for HTTP server drain.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
