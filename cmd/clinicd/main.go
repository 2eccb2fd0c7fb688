package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vetle/clinicd/internal/api"
	"github.com/vetle/clinicd/internal/api/handler"
	"github.com/vetle/clinicd/internal/backup"
	"github.com/vetle/clinicd/internal/config"
	"github.com/vetle/clinicd/internal/db"
	"github.com/vetle/clinicd/internal/logging"
	"github.com/vetle/clinicd/internal/metrics"
	"github.com/vetle/clinicd/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := db.NewManager(logger, cfg)

	// The monitor does not exist yet when the hook must be registered, so
	// hand it over through a buffered channel once wiring is done.
	monReady := make(chan *storage.Monitor, 1)
	manager.OnFirstConnect(func() {
		mon := <-monReady
		mon.Start(cfg.MonitorInterval)
	})

	database, err := manager.Connect(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to mongodb")
	}
	defer manager.Disconnect(context.Background())

	if !manager.SuperAdminExists() {
		logger.Warn().Msg("no super-admin account exists in the users collection")
	}

	var policy *backup.ExportPolicy
	if cfg.ExportPolicyPath != "" {
		policy, err = backup.LoadPolicy(cfg.ExportPolicyPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to load export policy")
		}
		logger.Info().Str("file", cfg.ExportPolicyPath).Msg("export policy loaded")
	}

	history := backup.NewMongoHistoryStore(database)
	retain := backup.NewRetention(logger, cfg.BackupsDir, cfg.RetentionCount, history)
	uploader := backup.NewUploader(logger, cfg)
	runner := backup.NewRunner(
		logger,
		backup.RunnerConfig{BackupsDir: cfg.BackupsDir, TempDir: cfg.TempDir},
		backup.NewDatabase(database),
		backup.NewScope(policy),
		history,
		retain,
		uploader,
	)

	mon := storage.NewMonitor(
		logger,
		storage.Config{MaxBytes: cfg.StorageMaxBytes, Cooldown: cfg.CheckCooldown},
		manager.StorageStats,
		runner.RunAutomatic,
	)
	mon.AddListener(metrics.ObserveStorageStatus)
	monReady <- mon
	defer mon.Stop()

	srv := api.NewServer(
		logger,
		db.NewMongoSessionStore(manager),
		handler.NewBackup(logger, runner, history),
		handler.NewStorage(mon),
		manager,
	)

	httpServer := &http.Server{
		Addr:         cfg.HTTPListenAddr,
		Handler:      srv,
		ReadTimeout: 15 * time.Second,
		// Archive downloads from the trigger endpoint can run long.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPListenAddr).Msg("starting clinicd API server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
}
