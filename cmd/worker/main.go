// Package main is the entry point for the PropTrust Temporal worker.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/proptrust/backend/internal/app"
	"github.com/proptrust/backend/internal/config"
	"github.com/proptrust/backend/internal/db"
	"github.com/proptrust/backend/internal/temporal"
)

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("PROPTRUST_ENV") == "development" {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting PropTrust verification worker")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := db.New(cfg.Database, logger)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		slog.Error("Failed to migrate database", "error", err)
		os.Exit(1)
	}

	engine, deps, err := app.BuildEngine(ctx, cfg, database, logger)
	if err != nil {
		slog.Error("Failed to build verification engine", "error", err)
		os.Exit(1)
	}
	defer deps.Close()

	temporalClient, err := temporal.NewClient(logger, temporal.ClientConfig{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		TaskQueue: cfg.Temporal.TaskQueue,
	})
	if err != nil {
		slog.Error("Failed to connect to Temporal", "error", err)
		os.Exit(1)
	}
	defer temporalClient.Close()

	w, err := temporal.StartWorker(logger, temporalClient,
		temporal.WorkerConfig{TaskQueue: cfg.Temporal.TaskQueue},
		temporal.NewActivities(engine),
	)
	if err != nil {
		slog.Error("Failed to start worker", "error", err)
		os.Exit(1)
	}
	defer w.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	slog.Info("Received shutdown signal", "signal", sig)
}
