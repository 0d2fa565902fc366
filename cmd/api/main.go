// Package main is the entry point for the PropTrust API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/proptrust/backend/internal/api"
	"github.com/proptrust/backend/internal/app"
	"github.com/proptrust/backend/internal/config"
	"github.com/proptrust/backend/internal/db"
	"github.com/proptrust/backend/internal/verification"
)

const version = "0.1.0"

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("PROPTRUST_ENV") == "development" {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting PropTrust API Server", "version", version)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("Configuration loaded", "env", cfg.Env, "ledger_backend", cfg.Ledger.Backend)

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

	apiServer := api.NewServer(api.Deps{
		Orchestrator:   engine,
		Tamper:         verification.NewTamperChecker(engine),
		Ledger:         deps.Ledger,
		Properties:     deps.Properties,
		Verifications:  deps.Verifications,
		Tampers:        deps.Tampers,
		Audits:         deps.Audits,
		Logger:         logger,
		RateLimitRPS:   cfg.Server.RateLimitRPS,
		RateLimitBurst: cfg.Server.RateLimitBurst,
	})
	defer apiServer.Close()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      apiServer.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		slog.Info("Received shutdown signal", "signal", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}
		cancel()
	}()

	slog.Info("HTTP server starting", "port", cfg.Server.HTTPPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("HTTP server error", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	slog.Info("PropTrust API Server shutdown complete")
}
