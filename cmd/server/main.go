// Package main provides the entry point for the AutoCrop vertical API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/autocrop/vertical-api/internal/bootstrap"
	"github.com/autocrop/vertical-api/internal/config"
	"github.com/autocrop/vertical-api/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Create structured logger
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting autocrop vertical API",
		slog.Int("port", cfg.Port),
		slog.String("log_format", cfg.LogFormat),
		slog.String("log_level", cfg.LogLevel),
		slog.String("upload_dir", cfg.UploadDir),
		slog.String("output_dir", cfg.OutputDir),
		slog.Int("workers", cfg.WorkerCount),
		slog.Int("queue_size", cfg.QueueSize),
		slog.String("detector", cfg.DetectorBackend),
		slog.Bool("redis_enabled", cfg.RedisEnabled()),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
	)

	// Initialize dependencies using bootstrap
	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	// Launch the worker pool. Cancelling workerCtx aborts in-flight
	// jobs; Close drains them gracefully.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	deps.JobService.Start(workerCtx)

	// Initialize HTTP handlers and router
	handlers := server.NewHandlers(deps.JobService, deps.Store, logger,
		server.WithMaxUploadBytes(cfg.MaxUploadBytes()),
	)
	router := server.NewRouter(handlers, logger, server.DefaultConfig())

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Minute, // Large uploads arrive on this path
		WriteTimeout: 15 * time.Minute, // Video downloads stream on it
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			slog.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-shutdownCh:
		logger.Info("received shutdown signal",
			slog.String("signal", sig.String()),
		)
	case err := <-errCh:
		return err
	}

	// Stop intake first so no new jobs land mid-drain.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("shutting down server...")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	// A second signal aborts in-flight work instead of waiting it out.
	go func() {
		<-shutdownCh
		logger.Warn("second shutdown signal, aborting in-flight jobs")
		workerCancel()
	}()

	logger.Info("draining job queue...")
	if err := deps.JobService.Close(); err != nil {
		logger.Error("worker pool shutdown failed", slog.Any("error", err))
	}
	if err := deps.Close(); err != nil {
		logger.Error("closing dependencies failed", slog.Any("error", err))
	}

	logger.Info("server stopped gracefully")
	return nil
}
