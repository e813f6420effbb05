package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	hdf5adapter "github.com/couchcryptid/swath-rectifier/internal/adapter/hdf5"
	httpadapter "github.com/couchcryptid/swath-rectifier/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/swath-rectifier/internal/adapter/kafka"
	"github.com/couchcryptid/swath-rectifier/internal/config"
	"github.com/couchcryptid/swath-rectifier/internal/observability"
	"github.com/couchcryptid/swath-rectifier/internal/pipeline"
	"github.com/couchcryptid/swath-rectifier/internal/product"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	dispatcher := product.NewDispatcher(hdf5adapter.Opener, cfg.Engine.DispatcherOptions(), logger, metrics)
	logger.Info("rectifier configured",
		"output_dir", cfg.Engine.OutputDir,
		"isolate_runs", cfg.Engine.IsolateRuns,
		"compression", cfg.Engine.Compression,
		"overviews", cfg.Engine.Overviews,
		"unit_workers", cfg.Engine.UnitWorkers,
	)

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)
	transformer := pipeline.NewTransformer(dispatcher, cfg.Engine.OutputDir, cfg.Engine.IsolateRuns, logger)

	p := pipeline.New(reader, transformer, writer, logger, metrics, cfg.BatchSize)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start rectification pipeline.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("pipeline did not stop before shutdown timeout")
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}

	logger.Info("shutdown complete")
}
