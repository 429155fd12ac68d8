package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/FranksOps/tubebrief/internal/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API on $PORT (default 3000).

Routes:
  POST /youtube            full pipeline: {"keyword": "...", "maxResults": 10}
  POST /api/scrape         scraper output only
  GET  /api/runs           recorded runs (needs STORAGE_BACKEND)
  GET  /api/runs/summary   aggregated run report
  GET  /healthz            liveness
  GET  /metrics            Prometheus metrics`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.Default()

	orchestrator, err := newOrchestrator(ctx, cfg, logger)
	if err != nil {
		return err
	}

	history, err := openHistory(ctx, cfg)
	if err != nil {
		return err
	}
	if history != nil {
		defer history.Close()
		logger.Info("run history enabled", "backend", cfg.StorageBackend)
	}

	srv := server.New(orchestrator, server.Options{
		History: history,
		Logger:  logger.With("component", "server"),
	})
	if err := srv.Start(cfg.Addr()); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("shutting down", "timeout", cfg.ShutdownTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
