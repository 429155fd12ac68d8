package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/FranksOps/tubebrief/internal/acquire"
	"github.com/FranksOps/tubebrief/internal/config"
	"github.com/FranksOps/tubebrief/internal/pipeline"
	"github.com/FranksOps/tubebrief/internal/storage"
	"github.com/FranksOps/tubebrief/internal/storage/csvbackend"
	"github.com/FranksOps/tubebrief/internal/storage/jsonbackend"
	"github.com/FranksOps/tubebrief/internal/storage/postgres"
	"github.com/FranksOps/tubebrief/internal/storage/sqlite"
	"github.com/FranksOps/tubebrief/internal/summarize"
)

func newLogger(c *config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := c.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// openHistory returns nil when run history is disabled.
func openHistory(ctx context.Context, c *config.Config) (storage.Backend, error) {
	switch strings.ToLower(c.StorageBackend) {
	case config.StorageNone:
		return nil, nil
	case config.StorageSQLite:
		return sqlite.New(c.StorageDSN)
	case config.StoragePostgres:
		return postgres.New(ctx, c.StorageDSN)
	case config.StorageJSON:
		return jsonbackend.New(c.StorageDSN)
	case config.StorageCSV:
		return csvbackend.New(c.StorageDSN)
	default:
		return nil, fmt.Errorf("%w: STORAGE_BACKEND=%s", config.ErrInvalid, c.StorageBackend)
	}
}

func newOrchestrator(ctx context.Context, c *config.Config, logger *slog.Logger) (*pipeline.Orchestrator, error) {
	acfg, err := c.AcquireConfig()
	if err != nil {
		return nil, err
	}
	runner, err := acquire.NewRunner(acfg, logger.With("component", "acquire"))
	if err != nil {
		return nil, err
	}

	scfg, err := c.SummarizerConfig()
	if err != nil {
		return nil, err
	}
	summarizer, err := summarize.New(ctx, scfg, logger.With("component", "summarize"))
	if err != nil {
		return nil, err
	}

	return pipeline.New(runner, summarizer)
}
