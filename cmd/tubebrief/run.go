package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/FranksOps/tubebrief/internal/pipeline"
	"github.com/FranksOps/tubebrief/internal/storage"
	"github.com/spf13/cobra"
)

var (
	runMaxResults  int
	runAcquireOnly bool
)

var runCmd = &cobra.Command{
	Use:   "run <keyword>",
	Short: "Run the pipeline once and print the result",
	Long: `Run the pipeline once for keyword and print the JSON result to stdout.
A failed stage is reported on stderr and the command exits non-zero.`,
	Args: cobra.ExactArgs(1),
	RunE: runOnce,
}

func init() {
	runCmd.Flags().IntVarP(&runMaxResults, "max-results", "n", pipeline.DefaultMaxResults, "maximum number of videos to fetch")
	runCmd.Flags().BoolVar(&runAcquireOnly, "acquire-only", false, "print scraper output without summarizing")
}

func runOnce(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.Default()

	req, err := pipeline.NewRequest(args[0], runMaxResults)
	if err != nil {
		return err
	}

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
	}

	mode := pipeline.ModePipeline
	start := time.Now()

	var (
		out     any
		records int
		serr    *pipeline.StageError
	)
	if runAcquireOnly {
		mode = pipeline.ModeAcquire
		acq := orchestrator.Acquire(ctx, req)
		out, records, serr = acq.Records, acq.Count, acq.Err
	} else {
		outcome := orchestrator.Execute(ctx, req)
		out, records, serr = outcome.Result, outcome.Records, outcome.Err
	}

	if history != nil {
		rec := storage.NewRunRecord(req.Keyword, req.MaxResults, mode)
		rec.Records = records
		rec.Duration = time.Since(start)
		rec.Success = serr == nil
		if serr != nil {
			rec.Stage = string(serr.Stage)
			rec.Error = serr.Error()
		}
		if err := history.Save(context.WithoutCancel(ctx), rec); err != nil {
			logger.Warn("failed to record run", "keyword", req.Keyword, "err", err)
		}
	}

	if serr != nil {
		return fmt.Errorf("%s failed: %w", serr.Stage, serr)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
