package main

import (
	"errors"
	"time"

	"github.com/FranksOps/tubebrief/internal/report"
	"github.com/FranksOps/tubebrief/internal/storage"
	"github.com/spf13/cobra"
)

var (
	reportFormat  string
	reportKeyword string
	reportSince   time.Duration
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize recorded runs",
	Long: `Summarize the runs recorded in the configured STORAGE_BACKEND.

Examples:
  tubebrief report                       # text summary of every run
  tubebrief report --since 24h           # last day only
  tubebrief report --format html > r.html`,
	Args: cobra.NoArgs,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportFormat, "format", "text", "Output format: text, json, html")
	reportCmd.Flags().StringVar(&reportKeyword, "keyword", "", "only runs for this keyword")
	reportCmd.Flags().DurationVar(&reportSince, "since", 0, "only runs newer than this (e.g. 24h)")
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	history, err := openHistory(ctx, cfg)
	if err != nil {
		return err
	}
	if history == nil {
		return errors.New("run history is disabled: set STORAGE_BACKEND and STORAGE_DSN")
	}
	defer history.Close()

	filter := storage.Filter{Keyword: reportKeyword}
	if reportSince > 0 {
		since := time.Now().Add(-reportSince)
		filter.Since = &since
	}

	runs, err := history.Query(ctx, filter)
	if err != nil {
		return err
	}

	return report.Write(cmd.OutOrStdout(), reportFormat, report.GenerateSummary(runs))
}
