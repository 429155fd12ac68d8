package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/FranksOps/tubebrief/internal/config"
	"github.com/spf13/cobra"
)

var (
	envFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "tubebrief",
	Short: "Search YouTube for a keyword and summarize the results",
	Long: `tubebrief runs an external scraper for a keyword and sends the records
it returns to an AI summarization service.

Examples:
  tubebrief serve                      # Start the HTTP API on $PORT
  tubebrief run cats --max-results 3   # One-shot pipeline, JSON on stdout
  tubebrief run cats --acquire-only    # Scraper output only
  tubebrief report --format text       # Summarize recorded runs`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(config.Options{
			EnvFile:        envFile,
			RequireEnvFile: cmd.Flags().Changed("env-file"),
		})
		if err != nil {
			return err
		}
		cfg = loaded

		logger, err := newLogger(cfg, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", config.DefaultEnvFile, "dotenv file merged beneath the process environment")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(reportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
