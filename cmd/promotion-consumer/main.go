package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dvloznov/promotion-consumer/internal/config"
	"github.com/dvloznov/promotion-consumer/internal/logger"
)

var configPath string

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "promotion-consumer",
	Short: "Copy promotion transactions from BigQuery into PostgreSQL",
	Long: `Query the promotion transaction table for the configured date range, page
through the result and persist every new transaction with its lines and
promotion lines. Transactions already stored are skipped.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a config file (default ./config.yaml)")
	rootCmd.AddCommand(runCmd(), migrateCmd(), configCmd(), reportCmd())
}

func main() {
	// SIGTERM from the scheduler cancels the run; dispatched pages still drain.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the configuration and builds the logger it selects. The
// logger is attached to the returned context.
func loadConfig(ctx context.Context) (context.Context, *config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		log := logger.New(logger.Config{})
		log.Error().Err(err).Msg("Failed to load configuration")
		return ctx, nil, log, err
	}
	log := logger.New(cfg.Log)
	return logger.WithContext(ctx, log), cfg, log, nil
}
