package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/solatis/editcheck/internal/core/config"
	"github.com/solatis/editcheck/internal/core/db"
	"github.com/solatis/editcheck/internal/core/logging"
)

// Version is reported by the lookup server at startup.
const Version = "0.1.0"

var configFile string

var rootCmd = &cobra.Command{
	Use:   "editcheck",
	Short: "Validate regulatory loan filings against edit catalogs",
	Long: `editcheck compiles declarative edit rules and runs them across loan filings,
reporting syntactical, validity, quality, macro and special edit failures.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().String("db-url", "", "database connection URL (sqlite://path or postgres://...)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (json, text)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// setup loads configuration (flags > env > file > defaults) and builds the
// logger every subcommand uses.
func setup(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// openQueries opens the configured database and loads the named queries.
func openQueries(ctx context.Context, cfg *config.Config) (*sqlx.DB, *db.Queries, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil, fmt.Errorf("--db-url required")
	}
	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	queries, err := db.LoadQueries(conn)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to load queries: %w", err)
	}
	return conn, queries, nil
}
