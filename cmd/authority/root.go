package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/phantom-auth/authority/internal/config"
	"github.com/phantom-auth/authority/internal/obs"
)

var (
	version = "dev"
	commit  = "none"
)

var (
	cfg    *config.Config
	logger *zap.Logger
)

var rootFlags struct {
	logLevel string
	dbDriver string
	dbDSN    string
}

var rootCmd = &cobra.Command{
	Use:   "authority",
	Short: "Multi-tenant license and credential authority",
	Long: `authority issues and checks license-holder credentials for many
applications at once: hardware binding, deny-lists, sessions and an
operator API for managing it all.

Configuration is read from AUTHORITY_* environment variables; the flags
below override the matching variable.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		if rootFlags.logLevel != "" {
			loaded.LogLevel = rootFlags.logLevel
		}
		if rootFlags.dbDriver != "" {
			loaded.DBDriver = rootFlags.dbDriver
		}
		if rootFlags.dbDSN != "" {
			loaded.DBDSN = rootFlags.dbDSN
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
		cfg = loaded

		logger, err = obs.NewLogger(cfg.Log())
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		obs.SetLogger(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlags.logLevel, "log-level", "", "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&rootFlags.dbDriver, "db-driver", "", "storage driver (memory|pgx|sqlite)")
	rootCmd.PersistentFlags().StringVar(&rootFlags.dbDSN, "db-dsn", "", "database DSN")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
