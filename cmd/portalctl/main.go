// Command portalctl runs maintenance tasks against the RPT payment database.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/lgu-eportal/rptpay/internal/config"
	"github.com/lgu-eportal/rptpay/internal/database"
	"github.com/lgu-eportal/rptpay/internal/handlers"
	"github.com/lgu-eportal/rptpay/internal/logger"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "portalctl",
		Short:        "Maintenance commands for the RPT payment service",
		Version:      handlers.APIVersion,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// connect loads configuration and opens the database pool.
func connect(ctx context.Context) (*database.Database, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.New(cfg.Server.Env)
	db, err := database.NewPostgresPool(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, log, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, log, err := connect(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			applied, err := db.Migrate(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			log.Info("Migrations applied", map[string]interface{}{"applied": applied})
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Database is up to date")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
			}
			return nil
		},
	}
}
