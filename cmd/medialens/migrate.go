package main

import (
	"fmt"

	"github.com/kiranshivaraju/medialens/internal/store"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, cleanup, err := setup()
		if err != nil {
			return err
		}
		defer cleanup()

		if err := store.RunMigrations(cfg.Database.URL); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("database migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
