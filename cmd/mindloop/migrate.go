package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aiox-platform/mindloop/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending memory archive migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ver, err := database.RunMigrations(cfg.DB.DSN(), cfg.DB.MigrationsPath)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "archive schema at version %d\n", ver)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
