package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/therealutkarshpriyadarshi/dagsched/internal/config"
	"github.com/therealutkarshpriyadarshi/dagsched/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the postgres schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all available database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := postgresConfig()
		if err != nil {
			return err
		}
		if err := storage.RunMigrations(&cfg.DB, cfg.Store.MigrationsPath); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Applied migrations successfully.")
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Revert the last database migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := postgresConfig()
		if err != nil {
			return err
		}
		if err := storage.RollbackMigrations(&cfg.DB, cfg.Store.MigrationsPath); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Reverted last migration successfully.")
		return nil
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current migration version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := postgresConfig()
		if err != nil {
			return err
		}
		version, dirty, err := storage.MigrationVersion(&cfg.DB, cfg.Store.MigrationsPath)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
		return nil
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
}

// postgresConfig loads the configuration and rejects stores without migrations.
// The mysql and sqlite stores create their table on open
func postgresConfig() (*config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Store.Driver != "postgres" {
		return nil, fmt.Errorf("migrations apply to the postgres store only, store.driver is %q", cfg.Store.Driver)
	}
	return cfg, nil
}
