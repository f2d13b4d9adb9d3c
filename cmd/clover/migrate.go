package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/pkg/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `Migrate applies the SQL migrations in DB_MIGRATION_FOLDER_PATH. A
migration that leaves the schema dirty is rolled back to the previous version
when DB_MIGRATION_AUTO_ROLLBACK is set.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	logger, sync, err := newLogger(cfg.LogLevel, cfg.PrettyLogs)
	if err != nil {
		return err
	}
	defer sync()

	db, err := database.Connect(cmd.Context(), cfg.Database(), logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.NewMigrationService(logger, cfg.Migration()).MigratePostgres(db, cfg.DatabaseName); err != nil {
		return errors.Wrap(err, "migrate")
	}
	logger.Info("Migrations applied")
	return nil
}
