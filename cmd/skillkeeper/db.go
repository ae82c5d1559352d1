package main

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/makgunay/claude-swift-skills/pkg/db"
	"github.com/makgunay/claude-swift-skills/pkg/db/migrations"
	"github.com/makgunay/claude-swift-skills/pkg/presenter"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database management commands",
	Long:  `Commands for managing the knowledge base database (migrations, status, etc.)`,
}

func openRunner(cmd *cobra.Command) (*db.MigrationRunner, *sqlx.DB, error) {
	sqlDB, err := db.Open(cmd.Context(), cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	return db.NewMigrationRunner(sqlDB), sqlDB, nil
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database migration status",
	Long:  `Shows the current database migration status, including applied and pending migrations.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		runner, sqlDB, err := openRunner(cmd)
		if err != nil {
			return err
		}
		defer sqlDB.Close()

		applied, err := runner.GetAppliedVersions(cmd.Context())
		if err != nil {
			return errors.Wrap(err, "failed to get migration status")
		}
		appliedMap := make(map[int64]bool)
		for _, v := range applied {
			appliedMap[v] = true
		}

		all := migrations.All()

		fmt.Println("Database Migration Status")
		fmt.Println("=========================")
		fmt.Printf("Database: %s\n\n", cfg.DBPath)

		appliedCount := 0
		for _, m := range all {
			status := "[ ]"
			if appliedMap[m.Version] {
				status = "[✓]"
				appliedCount++
			}
			fmt.Printf("%s %d - %s\n", status, m.Version, m.Description)
		}

		fmt.Printf("\nApplied: %d/%d migrations\n", appliedCount, len(all))

		if err := db.VerifyConfiguration(sqlDB); err != nil {
			presenter.Warning(fmt.Sprintf("Database configuration: %v", err))
		} else {
			fmt.Println("Database configuration: ok")
		}
		return nil
	},
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		runner, sqlDB, err := openRunner(cmd)
		if err != nil {
			return err
		}
		defer sqlDB.Close()

		pending, err := runner.Pending(cmd.Context(), migrations.All())
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			presenter.Info("Database is up to date")
			return nil
		}
		if err := runner.Run(cmd.Context(), migrations.All()); err != nil {
			return err
		}
		presenter.Success(fmt.Sprintf("Applied %s", plural(len(pending), "migration")))
		return nil
	},
}

var dbRollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Rollback the last database migration",
	Long:  `Rolls back the most recently applied database migration.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		runner, sqlDB, err := openRunner(cmd)
		if err != nil {
			return err
		}
		defer sqlDB.Close()

		applied, err := runner.Applied(cmd.Context())
		if err != nil {
			return errors.Wrap(err, "failed to get migration status")
		}
		if len(applied) == 0 {
			presenter.Warning("No migrations to rollback")
			return nil
		}

		last := applied[len(applied)-1]
		if !rollbackYes {
			answer := presenter.Prompt(fmt.Sprintf("Roll back migration %d (%s)?", last.Version, last.Description), "y", "N")
			if !strings.EqualFold(answer, "y") {
				presenter.Info("Rollback cancelled")
				return nil
			}
		}
		presenter.Info(fmt.Sprintf("Rolling back migration %d: %s", last.Version, last.Description))

		if err := runner.Rollback(cmd.Context(), migrations.All()); err != nil {
			return errors.Wrap(err, "failed to rollback migration")
		}

		presenter.Success(fmt.Sprintf("Successfully rolled back migration %d", last.Version))
		return nil
	},
}

var rollbackYes bool

func init() {
	dbRollbackCmd.Flags().BoolVarP(&rollbackYes, "yes", "y", false, "Roll back without asking for confirmation")
	dbCmd.AddCommand(dbStatusCmd, dbMigrateCmd, dbRollbackCmd)
}
