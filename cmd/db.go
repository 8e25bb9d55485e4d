package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun/migrate"

	"github.com/terraconstructs/gatekeeper/cmd/cmdutil"
	"github.com/terraconstructs/gatekeeper/internal/db/bunx"
	"github.com/terraconstructs/gatekeeper/internal/migrations"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database management commands",
	Long:  `Commands for managing database migrations and schema.`,
}

// migratorFunc runs against a migrator bound to the configured database.
type migratorFunc func(ctx context.Context, cmd *cobra.Command, m *migrate.Migrator) error

// withMigrator connects, optionally holds the migration lock, and runs fn.
func withMigrator(locked bool, fn migratorFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		db, err := cmdutil.OpenDB(cfg)
		if err != nil {
			return err
		}
		defer bunx.Close(db)

		ctx := cmd.Context()
		m := migrate.NewMigrator(db, migrations.Migrations)
		if locked {
			if err := m.Lock(ctx); err != nil {
				return fmt.Errorf("failed to acquire migration lock: %w", err)
			}
			defer func() {
				if err := m.Unlock(ctx); err != nil {
					logger.WithError(err).Warn("failed to release migration lock")
				}
			}()
		}
		return fn(ctx, cmd, m)
	}
}

var dbInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize migration tables",
	Long:  `Creates the migration tracking tables in the database. Run this once during initial setup.`,
	RunE: withMigrator(false, func(ctx context.Context, _ *cobra.Command, m *migrate.Migrator) error {
		if err := m.Init(ctx); err != nil {
			return fmt.Errorf("failed to initialize migrator: %w", err)
		}
		logger.Info("migration tables initialized")
		return nil
	}),
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Applies all pending migrations, including the seed of the built-in
permission catalog and the USER and ADMIN roles, under the migration lock.
Run 'db init' once beforehand.`,
	RunE: withMigrator(true, func(ctx context.Context, _ *cobra.Command, m *migrate.Migrator) error {
		group, err := m.Migrate(ctx)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		if group.IsZero() {
			logger.Info("no new migrations to apply")
			return nil
		}
		logger.WithField("group", group.ID).Info("applied migration group")
		return nil
	}),
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	RunE: withMigrator(false, func(ctx context.Context, cmd *cobra.Command, m *migrate.Migrator) error {
		ms, err := m.MigrationsWithStatus(ctx)
		if err != nil {
			return fmt.Errorf("failed to get migration status: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Migrations:")
		for _, mig := range ms {
			status := "pending"
			if mig.GroupID > 0 {
				status = fmt.Sprintf("applied (group %d)", mig.GroupID)
			}
			fmt.Fprintf(out, "  %s: %s\n", mig.Name, status)
		}
		return nil
	}),
}

var dbRollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Roll back the last migration group",
	RunE: withMigrator(true, func(ctx context.Context, _ *cobra.Command, m *migrate.Migrator) error {
		group, err := m.Rollback(ctx)
		if err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
		if group.IsZero() {
			logger.Info("no migrations to roll back")
			return nil
		}
		logger.WithField("group", group.ID).Info("rolled back migration group")
		return nil
	}),
}

var dbUnlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Force release the migration lock",
	Long:  `Use this if a migration crashed while holding the lock.`,
	RunE: withMigrator(false, func(ctx context.Context, _ *cobra.Command, m *migrate.Migrator) error {
		if err := m.Unlock(ctx); err != nil {
			return fmt.Errorf("failed to release migration lock: %w", err)
		}
		logger.Info("migration lock released")
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbInitCmd, dbMigrateCmd, dbStatusCmd, dbRollbackCmd, dbUnlockCmd)
}
