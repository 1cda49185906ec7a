package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/carecenter/dashboard/internal/config"
	"github.com/carecenter/dashboard/internal/platform/db"
	"github.com/carecenter/dashboard/migrations"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, _ := cmd.Flags().GetInt("to")
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator, schema string) error {
				fmt.Fprintf(cmd.OutOrStdout(), "Running migrations on schema: %s\n", schema)
				var (
					count int
					err   error
				)
				if target > 0 {
					count, err = m.UpTo(ctx, schema, target)
				} else {
					count, err = m.Up(ctx, schema)
				}
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().Int("to", 0, "Stop after this version (0 applies all)")
	cmd.AddCommand(upCmd)

	// migrate status
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator, schema string) error {
				statuses, err := m.Status(ctx, schema)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printStatus(cmd.OutOrStdout(), schema, statuses)
				return nil
			})
		},
	})

	cmd.PersistentFlags().String("schema", "", "Target schema (defaults to DB_SCHEMA)")
	return cmd
}

// withMigrator connects to DATABASE_URL and runs fn over the embedded
// migrations.
func withMigrator(cmd *cobra.Command, fn func(ctx context.Context, m *db.Migrator, schema string) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	schema, _ := cmd.Flags().GetString("schema")
	if schema == "" {
		schema = cfg.DBSchema
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, "", cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, db.NewMigrator(pool, migrations.FS), schema)
}

func printStatus(w io.Writer, schema string, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "Migration status for schema: %s\n", schema)
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}
