package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/ehr/hl7bridge/internal/config"
	"github.com/ehr/hl7bridge/internal/platform/db"
	"github.com/ehr/hl7bridge/migrations"
)

// migrationsFS prefers an on-disk directory so operators can add files
// without rebuilding; otherwise the embedded set is used.
func migrationsFS(dir string) fs.FS {
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return os.DirFS(dir)
		}
	}
	return migrations.FS
}

// connect opens a pool for the admin commands, which all need Postgres.
func connect(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is required")
	}
	pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}

// targetSchemas resolves --tenant/--all to schema names.
func targetSchemas(ctx context.Context, cmd *cobra.Command, pool *pgxpool.Pool, cfg *config.Config) ([]string, error) {
	all, _ := cmd.Flags().GetBool("all")
	if all {
		tenants, err := db.ListTenants(ctx, pool)
		if err != nil {
			return nil, err
		}
		schemas := make([]string, 0, len(tenants))
		for _, t := range tenants {
			schemas = append(schemas, db.SchemaName(t))
		}
		return schemas, nil
	}

	tenant, _ := cmd.Flags().GetString("tenant")
	if tenant == "" {
		tenant = cfg.DefaultTenant
	}
	if !db.ValidTenantID(tenant) {
		return nil, fmt.Errorf("invalid tenant identifier: %s", tenant)
	}
	return []string{db.SchemaName(tenant)}, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			schemas, err := targetSchemas(ctx, cmd, pool, cfg)
			if err != nil {
				return err
			}

			migrator := db.NewMigrator(pool, migrationsFS(dir))
			out := cmd.OutOrStdout()
			for _, schema := range schemas {
				fmt.Fprintf(out, "Running migrations on schema: %s\n", schema)
				count, err := migrator.Up(ctx, schema)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(out, "Applied %d migration(s) successfully.\n", count)
			}
			return nil
		},
	}
	addTargetFlags(upCmd)
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			schemas, err := targetSchemas(ctx, cmd, pool, cfg)
			if err != nil {
				return err
			}

			migrator := db.NewMigrator(pool, migrationsFS(dir))
			for _, schema := range schemas {
				statuses, err := migrator.Status(ctx, schema)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printStatus(cmd.OutOrStdout(), schema, statuses)
			}
			return nil
		},
	}
	addTargetFlags(statusCmd)
	cmd.AddCommand(statusCmd)

	return cmd
}

func addTargetFlags(cmd *cobra.Command) {
	cmd.Flags().String("tenant", "", "Tenant whose schema is migrated (default DEFAULT_TENANT)")
	cmd.Flags().Bool("all", false, "Migrate every tenant schema")
	cmd.Flags().String("dir", "./migrations", "Migrations directory; the embedded set is used when it does not exist")
}

func printStatus(out io.Writer, schema string, statuses []db.MigrationStatus) {
	fmt.Fprintf(out, "Migration status for schema: %s\n", schema)
	fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(out, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant schema and apply every migration to it",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			dir, _ := cmd.Flags().GetString("dir")
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			ctx := context.Background()
			_, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "Creating tenant schema: %s\n", db.SchemaName(name))
			if err := db.CreateTenantSchema(ctx, pool, name, migrationsFS(dir)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Tenant created successfully.")
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Tenant identifier (alphanumeric)")
	createCmd.Flags().String("dir", "./migrations", "Migrations directory; the embedded set is used when it does not exist")
	cmd.AddCommand(createCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List tenants that have a schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			_, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			tenants, err := db.ListTenants(ctx, pool)
			if err != nil {
				return err
			}
			for _, t := range tenants {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			return nil
		},
	})

	return cmd
}
