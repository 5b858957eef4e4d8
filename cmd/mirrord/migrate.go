package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/morezero/service-mirror/pkg/db"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the status journal schema",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Run database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrations, err := db.LoadMigrations(cfg.MigrationPath)
			if err != nil {
				return fmt.Errorf("load migrations: %w", err)
			}
			if err := db.RunMigrations(ctx, pool, migrations); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			status, err := db.MigrationStatus(ctx, pool, cfg.MigrationPath)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), status)
			return nil
		},
	})
	return cmd
}

func newEnsureDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ensure-db [name]",
		Short: "Create the journal database if missing",
		Long: `Create a database on the same host as DATABASE_URL. Without a name the
database named in DATABASE_URL is created.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.ValidateForDB(); err != nil {
				return err
			}
			target := cfg.DatabaseURL
			name := ""
			if len(args) == 1 {
				name = args[0]
				target, err = withDatabaseName(cfg.DatabaseURL, name)
				if err != nil {
					return err
				}
			}
			if err := db.EnsureDatabase(cmd.Context(), target); err != nil {
				return err
			}
			if name == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "Database is ready.")
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Database %q is ready.\n", name)
			}
			return nil
		},
	}
}

// withDatabaseName replaces the database in a postgres URL, keeping the query
// (e.g. sslmode).
func withDatabaseName(databaseURL, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("database name is required")
	}
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", fmt.Errorf("DATABASE_URL must be a postgres:// URL, got scheme %q", u.Scheme)
	}
	u.Path = "/" + name
	u.RawPath = ""
	return u.String(), nil
}
