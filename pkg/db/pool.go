// Package db provides the optional Postgres journal: connection pooling via
// pgx, migrations and the status/lifecycle repository.
package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const logPrefix = "db:pool"

// NewPool creates a new pgx connection pool from the given database URL.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	slog.Info(fmt.Sprintf("%s - Connecting to database", logPrefix))

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to parse database URL: %w", logPrefix, err)
	}

	// The journal is a single writer plus occasional reads.
	config.MaxConns = 4
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to create pool: %w", logPrefix, err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s - failed to ping database: %w", logPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Database connection established", logPrefix))
	return pool, nil
}

// RunMigrations applies migrations in order inside one transaction.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, migrations []Migration) error {
	slog.Info(fmt.Sprintf("%s - Running %d migrations", logPrefix, len(migrations)))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s - begin migration transaction: %w", logPrefix, err)
	}
	defer tx.Rollback(ctx)

	for _, m := range migrations {
		if _, err := tx.Exec(ctx, m.SQL); err != nil {
			return fmt.Errorf("%s - migration %s failed: %w", logPrefix, m.Name, err)
		}
		slog.Debug(fmt.Sprintf("%s - Applied %s", logPrefix, m.Name))
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s - commit migrations: %w", logPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Migrations complete", logPrefix))
	return nil
}

// journalTables are the tables created by the migrations, in migration order.
var journalTables = []string{"status_events", "service_lifecycle"}

// MigrationStatus reports whether the journal schema is present.
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool, migrationPath string) (string, error) {
	const statusLogPrefix = "db:MigrationStatus"

	var present int
	err := pool.QueryRow(ctx,
		`SELECT count(*) FROM information_schema.tables
		 WHERE table_schema = 'public' AND table_name = ANY($1)`, journalTables).Scan(&present)
	if err != nil {
		return "", fmt.Errorf("%s - failed to check schema: %w", statusLogPrefix, err)
	}

	files, err := LoadMigrations(migrationPath)
	if err != nil {
		return "", fmt.Errorf("%s - load migration list: %w", statusLogPrefix, err)
	}

	return describeMigrationStatus(present, len(files), migrationPath), nil
}

func describeMigrationStatus(tablesPresent, files int, migrationPath string) string {
	switch tablesPresent {
	case len(journalTables):
		return fmt.Sprintf("Migration status: applied (journal schema present, %d migration files in %s)", files, migrationPath)
	case 0:
		return fmt.Sprintf("Migration status: not applied (run 'mirrord migrate up'). %d migration files in %s", files, migrationPath)
	default:
		return fmt.Sprintf("Migration status: partial (%d of %d journal tables present, %d migration files in %s)", tablesPresent, len(journalTables), files, migrationPath)
	}
}
