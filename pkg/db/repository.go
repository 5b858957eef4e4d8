package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	repoLogPrefix    = "db:repository"
	defaultListLimit = 50
	maxListLimit     = 1000
)

// Repository provides database access for the journal.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// =========================================================================
// STATUS EVENTS
// =========================================================================

// InsertStatusEvent appends one status event.
func (r *Repository) InsertStatusEvent(ctx context.Context, params InsertStatusEventParams) (*StatusEventRow, error) {
	slog.Debug(fmt.Sprintf("%s - InsertStatusEvent level=%s key=%s", repoLogPrefix, params.Level, params.Key))

	occurred := params.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}

	row := r.pool.QueryRow(ctx,
		`INSERT INTO status_events (id, level, key, detail, source, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, level, key, detail, source, occurred_at, recorded_at`,
		uuid.NewString(), params.Level, params.Key, params.Detail, params.Source, occurred)

	var e StatusEventRow
	if err := row.Scan(&e.ID, &e.Level, &e.Key, &e.Detail, &e.Source, &e.OccurredAt, &e.RecordedAt); err != nil {
		return nil, fmt.Errorf("%s - insert status event failed: %w", repoLogPrefix, err)
	}
	return &e, nil
}

// ListStatusEvents returns the most recent status events, newest first.
func (r *Repository) ListStatusEvents(ctx context.Context, params ListStatusEventsParams) ([]StatusEventRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, level, key, detail, source, occurred_at, recorded_at
		 FROM status_events
		 WHERE ($1 = '' OR level = $1)
		 ORDER BY occurred_at DESC
		 LIMIT $2`, params.Level, clampLimit(params.Limit))
	if err != nil {
		return nil, fmt.Errorf("%s - list status events failed: %w", repoLogPrefix, err)
	}

	events, err := pgx.CollectRows(rows, pgx.RowToStructByPos[StatusEventRow])
	if err != nil {
		return nil, fmt.Errorf("%s - scan status events failed: %w", repoLogPrefix, err)
	}
	return events, nil
}

// CountStatusEvents returns journaled counts per level.
func (r *Repository) CountStatusEvents(ctx context.Context) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT level, count(*) FROM status_events GROUP BY level`)
	if err != nil {
		return nil, fmt.Errorf("%s - count status events failed: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	counts := map[string]int{"error": 0, "warn": 0, "info": 0}
	for rows.Next() {
		var level string
		var n int
		if err := rows.Scan(&level, &n); err != nil {
			return nil, fmt.Errorf("%s - scan count failed: %w", repoLogPrefix, err)
		}
		counts[level] = n
	}
	return counts, rows.Err()
}

// PruneStatusEvents deletes status events that occurred before cutoff.
func (r *Repository) PruneStatusEvents(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM status_events WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%s - prune status events failed: %w", repoLogPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Pruned %d status events older than %s", repoLogPrefix, tag.RowsAffected(), cutoff.Format(time.RFC3339)))
	return tag.RowsAffected(), nil
}

// =========================================================================
// SERVICE LIFECYCLE
// =========================================================================

// InsertLifecycle appends one registration or release.
func (r *Repository) InsertLifecycle(ctx context.Context, params InsertLifecycleParams) error {
	slog.Debug(fmt.Sprintf("%s - InsertLifecycle name=%s kind=%s", repoLogPrefix, params.Name, params.Kind))

	occurred := params.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO service_lifecycle (id, name, kind, service_type, version, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.NewString(), params.Name, params.Kind, params.ServiceType, params.Version, occurred)
	if err != nil {
		return fmt.Errorf("%s - insert lifecycle failed: %w", repoLogPrefix, err)
	}
	return nil
}

// ListLifecycle returns the most recent lifecycle rows, newest first.
func (r *Repository) ListLifecycle(ctx context.Context, params ListLifecycleParams) ([]LifecycleRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, kind, service_type, version, occurred_at
		 FROM service_lifecycle
		 WHERE ($1 = '' OR name = $1)
		 ORDER BY occurred_at DESC
		 LIMIT $2`, params.Name, clampLimit(params.Limit))
	if err != nil {
		return nil, fmt.Errorf("%s - list lifecycle failed: %w", repoLogPrefix, err)
	}

	out, err := pgx.CollectRows(rows, pgx.RowToStructByPos[LifecycleRow])
	if err != nil {
		return nil, fmt.Errorf("%s - scan lifecycle failed: %w", repoLogPrefix, err)
	}
	return out, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}
