package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/FortiumPartners/devpulse/internal/models"
)

// PostgresStore persists rollups in a single upsert-keyed table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const rollupSchema = `
CREATE TABLE IF NOT EXISTS metric_rollups (
    tenant_id    TEXT        NOT NULL,
    metric_name  TEXT        NOT NULL,
    window_size  TEXT        NOT NULL,
    window_start TIMESTAMPTZ NOT NULL,
    count        BIGINT      NOT NULL,
    sum          DOUBLE PRECISION NOT NULL,
    min          DOUBLE PRECISION NOT NULL,
    max          DOUBLE PRECISION NOT NULL,
    p50          DOUBLE PRECISION,
    p95          DOUBLE PRECISION,
    p99          DOUBLE PRECISION,
    updated_at   TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (tenant_id, metric_name, window_size, window_start)
)`

// NewPostgresStore connects a rollup store and ensures its table exists.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if _, err := pool.Exec(ctx, rollupSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure rollup table: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// WriteRollup upserts a rollup row keyed by (tenant, metric, window, start).
func (s *PostgresStore) WriteRollup(ctx context.Context, r *models.Rollup) error {
	q := `INSERT INTO metric_rollups (
	        tenant_id, metric_name, window_size, window_start,
	        count, sum, min, max, p50, p95, p99, updated_at
	    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	    ON CONFLICT (tenant_id, metric_name, window_size, window_start)
	    DO UPDATE SET
	        count = EXCLUDED.count,
	        sum = EXCLUDED.sum,
	        min = EXCLUDED.min,
	        max = EXCLUDED.max,
	        p50 = EXCLUDED.p50,
	        p95 = EXCLUDED.p95,
	        p99 = EXCLUDED.p99,
	        updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, q,
		r.TenantID, r.MetricName, r.WindowSize, r.WindowStart,
		r.Count, r.Sum, r.Min, r.Max, r.P50, r.P95, r.P99, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("write rollup: %w", err)
	}
	return nil
}

// QueryRollups reads rollups for one (tenant, metric, window) over a range.
func (s *PostgresStore) QueryRollups(ctx context.Context, tenantID, metricName, windowSize string, from, to time.Time) ([]*models.Rollup, error) {
	q := `SELECT tenant_id, metric_name, window_size, window_start,
	             count, sum, min, max, p50, p95, p99, updated_at
	      FROM metric_rollups
	      WHERE tenant_id = $1 AND metric_name = $2 AND window_size = $3
	        AND window_start >= $4 AND window_start < $5
	      ORDER BY window_start`

	rows, err := s.pool.Query(ctx, q, tenantID, metricName, windowSize, from, to)
	if err != nil {
		return nil, fmt.Errorf("query rollups: %w", err)
	}
	defer rows.Close()

	var out []*models.Rollup
	for rows.Next() {
		r := &models.Rollup{}
		if err := rows.Scan(
			&r.TenantID, &r.MetricName, &r.WindowSize, &r.WindowStart,
			&r.Count, &r.Sum, &r.Min, &r.Max, &r.P50, &r.P95, &r.P99, &r.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan rollup: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rollups: %w", err)
	}
	return out, nil
}
