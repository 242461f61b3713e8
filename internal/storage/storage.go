// Package storage persists flushed aggregation rollups for the query service.
package storage

import (
	"context"
	"time"

	"github.com/FortiumPartners/devpulse/internal/models"
)

// RollupStore is the durable sink for sealed aggregation buckets. Rollups are
// keyed (tenant_id, metric_name, window_size, window_start); writing the same
// key twice upserts, which keeps flush retries harmless.
type RollupStore interface {
	// WriteRollup durably stores one rollup. The context deadline bounds the
	// write; on timeout the flush is treated as a transient failure.
	WriteRollup(ctx context.Context, rollup *models.Rollup) error

	// QueryRollups returns rollups for a tenant and metric inside [from, to),
	// restricted to one window size, ordered by window start.
	QueryRollups(ctx context.Context, tenantID, metricName, windowSize string, from, to time.Time) ([]*models.Rollup, error)

	// Close releases any held resources.
	Close() error
}
