package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/FortiumPartners/devpulse/internal/models"
)

// MemoryStore is an in-memory RollupStore for tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	rollups map[string]*models.Rollup
}

// NewMemoryStore creates an empty in-memory rollup store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rollups: make(map[string]*models.Rollup)}
}

func rollupKey(tenantID, metricName, windowSize string, windowStart time.Time) string {
	return tenantID + "|" + metricName + "|" + windowSize + "|" + windowStart.UTC().Format(time.RFC3339)
}

// WriteRollup upserts a rollup, honoring the context deadline like a real
// durable write would.
func (s *MemoryStore) WriteRollup(ctx context.Context, r *models.Rollup) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := *r
	s.mu.Lock()
	s.rollups[rollupKey(r.TenantID, r.MetricName, r.WindowSize, r.WindowStart)] = &cp
	s.mu.Unlock()
	return nil
}

// QueryRollups returns matching rollups ordered by window start.
func (s *MemoryStore) QueryRollups(ctx context.Context, tenantID, metricName, windowSize string, from, to time.Time) ([]*models.Rollup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Rollup
	for _, r := range s.rollups {
		if r.TenantID != tenantID || r.MetricName != metricName || r.WindowSize != windowSize {
			continue
		}
		if r.WindowStart.Before(from) || !r.WindowStart.Before(to) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].WindowStart.Before(out[j].WindowStart)
	})
	return out, nil
}

// Close implements RollupStore.
func (s *MemoryStore) Close() error { return nil }

// Len returns the number of stored rollups.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rollups)
}
