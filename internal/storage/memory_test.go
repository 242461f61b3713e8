package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FortiumPartners/devpulse/internal/models"
)

func TestMemoryStore_WriteAndQuery(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		err := s.WriteRollup(ctx, &models.Rollup{
			TenantID:    "acme",
			MetricName:  "command.duration_ms",
			WindowSize:  "1m",
			WindowStart: base.Add(time.Duration(i) * time.Minute),
			Count:       int64(i + 1),
			Sum:         float64(100 * (i + 1)),
			Min:         1,
			Max:         99,
			UpdatedAt:   base,
		})
		require.NoError(t, err)
	}

	got, err := s.QueryRollups(ctx, "acme", "command.duration_ms", "1m", base, base.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 2, "range end is exclusive")
	assert.True(t, got[0].WindowStart.Before(got[1].WindowStart))
}

func TestMemoryStore_UpsertSameKey(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	r := &models.Rollup{
		TenantID: "acme", MetricName: "m", WindowSize: "5m",
		WindowStart: start, Count: 1, Sum: 10,
	}
	require.NoError(t, s.WriteRollup(ctx, r))

	r.Count = 7
	r.Sum = 70
	require.NoError(t, s.WriteRollup(ctx, r))
	assert.Equal(t, 1, s.Len())

	got, err := s.QueryRollups(ctx, "acme", "m", "5m", start.Add(-time.Minute), start.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(7), got[0].Count)
	assert.Equal(t, 70.0, got[0].Sum)
}

func TestMemoryStore_TenantIsolation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.WriteRollup(ctx, &models.Rollup{
		TenantID: "acme", MetricName: "m", WindowSize: "1m", WindowStart: start,
	}))
	require.NoError(t, s.WriteRollup(ctx, &models.Rollup{
		TenantID: "globex", MetricName: "m", WindowSize: "1m", WindowStart: start,
	}))

	got, err := s.QueryRollups(ctx, "acme", "m", "1m", start.Add(-time.Hour), start.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "acme", got[0].TenantID)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.WriteRollup(ctx, &models.Rollup{TenantID: "acme"})
	assert.Error(t, err)
}
