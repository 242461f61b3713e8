package aggregator

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FortiumPartners/devpulse/internal/deadletter"
	"github.com/FortiumPartners/devpulse/internal/models"
	"github.com/FortiumPartners/devpulse/internal/storage"
)

func testConfig(windows ...time.Duration) Config {
	if len(windows) == 0 {
		windows = []time.Duration{time.Minute}
	}
	return Config{
		Windows:       windows,
		FlushInterval: time.Hour, // flush only on Stop
		MaxBuckets:    1000,
		Workers:       4,
		FlushTimeout:  time.Second,
		Retry:         RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 10 * time.Millisecond},
	}
}

type failingStore struct {
	mu    sync.Mutex
	calls int
}

func (s *failingStore) WriteRollup(context.Context, *models.Rollup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return errors.New("rollup storage unavailable")
}

func (s *failingStore) QueryRollups(context.Context, string, string, string, time.Time, time.Time) ([]*models.Rollup, error) {
	return nil, nil
}

func (s *failingStore) Close() error { return nil }

type capturingPublisher struct {
	mu       sync.Mutex
	payloads map[string][][]byte
}

func (p *capturingPublisher) Publish(_ context.Context, streamName, _ string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.payloads == nil {
		p.payloads = make(map[string][][]byte)
	}
	p.payloads[streamName] = append(p.payloads[streamName], data)
	return nil
}

func commandAt(tenant string, at time.Time, durationMS float64) *models.TelemetryRecord {
	rec := sampleRecord(tenant, durationMS)
	rec.ClientTime = at
	return rec
}

func TestAggregatorFlushesOnStop(t *testing.T) {
	store := storage.NewMemoryStore()
	agg := New(testConfig(), store, nil, nil, slog.Default())
	require.NoError(t, agg.Start(context.Background()))

	at := time.Date(2026, 3, 10, 14, 0, 10, 0, time.UTC)
	for _, v := range []float64{50, 400000, 0} {
		agg.Apply(commandAt("acme", at, v))
	}
	agg.Stop()

	rollups, err := store.QueryRollups(context.Background(), "acme", "command.duration_ms", "1m",
		at.Add(-time.Hour), at.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, rollups, 1)

	r := rollups[0]
	assert.Equal(t, int64(3), r.Count)
	assert.Equal(t, float64(400050), r.Sum)
	assert.Equal(t, float64(400000), r.Max)
	assert.Equal(t, float64(0), r.Min)
	assert.Equal(t, at.Truncate(time.Minute), r.WindowStart)
	assert.Equal(t, int64(0), agg.BucketCount())
}

func TestAggregatorCountsConcurrentUpdates(t *testing.T) {
	store := storage.NewMemoryStore()
	agg := New(testConfig(), store, nil, nil, slog.Default())
	require.NoError(t, agg.Start(context.Background()))

	at := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	const producers = 8
	const perProducer = 50

	var wg sync.WaitGroup
	var wantSum atomic.Int64
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for j := 0; j < perProducer; j++ {
				v := int64(1 + rng.Intn(1000))
				wantSum.Add(v)
				agg.Apply(commandAt("acme", at, float64(v)))
			}
		}(int64(i))
	}
	wg.Wait()
	agg.Stop()

	rollups, err := store.QueryRollups(context.Background(), "acme", "command.duration_ms", "1m",
		at.Add(-time.Hour), at.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, rollups, 1)
	assert.Equal(t, int64(producers*perProducer), rollups[0].Count)
	assert.Equal(t, float64(wantSum.Load()), rollups[0].Sum)
}

func TestAggregatorFansOutAllWindows(t *testing.T) {
	store := storage.NewMemoryStore()
	agg := New(testConfig(time.Minute, time.Hour), store, nil, nil, slog.Default())
	require.NoError(t, agg.Start(context.Background()))

	at := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	agg.Apply(commandAt("acme", at, 25))
	agg.Stop()

	for _, size := range []string{"1m", "1h"} {
		rollups, err := store.QueryRollups(context.Background(), "acme", "command.duration_ms", size,
			at.Add(-25*time.Hour), at.Add(time.Hour))
		require.NoError(t, err)
		require.Len(t, rollups, 1, "window %s", size)
		assert.Equal(t, int64(1), rollups[0].Count)
	}
}

func TestAggregatorDeadLettersExhaustedFlush(t *testing.T) {
	store := &failingStore{}
	dlq := deadletter.NewHandler(deadletter.NewStore(100), nil, nil, 5, slog.Default())
	agg := New(testConfig(), store, dlq, nil, slog.Default())
	require.NoError(t, agg.Start(context.Background()))

	at := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	first := commandAt("acme", at, 50)
	second := commandAt("acme", at, 75)
	agg.Apply(first)
	agg.Apply(second)
	agg.Stop()

	store.mu.Lock()
	assert.Equal(t, 3, store.calls)
	store.mu.Unlock()

	entries := dlq.Store().List(10)
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, "flush-failed", entry.Reason)
	assert.Equal(t, 3, entry.RetryCount)
	require.Len(t, entry.Records, 2)
	assert.Equal(t, first.ID, entry.Records[0].ID)
	assert.Equal(t, second.ID, entry.Records[1].ID)
	assert.Equal(t, int64(0), agg.BucketCount())
}

func TestAggregatorPublishesRollups(t *testing.T) {
	store := storage.NewMemoryStore()
	pub := &capturingPublisher{}
	agg := New(testConfig(), store, nil, pub, slog.Default())
	require.NoError(t, agg.Start(context.Background()))

	at := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	agg.Apply(commandAt("acme", at, 120))
	agg.Stop()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.payloads["TELEMETRY_AGGREGATED"], 1)
	assert.Contains(t, string(pub.payloads["TELEMETRY_AGGREGATED"][0]), `"metric_name":"command.duration_ms"`)
}

func TestAggregatorEvictsUnderMemoryPressure(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 1
	cfg.MaxBuckets = 2

	store := storage.NewMemoryStore()
	agg := New(cfg, store, nil, nil, slog.Default())
	require.NoError(t, agg.Start(context.Background()))

	// Distinct window starts so each record opens a fresh bucket.
	base := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		agg.Apply(commandAt("acme", base.Add(time.Duration(i)*time.Minute), 10))
	}
	agg.Stop()

	assert.LessOrEqual(t, agg.BucketCount(), int64(0))

	rollups, err := store.QueryRollups(context.Background(), "acme", "command.duration_ms", "1m",
		base.Add(-time.Hour), base.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, rollups, 5)
}

func TestExtractSamples(t *testing.T) {
	agent := &models.TelemetryRecord{
		Kind: models.KindAgentInteraction,
		Fields: map[string]any{
			"input_tokens":  float64(120),
			"output_tokens": float64(380),
			"duration_ms":   float64(900),
		},
	}
	samples := ExtractSamples(agent)
	require.Len(t, samples, 2)
	assert.Equal(t, Sample{Metric: "agent.total_tokens", Value: 500}, samples[0])
	assert.Equal(t, Sample{Metric: "agent.duration_ms", Value: 900}, samples[1])

	prod := &models.TelemetryRecord{
		Kind: models.KindProductivityMetric,
		Fields: map[string]any{
			"metric_name": "focus_minutes",
			"value":       float64(42),
		},
	}
	samples = ExtractSamples(prod)
	require.Len(t, samples, 1)
	assert.Equal(t, "focus_minutes", samples[0].Metric)

	assert.Empty(t, ExtractSamples(&models.TelemetryRecord{Kind: models.KindSession, Fields: map[string]any{}}))
}
