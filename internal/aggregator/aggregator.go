// Package aggregator maintains in-memory windowed aggregation buckets over
// the processed telemetry flow and flushes sealed windows to durable rollup
// storage.
package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/FortiumPartners/devpulse/common/messaging"
	"github.com/FortiumPartners/devpulse/internal/deadletter"
	"github.com/FortiumPartners/devpulse/internal/models"
	"github.com/FortiumPartners/devpulse/internal/storage"
)

// StreamPublisher publishes to a named telemetry stream partition.
type StreamPublisher interface {
	Publish(ctx context.Context, streamName, key string, data []byte) error
}

// Config controls window shape, worker parallelism, and flush behavior.
type Config struct {
	Windows       []time.Duration
	FlushInterval time.Duration
	MaxBuckets    int
	Workers       int
	FlushTimeout  time.Duration
	Retry         RetryPolicy
}

// DefaultConfig returns the standard window set and flush cadence.
func DefaultConfig() Config {
	return Config{
		Windows:       []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute, time.Hour, 24 * time.Hour},
		FlushInterval: 30 * time.Second,
		MaxBuckets:    100000,
		Workers:       8,
		FlushTimeout:  10 * time.Second,
		Retry:         DefaultRetryPolicy(),
	}
}

func (c *Config) normalize() {
	if len(c.Windows) == 0 {
		c.Windows = DefaultConfig().Windows
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 30 * time.Second
	}
	if c.MaxBuckets <= 0 {
		c.MaxBuckets = 100000
	}
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = 10 * time.Second
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry = DefaultRetryPolicy()
	}
}

// Aggregator shards the bucket space across a fixed worker pool. Records for
// one (tenant, metric) series always land on the same worker, so per-series
// updates are applied in arrival order without coordination.
type Aggregator struct {
	cfg    Config
	store  storage.RollupStore
	dlq    *deadletter.Handler
	pub    StreamPublisher
	logger *slog.Logger
	now    func() time.Time

	workers []*worker

	// bucketCount is the global memory-pressure signal shared by all
	// workers; each worker only ever evicts its own buckets.
	bucketCount atomic.Int64

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
	wg      sync.WaitGroup
}

// New builds an aggregator. pub and dlq may be nil in reduced deployments;
// flushing then skips stream publication and dead-lettering respectively.
func New(cfg Config, store storage.RollupStore, dlq *deadletter.Handler, pub StreamPublisher, logger *slog.Logger) *Aggregator {
	cfg.normalize()
	if logger == nil {
		logger = slog.Default()
	}

	a := &Aggregator{
		cfg:    cfg,
		store:  store,
		dlq:    dlq,
		pub:    pub,
		logger: logger,
		now:    time.Now,
	}
	a.workers = make([]*worker, cfg.Workers)
	for i := range a.workers {
		a.workers[i] = newWorker(i, a)
	}
	return a
}

// Start launches the worker pool.
func (a *Aggregator) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return fmt.Errorf("aggregator already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.started = true

	for _, w := range a.workers {
		a.wg.Add(1)
		go w.run(runCtx)
	}
	a.logger.Info("aggregator started",
		slog.Int("workers", a.cfg.Workers),
		slog.Int("windows", len(a.cfg.Windows)))
	return nil
}

// Stop shuts the pool down. Each worker drains its queue, seals every open
// bucket, and runs a final flush before exiting.
//
// Producers must be quiesced first: a goroutine still blocked in Apply on a
// full worker channel after the workers exit would block forever. The
// collector guarantees this by stopping the HTTP server and the raw-stream
// consumer before calling Stop.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return
	}
	a.cancel()
	a.started = false
	a.mu.Unlock()

	a.wg.Wait()
	a.logger.Info("aggregator stopped")
}

// Apply extracts the record's metric samples and routes each to the worker
// owning its series. Apply blocks when a worker queue is full, which
// backpressures the consumer instead of dropping samples.
func (a *Aggregator) Apply(rec *models.TelemetryRecord) {
	at := rec.ClientTime
	if at.IsZero() {
		at = rec.ReceivedAt
	}

	for _, s := range ExtractSamples(rec) {
		series := rec.TenantID + "|" + s.Metric
		w := a.workers[messaging.PartitionFor(series, len(a.workers))]
		w.in <- update{rec: rec, metric: s.Metric, value: s.Value, at: at}
	}
}

// BucketCount reports how many buckets are currently held across all
// workers.
func (a *Aggregator) BucketCount() int64 {
	return a.bucketCount.Load()
}
