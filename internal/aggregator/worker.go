package aggregator

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"github.com/FortiumPartners/devpulse/common/logging"
	"github.com/FortiumPartners/devpulse/internal/metrics"
	"github.com/FortiumPartners/devpulse/internal/models"
	"github.com/FortiumPartners/devpulse/internal/streams"
)

// update is one extracted sample routed to a worker. The worker fans it out
// to every configured window of the sample's series.
type update struct {
	rec    *models.TelemetryRecord
	metric string
	value  float64
	at     time.Time
}

// worker owns a disjoint shard of the bucket space. All mutation of its
// buckets happens on its own goroutine, so buckets need no locking and
// updates for one series are applied in arrival order.
type worker struct {
	idx     int
	agg     *Aggregator
	in      chan update
	buckets map[string]*bucket
	logger  *slog.Logger
}

func newWorker(idx int, agg *Aggregator) *worker {
	return &worker{
		idx:     idx,
		agg:     agg,
		in:      make(chan update, 1024),
		buckets: make(map[string]*bucket),
		logger:  agg.logger.With(logging.Worker(idx)),
	}
}

func (w *worker) run(ctx context.Context) {
	defer w.agg.wg.Done()

	ticker := time.NewTicker(w.agg.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.drain()
			w.shutdownFlush()
			return
		case u := <-w.in:
			w.handle(u)
		case <-ticker.C:
			w.sweep(context.Background())
		}
	}
}

// drain applies updates already queued when shutdown begins, so accepted
// records are not silently lost.
func (w *worker) drain() {
	for {
		select {
		case u := <-w.in:
			w.handle(u)
		default:
			return
		}
	}
}

// shutdownFlush seals every open bucket and flushes all of them once. The
// parent context is gone; flushes run under their own deadline.
func (w *worker) shutdownFlush() {
	for _, b := range w.buckets {
		b.seal()
	}
	w.sweep(context.Background())
}

func (w *worker) handle(u update) {
	for _, window := range w.agg.cfg.Windows {
		key := Key{
			TenantID: u.rec.TenantID,
			Metric:   u.metric,
			Window:   window,
			Start:    u.at.Truncate(window),
		}
		w.applyTo(key, u)
	}
}

func (w *worker) applyTo(key Key, u update) {
	id := key.String()
	b, ok := w.buckets[id]
	if !ok {
		if w.agg.bucketCount.Load() >= int64(w.agg.cfg.MaxBuckets) {
			w.evictOldest()
		}
		b = newBucket(key)
		w.buckets[id] = b
		w.agg.bucketCount.Add(1)
		metrics.BucketsActive.Inc()
	}

	if err := b.apply(u.rec, u.value, u.at); err != nil {
		// Late arrival for an already sealed window. Merging would corrupt a
		// flushed rollup, so the sample is dropped.
		w.logger.Debug("late update dropped",
			logging.TenantID(key.TenantID),
			logging.Metric(key.Metric),
			logging.Window(WindowLabel(key.Window)))
	}
}

// evictOldest force-seals and flushes this worker's least recently updated
// open bucket to relieve memory pressure.
func (w *worker) evictOldest() {
	var oldest *bucket
	for _, b := range w.buckets {
		if b.state != Open {
			continue
		}
		if oldest == nil || b.lastUpdate.Before(oldest.lastUpdate) {
			oldest = b
		}
	}
	if oldest == nil {
		return
	}

	oldest.seal()
	metrics.BucketsEvicted.Inc()
	w.logger.Warn("bucket evicted under memory pressure",
		logging.TenantID(oldest.key.TenantID),
		logging.Metric(oldest.key.Metric),
		logging.Window(WindowLabel(oldest.key.Window)))
	w.flush(context.Background(), oldest)
}

// sweep seals buckets whose window has closed, then flushes everything
// sealed. Flush order is deterministic (oldest window first) so retries do
// not starve any one series.
func (w *worker) sweep(ctx context.Context) {
	now := w.agg.now()

	var sealed []*bucket
	for _, b := range w.buckets {
		if b.state == Open && !now.Before(b.key.End()) {
			b.seal()
		}
		if b.state == Sealed {
			sealed = append(sealed, b)
		}
	}
	sort.Slice(sealed, func(i, j int) bool {
		return sealed[i].key.Start.Before(sealed[j].key.Start)
	})

	for _, b := range sealed {
		w.flush(ctx, b)
	}
}

// flush writes a sealed bucket durably, retrying per policy. Success also
// publishes the rollup on the aggregated stream; exhaustion dead-letters the
// bucket's raw contributing records. Either way the bucket is released.
func (w *worker) flush(ctx context.Context, b *bucket) {
	rollup := b.rollup(w.agg.now())

	start := time.Now()
	attempts, err := w.agg.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		writeCtx, cancel := context.WithTimeout(ctx, w.agg.cfg.FlushTimeout)
		defer cancel()
		return w.agg.store.WriteRollup(writeCtx, rollup)
	})
	metrics.FlushDuration.Observe(time.Since(start).Seconds())
	b.retries = attempts

	if err != nil {
		b.state = DeadLettered
		metrics.FlushesTotal.WithLabelValues(metrics.OutcomeDeadLettered).Inc()
		w.logger.Error("bucket flush exhausted retries",
			logging.TenantID(b.key.TenantID),
			logging.Metric(b.key.Metric),
			logging.Window(WindowLabel(b.key.Window)),
			slog.Int("attempts", attempts),
			logging.Error(err))
		w.deadLetter(ctx, b, err)
		w.release(b)
		return
	}

	b.state = Flushed
	if attempts > 1 {
		metrics.FlushesTotal.WithLabelValues(metrics.OutcomeRetried).Inc()
	}
	metrics.FlushesTotal.WithLabelValues(metrics.OutcomeFlushed).Inc()
	w.publish(ctx, rollup)
	w.release(b)
}

// deadLetter hands the bucket's raw records to the dead-letter path so the
// whole window can be rebuilt by replay.
func (w *worker) deadLetter(ctx context.Context, b *bucket, cause error) {
	if w.agg.dlq == nil {
		return
	}
	recs := make([]*models.TelemetryRecord, 0, len(b.points))
	for _, p := range b.points {
		recs = append(recs, p.record)
	}
	if _, err := w.agg.dlq.CaptureBucket(ctx, recs, b.retries, "flush-failed", cause); err != nil {
		w.logger.Error("dead-letter capture failed", logging.Error(err))
	}
}

// publish emits the flushed rollup on the aggregated stream. Publication is
// best effort; the rollup is already durable in the store.
func (w *worker) publish(ctx context.Context, rollup *models.Rollup) {
	if w.agg.pub == nil {
		return
	}
	data, err := json.Marshal(rollup)
	if err != nil {
		return
	}
	key := rollup.TenantID + "|" + rollup.MetricName
	if err := w.agg.pub.Publish(ctx, streams.StreamAggregated, key, data); err != nil {
		w.logger.Warn("aggregated stream publish failed",
			logging.TenantID(rollup.TenantID),
			logging.Metric(rollup.MetricName),
			logging.Error(err))
	}
}

func (w *worker) release(b *bucket) {
	delete(w.buckets, b.key.String())
	w.agg.bucketCount.Add(-1)
	metrics.BucketsActive.Dec()
}
