package aggregator

import (
	"fmt"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/FortiumPartners/devpulse/internal/models"
)

// State is the lifecycle position of a bucket.
type State int

const (
	// Open buckets accept updates.
	Open State = iota
	// Sealed buckets await flush; no further mutation.
	Sealed
	// Flushed buckets have been persisted and are eligible for eviction.
	Flushed
	// DeadLettered buckets exhausted the flush retry budget.
	DeadLettered
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case Sealed:
		return "sealed"
	case Flushed:
		return "flushed"
	case DeadLettered:
		return "dead_lettered"
	default:
		return "unknown"
	}
}

// Key identifies one aggregation series plus its window placement.
type Key struct {
	TenantID string
	Metric   string
	Window   time.Duration
	Start    time.Time
}

// Series is the shard key: all windows of one (tenant, metric) series are
// owned by the same worker, which is what preserves per-key arrival order.
func (k Key) Series() string {
	return k.TenantID + "|" + k.Metric
}

func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%s|%d", k.TenantID, k.Metric, WindowLabel(k.Window), k.Start.UnixNano())
}

// End returns the instant the window closes.
func (k Key) End() time.Time {
	return k.Start.Add(k.Window)
}

// WindowLabel renders a window duration the way rollup keys spell it
// (1m, 5m, 15m, 1h, 1d).
func WindowLabel(d time.Duration) string {
	if d >= 24*time.Hour && d%(24*time.Hour) == 0 {
		return fmt.Sprintf("%dd", d/(24*time.Hour))
	}
	if d >= time.Hour && d%time.Hour == 0 {
		return fmt.Sprintf("%dh", d/time.Hour)
	}
	return fmt.Sprintf("%dm", d/time.Minute)
}

// point is one contributing record value. The record reference is retained
// until flush so a failed bucket can push its raw inputs, not just the
// aggregate, to the dead-letter path for replay.
type point struct {
	record *models.TelemetryRecord
	value  float64
}

// bucket is the mutable aggregation entity for one key. A bucket is owned by
// exactly one worker; nothing here needs locking.
type bucket struct {
	key        Key
	state      State
	count      int64
	sum        float64
	min        float64
	max        float64
	sketch     *ddsketch.DDSketch
	points     []point
	lastUpdate time.Time
	retries    int
}

func newBucket(key Key) *bucket {
	// Sketch construction only fails for invalid relative accuracy.
	sketch, _ := ddsketch.NewDefaultDDSketch(0.01)
	return &bucket{
		key:    key,
		state:  Open,
		sketch: sketch,
	}
}

// apply folds one record value into the bucket. Updates after seal are
// refused; the caller redirects or drops them, never merges.
func (b *bucket) apply(rec *models.TelemetryRecord, value float64, at time.Time) error {
	if b.state != Open {
		return fmt.Errorf("bucket %s is %s", b.key, b.state)
	}

	if b.count == 0 || value < b.min {
		b.min = value
	}
	if b.count == 0 || value > b.max {
		b.max = value
	}
	b.count++
	b.sum += value
	b.lastUpdate = at
	b.points = append(b.points, point{record: rec, value: value})

	if value > 0 && b.sketch != nil {
		// DDSketch only tracks positive values; zeros still count in min/sum.
		_ = b.sketch.Add(value)
	}
	return nil
}

// seal transitions Open→Sealed. Sealing twice is a no-op so the ticker sweep
// and a forced eviction cannot double-seal.
func (b *bucket) seal() {
	if b.state == Open {
		b.state = Sealed
	}
}

// rollup renders the bucket as a durable rollup row.
func (b *bucket) rollup(now time.Time) *models.Rollup {
	r := &models.Rollup{
		TenantID:    b.key.TenantID,
		MetricName:  b.key.Metric,
		WindowSize:  WindowLabel(b.key.Window),
		WindowStart: b.key.Start,
		Count:       b.count,
		Sum:         b.sum,
		Min:         b.min,
		Max:         b.max,
		UpdatedAt:   now,
	}
	if b.sketch != nil && b.sketch.GetCount() > 0 {
		if q, err := b.sketch.GetValueAtQuantile(0.5); err == nil {
			r.P50 = q
		}
		if q, err := b.sketch.GetValueAtQuantile(0.95); err == nil {
			r.P95 = q
		}
		if q, err := b.sketch.GetValueAtQuantile(0.99); err == nil {
			r.P99 = q
		}
	}
	return r
}
