// Package streams owns the topic/partition topology of the telemetry log.
// Five logical streams carry the pipeline's data: raw, processed, aggregated,
// alerts, and dead-letter. Each stream declares its own partition count and
// retention window; partitions are subject shards within a JetStream stream.
package streams

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/FortiumPartners/devpulse/common/messaging"
	natsclient "github.com/FortiumPartners/devpulse/common/messaging/nats"
	"github.com/FortiumPartners/devpulse/internal/metrics"
)

// Stream names.
const (
	StreamRaw        = "TELEMETRY_RAW"
	StreamProcessed  = "TELEMETRY_PROCESSED"
	StreamAggregated = "TELEMETRY_AGGREGATED"
	StreamAlerts     = "TELEMETRY_ALERTS"
	StreamDeadLetter = "TELEMETRY_DEADLETTER"
)

// Descriptor declares one logical stream: its subject prefix, how many
// partitions it shards into, and how long messages are retained.
type Descriptor struct {
	Name          string
	SubjectPrefix string
	Partitions    int
	Retention     time.Duration
	Replicas      int
}

// Topology lists the five streams. Raw has the most partitions for ingestion
// parallelism; dead-letter the fewest since it only sees failures.
func Topology() []Descriptor {
	return []Descriptor{
		{StreamRaw, messaging.SubjectRawPrefix, 12, 7 * 24 * time.Hour, 1},
		{StreamProcessed, messaging.SubjectProcessedPrefix, 8, 30 * 24 * time.Hour, 1},
		{StreamAggregated, messaging.SubjectAggregatedPrefix, 4, 90 * 24 * time.Hour, 1},
		{StreamAlerts, messaging.SubjectAlertsPrefix, 2, 30 * 24 * time.Hour, 1},
		{StreamDeadLetter, messaging.SubjectDeadLetterPrefix, 1, 7 * 24 * time.Hour, 1},
	}
}

// descriptorFor looks up a declared stream by name.
func descriptorFor(name string) (Descriptor, bool) {
	for _, d := range Topology() {
		if d.Name == name {
			return d, true
		}
	}
	return Descriptor{}, false
}

// jetStream is the slice of the JetStream client the manager needs.
type jetStream interface {
	EnsureStream(ctx context.Context, cfg natsclient.StreamConfig) (bool, error)
	StreamInfo(ctx context.Context, name string) (*jetstream.StreamInfo, error)
	PublishSync(ctx context.Context, subject string, data []byte) (*jetstream.PubAck, error)
}

// Manager reconciles and publishes to the partitioned telemetry log.
type Manager struct {
	js     jetStream
	logger *slog.Logger
}

// NewManager creates a log manager over a JetStream client.
func NewManager(js *natsclient.JetStreamClient, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{js: js, logger: logger}
}

// newManagerWith is the test seam for injecting a fake JetStream.
func newManagerWith(js jetStream, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{js: js, logger: logger}
}

// Reconcile performs idempotent topology reconciliation at startup: streams
// that already exist are left untouched, missing ones are created with their
// declared partition subjects and retention.
func (m *Manager) Reconcile(ctx context.Context) error {
	for _, d := range Topology() {
		subjects := make([]string, 0, d.Partitions)
		for p := 0; p < d.Partitions; p++ {
			subjects = append(subjects, messaging.PartitionSubject(d.SubjectPrefix, p))
		}

		created, err := m.js.EnsureStream(ctx, natsclient.StreamConfig{
			Name:      d.Name,
			Subjects:  subjects,
			MaxAge:    d.Retention,
			Replicas:  d.Replicas,
			Retention: jetstream.LimitsPolicy,
			Storage:   jetstream.FileStorage,
		})
		if err != nil {
			return fmt.Errorf("reconcile stream %s: %w", d.Name, err)
		}
		if created {
			m.logger.Info("created stream",
				slog.String("stream", d.Name),
				slog.Int("partitions", d.Partitions),
				slog.String("retention", d.Retention.String()))
		}
	}
	return nil
}

// StreamHealth reports the availability of one stream.
type StreamHealth struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Leader  string `json:"leader,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Health checks partition-leader availability for every declared stream.
// A stream whose leader is unavailable is reported unhealthy.
func (m *Manager) Health(ctx context.Context) ([]StreamHealth, bool) {
	out := make([]StreamHealth, 0, len(Topology()))
	allHealthy := true

	for _, d := range Topology() {
		h := StreamHealth{Name: d.Name}
		info, err := m.js.StreamInfo(ctx, d.Name)
		switch {
		case err != nil:
			h.Error = err.Error()
		case info.Cluster != nil && info.Cluster.Leader == "":
			h.Error = "stream has no leader"
		default:
			h.Healthy = true
			if info.Cluster != nil {
				h.Leader = info.Cluster.Leader
			}
		}
		if !h.Healthy {
			allHealthy = false
		}
		out = append(out, h)
	}
	return out, allHealthy
}

// Publish writes data to the partition of the named stream selected by key.
// The call blocks until the log acknowledges the write (or ctx expires), so
// producer-buffer backpressure propagates to the caller.
func (m *Manager) Publish(ctx context.Context, streamName, key string, data []byte) error {
	d, ok := descriptorFor(streamName)
	if !ok {
		return fmt.Errorf("unknown stream %q", streamName)
	}

	partition := messaging.PartitionFor(key, d.Partitions)
	subject := messaging.PartitionSubject(d.SubjectPrefix, partition)

	if _, err := m.js.PublishSync(ctx, subject, data); err != nil {
		metrics.PublishErrors.WithLabelValues(d.Name).Inc()
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}
