// Package service wires the ingestion gate, the partitioned log, and the
// aggregator into the collector pipeline.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/FortiumPartners/devpulse/common/logging"
	"github.com/FortiumPartners/devpulse/common/messaging"
	natsclient "github.com/FortiumPartners/devpulse/common/messaging/nats"
	"github.com/FortiumPartners/devpulse/internal/aggregator"
	"github.com/FortiumPartners/devpulse/internal/deadletter"
	"github.com/FortiumPartners/devpulse/internal/gate"
	"github.com/FortiumPartners/devpulse/internal/models"
	"github.com/FortiumPartners/devpulse/internal/quality"
	"github.com/FortiumPartners/devpulse/internal/streams"
)

// aggregatorConsumer is the durable consumer the collector registers on the
// raw stream.
const aggregatorConsumer = "devpulse-aggregator"

// StreamPublisher publishes to a named telemetry stream partition.
type StreamPublisher interface {
	Publish(ctx context.Context, streamName, key string, data []byte) error
}

// HealthChecker reports per-stream availability for readiness probes.
type HealthChecker interface {
	Health(ctx context.Context) ([]streams.StreamHealth, bool)
}

// Collector is the collector pipeline: batches enter through the gate, flow
// onto the partitioned log, and feed the windowed aggregator.
type Collector struct {
	gate   *gate.Gate
	agg    *aggregator.Aggregator
	dlq    *deadletter.Handler
	engine *quality.Engine
	pub    StreamPublisher
	health HealthChecker
	js     *natsclient.JetStreamClient
	logger *slog.Logger

	statsInterval time.Duration

	// directFeed routes accepted records straight into the aggregator when
	// no raw-stream consumer is attached (dev mode without NATS).
	directFeed bool

	mu          sync.Mutex
	cancel      context.CancelFunc
	stopConsume func()
	wg          sync.WaitGroup
}

// Options carries the optional collaborators of a Collector.
type Options struct {
	Publisher StreamPublisher
	Health    HealthChecker
	JetStream *natsclient.JetStreamClient
	Logger    *slog.Logger

	// StatsInterval controls how often engine counters are logged.
	StatsInterval time.Duration
}

// New assembles the collector pipeline.
func New(g *gate.Gate, agg *aggregator.Aggregator, dlq *deadletter.Handler, engine *quality.Engine, opts Options) *Collector {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := opts.StatsInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	c := &Collector{
		gate:          g,
		agg:           agg,
		dlq:           dlq,
		engine:        engine,
		pub:           opts.Publisher,
		health:        opts.Health,
		js:            opts.JetStream,
		logger:        logger,
		statsInterval: interval,
		directFeed:    opts.JetStream == nil,
	}
	// Replays must take the same path as fresh records, including the
	// direct aggregator feed, so the collector is the replay target rather
	// than the bare gate.
	dlq.SetResubmitter(c)
	return c
}

// Resubmit re-admits a dead-lettered record through the gate and, in the
// direct-feed configuration, hands it to the aggregator the way Ingest does.
func (c *Collector) Resubmit(ctx context.Context, rec *models.TelemetryRecord) (bool, models.RejectReason, error) {
	accepted, reason, err := c.gate.Resubmit(ctx, rec)
	if err != nil || !accepted {
		return accepted, reason, err
	}

	c.alertOnAnomalies(ctx, rec)
	if c.directFeed {
		c.agg.Apply(rec)
	}
	return true, "", nil
}

// Start launches the aggregator worker pool, the raw-stream consumer when a
// JetStream client is wired, and the periodic stats reporter.
func (c *Collector) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	if err := c.agg.Start(runCtx); err != nil {
		return err
	}

	if c.js != nil {
		if err := c.startRawConsumer(runCtx); err != nil {
			return fmt.Errorf("start raw consumer: %w", err)
		}
	}

	c.wg.Add(1)
	go c.statsLoop(runCtx)
	return nil
}

// Stop drains the pipeline in dependency order: no new raw messages, then a
// final aggregator flush.
func (c *Collector) Stop() {
	c.mu.Lock()
	if c.stopConsume != nil {
		c.stopConsume()
		c.stopConsume = nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	c.wg.Wait()
	c.agg.Stop()
}

// Ingest admits one batch for a tenant and reports per-item acceptance.
func (c *Collector) Ingest(ctx context.Context, tenantID string, batch *models.BatchRequest) *models.BatchResponse {
	accepted, rejections := c.gate.Accept(ctx, tenantID, batch)

	for _, rec := range accepted {
		c.alertOnAnomalies(ctx, rec)
		if c.directFeed {
			c.agg.Apply(rec)
		}
	}

	return &models.BatchResponse{
		Accepted:   len(accepted),
		Rejections: rejections,
	}
}

// DeadLetters lists stored dead-letter entries, oldest first.
func (c *Collector) DeadLetters(limit int) []*models.DeadLetterEntry {
	return c.dlq.Store().List(limit)
}

// ReplayDeadLetter re-submits one dead-letter entry through the gate.
func (c *Collector) ReplayDeadLetter(ctx context.Context, entryID string) (bool, error) {
	return c.dlq.Replay(ctx, entryID)
}

// StreamHealth reports log availability for the readiness probe. Without a
// wired log the collector is trivially ready.
func (c *Collector) StreamHealth(ctx context.Context) ([]streams.StreamHealth, bool) {
	if c.health == nil {
		return nil, true
	}
	return c.health.Health(ctx)
}

// BrokerHealth pings the message broker. Without a wired broker the status
// reports disconnected with no error, which readiness treats as healthy.
func (c *Collector) BrokerHealth(ctx context.Context) *messaging.HealthStatus {
	if c.js == nil {
		return nil
	}
	status := messaging.CheckClientHealth(ctx, c.js)
	return &status
}

// Stats returns a snapshot of the quality engine counters.
func (c *Collector) Stats() quality.Snapshot {
	return c.engine.Stats().Snapshot()
}

// alertOnAnomalies broadcasts high-severity anomalies on the alerts stream.
// Anomalies never block the record itself.
func (c *Collector) alertOnAnomalies(ctx context.Context, rec *models.TelemetryRecord) {
	if c.pub == nil {
		return
	}
	for _, a := range rec.Anomalies {
		if a.Severity != models.SeverityHigh {
			continue
		}
		alert := models.AlertEvent{
			Type:        string(a.Type),
			Severity:    a.Severity,
			TenantID:    rec.TenantID,
			RecordID:    rec.ID,
			Description: a.Description,
			RaisedAt:    time.Now(),
		}
		data, err := json.Marshal(alert)
		if err != nil {
			continue
		}
		if err := c.pub.Publish(ctx, streams.StreamAlerts, rec.TenantID, data); err != nil {
			c.logger.Warn("alert publish failed",
				logging.TenantID(rec.TenantID),
				logging.RecordID(rec.ID),
				logging.Error(err))
		}
	}
}

// startRawConsumer attaches a durable consumer to the raw stream and feeds
// every record into the aggregator. Unreadable payloads are acked and
// skipped; redelivery cannot fix a malformed message.
func (c *Collector) startRawConsumer(ctx context.Context) error {
	cfg := natsclient.DefaultConsumerConfig(aggregatorConsumer, messaging.WildcardSubject(messaging.SubjectRawPrefix))
	if _, err := c.js.CreateOrUpdateConsumer(ctx, streams.StreamRaw, cfg); err != nil {
		return err
	}

	stop, err := c.js.ConsumeMessages(ctx, streams.StreamRaw, aggregatorConsumer, func(_ context.Context, msg *messaging.Message) error {
		var rec models.TelemetryRecord
		if err := json.Unmarshal(msg.Data, &rec); err != nil {
			c.logger.Warn("unreadable raw record skipped",
				logging.Stream(streams.StreamRaw),
				logging.Error(err))
			return nil
		}
		c.agg.Apply(&rec)
		return nil
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.stopConsume = stop
	c.mu.Unlock()
	c.logger.Info("raw stream consumer started", slog.String("consumer", aggregatorConsumer))
	return nil
}

// statsLoop periodically logs engine counters for dashboards that scrape
// logs rather than /metrics.
func (c *Collector) statsLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := c.engine.Stats().Snapshot()
			c.logger.Info("quality engine stats",
				slog.Int64("assessed", snap.RecordsAssessed),
				slog.Int64("enriched", snap.RecordsEnriched),
				slog.Int64("rules_applied", snap.RulesApplied),
				slog.Int64("outliers", snap.Outliers),
				slog.Int64("suspicious", snap.SuspiciousPatterns),
				slog.Int64("drift", snap.DataDrift))
		}
	}
}
