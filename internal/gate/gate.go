// Package gate admits telemetry batches into the pipeline. It enforces batch
// size and per-tenant rate limits, validates each record against its kind's
// schema, scores accepted records synchronously, and publishes them to the
// partitioned log.
package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/FortiumPartners/devpulse/common/logging"
	"github.com/FortiumPartners/devpulse/internal/metrics"
	"github.com/FortiumPartners/devpulse/internal/models"
	"github.com/FortiumPartners/devpulse/internal/quality"
	"github.com/FortiumPartners/devpulse/internal/ratelimit"
	"github.com/FortiumPartners/devpulse/internal/streams"
)

// StreamPublisher publishes to a named telemetry stream partition.
type StreamPublisher interface {
	Publish(ctx context.Context, streamName, key string, data []byte) error
}

// Config bounds what a single ingestion call may carry.
type Config struct {
	MaxBatchSize int
}

// Gate is the single entry point for telemetry records. Records that pass it
// always carry a quality assessment on the raw stream; records it rejects
// never reach the log.
type Gate struct {
	cfg     Config
	engine  *quality.Engine
	limiter ratelimit.Limiter
	pub     StreamPublisher
	logger  *slog.Logger
	now     func() time.Time
}

// New builds a gate. limiter may be nil to disable rate limiting; pub may be
// nil in tests that only exercise admission.
func New(cfg Config, engine *quality.Engine, limiter ratelimit.Limiter, pub StreamPublisher, logger *slog.Logger) *Gate {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		cfg:     cfg,
		engine:  engine,
		limiter: limiter,
		pub:     pub,
		logger:  logger,
		now:     time.Now,
	}
}

// Accept admits one batch for a tenant. An oversized batch or a rate-limited
// tenant rejects the whole request; otherwise each record is validated,
// assessed, enriched, and published individually, and per-item rejections are
// returned alongside the accepted records.
func (g *Gate) Accept(ctx context.Context, tenantID string, batch *models.BatchRequest) ([]*models.TelemetryRecord, []models.Rejection) {
	if batch.Size() > g.cfg.MaxBatchSize {
		metrics.RejectionsTotal.WithLabelValues(string(models.ReasonBatchTooLarge)).Inc()
		return nil, []models.Rejection{{
			Index:  -1,
			Reason: models.ReasonBatchTooLarge,
			Detail: fmt.Sprintf("batch of %d exceeds limit %d", batch.Size(), g.cfg.MaxBatchSize),
		}}
	}

	if !g.allow(ctx, tenantID) {
		metrics.RejectionsTotal.WithLabelValues(string(models.ReasonRateLimited)).Inc()
		return nil, []models.Rejection{{
			Index:  -1,
			Reason: models.ReasonRateLimited,
			Detail: "tenant request quota exceeded",
		}}
	}

	var accepted []*models.TelemetryRecord
	var rejections []models.Rejection
	idx := 0

	admit := func(kind models.RecordKind, fields map[string]any) {
		defer func() { idx++ }()

		rec := g.newRecord(tenantID, kind, fields, batch.Timestamp)
		if detail, ok := validate(rec); !ok {
			metrics.RejectionsTotal.WithLabelValues(string(models.ReasonSchemaInvalid)).Inc()
			metrics.RecordsTotal.WithLabelValues(string(kind), "rejected").Inc()
			rejections = append(rejections, models.Rejection{
				Index:  idx,
				Kind:   kind,
				Reason: models.ReasonSchemaInvalid,
				Detail: detail,
			})
			return
		}

		g.process(ctx, rec)
		metrics.RecordsTotal.WithLabelValues(string(kind), "accepted").Inc()
		accepted = append(accepted, rec)
	}

	for _, fields := range batch.CommandExecutions {
		admit(models.KindCommandExecution, fields)
	}
	for _, fields := range batch.AgentInteractions {
		admit(models.KindAgentInteraction, fields)
	}
	for _, fields := range batch.ProductivityMetrics {
		admit(models.KindProductivityMetric, fields)
	}

	return accepted, rejections
}

// Resubmit re-admits a previously dead-lettered record. Replay traffic skips
// the rate limiter (it is operator-driven, not tenant load) but is validated
// and scored again from scratch.
func (g *Gate) Resubmit(ctx context.Context, rec *models.TelemetryRecord) (bool, models.RejectReason, error) {
	if rec == nil || rec.TenantID == "" {
		return false, models.ReasonSchemaInvalid, fmt.Errorf("resubmit: record has no tenant")
	}
	if _, ok := validate(rec); !ok {
		metrics.RecordsTotal.WithLabelValues(string(rec.Kind), "rejected").Inc()
		return false, models.ReasonSchemaInvalid, nil
	}

	rec.ReceivedAt = g.now()
	rec.Assessment = nil
	rec.Anomalies = nil
	rec.AppliedRules = nil
	g.process(ctx, rec)
	metrics.RecordsTotal.WithLabelValues(string(rec.Kind), "replayed").Inc()
	return true, "", nil
}

// allow consults the rate limiter. Limiter failures admit the request; an
// unreachable limiter should degrade ingestion accuracy, not availability.
func (g *Gate) allow(ctx context.Context, tenantID string) bool {
	if g.limiter == nil {
		return true
	}
	ok, err := g.limiter.Allow(ctx, tenantID)
	if err != nil {
		g.logger.Warn("rate limiter unavailable, admitting request",
			logging.TenantID(tenantID),
			logging.Error(err))
		return true
	}
	return ok
}

func (g *Gate) newRecord(tenantID string, kind models.RecordKind, fields map[string]any, batchTS string) *models.TelemetryRecord {
	rec := &models.TelemetryRecord{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		Kind:       kind,
		Fields:     fields,
		ReceivedAt: g.now(),
	}
	if ts, ok := fields["timestamp"].(string); ok {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			rec.ClientTime = t.UTC()
		}
	}
	if rec.ClientTime.IsZero() && batchTS != "" {
		if t, err := time.Parse(time.RFC3339, batchTS); err == nil {
			rec.ClientTime = t.UTC()
		}
	}
	return rec
}

// process assesses, enriches, and publishes an admitted record. The record
// pointer is replaced in place by its enriched copy before publication so
// both streams carry identical payloads.
func (g *Gate) process(ctx context.Context, rec *models.TelemetryRecord) {
	assessment, anomalies := g.engine.Assess(rec)
	rec.Assessment = &assessment
	rec.Anomalies = anomalies
	metrics.QualityScore.Observe(assessment.Overall)
	for _, a := range anomalies {
		metrics.AnomaliesTotal.WithLabelValues(string(a.Type), string(a.Severity)).Inc()
	}

	enriched, applied := g.engine.Enrich(rec)
	enriched.AppliedRules = applied
	*rec = *enriched

	g.publish(ctx, rec)
}

// publish writes the record to the raw stream and its enriched form to the
// processed stream. Admission has already been reported to the caller, so a
// publish failure is logged rather than surfaced as a rejection.
func (g *Gate) publish(ctx context.Context, rec *models.TelemetryRecord) {
	if g.pub == nil {
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		g.logger.Error("record marshal failed", logging.RecordID(rec.ID), logging.Error(err))
		return
	}

	key := rec.TenantID + "|" + string(rec.Kind)
	for _, stream := range []string{streams.StreamRaw, streams.StreamProcessed} {
		if err := g.pub.Publish(ctx, stream, key, data); err != nil {
			g.logger.Error("stream publish failed",
				logging.Stream(stream),
				logging.RecordID(rec.ID),
				logging.TenantID(rec.TenantID),
				logging.Error(err))
		}
	}
}
