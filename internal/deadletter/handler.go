package deadletter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/FortiumPartners/devpulse/internal/models"
	"github.com/FortiumPartners/devpulse/internal/streams"
)

// StreamPublisher publishes to a named telemetry stream partition.
type StreamPublisher interface {
	Publish(ctx context.Context, streamName, key string, data []byte) error
}

// Resubmitter re-admits a record as if newly arrived. The ingestion gate
// implements this for operator replay.
type Resubmitter interface {
	Resubmit(ctx context.Context, rec *models.TelemetryRecord) (bool, models.RejectReason, error)
}

// Handler owns dead-letter entries until they are replayed or evicted.
type Handler struct {
	store        *Store
	log          StreamPublisher
	gate         Resubmitter
	replayBudget int
	logger       *slog.Logger
	now          func() time.Time
}

// NewHandler creates a dead-letter handler. log may be nil when the durable
// dead-letter stream is unavailable (entries are then held in memory only).
func NewHandler(store *Store, log StreamPublisher, gate Resubmitter, replayBudget int, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if replayBudget <= 0 {
		replayBudget = 5
	}
	return &Handler{
		store:        store,
		log:          log,
		gate:         gate,
		replayBudget: replayBudget,
		logger:       logger,
		now:          time.Now,
	}
}

// SetResubmitter wires the replay target after construction; the gate and
// the handler are built in dependency order at startup.
func (h *Handler) SetResubmitter(gate Resubmitter) {
	h.gate = gate
}

// Store exposes the underlying store for inspection endpoints.
func (h *Handler) Store() *Store {
	return h.store
}

// Capture records a failed telemetry record. The entry is appended to the
// in-memory store and published to the durable dead-letter stream; capacity
// evictions are logged as critical and reported on the alerts stream since
// they drop data.
func (h *Handler) Capture(ctx context.Context, rec *models.TelemetryRecord, reason string, failure error) (*models.DeadLetterEntry, error) {
	entry := &models.DeadLetterEntry{
		ID:         uuid.New().String(),
		Record:     rec,
		Reason:     reason,
		RetryCount: rec.RetryCount,
		EnqueuedAt: h.now(),
	}
	if failure != nil {
		entry.Failure = failure.Error()
	}

	if h.log != nil {
		if data, err := json.Marshal(entry); err == nil {
			if err := h.log.Publish(ctx, streams.StreamDeadLetter, rec.TenantID, data); err != nil {
				h.logger.Warn("dead-letter stream publish failed",
					slog.String("entry_id", entry.ID),
					slog.String("error", err.Error()))
			}
		}
	}

	return entry, h.add(ctx, entry, rec.TenantID)
}

// CaptureBucket records a failed aggregation window as a single entry holding
// every contributing raw record, so the whole window can be replayed.
func (h *Handler) CaptureBucket(ctx context.Context, recs []*models.TelemetryRecord, retryCount int, reason string, failure error) (*models.DeadLetterEntry, error) {
	entry := &models.DeadLetterEntry{
		ID:         uuid.New().String(),
		Records:    recs,
		Reason:     reason,
		RetryCount: retryCount,
		EnqueuedAt: h.now(),
	}
	if failure != nil {
		entry.Failure = failure.Error()
	}
	tenantID := ""
	if len(recs) > 0 {
		tenantID = recs[0].TenantID
	}

	if h.log != nil {
		if data, err := json.Marshal(entry); err == nil {
			if err := h.log.Publish(ctx, streams.StreamDeadLetter, tenantID, data); err != nil {
				h.logger.Warn("dead-letter stream publish failed",
					slog.String("entry_id", entry.ID),
					slog.String("error", err.Error()))
			}
		}
	}

	return entry, h.add(ctx, entry, tenantID)
}

func (h *Handler) add(ctx context.Context, entry *models.DeadLetterEntry, tenantID string) error {
	evicted, err := h.store.Add(entry)
	if err != nil {
		h.raiseCapacityAlert(ctx, tenantID, "dead-letter store rejected entry")
		return fmt.Errorf("dead-letter capture: %w", err)
	}
	if evicted != nil {
		evictedTenant := ""
		if recs := evicted.AllRecords(); len(recs) > 0 {
			evictedTenant = recs[0].TenantID
		}
		h.logger.Error("dead-letter store at capacity, evicted oldest entry",
			slog.String("evicted_id", evicted.ID),
			slog.String("tenant_id", evictedTenant))
		h.raiseCapacityAlert(ctx, evictedTenant, "dead-letter store at capacity, oldest entry dropped")
	}
	return nil
}

// raiseCapacityAlert publishes a high-severity operational alert.
func (h *Handler) raiseCapacityAlert(ctx context.Context, tenantID, description string) {
	if h.log == nil {
		return
	}
	alert := models.AlertEvent{
		Type:        "dead-letter-capacity",
		Severity:    models.SeverityHigh,
		TenantID:    tenantID,
		Description: description,
		RaisedAt:    h.now(),
	}
	data, err := json.Marshal(alert)
	if err != nil {
		return
	}
	if err := h.log.Publish(ctx, streams.StreamAlerts, tenantID, data); err != nil {
		h.logger.Warn("capacity alert publish failed", slog.String("error", err.Error()))
	}
}

// Replay re-submits a stored entry through the ingestion gate as if newly
// arrived, with retry count preserved. Entries past the replay budget are
// permanently discarded and reported as rejected.
func (h *Handler) Replay(ctx context.Context, entryID string) (bool, error) {
	entry, err := h.store.Get(entryID)
	if err != nil {
		return false, err
	}
	if h.gate == nil {
		return false, fmt.Errorf("replay target not configured")
	}

	if entry.RetryCount >= h.replayBudget {
		// A record that keeps failing eventually stops being worth holding.
		_ = h.store.Remove(entryID)
		h.logger.Warn("dead-letter entry exceeded replay budget, discarded",
			slog.String("entry_id", entryID),
			slog.Int("retry_count", entry.RetryCount))
		return false, nil
	}

	recs := entry.AllRecords()
	if len(recs) == 0 {
		_ = h.store.Remove(entryID)
		return false, fmt.Errorf("replay %s: entry holds no records", entryID)
	}

	allAccepted := true
	for _, orig := range recs {
		rec := orig.Clone()
		rec.RetryCount = entry.RetryCount + 1

		accepted, reason, err := h.gate.Resubmit(ctx, rec)
		if err != nil {
			return false, fmt.Errorf("replay %s: %w", entryID, err)
		}
		if !accepted {
			allAccepted = false
			h.logger.Warn("dead-letter replay rejected",
				slog.String("entry_id", entryID),
				slog.String("reason", string(reason)))
		}
	}
	if !allAccepted {
		// Count the failed attempt so a repeatedly failing entry runs out of
		// budget instead of being replayed forever.
		if _, err := h.store.IncrementRetry(entryID); err != nil {
			return false, fmt.Errorf("replay %s: %w", entryID, err)
		}
		return false, nil
	}

	if err := h.store.Remove(entryID); err != nil {
		return true, err
	}
	h.logger.Info("dead-letter entry replayed",
		slog.String("entry_id", entryID),
		slog.String("tenant_id", recs[0].TenantID))
	return true, nil
}
