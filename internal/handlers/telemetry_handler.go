package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/FortiumPartners/devpulse/internal/models"
	"github.com/FortiumPartners/devpulse/internal/service"
)

// TenantHeader carries the tenant identity established by the edge proxy.
const TenantHeader = "X-Tenant-ID"

type TelemetryHandler struct {
	service *service.Collector
}

func NewTelemetryHandler(service *service.Collector) *TelemetryHandler {
	return &TelemetryHandler{
		service: service,
	}
}

// HandleBatch accepts a telemetry batch for the tenant named in the request
// header and reports per-item acceptance.
func (h *TelemetryHandler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tenantID := strings.TrimSpace(r.Header.Get(TenantHeader))
	if tenantID == "" {
		h.sendError(w, "missing "+TenantHeader+" header", http.StatusBadRequest)
		return
	}

	var batch models.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		h.sendError(w, "malformed batch payload", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if batch.Size() == 0 {
		h.sendError(w, "batch contains no records", http.StatusBadRequest)
		return
	}

	resp := h.service.Ingest(r.Context(), tenantID, &batch)

	status := http.StatusOK
	if resp.Accepted == 0 {
		status = statusForRejections(resp.Rejections)
	} else if len(resp.Rejections) > 0 {
		status = http.StatusMultiStatus
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// HandleDeadLetters serves GET /api/v1/deadletter and
// POST /api/v1/deadletter/{id}/replay.
func (h *TelemetryHandler) HandleDeadLetters(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/deadletter"), "/")

	switch {
	case rest == "" && r.Method == http.MethodGet:
		h.listDeadLetters(w, r)
	case strings.HasSuffix(rest, "/replay") && r.Method == http.MethodPost:
		id := strings.TrimSuffix(rest, "/replay")
		h.replayDeadLetter(w, r, id)
	default:
		h.sendError(w, "not found", http.StatusNotFound)
	}
}

func (h *TelemetryHandler) listDeadLetters(w http.ResponseWriter, r *http.Request) {
	limit := 100
	entries := h.service.DeadLetters(limit)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"count":   len(entries),
		"entries": entries,
	})
}

func (h *TelemetryHandler) replayDeadLetter(w http.ResponseWriter, r *http.Request, id string) {
	if id == "" {
		h.sendError(w, "missing entry id", http.StatusBadRequest)
		return
	}

	accepted, err := h.service.ReplayDeadLetter(r.Context(), id)
	if err != nil {
		h.sendError(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id":       id,
		"accepted": accepted,
	})
}

func (h *TelemetryHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	})
}

// Ready reports readiness from broker and partitioned-log health plus engine
// stats.
func (h *TelemetryHandler) Ready(w http.ResponseWriter, r *http.Request) {
	health, ok := h.service.StreamHealth(r.Context())
	broker := h.service.BrokerHealth(r.Context())
	if broker != nil && !broker.Connected {
		ok = false
	}

	status := "ready"
	code := http.StatusOK
	if !ok {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	body := map[string]any{
		"status":  status,
		"streams": health,
		"stats":   h.service.Stats(),
	}
	if broker != nil {
		body["broker"] = broker
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func (h *TelemetryHandler) sendError(w http.ResponseWriter, msg string, httpStatus int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]string{
		"error": msg,
	})
}

// statusForRejections maps a fully rejected batch to its HTTP status.
func statusForRejections(rejections []models.Rejection) int {
	for _, rej := range rejections {
		switch rej.Reason {
		case models.ReasonRateLimited:
			return http.StatusTooManyRequests
		case models.ReasonBatchTooLarge:
			return http.StatusRequestEntityTooLarge
		}
	}
	return http.StatusBadRequest
}
