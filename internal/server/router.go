package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/FortiumPartners/devpulse/common/middleware"
	"github.com/FortiumPartners/devpulse/internal/handlers"
)

// NewRouter constructs a ServeMux with collector API routes registered.
func NewRouter(h *handlers.TelemetryHandler) http.Handler {
	mux := http.NewServeMux()

	// Telemetry ingestion
	mux.HandleFunc("/api/v1/telemetry", h.HandleBatch)

	// Dead-letter inspection and replay
	mux.HandleFunc("/api/v1/deadletter", h.HandleDeadLetters)
	mux.HandleFunc("/api/v1/deadletter/", h.HandleDeadLetters)

	// Health endpoints
	mux.HandleFunc("/healthz", h.Health)
	mux.HandleFunc("/readyz", h.Ready)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	return middleware.RequestID(mux)
}
