package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	// Load config without providing a file path (empty string uses defaults)
	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Verify defaults
	assert.Equal(t, 8098, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)

	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.False(t, cfg.Postgres.Enabled)
	assert.False(t, cfg.Redis.Enabled)

	assert.Equal(t, 1000, cfg.Ingestion.MaxBatchSize)
	assert.True(t, cfg.Ingestion.RateLimitEnabled)
	assert.Equal(t, 1000, cfg.Ingestion.RateLimitRequests)
	assert.Equal(t, time.Minute, cfg.Ingestion.RateLimitWindow)

	assert.Equal(t, []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute, time.Hour, 24 * time.Hour},
		cfg.Aggregation.WindowSizes)
	assert.Equal(t, 30*time.Second, cfg.Aggregation.FlushInterval)
	assert.Equal(t, 100000, cfg.Aggregation.MaxBuckets)
	assert.Equal(t, 8, cfg.Aggregation.Workers)
	assert.Equal(t, 3, cfg.Aggregation.RetryMaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Aggregation.RetryBackoff)

	assert.Equal(t, 10000, cfg.DeadLetter.Capacity)
	assert.Equal(t, 5, cfg.DeadLetter.ReplayBudget)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_FromFile(t *testing.T) {
	// Create temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 9090

ingestion:
  max_batch_size: 500
  rate_limit_requests: 50

aggregation:
  workers: 2
  flush_interval: 5s

deadletter:
  capacity: 100
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 500, cfg.Ingestion.MaxBatchSize)
	assert.Equal(t, 50, cfg.Ingestion.RateLimitRequests)
	assert.Equal(t, 2, cfg.Aggregation.Workers)
	assert.Equal(t, 5*time.Second, cfg.Aggregation.FlushInterval)
	assert.Equal(t, 100, cfg.DeadLetter.Capacity)

	// Untouched keys keep their defaults
	assert.Equal(t, 100000, cfg.Aggregation.MaxBuckets)
	assert.Equal(t, 5, cfg.DeadLetter.ReplayBudget)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DEVPULSE_SERVER_PORT", "7070")
	t.Setenv("DEVPULSE_INGESTION_RATE_LIMIT_REQUESTS", "25")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 25, cfg.Ingestion.RateLimitRequests)
}
