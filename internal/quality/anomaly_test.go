package quality

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FortiumPartners/devpulse/internal/models"
)

func anomalyTypes(anomalies []models.Anomaly) []models.AnomalyType {
	out := make([]models.AnomalyType, 0, len(anomalies))
	for _, a := range anomalies {
		out = append(out, a.Type)
	}
	return out
}

func TestDetect_DurationOutlier(t *testing.T) {
	e := testEngine(t, time.Now())

	rec := commandRecord(time.Now(), map[string]any{
		"user_id":      "u-1",
		"command_name": "migrate",
		"duration_ms":  float64(400000),
		"status":       "success",
	})

	_, anomalies := e.Assess(rec)
	require.Len(t, anomalies, 1)
	assert.Equal(t, models.AnomalyOutlier, anomalies[0].Type)
	assert.Equal(t, models.SeverityHigh, anomalies[0].Severity)
	assert.Equal(t, 0.95, anomalies[0].Confidence)
	assert.Equal(t, "duration_ms", anomalies[0].Field)
}

func TestDetect_ZeroDuration(t *testing.T) {
	e := testEngine(t, time.Now())

	rec := commandRecord(time.Now(), map[string]any{
		"user_id":      "u-1",
		"command_name": "noop",
		"duration_ms":  float64(0),
		"status":       "success",
	})

	_, anomalies := e.Assess(rec)
	require.Len(t, anomalies, 1)
	assert.Equal(t, models.AnomalySuspiciousPattern, anomalies[0].Type)
	assert.Equal(t, models.SeverityMedium, anomalies[0].Severity)
	assert.Equal(t, 0.8, anomalies[0].Confidence)
}

func TestDetect_TokenSumOutlier(t *testing.T) {
	e := testEngine(t, time.Now())

	rec := &models.TelemetryRecord{
		TenantID:   "acme",
		Kind:       models.KindAgentInteraction,
		ClientTime: time.Now(),
		Fields: map[string]any{
			"user_id":       "u-1",
			"agent_name":    "coder",
			"input_tokens":  float64(90000),
			"output_tokens": float64(20000),
		},
	}

	_, anomalies := e.Assess(rec)
	require.NotEmpty(t, anomalies)
	assert.Equal(t, models.AnomalyOutlier, anomalies[0].Type)
	assert.Equal(t, 0.9, anomalies[0].Confidence)
}

func TestDetect_TokenRatioGenericWarning(t *testing.T) {
	e := testEngine(t, time.Now())

	rec := &models.TelemetryRecord{
		TenantID:   "acme",
		Kind:       models.KindAgentInteraction,
		ClientTime: time.Now(),
		Fields: map[string]any{
			"user_id":       "u-1",
			"agent_name":    "coder",
			"input_tokens":  float64(100),
			"output_tokens": float64(1500), // ratio 15
		},
	}

	_, anomalies := e.Assess(rec)
	require.Len(t, anomalies, 1)
	assert.Equal(t, models.AnomalySuspiciousPattern, anomalies[0].Type)
	assert.Equal(t, models.SeverityLow, anomalies[0].Severity)
	assert.Equal(t, 0.7, anomalies[0].Confidence)
}

func TestDetect_TokenRatioDedicatedCheckWins(t *testing.T) {
	e := testEngine(t, time.Now())

	// Ratio 25 satisfies both the >10 and >20 conditions; only the dedicated
	// high-ratio check may fire for the field.
	rec := &models.TelemetryRecord{
		TenantID:   "acme",
		Kind:       models.KindAgentInteraction,
		ClientTime: time.Now(),
		Fields: map[string]any{
			"user_id":       "u-1",
			"agent_name":    "coder",
			"input_tokens":  float64(100),
			"output_tokens": float64(2500),
		},
	}

	_, anomalies := e.Assess(rec)
	require.Len(t, anomalies, 1)
	assert.Equal(t, models.AnomalySuspiciousPattern, anomalies[0].Type)
	assert.Equal(t, models.SeverityMedium, anomalies[0].Severity)
	assert.Equal(t, 0.8, anomalies[0].Confidence)
}

func TestDetect_SessionTooLong(t *testing.T) {
	e := testEngine(t, time.Now())

	rec := &models.TelemetryRecord{
		TenantID:   "acme",
		Kind:       models.KindSession,
		ClientTime: time.Now(),
		Fields: map[string]any{
			"user_id":          "u-1",
			"session_id":       "s-1",
			"duration_minutes": float64(2000),
		},
	}

	_, anomalies := e.Assess(rec)
	require.Len(t, anomalies, 1)
	assert.Equal(t, models.AnomalyOutlier, anomalies[0].Type)
	assert.Equal(t, 0.85, anomalies[0].Confidence)
	assert.Equal(t, "duration_minutes", anomalies[0].Field)
}

func TestDetect_ErrorStatusDrift(t *testing.T) {
	e := testEngine(t, time.Now())

	rec := commandRecord(time.Now(), map[string]any{
		"user_id":       "u-1",
		"command_name":  "deploy",
		"duration_ms":   float64(500),
		"status":        "error",
		"error_message": "exit 1",
	})

	_, anomalies := e.Assess(rec)
	require.Len(t, anomalies, 1)
	assert.Equal(t, models.AnomalyDataDrift, anomalies[0].Type)
	assert.Equal(t, models.SeverityLow, anomalies[0].Severity)
}

func TestDetect_MultipleRulesFireIndependently(t *testing.T) {
	e := testEngine(t, time.Now())

	// Ingestion scenario: durations 50ms, 400000ms, 0ms.
	durations := []float64{50, 400000, 0}
	var all [][]models.Anomaly
	for _, d := range durations {
		rec := commandRecord(time.Now(), map[string]any{
			"user_id":      "u-1",
			"command_name": "run",
			"duration_ms":  d,
			"status":       "success",
		})
		_, anomalies := e.Assess(rec)
		all = append(all, anomalies)
	}

	assert.Empty(t, all[0])
	require.Len(t, all[1], 1)
	assert.Equal(t, []models.AnomalyType{models.AnomalyOutlier}, anomalyTypes(all[1]))
	assert.Equal(t, models.SeverityHigh, all[1][0].Severity)
	require.Len(t, all[2], 1)
	assert.Equal(t, []models.AnomalyType{models.AnomalySuspiciousPattern}, anomalyTypes(all[2]))
	assert.Equal(t, models.SeverityMedium, all[2][0].Severity)
}
