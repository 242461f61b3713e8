package quality

import (
	"fmt"

	"github.com/FortiumPartners/devpulse/internal/models"
)

// Thresholds for the anomaly rules. All rules are evaluated independently
// and every applicable rule fires; anomalies annotate records, never block them.
const (
	maxDurationMS     = 300000
	maxTokenSum       = 100000
	tokenRatioHigh    = 20.0
	tokenRatioWarn    = 10.0
	maxSessionMinutes = 1440
)

// detectAnomalies runs the closed rule set against a record.
func (e *Engine) detectAnomalies(rec *models.TelemetryRecord) []models.Anomaly {
	var out []models.Anomaly

	if d, ok := numField(rec.Fields, "duration_ms"); ok {
		if d > maxDurationMS {
			out = append(out, models.Anomaly{
				Type:        models.AnomalyOutlier,
				Severity:    models.SeverityHigh,
				Confidence:  0.95,
				Field:       "duration_ms",
				Description: fmt.Sprintf("duration %.0fms exceeds the %dms ceiling", d, maxDurationMS),
				Suggestion:  "check for hung commands or client-side timer bugs",
			})
		}
		if d == 0 {
			out = append(out, models.Anomaly{
				Type:        models.AnomalySuspiciousPattern,
				Severity:    models.SeverityMedium,
				Confidence:  0.8,
				Field:       "duration_ms",
				Description: "zero duration reported for an executed command",
				Suggestion:  "verify client timing instrumentation",
			})
		}
	}

	in, hasIn := numField(rec.Fields, "input_tokens")
	outTok, hasOut := numField(rec.Fields, "output_tokens")
	if hasIn || hasOut {
		if in+outTok > maxTokenSum {
			out = append(out, models.Anomaly{
				Type:        models.AnomalyOutlier,
				Severity:    models.SeverityMedium,
				Confidence:  0.9,
				Field:       "output_tokens",
				Description: fmt.Sprintf("token sum %.0f exceeds %d", in+outTok, maxTokenSum),
				Suggestion:  "review prompt size and context accumulation",
			})
		}
		if hasIn && hasOut && in > 0 {
			ratio := outTok / in
			// The dedicated high-ratio check supersedes the generic warning
			// when both conditions hold for the same field.
			switch {
			case ratio > tokenRatioHigh:
				out = append(out, models.Anomaly{
					Type:        models.AnomalySuspiciousPattern,
					Severity:    models.SeverityMedium,
					Confidence:  0.8,
					Field:       "output_tokens",
					Description: fmt.Sprintf("output/input token ratio %.1f exceeds %.0f", ratio, tokenRatioHigh),
					Suggestion:  "inspect agent output for runaway generation",
				})
			case ratio > tokenRatioWarn:
				out = append(out, models.Anomaly{
					Type:        models.AnomalySuspiciousPattern,
					Severity:    models.SeverityLow,
					Confidence:  0.7,
					Field:       "output_tokens",
					Description: fmt.Sprintf("output/input token ratio %.1f exceeds %.0f", ratio, tokenRatioWarn),
				})
			}
		}
	}

	if rec.Kind == models.KindSession {
		if m, ok := numField(rec.Fields, "duration_minutes"); ok && m > maxSessionMinutes {
			out = append(out, models.Anomaly{
				Type:        models.AnomalyOutlier,
				Severity:    models.SeverityMedium,
				Confidence:  0.85,
				Field:       "duration_minutes",
				Description: fmt.Sprintf("session length %.0f minutes exceeds one day", m),
				Suggestion:  "check for sessions that were never closed",
			})
		}
	}

	if rec.Kind == models.KindCommandExecution {
		if status, ok := strField(rec.Fields, "status"); ok && status == "error" {
			out = append(out, models.Anomaly{
				Type:        models.AnomalyDataDrift,
				Severity:    models.SeverityLow,
				Confidence:  0.6,
				Field:       "status",
				Description: "command reported an error status",
			})
		}
	}

	return out
}
