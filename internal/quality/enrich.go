package quality

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/FortiumPartners/devpulse/internal/models"
)

// enrichmentRule is one entry in the closed, ordered rule table. Rules run in
// declaration order; each is conditionally applied and failure-isolated, so a
// broken rule is skipped and logged without aborting the pipeline.
type enrichmentRule struct {
	id      string
	applies func(rec *models.TelemetryRecord) bool
	apply   func(rec *models.TelemetryRecord) error
}

var enrichmentRules = []enrichmentRule{
	{
		id: "execution_time_category",
		applies: func(rec *models.TelemetryRecord) bool {
			_, ok := numField(rec.Fields, "duration_ms")
			return rec.Kind == models.KindCommandExecution && ok
		},
		apply: func(rec *models.TelemetryRecord) error {
			d, _ := numField(rec.Fields, "duration_ms")
			rec.Fields["execution_category"] = executionCategory(d)
			return nil
		},
	},
	{
		id: "productivity_tier",
		applies: func(rec *models.TelemetryRecord) bool {
			_, ok := numField(rec.Fields, "value")
			return rec.Kind == models.KindProductivityMetric && ok
		},
		apply: func(rec *models.TelemetryRecord) error {
			v, _ := numField(rec.Fields, "value")
			rec.Fields["productivity_tier"] = productivityTier(v)
			return nil
		},
	},
	{
		id: "session_insight",
		applies: func(rec *models.TelemetryRecord) bool {
			return rec.Kind == models.KindSession && !rec.ClientTime.IsZero()
		},
		apply: func(rec *models.TelemetryRecord) error {
			t := rec.ClientTime.UTC()
			rec.Fields["hour_of_day"] = t.Hour()
			rec.Fields["day_of_week"] = strings.ToLower(t.Weekday().String())
			rec.Fields["productivity_period"] = productivityPeriod(t.Hour())
			return nil
		},
	},
	{
		id: "agent_efficiency",
		applies: func(rec *models.TelemetryRecord) bool {
			if rec.Kind != models.KindAgentInteraction {
				return false
			}
			_, hasIn := numField(rec.Fields, "input_tokens")
			_, hasOut := numField(rec.Fields, "output_tokens")
			_, hasDur := numField(rec.Fields, "duration_ms")
			return hasIn && hasOut && hasDur
		},
		apply: func(rec *models.TelemetryRecord) error {
			in, _ := numField(rec.Fields, "input_tokens")
			out, _ := numField(rec.Fields, "output_tokens")
			dur, _ := numField(rec.Fields, "duration_ms")

			var tps float64
			if dur > 0 {
				tps = (in + out) / (dur / 1000.0)
			}
			success := 0.0
			if status, ok := strField(rec.Fields, "status"); ok && status == "success" {
				success = 1.0
			}
			rec.Fields["tokens_per_second"] = tps
			rec.Fields["efficiency"] = tps * success
			return nil
		},
	},
	{
		id: "timestamp_normalization",
		applies: func(rec *models.TelemetryRecord) bool {
			return len(rec.Fields) > 0
		},
		apply: normalizeTimestamps,
	},
}

// Enrich applies the rule table to a copy of the record and returns the
// enriched copy plus the names of the rules that were applied. Enrichment is
// deterministic and idempotent: re-running on already-enriched output yields
// the same record.
func (e *Engine) Enrich(rec *models.TelemetryRecord) (*models.TelemetryRecord, []string) {
	out := rec.Clone()
	var applied []string

	for _, rule := range enrichmentRules {
		if !rule.applies(out) {
			continue
		}
		if err := e.runRule(rule, out); err != nil {
			e.logger.Warn("enrichment rule failed, skipping",
				slog.String("rule", rule.id),
				slog.String("record_id", rec.ID),
				slog.String("error", err.Error()))
			continue
		}
		applied = append(applied, rule.id)
	}

	out.AppliedRules = applied
	e.stats.recordEnrichment(len(applied))
	return out, applied
}

// runRule isolates a single rule so a panic inside one rule cannot take down
// the rest of the table.
func (e *Engine) runRule(rule enrichmentRule, rec *models.TelemetryRecord) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rule %s panicked: %v", rule.id, r)
		}
	}()
	return rule.apply(rec)
}

// executionCategory buckets command duration into five named tiers.
func executionCategory(ms float64) string {
	switch {
	case ms < 100:
		return "very_fast"
	case ms < 1000:
		return "fast"
	case ms < 5000:
		return "moderate"
	case ms < 30000:
		return "slow"
	default:
		return "very_slow"
	}
}

// productivityTier buckets a productivity score at the 50/70/90 boundaries.
func productivityTier(score float64) string {
	switch {
	case score < 50:
		return "low"
	case score < 70:
		return "moderate"
	case score < 90:
		return "high"
	default:
		return "exceptional"
	}
}

// productivityPeriod names the part of day a session started in.
func productivityPeriod(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return "morning"
	case hour >= 12 && hour < 17:
		return "afternoon"
	case hour >= 17 && hour < 22:
		return "evening"
	default:
		return "night"
	}
}

// timestampLayouts are the client formats we accept, tried in order.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// normalizeTimestamps coerces any string field whose name suggests a time
// value to canonical RFC3339 UTC. Unparseable values are left unchanged.
func normalizeTimestamps(rec *models.TelemetryRecord) error {
	for name, v := range rec.Fields {
		if !looksLikeTimestampField(name) {
			continue
		}
		s, ok := v.(string)
		if !ok || s == "" {
			continue
		}
		for _, layout := range timestampLayouts {
			t, err := time.Parse(layout, s)
			if err != nil {
				continue
			}
			rec.Fields[name] = t.UTC().Format(time.RFC3339)
			break
		}
	}
	return nil
}

func looksLikeTimestampField(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "_at") ||
		strings.Contains(lower, "timestamp") ||
		strings.Contains(lower, "time")
}
