// Package quality scores telemetry records, detects anomalies, and applies
// enrichment rules. The engine is pure and stateless apart from append-only
// atomic counters used for reporting, so it is safe to call concurrently
// from any number of ingestion goroutines.
package quality

import (
	"log/slog"
	"math"
	"time"

	"github.com/FortiumPartners/devpulse/internal/models"
)

// Component weights for the overall quality score.
const (
	weightCompleteness = 0.3
	weightAccuracy     = 0.4
	weightConsistency  = 0.2
	weightTimeliness   = 0.1
)

// requiredFields lists the kind-specific fields a record must carry for full
// completeness. The sets are fixed; completeness is present/required exactly.
var requiredFields = map[models.RecordKind][]string{
	models.KindCommandExecution:   {"tenant_id", "user_id", "command_name", "duration_ms", "status"},
	models.KindAgentInteraction:   {"tenant_id", "user_id", "agent_name", "input_tokens", "output_tokens"},
	models.KindSession:            {"tenant_id", "user_id", "session_id", "duration_minutes"},
	models.KindProductivityMetric: {"tenant_id", "user_id", "metric_name", "value"},
}

// RequiredFields returns the required field set for a record kind.
func RequiredFields(kind models.RecordKind) []string {
	return requiredFields[kind]
}

// Engine assesses record quality and applies enrichment rules.
type Engine struct {
	stats  *Stats
	logger *slog.Logger

	// now is swappable for deterministic tests.
	now func() time.Time
}

// NewEngine creates a quality engine.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		stats:  &Stats{},
		logger: logger,
		now:    time.Now,
	}
}

// Stats returns the engine's reporting counters.
func (e *Engine) Stats() *Stats {
	return e.stats
}

// Assess scores a record and detects anomalies. It never panics past its
// boundary: on internal failure it returns the lowest-confidence default
// (zero scores, no anomalies) so the pipeline keeps moving on malformed input.
func (e *Engine) Assess(rec *models.TelemetryRecord) (assessment models.QualityAssessment, anomalies []models.Anomaly) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("quality assessment panic",
				slog.String("record_id", rec.ID),
				slog.Any("panic", r))
			assessment = models.QualityAssessment{AssessedAt: e.now()}
			anomalies = nil
		}
	}()

	completeness := e.completeness(rec)
	accuracy := e.accuracy(rec)
	consistency := e.consistency(rec)
	timeliness := e.timeliness(rec)

	assessment = models.QualityAssessment{
		Completeness: completeness,
		Accuracy:     accuracy,
		Consistency:  consistency,
		Timeliness:   timeliness,
		Overall: weightCompleteness*completeness +
			weightAccuracy*accuracy +
			weightConsistency*consistency +
			weightTimeliness*timeliness,
		AssessedAt: e.now(),
	}

	anomalies = e.detectAnomalies(rec)

	e.stats.recordAssessment(anomalies)
	return assessment, anomalies
}

// completeness is the fraction of kind-specific required fields present and
// non-empty. Unknown kinds score zero.
func (e *Engine) completeness(rec *models.TelemetryRecord) float64 {
	required := requiredFields[rec.Kind]
	if len(required) == 0 {
		return 0
	}
	present := 0
	for _, name := range required {
		if fieldPresent(rec, name) {
			present++
		}
	}
	return float64(present) / float64(len(required))
}

// rangeCheck is one accuracy validation: a field plus its valid range.
type rangeCheck struct {
	field string
	min   float64
	max   float64
}

var rangeChecks = []rangeCheck{
	{"duration_ms", 0, 300000},
	{"input_tokens", 0, math.MaxFloat64},
	{"output_tokens", 0, math.MaxFloat64},
	{"value", 0, 100},
}

// accuracy is 1 − invalid/checked over the range-checked fields present on
// the record. Records with no checked fields score 1.0.
func (e *Engine) accuracy(rec *models.TelemetryRecord) float64 {
	checked, invalid := 0, 0
	for _, c := range rangeChecks {
		// The productivity score range only applies to productivity metrics.
		if c.field == "value" && rec.Kind != models.KindProductivityMetric {
			continue
		}
		v, ok := numField(rec.Fields, c.field)
		if !ok {
			continue
		}
		checked++
		if v < c.min || v > c.max {
			invalid++
		}
	}
	if checked == 0 {
		return 1.0
	}
	return 1.0 - float64(invalid)/float64(checked)
}

// consistency averages binary rule checks: each applicable rule contributes
// 1.0 when satisfied and 0.5 when violated. No applicable rules scores 1.0.
func (e *Engine) consistency(rec *models.TelemetryRecord) float64 {
	type rule struct {
		applies func() bool
		holds   func() bool
	}

	status, hasStatus := strField(rec.Fields, "status")
	_, hasErrMsg := strField(rec.Fields, "error_message")

	rules := []rule{
		{
			// status=error must carry an error message
			applies: func() bool { return hasStatus && status == "error" },
			holds:   func() bool { return hasErrMsg },
		},
		{
			// status=success must not carry an error message
			applies: func() bool { return hasStatus && status == "success" },
			holds:   func() bool { return !hasErrMsg },
		},
	}

	applied, total := 0, 0.0
	for _, r := range rules {
		if !r.applies() {
			continue
		}
		applied++
		if r.holds() {
			total += 1.0
		} else {
			total += 0.5
		}
	}
	if applied == 0 {
		return 1.0
	}
	return total / float64(applied)
}

// timeliness grades record age computed from the client timestamp only;
// server clock skew is tolerated and future timestamps count as fresh.
func (e *Engine) timeliness(rec *models.TelemetryRecord) float64 {
	if rec.ClientTime.IsZero() {
		return 0.7
	}
	age := e.now().Sub(rec.ClientTime)
	switch {
	case age <= time.Hour:
		return 1.0
	case age <= 24*time.Hour:
		return 0.9
	default:
		return 0.7
	}
}
