package gate

import (
	"fmt"

	"github.com/FortiumPartners/devpulse/internal/models"
)

// identityFields is the structural minimum per kind. A record missing one of
// these cannot be attributed or aggregated and is rejected outright; softer
// omissions (a command without a duration) pass the gate and show up as a
// reduced completeness score instead.
var identityFields = map[models.RecordKind][]string{
	models.KindCommandExecution:   {"user_id", "command_name"},
	models.KindAgentInteraction:   {"user_id", "agent_name"},
	models.KindSession:            {"user_id", "session_id"},
	models.KindProductivityMetric: {"user_id", "metric_name", "value"},
}

// validate checks a record's structural schema. The returned detail names the
// first violation found.
func validate(rec *models.TelemetryRecord) (string, bool) {
	if !rec.Kind.Valid() {
		return fmt.Sprintf("unknown record kind %q", rec.Kind), false
	}
	if len(rec.Fields) == 0 {
		return "record has no fields", false
	}

	for _, name := range identityFields[rec.Kind] {
		v, ok := rec.Fields[name]
		if !ok || v == nil {
			return fmt.Sprintf("missing required field %q", name), false
		}
		if s, isStr := v.(string); isStr && s == "" {
			return fmt.Sprintf("required field %q is empty", name), false
		}
	}

	if rec.Kind == models.KindProductivityMetric {
		switch rec.Fields["value"].(type) {
		case float64, int, int64:
		default:
			return `field "value" must be numeric`, false
		}
	}
	return "", true
}
