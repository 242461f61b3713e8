package quality

import (
	"strconv"

	"github.com/FortiumPartners/devpulse/internal/models"
)

// numField extracts a numeric field value, accepting the types a JSON decode
// or programmatic construction can produce.
func numField(fields map[string]any, name string) (float64, bool) {
	v, ok := fields[name]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// strField extracts a non-empty string field value.
func strField(fields map[string]any, name string) (string, bool) {
	v, ok := fields[name]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// fieldPresent reports whether a field is present and non-empty. The tenant
// identifier lives on the record itself rather than in the field map.
func fieldPresent(rec *models.TelemetryRecord, name string) bool {
	if name == "tenant_id" {
		return rec.TenantID != ""
	}
	v, ok := rec.Fields[name]
	if !ok || v == nil {
		return false
	}
	if s, isStr := v.(string); isStr && s == "" {
		return false
	}
	return true
}
