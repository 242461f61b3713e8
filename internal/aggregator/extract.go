package aggregator

import "github.com/FortiumPartners/devpulse/internal/models"

// Sample is one metric value extracted from a telemetry record.
type Sample struct {
	Metric string
	Value  float64
}

// ExtractSamples maps a record to the metric series it feeds. One record can
// feed several series (an agent interaction contributes both latency and
// token volume).
func ExtractSamples(rec *models.TelemetryRecord) []Sample {
	var out []Sample

	num := func(name string) (float64, bool) {
		v, ok := rec.Fields[name]
		if !ok || v == nil {
			return 0, false
		}
		switch n := v.(type) {
		case float64:
			return n, true
		case int:
			return float64(n), true
		case int64:
			return float64(n), true
		}
		return 0, false
	}

	switch rec.Kind {
	case models.KindCommandExecution:
		if d, ok := num("duration_ms"); ok {
			out = append(out, Sample{Metric: "command.duration_ms", Value: d})
		}
	case models.KindAgentInteraction:
		in, hasIn := num("input_tokens")
		tokOut, hasOut := num("output_tokens")
		if hasIn || hasOut {
			out = append(out, Sample{Metric: "agent.total_tokens", Value: in + tokOut})
		}
		if d, ok := num("duration_ms"); ok {
			out = append(out, Sample{Metric: "agent.duration_ms", Value: d})
		}
	case models.KindSession:
		if m, ok := num("duration_minutes"); ok {
			out = append(out, Sample{Metric: "session.duration_minutes", Value: m})
		}
	case models.KindProductivityMetric:
		name, ok := rec.Fields["metric_name"].(string)
		if !ok || name == "" {
			return nil
		}
		if v, okV := num("value"); okV {
			out = append(out, Sample{Metric: name, Value: v})
		}
	}
	return out
}
