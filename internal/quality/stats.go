package quality

import (
	"sync/atomic"

	"github.com/FortiumPartners/devpulse/internal/models"
)

// Stats holds append-only reporting counters for the engine. Counters are
// atomics on the hot path; they inform dashboards, never decisions.
type Stats struct {
	assessed   atomic.Int64
	enriched   atomic.Int64
	rulesFired atomic.Int64

	outliers   atomic.Int64
	suspicious atomic.Int64
	drift      atomic.Int64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	RecordsAssessed    int64 `json:"records_assessed"`
	RecordsEnriched    int64 `json:"records_enriched"`
	RulesApplied       int64 `json:"rules_applied"`
	Outliers           int64 `json:"outliers"`
	SuspiciousPatterns int64 `json:"suspicious_patterns"`
	DataDrift          int64 `json:"data_drift"`
}

func (s *Stats) recordAssessment(anomalies []models.Anomaly) {
	s.assessed.Add(1)
	for _, a := range anomalies {
		switch a.Type {
		case models.AnomalyOutlier:
			s.outliers.Add(1)
		case models.AnomalySuspiciousPattern:
			s.suspicious.Add(1)
		case models.AnomalyDataDrift:
			s.drift.Add(1)
		}
	}
}

func (s *Stats) recordEnrichment(rules int) {
	s.enriched.Add(1)
	s.rulesFired.Add(int64(rules))
}

// Snapshot returns a consistent-enough copy for reporting.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		RecordsAssessed:    s.assessed.Load(),
		RecordsEnriched:    s.enriched.Load(),
		RulesApplied:       s.rulesFired.Load(),
		Outliers:           s.outliers.Load(),
		SuspiciousPatterns: s.suspicious.Load(),
		DataDrift:          s.drift.Load(),
	}
}
