// Package models defines the core data types flowing through the collector.
package models

import "time"

// RecordKind identifies the schema family of a telemetry record.
type RecordKind string

const (
	KindCommandExecution   RecordKind = "command_execution"
	KindAgentInteraction   RecordKind = "agent_interaction"
	KindSession            RecordKind = "session"
	KindProductivityMetric RecordKind = "productivity_metric"
)

// Valid reports whether the kind is one of the known record kinds.
func (k RecordKind) Valid() bool {
	switch k {
	case KindCommandExecution, KindAgentInteraction, KindSession, KindProductivityMetric:
		return true
	}
	return false
}

// TelemetryRecord is a single telemetry event. Immutable once accepted by the
// gate; enrichment produces a derived copy rather than mutating in place.
type TelemetryRecord struct {
	ID       string         `json:"id"`
	TenantID string         `json:"tenant_id"`
	Kind     RecordKind     `json:"kind"`
	Fields   map[string]any `json:"fields"`

	// ClientTime is the client-supplied event timestamp. Clock skew against
	// ReceivedAt is tolerated; record age is always computed from ClientTime.
	ClientTime time.Time `json:"client_time"`
	ReceivedAt time.Time `json:"received_at"`

	Assessment *QualityAssessment `json:"assessment,omitempty"`
	Anomalies  []Anomaly          `json:"anomalies,omitempty"`

	// AppliedRules names the enrichment rules applied to this record.
	AppliedRules []string `json:"applied_rules,omitempty"`

	// RetryCount is carried through dead-letter replay so a repeatedly
	// failing record can eventually be discarded.
	RetryCount int `json:"retry_count,omitempty"`
}

// Clone returns a deep copy of the record with its own field map.
func (r *TelemetryRecord) Clone() *TelemetryRecord {
	out := *r
	out.Fields = make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		out.Fields[k] = v
	}
	if r.Anomalies != nil {
		out.Anomalies = append([]Anomaly(nil), r.Anomalies...)
	}
	if r.AppliedRules != nil {
		out.AppliedRules = append([]string(nil), r.AppliedRules...)
	}
	return &out
}

// QualityAssessment holds the four component scores for a record, each in
// [0,1], combined into Overall via fixed weights (0.3/0.4/0.2/0.1).
// Never mutated after creation; a record carries at most one assessment.
type QualityAssessment struct {
	Completeness float64   `json:"completeness"`
	Accuracy     float64   `json:"accuracy"`
	Consistency  float64   `json:"consistency"`
	Timeliness   float64   `json:"timeliness"`
	Overall      float64   `json:"overall"`
	AssessedAt   time.Time `json:"assessed_at"`
}

// AnomalyType classifies a detected anomaly.
type AnomalyType string

const (
	AnomalyOutlier           AnomalyType = "outlier"
	AnomalySuspiciousPattern AnomalyType = "suspicious_pattern"
	AnomalyDataDrift         AnomalyType = "data_drift"
)

// Severity grades how serious an anomaly or alert is.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Anomaly is a non-blocking annotation attached to a record. Zero or more
// anomalies may fire per record; none of them stop processing.
type Anomaly struct {
	Type        AnomalyType `json:"type"`
	Severity    Severity    `json:"severity"`
	Confidence  float64     `json:"confidence"`
	Field       string      `json:"field"`
	Description string      `json:"description"`
	Suggestion  string      `json:"suggestion,omitempty"`
}

// RejectReason is the machine-readable code returned for a rejected item.
type RejectReason string

const (
	ReasonSchemaInvalid  RejectReason = "schema-invalid"
	ReasonRateLimited    RejectReason = "rate-limited"
	ReasonBatchTooLarge  RejectReason = "batch-too-large"
	ReasonDeadLetterFull RejectReason = "dead-letter-full"
)

// Rejection describes one rejected batch item.
type Rejection struct {
	Index  int          `json:"index"`
	Kind   RecordKind   `json:"kind,omitempty"`
	Reason RejectReason `json:"reason"`
	Detail string       `json:"detail,omitempty"`
}

// BatchRequest is the ingestion payload accepted over HTTP.
type BatchRequest struct {
	CommandExecutions   []map[string]any `json:"command_executions"`
	AgentInteractions   []map[string]any `json:"agent_interactions"`
	ProductivityMetrics []map[string]any `json:"productivity_metrics"`
	Timestamp           string           `json:"timestamp,omitempty"`
}

// Size returns the total number of records in the batch.
func (b *BatchRequest) Size() int {
	return len(b.CommandExecutions) + len(b.AgentInteractions) + len(b.ProductivityMetrics)
}

// BatchResponse reports per-item acceptance for an ingestion call.
type BatchResponse struct {
	Accepted   int         `json:"accepted"`
	Rejections []Rejection `json:"rejections,omitempty"`
}

// DeadLetterEntry is a record plus its failure context, held by the
// dead-letter store until replayed or evicted. A failed bucket flush produces
// one entry carrying every contributing record so the whole window can be
// replayed, not just the lost aggregate.
type DeadLetterEntry struct {
	ID         string             `json:"id"`
	Record     *TelemetryRecord   `json:"record,omitempty"`
	Records    []*TelemetryRecord `json:"records,omitempty"`
	Reason     string             `json:"reason"`
	Failure    string             `json:"failure"`
	RetryCount int                `json:"retry_count"`
	EnqueuedAt time.Time          `json:"enqueued_at"`
}

// AllRecords returns the records held by the entry, whichever form it takes.
func (e *DeadLetterEntry) AllRecords() []*TelemetryRecord {
	if len(e.Records) > 0 {
		return e.Records
	}
	if e.Record != nil {
		return []*TelemetryRecord{e.Record}
	}
	return nil
}

// Rollup is a flushed aggregation bucket, keyed for the query service by
// (tenant_id, metric_name, window_size, window_start).
type Rollup struct {
	TenantID    string    `json:"tenant_id"`
	MetricName  string    `json:"metric_name"`
	WindowSize  string    `json:"window_size"`
	WindowStart time.Time `json:"window_start"`

	Count int64   `json:"count"`
	Sum   float64 `json:"sum"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`

	// Quantiles are approximate, computed from a per-bucket sketch.
	P50 float64 `json:"p50,omitempty"`
	P95 float64 `json:"p95,omitempty"`
	P99 float64 `json:"p99,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// AlertEvent is published to the alerts stream for operational consumers.
type AlertEvent struct {
	Type        string    `json:"type"`
	Severity    Severity  `json:"severity"`
	TenantID    string    `json:"tenant_id,omitempty"`
	RecordID    string    `json:"record_id,omitempty"`
	Description string    `json:"description"`
	RaisedAt    time.Time `json:"raised_at"`
}
