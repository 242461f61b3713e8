package logging

import "log/slog"

// Common field names for consistent logging across the collector.
const (
	FieldService  = "service"
	FieldTenantID = "tenant_id"
	FieldRecordID = "record_id"
	FieldKind     = "kind"
	FieldMetric   = "metric"
	FieldWindow   = "window"
	FieldStream   = "stream"
	FieldWorker   = "worker"
	FieldReason   = "reason"
	FieldDuration = "duration_ms"
	FieldError    = "error"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// TenantID returns a slog attribute for a tenant identifier.
func TenantID(id string) slog.Attr {
	return slog.String(FieldTenantID, id)
}

// RecordID returns a slog attribute for a telemetry record ID.
func RecordID(id string) slog.Attr {
	return slog.String(FieldRecordID, id)
}

// Kind returns a slog attribute for a record kind.
func Kind(kind string) slog.Attr {
	return slog.String(FieldKind, kind)
}

// Metric returns a slog attribute for a metric name.
func Metric(name string) slog.Attr {
	return slog.String(FieldMetric, name)
}

// Window returns a slog attribute for a window size.
func Window(size string) slog.Attr {
	return slog.String(FieldWindow, size)
}

// Stream returns a slog attribute for a log stream name.
func Stream(name string) slog.Attr {
	return slog.String(FieldStream, name)
}

// Worker returns a slog attribute for an aggregator worker index.
func Worker(idx int) slog.Attr {
	return slog.Int(FieldWorker, idx)
}

// Reason returns a slog attribute for a rejection or failure reason.
func Reason(reason string) slog.Attr {
	return slog.String(FieldReason, reason)
}

// Duration returns a slog attribute for duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}
