// Package messaging defines standard subject names for the telemetry bus.
package messaging

import (
	"fmt"
	"hash/fnv"
)

// Subject prefixes for the telemetry streams. Partitioned streams append a
// numeric partition suffix: {prefix}.{partition}.
const (
	SubjectRawPrefix        = "telemetry.raw"        // validated records with quality assessment
	SubjectProcessedPrefix  = "telemetry.processed"  // enriched records
	SubjectAggregatedPrefix = "telemetry.aggregated" // flushed window rollups
	SubjectAlertsPrefix     = "telemetry.alerts"     // anomaly and operational alerts
	SubjectDeadLetterPrefix = "telemetry.deadletter" // records that exhausted processing retries
)

// PartitionSubject returns the subject for a specific partition of a stream.
func PartitionSubject(prefix string, partition int) string {
	return fmt.Sprintf("%s.%d", prefix, partition)
}

// WildcardSubject returns the subject matching all partitions of a stream.
func WildcardSubject(prefix string) string {
	return prefix + ".>"
}

// PartitionFor deterministically maps a record key to a partition.
// Records with the same key always land on the same partition, which is what
// gives the aggregator its per-key ordering guarantee.
func PartitionFor(key string, partitions int) int {
	if partitions <= 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(partitions))
}
