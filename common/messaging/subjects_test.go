package messaging

import (
	"strings"
	"testing"
)

func TestSubjectPrefixes_Defined(t *testing.T) {
	prefixes := map[string]string{
		"SubjectRawPrefix":        SubjectRawPrefix,
		"SubjectProcessedPrefix":  SubjectProcessedPrefix,
		"SubjectAggregatedPrefix": SubjectAggregatedPrefix,
		"SubjectAlertsPrefix":     SubjectAlertsPrefix,
		"SubjectDeadLetterPrefix": SubjectDeadLetterPrefix,
	}

	for name, value := range prefixes {
		if value == "" {
			t.Errorf("%s is empty", name)
		}
		if !strings.HasPrefix(value, "telemetry.") {
			t.Errorf("%s = %q, should start with 'telemetry.'", name, value)
		}
	}
}

func TestPartitionSubject(t *testing.T) {
	got := PartitionSubject(SubjectRawPrefix, 7)
	if got != "telemetry.raw.7" {
		t.Errorf("PartitionSubject = %q, want %q", got, "telemetry.raw.7")
	}
}

func TestWildcardSubject(t *testing.T) {
	got := WildcardSubject(SubjectAlertsPrefix)
	if got != "telemetry.alerts.>" {
		t.Errorf("WildcardSubject = %q, want %q", got, "telemetry.alerts.>")
	}
}

func TestPartitionFor_Deterministic(t *testing.T) {
	key := "acme|command.duration_ms|1m"
	first := PartitionFor(key, 12)
	for i := 0; i < 100; i++ {
		if got := PartitionFor(key, 12); got != first {
			t.Fatalf("PartitionFor not deterministic: %d != %d", got, first)
		}
	}
	if first < 0 || first >= 12 {
		t.Errorf("PartitionFor out of range: %d", first)
	}
}

func TestPartitionFor_SinglePartition(t *testing.T) {
	if got := PartitionFor("anything", 1); got != 0 {
		t.Errorf("PartitionFor with 1 partition = %d, want 0", got)
	}
	if got := PartitionFor("anything", 0); got != 0 {
		t.Errorf("PartitionFor with 0 partitions = %d, want 0", got)
	}
}

func TestPartitionFor_Spread(t *testing.T) {
	seen := make(map[int]bool)
	keys := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l", "m", "n"}
	for _, k := range keys {
		seen[PartitionFor(k, 4)] = true
	}
	// FNV over 14 distinct keys should hit more than one of 4 partitions.
	if len(seen) < 2 {
		t.Errorf("partition spread too narrow: %v", seen)
	}
}
