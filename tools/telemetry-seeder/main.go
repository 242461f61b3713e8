package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

var (
	collectorURL = flag.String("url", "http://localhost:8098", "collector endpoint URL")
	tenantID     = flag.String("tenant", "acme", "tenant ID to send as")
	count        = flag.Int("count", 100, "number of records to generate")
	interval     = flag.Duration("interval", 100*time.Millisecond, "interval between batches")
	recordTypes  = flag.String("types", "command,agent,productivity", "comma-separated record types")
	timeSpread   = flag.Duration("time-spread", time.Hour, "spread records over this period (0 for real-time)")
	batchSize    = flag.Int("batch-size", 10, "number of records per batch")
	anomalyRate  = flag.Float64("anomaly-rate", 0.05, "fraction of records generated with anomalous values")
)

func main() {
	flag.Parse()

	gofakeit.Seed(time.Now().UnixNano())

	log.Printf("Starting telemetry seeder:")
	log.Printf("  Collector URL: %s", *collectorURL)
	log.Printf("  Tenant: %s", *tenantID)
	log.Printf("  Record count: %d", *count)
	log.Printf("  Batch size: %d", *batchSize)
	log.Printf("  Time spread: %v", *timeSpread)
	log.Printf("  Anomaly rate: %.2f", *anomalyRate)

	types := strings.Split(*recordTypes, ",")
	log.Printf("  Record types: %v", types)

	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	successCount := 0
	failCount := 0

	batch := newBatch()
	inBatch := 0

	for i := 0; i < *count; i++ {
		recordType := types[rand.Intn(len(types))]
		addRecord(batch, recordType)
		inBatch++

		if inBatch >= *batchSize || i == *count-1 {
			if err := sendBatch(client, *collectorURL, *tenantID, batch); err != nil {
				log.Printf("Failed to send batch: %v", err)
				failCount += inBatch
			} else {
				successCount += inBatch
				if successCount%50 == 0 {
					log.Printf("Progress: %d/%d records sent", successCount, *count)
				}
			}
			batch = newBatch()
			inBatch = 0

			if *interval > 0 && i < *count-1 {
				time.Sleep(*interval)
			}
		}
	}

	log.Printf("\nSeeding complete:")
	log.Printf("  Success: %d records", successCount)
	log.Printf("  Failed: %d records", failCount)
}

type batchPayload struct {
	CommandExecutions   []map[string]interface{} `json:"command_executions"`
	AgentInteractions   []map[string]interface{} `json:"agent_interactions"`
	ProductivityMetrics []map[string]interface{} `json:"productivity_metrics"`
	Timestamp           string                   `json:"timestamp"`
}

func newBatch() *batchPayload {
	return &batchPayload{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

func addRecord(b *batchPayload, recordType string) {
	switch recordType {
	case "agent":
		b.AgentInteractions = append(b.AgentInteractions, generateAgentInteraction())
	case "productivity":
		b.ProductivityMetrics = append(b.ProductivityMetrics, generateProductivityMetric())
	default:
		b.CommandExecutions = append(b.CommandExecutions, generateCommandExecution())
	}
}

func recordTime() string {
	now := time.Now()
	if *timeSpread > 0 {
		now = now.Add(-time.Duration(rand.Int63n(int64(*timeSpread))))
	}
	return now.UTC().Format(time.RFC3339)
}

func anomalous() bool {
	return rand.Float64() < *anomalyRate
}

func generateCommandExecution() map[string]interface{} {
	commands := []string{"go build ./...", "go test ./...", "npm run build", "make lint", "docker compose up", "git rebase main"}
	success := rand.Float32() > 0.1 // 90% success rate

	duration := float64(rand.Intn(30000))
	if anomalous() {
		// Either absurdly slow or instant, both flagged downstream
		if rand.Float32() < 0.5 {
			duration = float64(300001 + rand.Intn(200000))
		} else {
			duration = 0
		}
	}

	event := map[string]interface{}{
		"user_id":      gofakeit.Username(),
		"command_name": commands[rand.Intn(len(commands))],
		"duration_ms":  duration,
		"exit_code":    0,
		"timestamp":    recordTime(),
	}
	if success {
		event["status"] = "success"
	} else {
		event["status"] = "error"
		event["exit_code"] = 1 + rand.Intn(127)
		event["error_message"] = gofakeit.Sentence(6)
	}
	return event
}

func generateAgentInteraction() map[string]interface{} {
	agents := []string{"code-review-bot", "refactor-assistant", "test-writer", "doc-generator"}

	inputTokens := 100 + rand.Intn(4000)
	outputTokens := 100 + rand.Intn(8000)
	if anomalous() {
		// Runaway generation: output dwarfs input
		outputTokens = inputTokens * (21 + rand.Intn(20))
	}

	return map[string]interface{}{
		"user_id":       gofakeit.Username(),
		"agent_name":    agents[rand.Intn(len(agents))],
		"input_tokens":  inputTokens,
		"output_tokens": outputTokens,
		"duration_ms":   float64(200 + rand.Intn(20000)),
		"success":       rand.Float32() > 0.05,
		"timestamp":     recordTime(),
	}
}

func generateProductivityMetric() map[string]interface{} {
	metrics := []string{"focus_minutes", "commits_per_day", "review_turnaround_score", "build_success_rate"}

	return map[string]interface{}{
		"user_id":     gofakeit.Username(),
		"metric_name": metrics[rand.Intn(len(metrics))],
		"value":       float64(rand.Intn(101)),
		"timestamp":   recordTime(),
	}
}

func sendBatch(client *http.Client, baseURL, tenant string, batch *batchPayload) error {
	data, err := json.Marshal(batch)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/v1/telemetry", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", tenant)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusMultiStatus {
		return fmt.Errorf("collector returned %s", resp.Status)
	}
	return nil
}
