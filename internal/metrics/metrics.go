package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/alvmarrod/kg-weaver/internal/crawler"
	"github.com/alvmarrod/kg-weaver/internal/storage"
)

// Tracker holds and manages crawl metrics
type Tracker struct {
	mu               sync.Mutex
	data             storage.Metrics
	levels           []crawler.LevelReport
	totalFetchTimeMs int64
	fetchCount       int
}

// report is the exported metrics document
type report struct {
	storage.Metrics
	Levels []crawler.LevelReport `json:"levels,omitempty"`
}

// NewTracker creates a new metrics tracker
func NewTracker(jobID string) *Tracker {
	return &Tracker{
		data: storage.Metrics{
			JobID:     jobID,
			StartTime: time.Now(),
		},
	}
}

// RecordDiscovery counts an entity admitted to a frontier
func (t *Tracker) RecordDiscovery() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.EntitiesDiscovered++
}

// RecordCompletion folds one finished unit of work into the counters
func (t *Tracker) RecordCompletion(c crawler.Completion) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch c.Outcome {
	case crawler.OutcomeExplored:
		t.data.EntitiesExplored++
	case crawler.OutcomeSkipped:
		t.data.EntitiesSkipped++
	case crawler.OutcomeInvalid:
		t.data.EntitiesInvalid++
	case crawler.OutcomeFailed:
		t.data.EntitiesFailed++
	}

	if c.Attempts > 1 {
		t.data.Retries += c.Attempts - 1
	}
	t.data.TriplesRecorded += c.Stats.Triples

	if c.Attempts > 0 {
		t.totalFetchTimeMs += c.Duration.Milliseconds()
		t.fetchCount++
	}
}

// RecordResult stores the per-level reports of a finished crawl
func (t *Tracker) RecordResult(res *crawler.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.levels = append([]crawler.LevelReport(nil), res.Levels...)
	t.data.LevelsCompleted = len(res.Levels)
}

// GetSnapshot returns a copy of current metrics
func (t *Tracker) GetSnapshot() storage.Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() storage.Metrics {
	snapshot := t.data
	snapshot.TotalFetchTimeMs = t.totalFetchTimeMs

	// Calculate average fetch time
	if t.fetchCount > 0 {
		snapshot.AvgFetchTimeMs = t.totalFetchTimeMs / int64(t.fetchCount)
	}

	return snapshot
}

// Finish stamps the end time and termination reason and returns the final metrics
func (t *Tracker) Finish(reason string) storage.Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.data.EndTime = time.Now()
	t.data.TerminationReason = reason
	return t.snapshotLocked()
}

// WriteToFile exports metrics to a JSON file
func (t *Tracker) WriteToFile(path, reason string) error {
	final := t.Finish(reason)

	t.mu.Lock()
	doc := report{Metrics: final, Levels: t.levels}
	t.mu.Unlock()

	jsonData, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}

	return nil
}

// LogProgress formats the current counters for periodic console updates
func (t *Tracker) LogProgress() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return fmt.Sprintf("Entities: %d discovered, %d explored, %d failed | Triples: %d | Retries: %d",
		t.data.EntitiesDiscovered,
		t.data.EntitiesExplored,
		t.data.EntitiesFailed,
		t.data.TriplesRecorded,
		t.data.Retries,
	)
}
