package metrics

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alvmarrod/kg-weaver/internal/crawler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_Counters(t *testing.T) {
	tr := NewTracker("job-7")

	tr.RecordDiscovery()
	tr.RecordDiscovery()
	tr.RecordCompletion(crawler.Completion{
		Outcome:  crawler.OutcomeExplored,
		Attempts: 1,
		Stats:    crawler.FetchStats{Triples: 4},
		Duration: 20 * time.Millisecond,
	})
	tr.RecordCompletion(crawler.Completion{
		Outcome:  crawler.OutcomeFailed,
		Attempts: 3,
		Err:      errors.New("unavailable"),
		Duration: 40 * time.Millisecond,
	})
	tr.RecordCompletion(crawler.Completion{Outcome: crawler.OutcomeSkipped})
	tr.RecordCompletion(crawler.Completion{Outcome: crawler.OutcomeInvalid})

	snap := tr.GetSnapshot()
	assert.Equal(t, "job-7", snap.JobID)
	assert.Equal(t, 2, snap.EntitiesDiscovered)
	assert.Equal(t, 1, snap.EntitiesExplored)
	assert.Equal(t, 1, snap.EntitiesFailed)
	assert.Equal(t, 1, snap.EntitiesSkipped)
	assert.Equal(t, 1, snap.EntitiesInvalid)
	assert.Equal(t, 2, snap.Retries)
	assert.Equal(t, 4, snap.TriplesRecorded)
	assert.Equal(t, int64(60), snap.TotalFetchTimeMs)
	assert.Equal(t, int64(30), snap.AvgFetchTimeMs)

	assert.Equal(t, "Entities: 2 discovered, 1 explored, 1 failed | Triples: 4 | Retries: 2", tr.LogProgress())
}

func TestTracker_WriteToFile(t *testing.T) {
	tr := NewTracker("job-8")
	tr.RecordCompletion(crawler.Completion{Outcome: crawler.OutcomeExplored, Attempts: 1})
	tr.RecordResult(&crawler.Result{Levels: []crawler.LevelReport{{Level: 0, Explored: 1}}})

	path := filepath.Join(t.TempDir(), "metrics.json")
	require.NoError(t, tr.WriteToFile(path, "completed"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "job-8", doc["job_id"])
	assert.Equal(t, "completed", doc["termination_reason"])
	assert.EqualValues(t, 1, doc["entities_explored"])
	assert.EqualValues(t, 1, doc["levels_completed"])
	assert.Len(t, doc["levels"], 1)

	final := tr.GetSnapshot()
	assert.False(t, final.EndTime.IsZero())
	assert.False(t, final.EndTime.Before(final.StartTime))
}
