package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/alvmarrod/kg-weaver/internal/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Storage {
	t.Helper()
	s, err := NewStorage(filepath.Join(t.TempDir(), "dataset.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sample(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds := dataset.New()
	for i, tr := range [][3]string{
		{"a", "b", "knows"},
		{"b", "c", "knows"},
		{"c", "a", "likes"},
		{"a", "c", "likes"},
		{"b", "a", "knows"},
		{"c", "b", "hates"},
	} {
		require.True(t, ds.AddTriple(tr[0], tr[1], tr[2]), "triple %d", i)
	}
	ds.MarkExplored("b", "a")
	return ds
}

func TestStorage_EmptyLoad(t *testing.T) {
	s := openTemp(t)

	snap, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, snap.Entities)
	assert.Empty(t, snap.Relations)
	assert.Zero(t, snap.Len())
	assert.Empty(t, snap.Frontier)
}

func TestStorage_SaveLoadRoundTrip(t *testing.T) {
	s := openTemp(t)
	ds := sample(t)

	snap, err := Capture(ds, 0.5, []string{"d", "e"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, snap.Explored)
	require.NoError(t, s.Save(snap))

	loaded, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, snap, loaded)

	restored := dataset.New()
	require.NoError(t, loaded.Apply(restored))
	assert.Equal(t, ds.Entities(), restored.Entities())
	assert.Equal(t, ds.Relations(), restored.Relations())
	assert.True(t, restored.IsExplored("a"))
	assert.False(t, restored.IsExplored("c"))

	// An unchanged dataset splits back into the stored partitions
	split, err := restored.Split(0.5)
	require.NoError(t, err)
	assert.Equal(t, snap.Train, split.Train)
	assert.Equal(t, snap.Valid, split.Valid)
	assert.Equal(t, snap.Test, split.Test)
}

func TestStorage_SaveReplacesPreviousSnapshot(t *testing.T) {
	s := openTemp(t)

	first, err := Capture(sample(t), 0.5, []string{"x"})
	require.NoError(t, err)
	require.NoError(t, s.Save(first))

	small := dataset.New()
	require.True(t, small.AddTriple("p", "q", "r"))
	second, err := Capture(small, 0.8, nil)
	require.NoError(t, err)
	require.NoError(t, s.Save(second))

	loaded, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"p", "q"}, loaded.Entities)
	assert.Equal(t, []string{"r"}, loaded.Relations)
	assert.Equal(t, 1, loaded.Len())
	assert.Empty(t, loaded.Frontier)
	assert.Empty(t, loaded.Explored)
}

func TestCapture_RejectsInvalidRatio(t *testing.T) {
	_, err := Capture(sample(t), 1, nil)
	assert.ErrorIs(t, err, dataset.ErrInvalidRatio)
}

func TestSnapshot_Requeue(t *testing.T) {
	snap, err := Capture(sample(t), 0.8, []string{"c"})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, snap.Explored)

	snap.Requeue("b", "b")
	snap.Requeue("b", "b")
	assert.Equal(t, []string{"a"}, snap.Explored)
	assert.Equal(t, []string{"c", "b"}, snap.Frontier)
}

func TestStorage_Runs(t *testing.T) {
	s := openTemp(t)
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveRun(Metrics{
		JobID:            "job-1",
		StartTime:        start,
		EndTime:          start.Add(time.Minute),
		EntitiesExplored: 3,
	}))
	require.NoError(t, s.SaveRun(Metrics{
		JobID:             "job-1",
		StartTime:         start,
		EndTime:           start.Add(2 * time.Minute),
		EntitiesExplored:  5,
		EntitiesFailed:    1,
		TriplesRecorded:   9,
		TerminationReason: "completed",
	}))

	runs, err := s.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "job-1", runs[0].JobID)
	assert.Equal(t, 5, runs[0].EntitiesExplored)
	assert.Equal(t, 1, runs[0].EntitiesFailed)
	assert.Equal(t, 9, runs[0].TriplesRecorded)
	assert.Equal(t, "completed", runs[0].TerminationReason)
	assert.True(t, runs[0].FinishedAt.Equal(start.Add(2*time.Minute)))
}
