package storage

import (
	"fmt"
	"slices"
	"time"

	"github.com/alvmarrod/kg-weaver/internal/dataset"
)

// Partition names stored in the triples table
const (
	PartitionTrain = "train"
	PartitionValid = "valid"
	PartitionTest  = "test"
)

// Snapshot is everything needed to resume a crawl or reload a dataset
type Snapshot struct {
	Entities  []string
	Relations []string
	Train     []dataset.Triple
	Valid     []dataset.Triple
	Test      []dataset.Triple
	Explored  []string
	Frontier  []string
}

// Len returns the number of triples across the three partitions
func (s *Snapshot) Len() int {
	return len(s.Train) + len(s.Valid) + len(s.Test)
}

// Capture verifies ds and builds a snapshot of it, splitting triples with ratio.
// frontier holds the raw values still waiting to be explored.
func Capture(ds *dataset.Dataset, ratio float64, frontier []string) (*Snapshot, error) {
	if err := ds.Verify(); err != nil {
		return nil, fmt.Errorf("refusing to snapshot: %w", err)
	}

	split, err := ds.Split(ratio)
	if err != nil {
		return nil, err
	}

	explored := ds.Explored()
	slices.Sort(explored)

	return &Snapshot{
		Entities:  ds.Entities(),
		Relations: ds.Relations(),
		Train:     split.Train,
		Valid:     split.Valid,
		Test:      split.Test,
		Explored:  explored,
		Frontier:  append([]string(nil), frontier...),
	}, nil
}

// Requeue moves an entity whose query never finished from the explored-set back
// to the frontier, so a resumed crawl queries it again
func (s *Snapshot) Requeue(canonical, raw string) {
	s.Explored = slices.DeleteFunc(s.Explored, func(e string) bool { return e == canonical })
	if !slices.Contains(s.Frontier, raw) {
		s.Frontier = append(s.Frontier, raw)
	}
}

// Apply loads the snapshot into an empty dataset
func (s *Snapshot) Apply(ds *dataset.Dataset) error {
	if err := ds.Restore(s.Entities, s.Relations, s.Train, s.Valid, s.Test); err != nil {
		return err
	}
	ds.MarkExplored(s.Explored...)
	return nil
}

// Metrics tracks crawl statistics for export on exit
type Metrics struct {
	JobID              string    `json:"job_id"`
	StartTime          time.Time `json:"start_time"`
	EndTime            time.Time `json:"end_time"`
	EntitiesDiscovered int       `json:"entities_discovered"`
	EntitiesExplored   int       `json:"entities_explored"`
	EntitiesSkipped    int       `json:"entities_skipped"`
	EntitiesInvalid    int       `json:"entities_invalid"`
	EntitiesFailed     int       `json:"entities_failed"`
	Retries            int       `json:"retries"`
	TriplesRecorded    int       `json:"triples_recorded"`
	TotalFetchTimeMs   int64     `json:"total_fetch_time_ms"`
	AvgFetchTimeMs     int64     `json:"avg_fetch_time_ms"`
	LevelsCompleted    int       `json:"levels_completed"`
	TerminationReason  string    `json:"termination_reason"`
}
