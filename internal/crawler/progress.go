package crawler

import (
	"fmt"
	"sync"
	"time"
)

// Snapshot is a point-in-time view of crawl progress
type Snapshot struct {
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	Level         int        `json:"level"`
	TotalLevels   int        `json:"total_levels"`
	Processed     int        `json:"processed"`
	Total         int        `json:"total"`
	Failed        int        `json:"failed"`
	TotalFailed   int        `json:"total_failed"`
	FailedByLevel []int      `json:"failed_by_level"`
	Active        bool       `json:"active"`
}

// Percent returns the share of the current level already processed
func (s Snapshot) Percent() float64 {
	if s.Total == 0 {
		return 0
	}
	return 100 * float64(s.Processed) / float64(s.Total)
}

// Progress is written by the orchestrator and completing workers and may be read at any time
type Progress struct {
	mu   sync.RWMutex
	data Snapshot
}

// NewProgress creates an inactive progress reporter
func NewProgress() *Progress {
	return &Progress{}
}

func (p *Progress) start(totalLevels int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data = Snapshot{
		StartedAt:     time.Now(),
		TotalLevels:   totalLevels,
		FailedByLevel: make([]int, 0, totalLevels),
		Active:        true,
	}
}

func (p *Progress) beginLevel(level, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data.Level = level
	p.data.Total = total
	p.data.Processed = 0
	p.data.Failed = 0
	p.data.FailedByLevel = append(p.data.FailedByLevel, 0)
}

func (p *Progress) complete(failed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data.Processed++
	if failed {
		p.data.Failed++
		p.data.TotalFailed++
		if n := len(p.data.FailedByLevel); n > 0 {
			p.data.FailedByLevel[n-1]++
		}
	}
}

func (p *Progress) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	p.data.Active = false
	p.data.FinishedAt = &now
}

// Snapshot returns a copy of the current progress
func (p *Progress) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	snap := p.data
	snap.FailedByLevel = append([]int(nil), p.data.FailedByLevel...)
	if p.data.FinishedAt != nil {
		finished := *p.data.FinishedAt
		snap.FinishedAt = &finished
	}
	return snap
}

// String renders a one-line status for terminal logging
func (p *Progress) String() string {
	s := p.Snapshot()
	if s.StartedAt.IsZero() {
		return "Crawl not started"
	}

	end := time.Now()
	if s.FinishedAt != nil {
		end = *s.FinishedAt
	}

	return fmt.Sprintf("Elapsed time: %s. Depth %d of %d. Entities scanned: %.2f%% (%d of %d). Failed: %d (%d total). Active: %t",
		end.Sub(s.StartedAt).Truncate(time.Second),
		s.Level+1,
		s.TotalLevels,
		s.Percent(),
		s.Processed,
		s.Total,
		s.Failed,
		s.TotalFailed,
		s.Active,
	)
}
