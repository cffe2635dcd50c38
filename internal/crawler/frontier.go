package crawler

import (
	"sync"

	"github.com/alvmarrod/kg-weaver/internal/dataset"
)

// Entry is a frontier item: the raw value as discovered and its canonical form
type Entry struct {
	Raw       string
	Canonical string
}

// Frontier is a thread-safe queue of entities for the next BFS level.
// Duplicates are collapsed on their canonical form.
type Frontier struct {
	mu       sync.Mutex
	validate dataset.ValidateFunc
	items    []Entry
	seen     map[string]bool
}

// NewFrontier creates an empty frontier using validate to canonicalize pushed values
func NewFrontier(validate dataset.ValidateFunc) *Frontier {
	return &Frontier{
		validate: validate,
		items:    make([]Entry, 0),
		seen:     make(map[string]bool),
	}
}

// Push adds raw if it is valid and not already queued
// Returns true if added, false if invalid or duplicate
func (f *Frontier) Push(raw string) bool {
	canonical, ok := f.validate(raw)
	if !ok {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.seen[canonical] {
		return false
	}

	f.seen[canonical] = true
	f.items = append(f.items, Entry{Raw: raw, Canonical: canonical})
	return true
}

// Drain removes and returns all queued entries in push order
func (f *Frontier) Drain() []Entry {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries := f.items
	f.items = make([]Entry, 0)
	return entries
}

// levelCap returns how many entities level may admit, or -1 for no cap.
// The allowance grows cubically with depth: maxFrontier * (level+1)^3.
func levelCap(maxFrontier, level int) int {
	if maxFrontier <= 0 {
		return -1
	}
	n := level + 1
	return maxFrontier * n * n * n
}
