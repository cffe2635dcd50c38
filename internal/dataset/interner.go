package dataset

import "sync"

// Interner maps canonical identifiers to dense integer ids in discovery order
type Interner struct {
	mu     sync.RWMutex
	values []string
	ids    map[string]int
}

// NewInterner creates an empty interner
func NewInterner() *Interner {
	return &Interner{
		values: make([]string, 0),
		ids:    make(map[string]int),
	}
}

// Intern returns the id of value, assigning the next id on first occurrence
func (in *Interner) Intern(value string) int {
	in.mu.RLock()
	id, ok := in.ids[value]
	in.mu.RUnlock()
	if ok {
		return id
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	// Another caller may have interned it between the two locks
	if id, ok := in.ids[value]; ok {
		return id
	}

	id = len(in.values)
	in.values = append(in.values, value)
	in.ids[value] = id
	return id
}

// Exists reports whether value has already been interned
func (in *Interner) Exists(value string) bool {
	in.mu.RLock()
	defer in.mu.RUnlock()
	_, ok := in.ids[value]
	return ok
}

// ID returns the id of value without interning it
func (in *Interner) ID(value string) (int, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	id, ok := in.ids[value]
	return id, ok
}

// Value returns the identifier stored at id
func (in *Interner) Value(id int) (string, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if id < 0 || id >= len(in.values) {
		return "", false
	}
	return in.values[id], true
}

// Len returns the number of interned values
func (in *Interner) Len() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return len(in.values)
}

// Values returns a copy of all values ordered by id
func (in *Interner) Values() []string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	out := make([]string, len(in.values))
	copy(out, in.values)
	return out
}

// internerOf builds an interner holding values in order, rejecting duplicates
func internerOf(values []string) (*Interner, error) {
	ids := make(map[string]int, len(values))
	for i, v := range values {
		if _, dup := ids[v]; dup {
			return nil, &InvariantError{Reason: "duplicate identifier " + v}
		}
		ids[v] = i
	}
	return &Interner{
		values: append(make([]string, 0, len(values)), values...),
		ids:    ids,
	}, nil
}

// replace takes over the contents of other
func (in *Interner) replace(other *Interner) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.values = other.values
	in.ids = other.ids
}
