package dataset

import (
	"errors"
	"fmt"
	"sync"
)

// ErrInvariant marks a broken referential invariant between triples and the interners
var ErrInvariant = errors.New("dataset invariant violated")

// InvariantError describes an invariant violation
type InvariantError struct {
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%v: %s", ErrInvariant, e.Reason)
}

func (e *InvariantError) Unwrap() error {
	return ErrInvariant
}

// Triple is a (subject, object, predicate) edge expressed with interned ids
type Triple struct {
	Subject   int
	Object    int
	Predicate int
}

// Dataset is the append-only triple store built on two interners.
// All methods are safe for concurrent use.
type Dataset struct {
	mu        sync.Mutex
	validator Validator
	entities  *Interner
	relations *Interner
	triples   []Triple
	explored  map[string]bool
	fault     error
	splitSeed uint64
	split     *Split
}

// Option configures a Dataset
type Option func(*Dataset)

// WithValidator selects the backend validator
func WithValidator(v Validator) Option {
	return func(d *Dataset) {
		d.validator = v
	}
}

// WithSplitSeed fixes the shuffle seed used by Split
func WithSplitSeed(seed uint64) Option {
	return func(d *Dataset) {
		d.splitSeed = seed
	}
}

// New creates an empty dataset using the permissive validator unless overridden
func New(opts ...Option) *Dataset {
	d := &Dataset{
		validator: Permissive(),
		entities:  NewInterner(),
		relations: NewInterner(),
		triples:   make([]Triple, 0),
		explored:  make(map[string]bool),
		splitSeed: 1,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ValidateEntity canonicalizes a raw entity value
func (d *Dataset) ValidateEntity(raw string) (string, bool) {
	return d.validator.ValidateEntity(raw)
}

// ValidateRelation canonicalizes a raw relation value
func (d *Dataset) ValidateRelation(raw string) (string, bool) {
	return d.validator.ValidateRelation(raw)
}

// AddTriple validates and appends the edge subject -predicate-> object.
// Returns false when any of the three values is rejected; nothing is written in that case.
func (d *Dataset) AddTriple(subjectRaw, objectRaw, predicateRaw string) bool {
	subject, ok := d.validator.ValidateEntity(subjectRaw)
	if !ok {
		return false
	}
	object, ok := d.validator.ValidateEntity(objectRaw)
	if !ok {
		return false
	}
	predicate, ok := d.validator.ValidateRelation(predicateRaw)
	if !ok {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	t := Triple{
		Subject:   d.entities.Intern(subject),
		Object:    d.entities.Intern(object),
		Predicate: d.relations.Intern(predicate),
	}

	if err := d.checkLocked(t); err != nil {
		// Keep the snapshot consistent; the fault is surfaced through Err
		if d.fault == nil {
			d.fault = err
		}
		return false
	}

	d.triples = append(d.triples, t)
	d.split = nil
	return true
}

func (d *Dataset) checkLocked(t Triple) error {
	return checkRange(t, d.entities.Len(), d.relations.Len())
}

func checkRange(t Triple, entities, relations int) error {
	if t.Subject < 0 || t.Subject >= entities {
		return &InvariantError{Reason: fmt.Sprintf("subject id %d out of range [0,%d)", t.Subject, entities)}
	}
	if t.Object < 0 || t.Object >= entities {
		return &InvariantError{Reason: fmt.Sprintf("object id %d out of range [0,%d)", t.Object, entities)}
	}
	if t.Predicate < 0 || t.Predicate >= relations {
		return &InvariantError{Reason: fmt.Sprintf("predicate id %d out of range [0,%d)", t.Predicate, relations)}
	}
	return nil
}

// ClaimEntity atomically adds canonical to the explored-set.
// Returns false if it was already present, so exactly one caller wins.
func (d *Dataset) ClaimEntity(canonical string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.explored[canonical] {
		return false
	}
	d.explored[canonical] = true
	return true
}

// IsExplored reports whether canonical is in the explored-set
func (d *Dataset) IsExplored(canonical string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.explored[canonical]
}

// Explored returns the explored-set as a slice (unordered)
func (d *Dataset) Explored() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.explored))
	for k := range d.explored {
		out = append(out, k)
	}
	return out
}

// MarkExplored adds previously explored identifiers, e.g. when resuming
func (d *Dataset) MarkExplored(canonical ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range canonical {
		d.explored[c] = true
	}
}

// EntityKnown reports whether a canonical entity has been interned
func (d *Dataset) EntityKnown(canonical string) bool {
	return d.entities.Exists(canonical)
}

// EntityID returns the id of a canonical entity
func (d *Dataset) EntityID(canonical string) (int, bool) {
	return d.entities.ID(canonical)
}

// Entity returns the canonical entity with the given id
func (d *Dataset) Entity(id int) (string, bool) {
	return d.entities.Value(id)
}

// Relation returns the canonical relation with the given id
func (d *Dataset) Relation(id int) (string, bool) {
	return d.relations.Value(id)
}

// Entities returns all entities ordered by id
func (d *Dataset) Entities() []string {
	return d.entities.Values()
}

// Relations returns all relations ordered by id
func (d *Dataset) Relations() []string {
	return d.relations.Values()
}

// Triples returns a copy of the triple sequence in insertion order
func (d *Dataset) Triples() []Triple {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Triple, len(d.triples))
	copy(out, d.triples)
	return out
}

// Len returns the number of stored triples
func (d *Dataset) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.triples)
}

// Stats returns entity, relation and triple counts
func (d *Dataset) Stats() (entities, relations, triples int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.entities.Len(), d.relations.Len(), len(d.triples)
}

// Err returns the first invariant violation observed, if any
func (d *Dataset) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fault
}

// Verify re-checks every triple against the interners
func (d *Dataset) Verify() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fault != nil {
		return d.fault
	}
	for i, t := range d.triples {
		if err := d.checkLocked(t); err != nil {
			return fmt.Errorf("triple %d: %w", i, err)
		}
	}
	return nil
}

// Restore replaces the dataset contents with a persisted snapshot.
// The three partitions become the cached split so an unchanged dataset saves back verbatim.
// Nothing is modified when the snapshot is rejected.
func (d *Dataset) Restore(entities, relations []string, train, valid, test []Triple) error {
	ents, err := internerOf(entities)
	if err != nil {
		return fmt.Errorf("restore entities: %w", err)
	}
	rels, err := internerOf(relations)
	if err != nil {
		return fmt.Errorf("restore relations: %w", err)
	}

	all := make([]Triple, 0, len(train)+len(valid)+len(test))
	all = append(all, train...)
	all = append(all, valid...)
	all = append(all, test...)
	for i, t := range all {
		if err := checkRange(t, ents.Len(), rels.Len()); err != nil {
			return fmt.Errorf("restore triple %d: %w", i, err)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.entities.replace(ents)
	d.relations.replace(rels)
	d.triples = all
	d.fault = nil
	d.split = nil
	if len(all) > 0 {
		d.split = &Split{
			Ratio: ratioOf(len(train), len(all)),
			Train: append([]Triple(nil), train...),
			Valid: append([]Triple(nil), valid...),
			Test:  append([]Triple(nil), test...),
		}
	}
	return nil
}
