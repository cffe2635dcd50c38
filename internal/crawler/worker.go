package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alvmarrod/kg-weaver/internal/dataset"
	"github.com/alvmarrod/kg-weaver/internal/sparql"
	"golang.org/x/time/rate"
)

// Outcome classifies how a unit of work ended
type Outcome int

const (
	// OutcomeExplored means the entity was queried and its edges recorded
	OutcomeExplored Outcome = iota
	// OutcomeSkipped means the entity was already in the explored-set
	OutcomeSkipped
	// OutcomeInvalid means the validator rejected the entity
	OutcomeInvalid
	// OutcomeFailed means every allowed attempt failed
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeExplored:
		return "explored"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeFailed:
		return "failed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// FetchError is a failed attempt to query one entity
type FetchError struct {
	Entity    string
	Status    int
	Retryable bool
	Err       error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.Entity, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.Entity, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether err is a fetch failure worth another attempt
func Retryable(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Retryable
	}
	return false
}

// retryableStatus treats throttling, timeouts and server errors as transient.
// Other client errors mean the query itself is unacceptable.
func retryableStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return true
	}
	return status >= 500
}

// FetchStats summarizes one successful attempt
type FetchStats struct {
	Rows       int
	Triples    int
	Discovered int
	Skipped    int
}

// WorkerConfig holds Fetch Worker settings
type WorkerConfig struct {
	EntityQuery    sparql.EntityQueryFunc
	Timeout        time.Duration
	Limiter        *rate.Limiter
	AcceptLiterals bool
}

// Worker queries one frontier entity at a time and records its outgoing edges
type Worker struct {
	ds             *dataset.Dataset
	exec           sparql.Executor
	query          sparql.EntityQueryFunc
	timeout        time.Duration
	limiter        *rate.Limiter
	acceptLiterals bool
}

// NewWorker creates a worker writing into ds
func NewWorker(ds *dataset.Dataset, exec sparql.Executor, cfg WorkerConfig) *Worker {
	query := cfg.EntityQuery
	if query == nil {
		query = sparql.IRIEntityQuery
	}
	return &Worker{
		ds:             ds,
		exec:           exec,
		query:          query,
		timeout:        cfg.Timeout,
		limiter:        cfg.Limiter,
		acceptLiterals: cfg.AcceptLiterals,
	}
}

// Claim validates raw and atomically enters it into the explored-set.
// It returns OutcomeExplored with the canonical id when this caller owns the entity,
// OutcomeSkipped if it was already explored and OutcomeInvalid if it was rejected.
func (w *Worker) Claim(raw string) (string, Outcome) {
	canonical, ok := w.ds.ValidateEntity(raw)
	if !ok {
		return "", OutcomeInvalid
	}
	if !w.ds.ClaimEntity(canonical) {
		return canonical, OutcomeSkipped
	}
	return canonical, OutcomeExplored
}

// Fetch issues one query for the outgoing relations of a claimed entity.
// Every accepted object that was not known before is passed to discover as its raw value,
// and every accepted edge is appended to the dataset whether the object was new or not.
func (w *Worker) Fetch(ctx context.Context, canonical string, discover func(raw string)) (FetchStats, error) {
	var stats FetchStats

	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return stats, &FetchError{Entity: canonical, Retryable: true, Err: fmt.Errorf("%w: %v", sparql.ErrTransport, err)}
		}
	}

	callCtx := ctx
	if w.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	res, err := w.exec.Execute(callCtx, w.query(canonical))
	if err != nil {
		return stats, &FetchError{Entity: canonical, Retryable: true, Err: err}
	}
	if !res.OK() {
		return stats, &FetchError{Entity: canonical, Status: res.Status, Retryable: retryableStatus(res.Status), Err: res.Err()}
	}

	for _, row := range res.Bindings {
		stats.Rows++

		predicate, okPredicate := row[sparql.VarPredicate]
		object, okObject := row[sparql.VarObject]
		if !okPredicate || !okObject {
			stats.Skipped++
			continue
		}

		isURI := object.Type == sparql.TypeURI
		if !isURI && !(w.acceptLiterals && object.Type == sparql.TypeLiteral) {
			stats.Skipped++
			continue
		}

		objectID, ok := w.ds.ValidateEntity(object.Value)
		if !ok {
			stats.Skipped++
			continue
		}
		if _, ok := w.ds.ValidateRelation(predicate.Value); !ok {
			stats.Skipped++
			continue
		}

		// Literals are recorded but can never be queried
		if isURI && !w.ds.EntityKnown(objectID) {
			discover(object.Value)
			stats.Discovered++
		}

		if w.ds.AddTriple(canonical, object.Value, predicate.Value) {
			stats.Triples++
		} else {
			stats.Skipped++
		}
	}

	if err := w.ds.Err(); err != nil {
		return stats, err
	}
	return stats, nil
}
