// Package sparqltest provides an in-memory graph endpoint for tests.
package sparqltest

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/alvmarrod/kg-weaver/internal/sparql"
)

// Edge is one outgoing relation of a fixture entity
type Edge struct {
	Predicate string
	Object    string
	Literal   bool
}

type failure struct {
	status    int
	transport bool
	remaining int // negative means forever
}

// Endpoint answers entity queries from a fixed adjacency list.
// Entities are addressed by the same canonical value the crawler passes to the query builder.
type Endpoint struct {
	mu       sync.Mutex
	build    sparql.EntityQueryFunc
	graph    map[string][]Edge
	queries  map[string]string
	canned   map[string]*sparql.Result
	failures map[string]*failure
	calls    map[string]int
	total    int
	delay    time.Duration
}

// New creates an endpoint whose entity queries are produced by build
func New(build sparql.EntityQueryFunc) *Endpoint {
	return &Endpoint{
		build:    build,
		graph:    make(map[string][]Edge),
		queries:  make(map[string]string),
		canned:   make(map[string]*sparql.Result),
		failures: make(map[string]*failure),
		calls:    make(map[string]int),
	}
}

// Add registers the outgoing edges of entity.
// The entity answers with zero rows when called with no edges.
func (e *Endpoint) Add(entity string, edges ...Edge) *Endpoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.graph[entity] = append(e.graph[entity], edges...)
	e.queries[e.build(entity)] = entity
	return e
}

// Link is shorthand for uri edges sharing one predicate
func (e *Endpoint) Link(entity, predicate string, objects ...string) *Endpoint {
	edges := make([]Edge, 0, len(objects))
	for _, o := range objects {
		edges = append(edges, Edge{Predicate: predicate, Object: o})
	}
	return e.Add(entity, edges...)
}

// Answer registers a canned result for an exact query text
func (e *Endpoint) Answer(query string, result *sparql.Result) *Endpoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.canned[query] = result
	return e
}

// FailStatus makes the next times queries for entity return status (times < 0: always)
func (e *Endpoint) FailStatus(entity string, status, times int) *Endpoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures[entity] = &failure{status: status, remaining: times}
	e.queries[e.build(entity)] = entity
	return e
}

// FailTransport makes the next times queries for entity fail without a response (times < 0: always)
func (e *Endpoint) FailTransport(entity string, times int) *Endpoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures[entity] = &failure{transport: true, remaining: times}
	e.queries[e.build(entity)] = entity
	return e
}

// WithDelay makes every call sleep before answering
func (e *Endpoint) WithDelay(d time.Duration) *Endpoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.delay = d
	return e
}

// Calls returns how many times entity was queried
func (e *Endpoint) Calls(entity string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[entity]
}

// TotalCalls returns the number of queries received
func (e *Endpoint) TotalCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.total
}

// Execute implements sparql.Executor
func (e *Endpoint) Execute(ctx context.Context, query string) (*sparql.Result, error) {
	e.mu.Lock()
	delay := e.delay
	e.total++
	e.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", sparql.ErrTransport, ctx.Err())
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if res, ok := e.canned[query]; ok {
		return res, nil
	}

	entity, ok := e.queries[query]
	if !ok {
		return &sparql.Result{Status: http.StatusBadRequest, Message: "unknown query"}, nil
	}
	e.calls[entity]++

	if f, ok := e.failures[entity]; ok && f.remaining != 0 {
		if f.remaining > 0 {
			f.remaining--
		}
		if f.transport {
			return nil, fmt.Errorf("%w: connection reset for %s", sparql.ErrTransport, entity)
		}
		return &sparql.Result{Status: f.status, Message: http.StatusText(f.status)}, nil
	}

	rows := make([]sparql.Binding, 0, len(e.graph[entity]))
	for _, edge := range e.graph[entity] {
		objectType := sparql.TypeURI
		if edge.Literal {
			objectType = sparql.TypeLiteral
		}
		rows = append(rows, sparql.Binding{
			sparql.VarSubject:   {Type: sparql.TypeURI, Value: entity},
			sparql.VarPredicate: {Type: sparql.TypeURI, Value: edge.Predicate},
			sparql.VarObject:    {Type: objectType, Value: edge.Object},
		})
	}
	return &sparql.Result{Status: http.StatusOK, Bindings: rows}, nil
}
