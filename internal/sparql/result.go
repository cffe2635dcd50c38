package sparql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTransport is returned when no HTTP response could be obtained
	ErrTransport = errors.New("sparql transport failure")
	// ErrMalformedResponse is returned when a 200 response body is not SPARQL JSON
	ErrMalformedResponse = errors.New("malformed sparql response")
)

// Term types as they appear in SPARQL JSON results
const (
	TypeURI     = "uri"
	TypeLiteral = "literal"
	TypeBNode   = "bnode"
)

// Term is one bound value
type Term struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Lang     string `json:"xml:lang,omitempty"`
	Datatype string `json:"datatype,omitempty"`
}

// Binding maps a variable name to its value in one result row
type Binding map[string]Term

// Result is the outcome of one query: Bindings are valid only when Status is 200,
// otherwise Message describes the error returned by the endpoint
type Result struct {
	Status   int
	Bindings []Binding
	Message  string
}

// OK reports whether the endpoint answered with 200
func (r *Result) OK() bool {
	return r != nil && r.Status == http.StatusOK
}

// Err converts a non-200 result into a *StatusError
func (r *Result) Err() error {
	if r.OK() {
		return nil
	}
	return &StatusError{Status: r.Status, Message: r.Message}
}

// Executor runs a query against a remote graph-query service
type Executor interface {
	Execute(ctx context.Context, query string) (*Result, error)
}

// StatusError reports a non-200 answer
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	msg := e.Message
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return fmt.Sprintf("sparql endpoint returned %d: %s", e.Status, msg)
}

type resultsDocument struct {
	Results struct {
		Bindings []Binding `json:"bindings"`
	} `json:"results"`
}

// DecodeResults parses a SPARQL 1.1 JSON results document
func DecodeResults(body []byte) ([]Binding, error) {
	var doc resultsDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if doc.Results.Bindings == nil {
		return []Binding{}, nil
	}
	return doc.Results.Bindings, nil
}
