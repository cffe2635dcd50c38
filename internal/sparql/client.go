package sparql

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/sirupsen/logrus"
)

const resultsMediaType = "application/sparql-results+json"

// ClientConfig holds the HTTP settings of a Client
type ClientConfig struct {
	Endpoint     string
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int
	Parallelism  int
}

// Client executes SPARQL queries over HTTP GET using a colly collector
type Client struct {
	endpoint  *url.URL
	collector *colly.Collector
}

// call carries one request's outcome between the colly callbacks and Execute
type call struct {
	mu     sync.Mutex
	status int
	body   []byte
	err    error
}

// NewClient creates a client for the given endpoint
func NewClient(cfg ClientConfig) (*Client, error) {
	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint url: %w", err)
	}
	if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
		return nil, fmt.Errorf("invalid endpoint url %q: scheme must be http or https", cfg.Endpoint)
	}

	options := []colly.CollectorOption{
		// The same query may be retried, and every entity query is a distinct URL anyway
		colly.AllowURLRevisit(),
		// Error statuses are part of the contract and reach OnResponse
		colly.ParseHTTPErrorResponse(),
		colly.MaxBodySize(cfg.MaxBodyBytes),
	}
	if cfg.UserAgent != "" {
		options = append(options, colly.UserAgent(cfg.UserAgent))
	}

	c := &Client{
		endpoint:  endpoint,
		collector: colly.NewCollector(options...),
	}

	if cfg.Timeout > 0 {
		c.collector.SetRequestTimeout(cfg.Timeout)
	}

	if cfg.Parallelism > 0 {
		if err := c.collector.Limit(&colly.LimitRule{
			DomainGlob:  "*",
			Parallelism: cfg.Parallelism,
		}); err != nil {
			return nil, fmt.Errorf("failed to set request limit: %w", err)
		}
	}

	c.collector.OnResponse(func(r *colly.Response) {
		if cl, ok := r.Ctx.GetAny("call").(*call); ok {
			cl.mu.Lock()
			cl.status = r.StatusCode
			cl.body = r.Body
			cl.mu.Unlock()
		}
	})

	c.collector.OnError(func(r *colly.Response, err error) {
		if r == nil || r.Ctx == nil {
			logrus.Debugf("sparql request failed without response: %v", err)
			return
		}
		if cl, ok := r.Ctx.GetAny("call").(*call); ok {
			cl.mu.Lock()
			cl.err = err
			if r.StatusCode != 0 {
				cl.status = r.StatusCode
				cl.body = r.Body
			}
			cl.mu.Unlock()
		}
	})

	return c, nil
}

// Execute sends query and returns the decoded result.
// A non-nil error means the request never produced an HTTP answer (ErrTransport)
// or a 200 answer could not be decoded (ErrMalformedResponse).
func (c *Client) Execute(ctx context.Context, query string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	target := *c.endpoint
	params := target.Query()
	params.Set("query", query)
	target.RawQuery = params.Encode()

	cl := &call{}
	reqCtx := colly.NewContext()
	reqCtx.Put("call", cl)

	header := http.Header{}
	header.Set("Accept", resultsMediaType)

	requestErr := c.collector.Request(http.MethodGet, target.String(), nil, reqCtx, header)

	cl.mu.Lock()
	status, body, callErr := cl.status, cl.body, cl.err
	cl.mu.Unlock()

	if status == 0 {
		if callErr == nil {
			callErr = requestErr
		}
		if callErr == nil {
			callErr = fmt.Errorf("no response received")
		}
		return nil, fmt.Errorf("%w: %v", ErrTransport, callErr)
	}

	if status != http.StatusOK {
		return &Result{Status: status, Message: string(body)}, nil
	}

	bindings, err := DecodeResults(body)
	if err != nil {
		return nil, err
	}
	return &Result{Status: status, Bindings: bindings}, nil
}
