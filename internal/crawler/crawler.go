package crawler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/alvmarrod/kg-weaver/internal/dataset"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidOptions is returned for crawl settings rejected before any network activity
var ErrInvalidOptions = errors.New("invalid crawl options")

// Completion is delivered exactly once per dispatched frontier entity
type Completion struct {
	Entity    string
	Canonical string
	Level     int
	Outcome   Outcome
	Attempts  int
	Stats     FetchStats
	Err       error
	Duration  time.Duration
}

// Options control a crawl
type Options struct {
	// MaxLevels is the number of BFS levels queried; level 0 is the seed set
	MaxLevels int
	// Concurrency caps simultaneous units of work (and so outstanding queries)
	Concurrency int
	// MaxAttempts caps fetch attempts per entity, including the first
	MaxAttempts int
	// RetryDelay is waited between attempts of the same entity
	RetryDelay time.Duration
	// MaxFrontier caps admitted entities per level as MaxFrontier*(level+1)^3; 0 disables
	MaxFrontier int
	// MaxFailureFraction flags a level degraded when more units than this share fail
	MaxFailureFraction float64

	// OnDiscover is called from worker goroutines for every entity admitted to the next frontier
	OnDiscover func(level int, raw string)
	// OnComplete is called from worker goroutines once per dispatched unit
	OnComplete func(Completion)
}

// Validate checks the options
func (o Options) Validate() error {
	if o.MaxLevels < 0 {
		return fmt.Errorf("%w: max levels must be >= 0, got %d", ErrInvalidOptions, o.MaxLevels)
	}
	if o.Concurrency < 1 {
		return fmt.Errorf("%w: concurrency must be >= 1, got %d", ErrInvalidOptions, o.Concurrency)
	}
	if o.MaxAttempts < 1 {
		return fmt.Errorf("%w: max attempts must be >= 1, got %d", ErrInvalidOptions, o.MaxAttempts)
	}
	if o.RetryDelay < 0 {
		return fmt.Errorf("%w: retry delay must be >= 0", ErrInvalidOptions)
	}
	if o.MaxFrontier < 0 {
		return fmt.Errorf("%w: max frontier must be >= 0", ErrInvalidOptions)
	}
	if o.MaxFailureFraction < 0 || o.MaxFailureFraction > 1 {
		return fmt.Errorf("%w: max failure fraction must be in [0,1], got %v", ErrInvalidOptions, o.MaxFailureFraction)
	}
	return nil
}

// LevelReport summarizes one BFS level
type LevelReport struct {
	Level      int  `json:"level"`
	Frontier   int  `json:"frontier"`
	Truncated  int  `json:"truncated"`
	Dispatched int  `json:"dispatched"`
	Explored   int  `json:"explored"`
	Skipped    int  `json:"skipped"`
	Invalid    int  `json:"invalid"`
	Failed     int  `json:"failed"`
	Discovered int  `json:"discovered"`
	Triples    int  `json:"triples"`
	Collapsed  bool `json:"collapsed"`
	Degraded   bool `json:"degraded"`
}

// Result is the outcome of a crawl
type Result struct {
	Levels []LevelReport `json:"levels"`
	// Frontier holds entities discovered but not explored when the crawl stopped
	Frontier  []string `json:"frontier"`
	Cancelled bool     `json:"cancelled"`
	Degraded  bool     `json:"degraded"`
}

// Failed returns the number of permanently failed entities across all levels
func (r *Result) Failed() int {
	n := 0
	for _, l := range r.Levels {
		n += l.Failed
	}
	return n
}

// Crawler drives Fetch Workers level by level over a shared dataset
type Crawler struct {
	ds       *dataset.Dataset
	worker   *Worker
	opts     Options
	progress *Progress

	mu      sync.Mutex
	running map[string]Entry
}

// NewCrawler creates a crawler. Options are validated here and again by Crawl.
func NewCrawler(ds *dataset.Dataset, worker *Worker, opts Options) (*Crawler, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Crawler{
		ds:       ds,
		worker:   worker,
		opts:     opts,
		progress: NewProgress(),
		running:  make(map[string]Entry),
	}, nil
}

// InFlight returns the claimed entities whose unit has not completed yet, by canonical id.
// They are already in the explored-set even though their edges may be incomplete.
func (c *Crawler) InFlight() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, 0, len(c.running))
	for _, e := range c.running {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b Entry) int {
		return strings.Compare(a.Canonical, b.Canonical)
	})
	return out
}

func (c *Crawler) track(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running[e.Canonical] = e
}

func (c *Crawler) untrack(canonical string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.running, canonical)
}

// Progress returns the live progress reporter
func (c *Crawler) Progress() *Progress {
	return c.progress
}

// Crawl explores outward from seeds for MaxLevels levels.
// Cancelling ctx stops dispatching at the next unit boundary; units already running
// finish and their edges are kept. The only error returned after start is a dataset
// invariant violation, which aborts the crawl.
func (c *Crawler) Crawl(ctx context.Context, seeds []string) (*Result, error) {
	if err := c.opts.Validate(); err != nil {
		return nil, err
	}

	result := &Result{Levels: make([]LevelReport, 0, c.opts.MaxLevels), Frontier: make([]string, 0)}
	if c.opts.MaxLevels == 0 {
		return result, nil
	}

	initial := NewFrontier(c.ds.ValidateEntity)
	for _, s := range seeds {
		initial.Push(s)
	}
	current := initial.Drain()

	c.progress.start(c.opts.MaxLevels)
	defer c.progress.finish()

	logrus.Infof("Crawl starting: %d seeds, %d levels, concurrency %d", len(current), c.opts.MaxLevels, c.opts.Concurrency)

	for level := 0; level < c.opts.MaxLevels; level++ {
		admitted, truncated := c.admit(current, level)
		current = nil

		if len(admitted) == 0 {
			logrus.Infof("Level %d has no unexplored entities, stopping", level)
			break
		}

		if ctx.Err() != nil {
			result.Cancelled = true
			current = admitted
			break
		}

		next := NewFrontier(c.ds.ValidateEntity)
		report, pending, err := c.runLevel(ctx, level, admitted, next)
		report.Truncated = truncated
		current = append(pending, next.Drain()...)

		if err != nil {
			result.Levels = append(result.Levels, report)
			result.Frontier = raws(current)
			return result, err
		}

		if level+1 < c.opts.MaxLevels && len(current) == 0 {
			report.Collapsed = true
		}
		report.Degraded = c.degraded(report)
		if report.Degraded {
			result.Degraded = true
			logrus.Warnf("Level %d degraded: %d of %d units failed, frontier collapsed=%t",
				level, report.Failed, report.Dispatched, report.Collapsed)
		}
		result.Levels = append(result.Levels, report)

		logrus.Infof("Level %d done: %d explored, %d failed, %d discovered, %d triples",
			level, report.Explored, report.Failed, report.Discovered, report.Triples)

		if len(pending) > 0 {
			result.Cancelled = true
			break
		}
	}

	// Whatever remains queued was discovered but never explored
	for _, e := range current {
		if !c.ds.IsExplored(e.Canonical) {
			result.Frontier = append(result.Frontier, e.Raw)
		}
	}

	if result.Cancelled {
		logrus.Warnf("Crawl cancelled with %d entities pending", len(result.Frontier))
	}
	return result, nil
}

// admit drops explored entities and applies the per-level cap. Entries arrive in
// completion order, so a capped level keeps the lowest canonical ids instead.
func (c *Crawler) admit(entries []Entry, level int) ([]Entry, int) {
	admitted := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if !c.ds.IsExplored(e.Canonical) {
			admitted = append(admitted, e)
		}
	}

	truncated := 0
	if limit := levelCap(c.opts.MaxFrontier, level); limit >= 0 && len(admitted) > limit {
		slices.SortFunc(admitted, func(a, b Entry) int {
			return strings.Compare(a.Canonical, b.Canonical)
		})
		truncated = len(admitted) - limit
		admitted = admitted[:limit]
		logrus.Infof("Level %d frontier capped at %d entities (%d dropped)", level, limit, truncated)
	}
	return admitted, truncated
}

func (c *Crawler) degraded(r LevelReport) bool {
	if r.Dispatched > 0 && float64(r.Failed)/float64(r.Dispatched) > c.opts.MaxFailureFraction {
		return true
	}
	return r.Collapsed && r.Failed > 0
}

// levelTally accumulates completions of one level
type levelTally struct {
	mu     sync.Mutex
	report LevelReport
}

func (t *levelTally) add(comp Completion) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch comp.Outcome {
	case OutcomeExplored:
		t.report.Explored++
	case OutcomeSkipped:
		t.report.Skipped++
	case OutcomeInvalid:
		t.report.Invalid++
	case OutcomeFailed:
		t.report.Failed++
	}
	t.report.Discovered += comp.Stats.Discovered
	t.report.Triples += comp.Stats.Triples
}

// runLevel dispatches one unit per entry with at most Concurrency running, then waits
// for all of them. It returns the entries left undispatched after cancellation.
func (c *Crawler) runLevel(ctx context.Context, level int, entries []Entry, next *Frontier) (LevelReport, []Entry, error) {
	logrus.Infof("Scanning level %d of %d with %d entities", level+1, c.opts.MaxLevels, len(entries))
	c.progress.beginLevel(level, len(entries))

	tally := &levelTally{report: LevelReport{Level: level, Frontier: len(entries)}}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)

	// Side effects of a started unit are kept, so its network call must not be cut short
	workCtx := context.WithoutCancel(ctx)

	dispatched := 0
	for _, entry := range entries {
		if gctx.Err() != nil {
			break
		}
		// Blocks while every slot is busy
		g.Go(func() error {
			return c.runUnit(workCtx, level, entry, next, tally)
		})
		dispatched++
	}

	logrus.Debugf("Level %d: waiting for %d units", level, dispatched)
	err := g.Wait()

	report := tally.report
	report.Dispatched = dispatched
	return report, entries[dispatched:], err
}

// runUnit processes one entity: claim, bounded attempts, and exactly one completion
func (c *Crawler) runUnit(ctx context.Context, level int, entry Entry, next *Frontier, tally *levelTally) (err error) {
	start := time.Now()
	comp := Completion{Entity: entry.Raw, Canonical: entry.Canonical, Level: level}

	defer func() {
		comp.Duration = time.Since(start)
		tally.add(comp)
		c.progress.complete(comp.Outcome == OutcomeFailed)
		if c.opts.OnComplete != nil {
			c.opts.OnComplete(comp)
		}
	}()

	canonical, outcome := c.worker.Claim(entry.Raw)
	if outcome != OutcomeExplored {
		comp.Outcome = outcome
		return nil
	}
	comp.Canonical = canonical
	c.track(Entry{Raw: entry.Raw, Canonical: canonical})
	defer c.untrack(canonical)

	discover := func(raw string) {
		if next.Push(raw) && c.opts.OnDiscover != nil {
			c.opts.OnDiscover(level, raw)
		}
	}

	for attempt := 1; ; attempt++ {
		comp.Attempts = attempt

		stats, fetchErr := c.worker.Fetch(ctx, canonical, discover)
		comp.Stats = stats
		if fetchErr == nil {
			comp.Outcome = OutcomeExplored
			return nil
		}

		if errors.Is(fetchErr, dataset.ErrInvariant) {
			comp.Outcome = OutcomeFailed
			comp.Err = fetchErr
			logrus.Errorf("Dataset invariant violated while processing %s: %v", canonical, fetchErr)
			return fetchErr
		}

		if !Retryable(fetchErr) || attempt >= c.opts.MaxAttempts {
			comp.Outcome = OutcomeFailed
			comp.Err = fetchErr
			logrus.Warnf("Giving up on %s after %d attempts: %v", canonical, attempt, fetchErr)
			return nil
		}

		logrus.Debugf("Attempt %d/%d for %s failed: %v", attempt, c.opts.MaxAttempts, canonical, fetchErr)
		if c.opts.RetryDelay > 0 {
			time.Sleep(c.opts.RetryDelay)
		}
	}
}

func raws(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Raw)
	}
	return out
}
