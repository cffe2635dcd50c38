package crawler

import (
	"context"
	"fmt"
	"strconv"

	"github.com/alvmarrod/kg-weaver/internal/dataset"
	"github.com/alvmarrod/kg-weaver/internal/sparql"
	"github.com/sirupsen/logrus"
)

// CountSeeds returns how many distinct bindings of variable the pattern has
func CountSeeds(ctx context.Context, exec sparql.Executor, pattern, variable string) (int, error) {
	res, err := exec.Execute(ctx, sparql.CountQuery(pattern, variable))
	if err != nil {
		return 0, fmt.Errorf("count query failed: %w", err)
	}
	if !res.OK() {
		return 0, fmt.Errorf("count query failed: %w", res.Err())
	}
	return parseCount(res)
}

func parseCount(res *sparql.Result) (int, error) {
	if len(res.Bindings) == 0 {
		return 0, fmt.Errorf("count query returned no rows")
	}
	term, ok := res.Bindings[0][sparql.VarCount]
	if !ok {
		return 0, fmt.Errorf("count query returned no ?%s binding", sparql.VarCount)
	}
	n, err := strconv.Atoi(term.Value)
	if err != nil {
		return 0, fmt.Errorf("count query returned %q: %w", term.Value, err)
	}
	return n, nil
}

// FetchSeeds counts and then lists the distinct uri bindings of variable in pattern
func FetchSeeds(ctx context.Context, exec sparql.Executor, pattern, variable string) ([]string, error) {
	count, err := CountSeeds(ctx, exec, pattern, variable)
	if err != nil {
		return nil, err
	}
	logrus.Infof("Seed pattern matches %d entities", count)
	if count == 0 {
		return []string{}, nil
	}

	res, err := exec.Execute(ctx, sparql.SeedQuery(pattern, variable))
	if err != nil {
		return nil, fmt.Errorf("seed query failed: %w", err)
	}
	if !res.OK() {
		return nil, fmt.Errorf("seed query failed: %w", res.Err())
	}

	seeds := make([]string, 0, len(res.Bindings))
	for _, row := range res.Bindings {
		if term, ok := row[variable]; ok && term.Type == sparql.TypeURI {
			seeds = append(seeds, term.Value)
		}
	}
	return seeds, nil
}

// PatternStats summarizes a graph-pattern import
type PatternStats struct {
	Total    int
	Pages    int
	Accepted int
	Skipped  int
}

// LoadGraphPattern imports every ?subject ?predicate ?object row of pattern into ds,
// paging with LIMIT/OFFSET. onPage, if set, is called after each page.
func LoadGraphPattern(ctx context.Context, exec sparql.Executor, ds *dataset.Dataset, pattern string, batch int, onPage func(page, pages int)) (PatternStats, error) {
	var stats PatternStats
	if batch < 1 {
		return stats, fmt.Errorf("%w: batch size must be >= 1", ErrInvalidOptions)
	}

	res, err := exec.Execute(ctx, sparql.RowCountQuery(pattern))
	if err != nil {
		return stats, fmt.Errorf("count query failed: %w", err)
	}
	if !res.OK() {
		return stats, fmt.Errorf("count query failed: %w", res.Err())
	}
	if stats.Total, err = parseCount(res); err != nil {
		return stats, err
	}

	pages := (stats.Total + batch - 1) / batch
	logrus.Infof("Graph pattern has %d rows, fetching %d pages", stats.Total, pages)

	for page := 0; page < pages; page++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		res, err := exec.Execute(ctx, sparql.PageQuery(pattern, batch, page*batch))
		if err != nil {
			return stats, fmt.Errorf("page %d failed: %w", page, err)
		}
		if !res.OK() {
			return stats, fmt.Errorf("page %d failed: %w", page, res.Err())
		}

		for _, row := range res.Bindings {
			s, okS := row[sparql.VarSubject]
			p, okP := row[sparql.VarPredicate]
			o, okO := row[sparql.VarObject]
			if okS && okP && okO && ds.AddTriple(s.Value, o.Value, p.Value) {
				stats.Accepted++
			} else {
				stats.Skipped++
			}
		}
		stats.Pages++

		if onPage != nil {
			onPage(page+1, pages)
		}
	}

	if err := ds.Err(); err != nil {
		return stats, err
	}
	return stats, nil
}
