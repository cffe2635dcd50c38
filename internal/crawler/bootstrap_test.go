package crawler_test

import (
	"context"
	"net/http"
	"strconv"
	"testing"

	"github.com/alvmarrod/kg-weaver/internal/crawler"
	"github.com/alvmarrod/kg-weaver/internal/dataset"
	"github.com/alvmarrod/kg-weaver/internal/sparql"
	"github.com/alvmarrod/kg-weaver/internal/sparql/sparqltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedPattern = "?item <http://ex.org/type> <http://ex.org/Person> ."

func countResult(n int) *sparql.Result {
	return &sparql.Result{
		Status: http.StatusOK,
		Bindings: []sparql.Binding{
			{sparql.VarCount: {Type: sparql.TypeLiteral, Value: strconv.Itoa(n)}},
		},
	}
}

func TestFetchSeeds(t *testing.T) {
	ep := sparqltest.New(sparql.IRIEntityQuery).
		Answer(sparql.CountQuery(seedPattern, "item"), countResult(3)).
		Answer(sparql.SeedQuery(seedPattern, "item"), &sparql.Result{
			Status: http.StatusOK,
			Bindings: []sparql.Binding{
				{"item": {Type: sparql.TypeURI, Value: "http://ex.org/ada"}},
				{"item": {Type: sparql.TypeBNode, Value: "b0"}},
				{"item": {Type: sparql.TypeURI, Value: "http://ex.org/alan"}},
			},
		})

	seeds, err := crawler.FetchSeeds(context.Background(), ep, seedPattern, "item")
	require.NoError(t, err)
	assert.Equal(t, []string{"http://ex.org/ada", "http://ex.org/alan"}, seeds)
	assert.Equal(t, 2, ep.TotalCalls())
}

func TestFetchSeeds_EmptyPatternSkipsListing(t *testing.T) {
	ep := sparqltest.New(sparql.IRIEntityQuery).
		Answer(sparql.CountQuery(seedPattern, "item"), countResult(0))

	seeds, err := crawler.FetchSeeds(context.Background(), ep, seedPattern, "item")
	require.NoError(t, err)
	assert.Empty(t, seeds)
	assert.Equal(t, 1, ep.TotalCalls())
}

func TestFetchSeeds_Errors(t *testing.T) {
	// Unknown queries are answered with 400
	_, err := crawler.FetchSeeds(context.Background(), sparqltest.New(sparql.IRIEntityQuery), seedPattern, "item")
	assert.ErrorContains(t, err, "count query failed")

	ep := sparqltest.New(sparql.IRIEntityQuery).
		Answer(sparql.CountQuery(seedPattern, "item"), &sparql.Result{
			Status:   http.StatusOK,
			Bindings: []sparql.Binding{{sparql.VarCount: {Type: sparql.TypeLiteral, Value: "many"}}},
		})
	_, err = crawler.CountSeeds(context.Background(), ep, seedPattern, "item")
	assert.ErrorContains(t, err, `"many"`)
}

func TestLoadGraphPattern(t *testing.T) {
	const pattern = "?subject ?predicate ?object ."
	row := func(s, p, o string) sparql.Binding {
		return sparql.Binding{
			sparql.VarSubject:   {Type: sparql.TypeURI, Value: s},
			sparql.VarPredicate: {Type: sparql.TypeURI, Value: p},
			sparql.VarObject:    {Type: sparql.TypeURI, Value: o},
		}
	}

	ep := sparqltest.New(sparql.IRIEntityQuery).
		Answer(sparql.RowCountQuery(pattern), countResult(3)).
		Answer(sparql.PageQuery(pattern, 2, 0), &sparql.Result{Status: http.StatusOK, Bindings: []sparql.Binding{
			row("http://ex.org/a", "http://ex.org/p", "http://ex.org/b"),
			row("http://ex.org/b", "http://ex.org/p", "http://ex.org/c"),
		}}).
		Answer(sparql.PageQuery(pattern, 2, 2), &sparql.Result{Status: http.StatusOK, Bindings: []sparql.Binding{
			row("http://ex.org/c", "  ", "http://ex.org/a"),
		}})

	ds := dataset.New()
	var pages []int
	stats, err := crawler.LoadGraphPattern(context.Background(), ep, ds, pattern, 2, func(page, total int) {
		assert.Equal(t, 2, total)
		pages = append(pages, page)
	})
	require.NoError(t, err)

	assert.Equal(t, crawler.PatternStats{Total: 3, Pages: 2, Accepted: 2, Skipped: 1}, stats)
	assert.Equal(t, []int{1, 2}, pages)
	assert.Equal(t, 2, ds.Len())
	assert.Equal(t, []string{"http://ex.org/a", "http://ex.org/b", "http://ex.org/c"}, ds.Entities())
}

func TestLoadGraphPattern_InvalidBatch(t *testing.T) {
	_, err := crawler.LoadGraphPattern(context.Background(), sparqltest.New(sparql.IRIEntityQuery), dataset.New(), "?s ?p ?o", 0, nil)
	assert.ErrorIs(t, err, crawler.ErrInvalidOptions)
}
