package dataset_test

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/alvmarrod/kg-weaver/internal/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterner_Bijection(t *testing.T) {
	in := dataset.NewInterner()

	a := in.Intern("a")
	b := in.Intern("b")
	assert.Equal(t, 0, a)
	assert.Equal(t, 1, b)
	assert.Equal(t, a, in.Intern("a"))
	assert.True(t, in.Exists("b"))
	assert.False(t, in.Exists("c"))

	for id, v := range in.Values() {
		got, ok := in.ID(v)
		require.True(t, ok)
		assert.Equal(t, id, got)

		back, ok := in.Value(id)
		require.True(t, ok)
		assert.Equal(t, v, back)
	}

	_, ok := in.Value(2)
	assert.False(t, ok)
	_, ok = in.Value(-1)
	assert.False(t, ok)
}

func TestInterner_Concurrent(t *testing.T) {
	in := dataset.NewInterner()

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				in.Intern(fmt.Sprintf("v%d", i))
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 200, in.Len())
	seen := make(map[string]bool)
	for id, v := range in.Values() {
		assert.False(t, seen[v], "duplicate value %s", v)
		seen[v] = true
		got, _ := in.ID(v)
		assert.Equal(t, id, got)
	}
}

func TestDataset_AddTriple(t *testing.T) {
	ds := dataset.New()

	require.True(t, ds.AddTriple("a", "b", "knows"))
	require.True(t, ds.AddTriple("a", "b", "knows"))
	require.True(t, ds.AddTriple("b", "c", "likes"))

	assert.Equal(t, []string{"a", "b", "c"}, ds.Entities())
	assert.Equal(t, []string{"knows", "likes"}, ds.Relations())

	// Repeated observations are kept
	assert.Equal(t, []dataset.Triple{
		{Subject: 0, Object: 1, Predicate: 0},
		{Subject: 0, Object: 1, Predicate: 0},
		{Subject: 1, Object: 2, Predicate: 1},
	}, ds.Triples())
	assert.NoError(t, ds.Verify())
}

func TestDataset_AddTripleRejectsWholeTriple(t *testing.T) {
	ds := dataset.New(dataset.WithValidator(dataset.Wikidata()))

	ok := ds.AddTriple(
		"http://www.wikidata.org/entity/Q1",
		"not an entity",
		"http://www.wikidata.org/prop/direct/P31",
	)
	assert.False(t, ok)

	ents, rels, triples := ds.Stats()
	assert.Zero(t, ents)
	assert.Zero(t, rels)
	assert.Zero(t, triples)

	ok = ds.AddTriple(
		"http://www.wikidata.org/entity/Q1",
		"http://www.wikidata.org/entity/Q5",
		"http://www.wikidata.org/prop/direct/P31",
	)
	require.True(t, ok)
	assert.Equal(t, []string{"Q1", "Q5"}, ds.Entities())
	assert.Equal(t, []string{"P31"}, ds.Relations())
}

func TestDataset_ConcurrentAddTriple(t *testing.T) {
	ds := dataset.New()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				ds.AddTriple(fmt.Sprintf("e%d", i), fmt.Sprintf("e%d", i+1), fmt.Sprintf("r%d", g%3))
			}
		}(g)
	}
	wg.Wait()

	ents, rels, triples := ds.Stats()
	assert.Equal(t, 101, ents)
	assert.Equal(t, 3, rels)
	assert.Equal(t, 800, triples)
	assert.NoError(t, ds.Verify())
}

func TestDataset_ClaimEntity(t *testing.T) {
	ds := dataset.New()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ds.ClaimEntity("D") {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.True(t, ds.IsExplored("D"))
	assert.False(t, ds.IsExplored("E"))
}

func TestDataset_Restore(t *testing.T) {
	ds := dataset.New()
	err := ds.Restore(
		[]string{"a", "b"},
		[]string{"r"},
		[]dataset.Triple{{Subject: 0, Object: 1, Predicate: 0}},
		nil,
		[]dataset.Triple{{Subject: 1, Object: 0, Predicate: 0}},
	)
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Len())

	id, ok := ds.EntityID("b")
	require.True(t, ok)
	assert.Equal(t, 1, id)

	t.Run("out of range id", func(t *testing.T) {
		err := dataset.New().Restore(
			[]string{"a"},
			[]string{"r"},
			[]dataset.Triple{{Subject: 0, Object: 3, Predicate: 0}},
			nil, nil,
		)
		assert.ErrorIs(t, err, dataset.ErrInvariant)
	})

	t.Run("duplicate entity", func(t *testing.T) {
		err := dataset.New().Restore([]string{"a", "a"}, nil, nil, nil, nil)
		assert.ErrorIs(t, err, dataset.ErrInvariant)
	})
}

func TestDataset_RejectedRestoreKeepsContents(t *testing.T) {
	ds := dataset.New()
	require.True(t, ds.AddTriple("a", "b", "p"))
	before := ds.Triples()

	err := ds.Restore([]string{"x"}, []string{"q"}, []dataset.Triple{{Subject: 0, Object: 5, Predicate: 0}}, nil, nil)
	require.ErrorIs(t, err, dataset.ErrInvariant)

	assert.Equal(t, []string{"a", "b"}, ds.Entities())
	assert.Equal(t, []string{"p"}, ds.Relations())
	assert.Equal(t, before, ds.Triples())
	assert.NoError(t, ds.Verify())

	err = ds.Restore([]string{"x"}, []string{"q", "q"}, nil, nil, nil)
	require.ErrorIs(t, err, dataset.ErrInvariant)
	assert.Equal(t, []string{"a", "b"}, ds.Entities())
	assert.NoError(t, ds.Verify())
}

func TestDataset_LoadCSV(t *testing.T) {
	ds := dataset.New()
	input := strings.Join([]string{
		"a,knows,b",
		"b,knows",
		"b,likes,c",
		" ,likes,c",
	}, "\n")

	stats, err := ds.LoadCSV(strings.NewReader(input), ',')
	require.NoError(t, err)
	assert.Equal(t, dataset.LoadStats{Rows: 4, Accepted: 2, Skipped: 2}, stats)
	assert.Equal(t, []string{"a", "b", "c"}, ds.Entities())
}

func TestDataset_LoadNTriples(t *testing.T) {
	ds := dataset.New()
	input := `# comment
<http://ex.org/a> <http://ex.org/p> <http://ex.org/b> .
<http://ex.org/b> <http://ex.org/label> "Bee"@en .
<http://ex.org/b> <http://ex.org/p> _:n1 .
<http://ex.org/broken> <http://ex.org/p>

`
	stats, err := ds.LoadNTriples(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Rows)
	assert.Equal(t, 3, stats.Accepted)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, []string{"http://ex.org/a", "http://ex.org/b", "Bee", "_:n1"}, ds.Entities())
}
