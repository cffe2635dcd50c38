package backend_test

import (
	"testing"

	"github.com/alvmarrod/kg-weaver/internal/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	wd, err := backend.Lookup(backend.Wikidata, backend.Options{})
	require.NoError(t, err)
	assert.Equal(t, backend.WikidataEndpoint, wd.DefaultEndpoint)

	id, ok := wd.Validator.ValidateEntity("http://www.wikidata.org/entity/Q42")
	require.True(t, ok)
	assert.Contains(t, wd.EntityQuery(id), "wd:Q42")

	db, err := backend.Lookup(backend.DBpedia, backend.Options{DBpediaDomain: "dbpedia.org"})
	require.NoError(t, err)
	assert.Equal(t, "http://dbpedia.org/sparql", db.DefaultEndpoint)
	_, ok = db.Validator.ValidateEntity("http://dbpedia.org/resource/Madrid")
	assert.True(t, ok)

	def, err := backend.Lookup("", backend.Options{})
	require.NoError(t, err)
	assert.Equal(t, backend.Default, def.Name)
	assert.Empty(t, def.DefaultEndpoint)

	_, err = backend.Lookup("freebase", backend.Options{})
	assert.Error(t, err)
}
