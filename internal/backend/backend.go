package backend

import (
	"fmt"
	"sort"

	"github.com/alvmarrod/kg-weaver/internal/dataset"
	"github.com/alvmarrod/kg-weaver/internal/sparql"
)

// Known backend names
const (
	Default  = "default"
	Wikidata = "wikidata"
	DBpedia  = "dbpedia"
)

// Default endpoints of the public services
const (
	WikidataEndpoint = "https://query.wikidata.org/sparql"
	DBpediaDomain    = "es.dbpedia.org"
)

// Backend binds validation rules and the entity query shape of one graph service
type Backend struct {
	Name            string
	Validator       dataset.Validator
	EntityQuery     sparql.EntityQueryFunc
	DefaultEndpoint string
}

// Options carry per-backend settings
type Options struct {
	DBpediaDomain string
}

// Lookup returns the backend registered under name
func Lookup(name string, opts Options) (Backend, error) {
	switch name {
	case "", Default:
		return Backend{
			Name:        Default,
			Validator:   dataset.Permissive(),
			EntityQuery: sparql.IRIEntityQuery,
		}, nil

	case Wikidata:
		return Backend{
			Name:            Wikidata,
			Validator:       dataset.Wikidata(),
			EntityQuery:     sparql.WikidataEntityQuery,
			DefaultEndpoint: WikidataEndpoint,
		}, nil

	case DBpedia:
		domain := opts.DBpediaDomain
		if domain == "" {
			domain = DBpediaDomain
		}
		return Backend{
			Name:            DBpedia,
			Validator:       dataset.DBpedia(domain),
			EntityQuery:     sparql.IRIEntityQuery,
			DefaultEndpoint: "http://" + domain + "/sparql",
		}, nil
	}

	return Backend{}, fmt.Errorf("unknown backend %q (known: %v)", name, Names())
}

// Names lists the registered backends
func Names() []string {
	names := []string{Default, Wikidata, DBpedia}
	sort.Strings(names)
	return names
}
