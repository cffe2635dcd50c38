package sparql

import (
	"fmt"
	"strings"
)

// Variable names used by the entity and page queries
const (
	VarSubject   = "subject"
	VarPredicate = "predicate"
	VarObject    = "object"
	VarCount     = "count"
)

// EntityQueryFunc builds the outgoing-relations query for one canonical entity
type EntityQueryFunc func(canonical string) string

var iriEscaper = strings.NewReplacer(
	"<", "%3C",
	">", "%3E",
	" ", "%20",
	`"`, "%22",
	"{", "%7B",
	"}", "%7D",
)

// IRI renders value as a SPARQL IRI reference
func IRI(value string) string {
	return "<" + iriEscaper.Replace(value) + ">"
}

// IRIEntityQuery selects every (predicate, object) pair of an entity identified by its full IRI
func IRIEntityQuery(canonical string) string {
	subject := IRI(canonical)
	return fmt.Sprintf(`SELECT (%[1]s AS ?%[2]s) ?%[3]s ?%[4]s
WHERE {
  %[1]s ?%[3]s ?%[4]s .
}`, subject, VarSubject, VarPredicate, VarObject)
}

// WikidataEntityQuery selects object-property statements of a Wikidata item given as "Q<n>",
// skipping best-rank statement nodes
func WikidataEntityQuery(canonical string) string {
	return fmt.Sprintf(`PREFIX wd: <http://www.wikidata.org/entity/>
PREFIX wikibase: <http://wikiba.se/ontology#>
PREFIX owl: <http://www.w3.org/2002/07/owl#>
SELECT (wd:%[1]s AS ?%[2]s) ?%[3]s ?%[4]s
WHERE {
  ?%[3]s a owl:ObjectProperty .
  wd:%[1]s ?%[3]s ?%[4]s .
  FILTER NOT EXISTS { ?%[4]s a wikibase:BestRank }
}`, canonical, VarSubject, VarPredicate, VarObject)
}

// CountQuery counts distinct bindings of variable in a graph pattern
func CountQuery(pattern, variable string) string {
	return fmt.Sprintf(`SELECT (COUNT(DISTINCT ?%[1]s) AS ?%[2]s)
WHERE {
  %[3]s
}`, variable, VarCount, strings.TrimSpace(pattern))
}

// SeedQuery lists distinct bindings of variable in a graph pattern
func SeedQuery(pattern, variable string) string {
	return fmt.Sprintf(`SELECT DISTINCT ?%[1]s
WHERE {
  %[2]s
}`, variable, strings.TrimSpace(pattern))
}

// PageQuery selects one page of ?subject ?predicate ?object rows from a graph pattern
func PageQuery(pattern string, limit, offset int) string {
	return fmt.Sprintf(`SELECT ?%[1]s ?%[2]s ?%[3]s
WHERE {
  %[4]s
} LIMIT %[5]d OFFSET %[6]d`, VarSubject, VarPredicate, VarObject, strings.TrimSpace(pattern), limit, offset)
}

// RowCountQuery counts all solutions of a graph pattern
func RowCountQuery(pattern string) string {
	return fmt.Sprintf(`SELECT (COUNT(*) AS ?%[1]s)
WHERE {
  %[2]s
}`, VarCount, strings.TrimSpace(pattern))
}
