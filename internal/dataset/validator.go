package dataset

import (
	"net/url"
	"regexp"
	"strings"
)

// ValidateFunc canonicalizes a raw value, returning false to reject it
type ValidateFunc func(raw string) (string, bool)

// Validator is the per-backend capability used to canonicalize entities and relations.
// A nil field behaves like the permissive default.
type Validator struct {
	Entity   ValidateFunc
	Relation ValidateFunc
}

// ValidateEntity runs the entity rule
func (v Validator) ValidateEntity(raw string) (string, bool) {
	if v.Entity == nil {
		return permissive(raw)
	}
	return v.Entity(raw)
}

// ValidateRelation runs the relation rule
func (v Validator) ValidateRelation(raw string) (string, bool) {
	if v.Relation == nil {
		return permissive(raw)
	}
	return v.Relation(raw)
}

// Permissive accepts every non-blank value as-is
func Permissive() Validator {
	return Validator{Entity: permissive, Relation: permissive}
}

func permissive(raw string) (string, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", false
	}
	return value, true
}

var (
	wikidataEntityID   = regexp.MustCompile(`^Q[0-9]+$`)
	wikidataPropertyID = regexp.MustCompile(`^P[0-9]+$`)
)

// Wikidata accepts items such as http://www.wikidata.org/entity/Q42 (canonical "Q42")
// and direct, statement or bare properties such as
// http://www.wikidata.org/prop/direct/P31 (canonical "P31").
// Qualifier and reference properties are rejected.
func Wikidata() Validator {
	return Validator{
		Entity:   wikidataEntity,
		Relation: wikidataRelation,
	}
}

func wikidataEntity(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if wikidataEntityID.MatchString(raw) {
		return raw, true
	}

	segments, ok := uriSegments(raw)
	if !ok || len(segments) < 2 {
		return "", false
	}

	id := segments[len(segments)-1]
	if segments[len(segments)-2] != "entity" || !wikidataEntityID.MatchString(id) {
		return "", false
	}
	return id, true
}

func wikidataRelation(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if wikidataPropertyID.MatchString(raw) {
		return raw, true
	}

	segments, ok := uriSegments(raw)
	if !ok || len(segments) < 2 || segments[0] != "prop" {
		return "", false
	}

	id := segments[len(segments)-1]
	if !wikidataPropertyID.MatchString(id) {
		return "", false
	}

	switch {
	case len(segments) == 2:
		// /prop/P373
		return id, true
	case len(segments) == 3 && (segments[1] == "direct" || segments[1] == "statement"):
		return id, true
	}
	return "", false
}

// DBpedia accepts resources under http://<domain>/resource/ and relations from
// the property or ontology namespaces of any host, plus FOAF and W3C vocabularies.
// Canonical values are the full URIs.
func DBpedia(domain string) Validator {
	domain = strings.ToLower(domain)
	return Validator{
		Entity: func(raw string) (string, bool) {
			raw = strings.TrimSpace(raw)
			parsed, err := url.Parse(raw)
			if err != nil || strings.ToLower(parsed.Hostname()) != domain {
				return "", false
			}
			segments, ok := uriSegments(raw)
			if !ok || len(segments) < 2 || segments[len(segments)-2] != "resource" {
				return "", false
			}
			return raw, true
		},
		Relation: dbpediaRelation,
	}
}

// Vocabulary hosts whose terms are always valid relations
var vocabularyHosts = map[string]bool{
	"xmlns.com":  true,
	"www.w3.org": true,
}

func dbpediaRelation(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Hostname() == "" {
		return "", false
	}
	if vocabularyHosts[strings.ToLower(parsed.Hostname())] {
		return raw, true
	}

	segments, ok := uriSegments(raw)
	if !ok || len(segments) < 2 {
		return "", false
	}

	name := segments[len(segments)-1]
	namespace := segments[len(segments)-2]
	if (namespace == "property" || namespace == "ontology") && name != "wikiPageWikiLink" {
		return raw, true
	}
	return "", false
}

// uriSegments splits the path of an absolute http(s) URI into its non-empty segments
func uriSegments(raw string) ([]string, bool) {
	if !strings.Contains(raw, "://") {
		return nil, false
	}

	parsed, err := url.Parse(raw)
	if err != nil || parsed.Hostname() == "" {
		return nil, false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, false
	}

	var segments []string
	for _, s := range strings.Split(parsed.Path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments, true
}
