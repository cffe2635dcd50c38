package dataset

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// LoadStats summarizes a bulk load
type LoadStats struct {
	Rows     int
	Accepted int
	Skipped  int
}

// LoadCSV reads subject,predicate,object rows and adds them as triples.
// Rows with fewer than three columns or rejected values are skipped.
func (d *Dataset) LoadCSV(r io.Reader, separator rune) (LoadStats, error) {
	var stats LoadStats

	reader := csv.NewReader(r)
	reader.Comma = separator
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("failed to read csv row %d: %w", stats.Rows+1, err)
		}
		stats.Rows++

		if len(record) < 3 || !d.AddTriple(record[0], record[2], record[1]) {
			stats.Skipped++
			continue
		}
		stats.Accepted++
	}

	return stats, nil
}

// LoadNTriples reads an N-Triples document line by line.
// Comments, blank lines and malformed statements are skipped.
func (d *Dataset) LoadNTriples(r io.Reader) (LoadStats, error) {
	var stats LoadStats

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		stats.Rows++

		subject, predicate, object, ok := parseNTriple(line)
		if !ok || !d.AddTriple(subject, object, predicate) {
			stats.Skipped++
			continue
		}
		stats.Accepted++
	}

	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("failed to read n-triples: %w", err)
	}
	return stats, nil
}

// parseNTriple splits "<s> <p> <o> ." into its three terms
func parseNTriple(line string) (subject, predicate, object string, ok bool) {
	line = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(line), "."))

	rest := line
	terms := make([]string, 0, 3)
	for len(terms) < 3 {
		rest = strings.TrimLeft(rest, " \t")
		if rest == "" {
			return "", "", "", false
		}

		term, remaining, ok := nextTerm(rest)
		if !ok {
			return "", "", "", false
		}
		terms = append(terms, term)
		rest = remaining
	}

	if strings.TrimSpace(rest) != "" {
		return "", "", "", false
	}
	return terms[0], terms[1], terms[2], true
}

func nextTerm(s string) (term, rest string, ok bool) {
	switch {
	case strings.HasPrefix(s, "<"):
		end := strings.IndexByte(s, '>')
		if end < 0 {
			return "", "", false
		}
		return s[1:end], s[end+1:], true

	case strings.HasPrefix(s, "_:"):
		end := strings.IndexAny(s, " \t")
		if end < 0 {
			return s, "", true
		}
		return s[:end], s[end:], true

	case strings.HasPrefix(s, `"`):
		// Find the closing quote, honouring backslash escapes
		for i := 1; i < len(s); i++ {
			switch s[i] {
			case '\\':
				i++
			case '"':
				value := s[1:i]
				rest := s[i+1:]
				// Drop a datatype or language tag
				if end := strings.IndexAny(rest, " \t"); end >= 0 {
					rest = rest[end:]
				} else {
					rest = ""
				}
				return value, rest, true
			}
		}
		return "", "", false
	}
	return "", "", false
}
