// Package retriever serves context passages for the answer chain out of a
// pre-chunked JSON store produced by the document-indexing pipeline.
package retriever

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"
)

// Passage is one pre-chunked snippet of portfolio content.
type Passage struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Text   string `json:"text"`
}

// Store ranks passages against a query by keyword overlap. It is immutable
// after construction and safe for concurrent use.
type Store struct {
	passages []Passage
	terms    []map[string]int
}

// Load reads the passage store from a JSON file.
func Load(path string) (*Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("retriever: read passages: %w", err)
	}
	var passages []Passage
	if err := json.Unmarshal(raw, &passages); err != nil {
		return nil, fmt.Errorf("retriever: parse passages %s: %w", path, err)
	}
	return New(passages), nil
}

// New builds a store over the given passages, pre-tokenizing each one.
func New(passages []Passage) *Store {
	terms := make([]map[string]int, len(passages))
	for i, p := range passages {
		terms[i] = tokenize(p.Text)
	}
	return &Store{passages: passages, terms: terms}
}

// Len reports the number of passages in the store.
func (s *Store) Len() int {
	return len(s.passages)
}

// Retrieve returns the texts of the topK passages best matching the query,
// best first. Passages with no overlapping keywords are never returned.
func (s *Store) Retrieve(ctx context.Context, query string, topK int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	queryTerms := tokenize(query)
	if len(queryTerms) == 0 || topK <= 0 {
		return nil, nil
	}

	type scored struct {
		idx   int
		score int
	}
	ranked := make([]scored, 0, len(s.passages))
	for i, terms := range s.terms {
		score := 0
		for term, weight := range queryTerms {
			if count, ok := terms[term]; ok {
				score += weight * count
			}
		}
		if score > 0 {
			ranked = append(ranked, scored{idx: i, score: score})
		}
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].score > ranked[b].score
	})
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	texts := make([]string, len(ranked))
	for i, r := range ranked {
		texts[i] = s.passages[r.idx].Text
	}
	return texts, nil
}

// stopwords are dropped from queries and passages before scoring so that
// filler words never dominate the overlap.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "do": {}, "does": {}, "for": {}, "from": {}, "has": {},
	"have": {}, "he": {}, "her": {}, "his": {}, "how": {}, "i": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "me": {}, "my": {}, "of": {},
	"on": {}, "or": {}, "s": {}, "she": {}, "tell": {}, "that": {},
	"the": {}, "their": {}, "them": {}, "they": {}, "this": {}, "to": {},
	"was": {}, "what": {}, "when": {}, "where": {}, "which": {},
	"who": {}, "why": {}, "with": {}, "you": {}, "your": {},
}

func tokenize(text string) map[string]int {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make(map[string]int, len(fields))
	for _, f := range fields {
		if _, skip := stopwords[f]; skip {
			continue
		}
		terms[f]++
	}
	return terms
}
