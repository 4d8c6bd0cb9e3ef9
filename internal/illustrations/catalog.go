// Package illustrations answers "show me drawings of X" style requests from a
// JSON catalog of published artwork.
package illustrations

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Record describes one catalog entry. File doubles as the identity used for
// de-duplication.
type Record struct {
	Title string   `json:"title"`
	Tags  []string `json:"tags"`
	File  string   `json:"file"`
}

// Wildcard matches the entire catalog.
const Wildcard = "all"

// Catalog holds the searchable illustration records. Reload swaps the record
// set atomically, so searches are safe while the file watcher refreshes it.
type Catalog struct {
	path           string
	scoreThreshold int
	maxResults     int

	mu      sync.RWMutex
	records []Record
}

// NewCatalog loads the catalog file and fixes the search policy.
func NewCatalog(path string, scoreThreshold, maxResults int) (*Catalog, error) {
	c := &Catalog{path: path, scoreThreshold: scoreThreshold, maxResults: maxResults}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads the catalog file and replaces the record set.
func (c *Catalog) Reload() error {
	raw, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("illustrations: read catalog: %w", err)
	}
	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return fmt.Errorf("illustrations: parse catalog %s: %w", c.path, err)
	}
	c.mu.Lock()
	c.records = records
	c.mu.Unlock()
	return nil
}

// Len reports the number of catalog records.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Search returns catalog records matching the term, best match first,
// de-duplicated by file and capped at the configured maximum. The term "all"
// matches every record in catalog order.
func (c *Catalog) Search(term string) []Record {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return nil
	}

	c.mu.RLock()
	records := c.records
	c.mu.RUnlock()

	if term == Wildcard {
		return dedupe(records, c.maxResults)
	}

	variants := expandTerm(term)

	type scored struct {
		rec   Record
		score int
	}
	matches := make([]scored, 0, len(records))
	for _, rec := range records {
		best := 0
		for _, v := range variants {
			if s := scoreRecord(v, rec); s > best {
				best = s
			}
		}
		if best >= c.scoreThreshold {
			matches = append(matches, scored{rec: rec, score: best})
		}
	}

	sort.SliceStable(matches, func(a, b int) bool {
		return matches[a].score > matches[b].score
	})

	out := make([]Record, len(matches))
	for i, m := range matches {
		out[i] = m.rec
	}
	return dedupe(out, c.maxResults)
}

// expandTerm adds the singular or plural twin of the term so "robots" still
// finds records tagged "robot" and vice versa.
func expandTerm(term string) []string {
	if strings.HasSuffix(term, "s") && len(term) > 1 {
		return []string{term, strings.TrimSuffix(term, "s")}
	}
	return []string{term, term + "s"}
}

// scoreRecord rates how well the term matches a record's title or tags on a
// 0-100 scale.
func scoreRecord(term string, rec Record) int {
	best := scoreText(term, rec.Title)
	for _, tag := range rec.Tags {
		if s := scoreText(term, tag); s > best {
			best = s
		}
	}
	return best
}

// scoreText gives 100 for containment either way and otherwise falls back to
// a normalized Levenshtein similarity over the candidate's words.
func scoreText(term, text string) int {
	text = strings.ToLower(text)
	if term == text {
		return 100
	}
	if strings.Contains(text, term) || strings.Contains(term, text) {
		return 100
	}
	best := 0
	for _, word := range strings.Fields(text) {
		if s := similarity(term, word); s > best {
			best = s
		}
	}
	return best
}

func similarity(a, b string) int {
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 0
	}
	dist := fuzzy.LevenshteinDistance(a, b)
	if dist >= longest {
		return 0
	}
	return (longest - dist) * 100 / longest
}

// dedupe keeps the first record seen per file, in order, up to max entries.
func dedupe(records []Record, max int) []Record {
	seen := make(map[string]struct{}, len(records))
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		if _, dup := seen[rec.File]; dup {
			continue
		}
		seen[rec.File] = struct{}{}
		out = append(out, rec)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}
