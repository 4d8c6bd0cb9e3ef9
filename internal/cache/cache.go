// Package cache stores successful answers keyed by a fingerprint of the
// question and recent chat history so identical follow-up requests skip the
// model pool entirely.
package cache

import (
	"context"
	"fmt"
	"hash/fnv"
)

// ResponseCache is the contract the orchestrator relies on. Implementations
// must be safe for concurrent use; expiry is enforced on read.
type ResponseCache interface {
	// Get returns the cached answer for key when present and unexpired.
	Get(ctx context.Context, key string) (string, bool, error)
	// Put inserts or overwrites the answer for key with the current timestamp.
	Put(ctx context.Context, key, response string) error
	// Size reports the current entry count for diagnostics.
	Size(ctx context.Context) (int64, error)
	// Close releases backend resources.
	Close(ctx context.Context) error
}

// KeyFor derives the cache fingerprint from the raw question and the textual
// content of the most recent history messages, in order. The question is kept
// verbatim: no case or whitespace normalization is applied, so questions that
// differ only in casing produce distinct entries.
func KeyFor(question string, recent []string) string {
	h := fnv.New64a()
	for _, text := range recent {
		_, _ = h.Write([]byte(text))
		_, _ = h.Write([]byte{0x1f})
	}
	return fmt.Sprintf("%s|%016x", question, h.Sum64())
}
