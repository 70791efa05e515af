package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDs generates predictable ids ("<prefix>-1", "<prefix>-2", ...)
// in place of random UUIDs.
//
// The same test with the same prefix produces byte-identical idempotency
// keys, and therefore identical event hashes.
//
// Thread-safety: Next is safe for concurrent use.
type SequenceIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceIDs creates a generator. An empty prefix defaults to "test-id".
func NewSequenceIDs(prefix string) *SequenceIDs {
	if prefix == "" {
		prefix = "test-id"
	}
	return &SequenceIDs{prefix: prefix}
}

// Next returns the next id. It matches the func() string shape used for id
// injection.
func (g *SequenceIDs) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
