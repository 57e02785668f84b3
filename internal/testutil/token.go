package testutil

import (
	"fmt"
	"sync"
)

// SequenceTokenGenerator mints deterministic idempotency tokens for tests.
//
// Unlike engine.FixedGenerator, which panics once its predetermined tokens
// run out, SequenceTokenGenerator never exhausts: it counts upward and
// formats each token from a prefix and a sequence number. This suits
// scenario runs where the total number of provider intents is not known
// up front, while still producing byte-identical state across runs.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type SequenceTokenGenerator struct {
	mu     sync.Mutex
	prefix string
	seq    int64
}

// NewSequenceTokenGenerator creates a generator starting at 0.
//
// The first Generate() returns "<prefix>-000001". If prefix is empty,
// "token" is used.
func NewSequenceTokenGenerator(prefix string) *SequenceTokenGenerator {
	if prefix == "" {
		prefix = "token"
	}
	return &SequenceTokenGenerator{prefix: prefix}
}

// Generate returns the next token in the sequence.
//
// Implements engine.TokenGenerator.
func (g *SequenceTokenGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%s-%06d", g.prefix, g.seq)
}

// Count returns how many tokens have been generated so far.
//
// Thread-safe: uses mutex to protect seq access.
func (g *SequenceTokenGenerator) Count() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seq
}

// Reset rewinds the sequence to 0.
//
// Used for test reuse. After Reset(), the next Generate() returns the
// first token again.
func (g *SequenceTokenGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}
