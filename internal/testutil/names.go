package testutil

import (
	"fmt"
	"sync"
)

// SequentialNames generates "<prefix>-1", "<prefix>-2", ... so anonymous
// rule names are stable across test runs.
//
// It satisfies engine.NameGenerator.
type SequentialNames struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialNames creates a generator. An empty prefix means "rule".
func NewSequentialNames(prefix string) *SequentialNames {
	if prefix == "" {
		prefix = "rule"
	}
	return &SequentialNames{prefix: prefix}
}

// Generate returns the next name.
func (g *SequentialNames) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
