package engine

import (
	"sync"

	"github.com/google/uuid"
)

// NameGenerator produces synthetic names for anonymous rules.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type NameGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 strings, so anonymous
// rules list in definition order.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined names in order.
type FixedGenerator struct {
	mu    sync.Mutex
	names []string
	idx   int
}

// NewFixedGenerator creates a generator that returns names in order.
func NewFixedGenerator(names ...string) *FixedGenerator {
	return &FixedGenerator{names: names}
}

// Generate returns the next predetermined name.
// Panics when all names are consumed.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.names) {
		panic("FixedGenerator: all names exhausted")
	}
	name := g.names[g.idx]
	g.idx++
	return name
}
