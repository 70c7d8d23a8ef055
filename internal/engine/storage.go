package engine

import (
	"github.com/roach88/cellrules/internal/persist"
)

// WithBackend sets the persistence backend behind Storage. Default is an
// in-memory backend.
func WithBackend(b persist.Backend) Option {
	return func(e *Engine) {
		e.backend = b
	}
}

// Storage returns the persistent storage called name. Repeated calls
// return the same instance so back-links stay deduplicated.
func (e *Engine) Storage(name string) *persist.Storage {
	if s, ok := e.storages[name]; ok {
		return s
	}
	s := persist.Open(e.backend, name)
	e.storages[name] = s
	return s
}

// Storage returns the persistent storage called name.
func (c *Context) Storage(name string) *persist.Storage {
	return c.engine.Storage(name)
}
