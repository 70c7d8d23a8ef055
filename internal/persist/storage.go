package persist

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/cellrules/internal/cell"
)

// Storage is a named key space in a Backend.
type Storage struct {
	backend Backend
	name    string
}

// Open returns the storage called name.
func Open(backend Backend, name string) *Storage {
	return &Storage{backend: backend, name: name}
}

// Name returns the storage name.
func (s *Storage) Name() string {
	return s.name
}

// Get reads key. Missing keys read as nil. Structured values are returned
// as *Object linked back to (s, key), so field writes persist.
func (s *Storage) Get(ctx context.Context, key string) (any, error) {
	raw, ok, err := s.backend.Get(ctx, s.name, key)
	if err != nil {
		return nil, fmt.Errorf("persist get %s/%s: %w", s.name, key, err)
	}
	if !ok {
		return nil, nil
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("persist decode %s/%s: %w", s.name, key, err)
	}
	switch x := v.(type) {
	case map[string]any:
		o, err := wrapMap(x, nil)
		if err != nil {
			return nil, err
		}
		o.addLink(link{storage: s, key: key})
		return o, nil
	case []any:
		return copyPlain(x), nil
	default:
		return x, nil
	}
}

// Set writes key. Scalars are stored as they are; an *Object gains a
// back-link to (s, key). Plain maps and slices fail with
// ErrPlainObjectNotStorable.
func (s *Storage) Set(ctx context.Context, key string, v any) error {
	switch x := v.(type) {
	case map[string]any, []any:
		return ErrPlainObjectNotStorable
	case *Object:
		x.addLink(link{storage: s, key: key})
		return s.put(ctx, key, x)
	default:
		return s.put(ctx, key, cell.Normalize(v))
	}
}

func (s *Storage) put(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("persist encode %s/%s: %w", s.name, key, err)
	}
	if err := s.backend.Put(ctx, s.name, key, raw); err != nil {
		return fmt.Errorf("persist put %s/%s: %w", s.name, key, err)
	}
	return nil
}
