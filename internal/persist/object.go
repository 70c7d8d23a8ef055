package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/roach88/cellrules/internal/cell"
)

var (
	// ErrPlainObjectNotStorable is returned when a map or slice that was
	// not wrapped is written to storage or into a tracked object.
	ErrPlainObjectNotStorable = errors.New("plain object is not storable, wrap it first")

	// ErrCyclicObject is returned when an object would become reachable
	// from itself.
	ErrCyclicObject = errors.New("object cannot contain itself")
)

// link is a back-link: either a storage key or a parent object.
type link struct {
	storage *Storage
	key     string
	parent  *Object
}

// Object is a tracked structured value. Field values are scalars, slices
// of plain values, or nested *Object.
type Object struct {
	fields map[string]any
	links  []link
}

// Wrap returns a tracked object for v. A map is converted recursively,
// nested maps becoming objects linked to their parent; a nested *Object
// gains a back-link to the new parent. Wrapping an *Object returns it
// unchanged.
func Wrap(v any) (*Object, error) {
	switch x := v.(type) {
	case *Object:
		return x, nil
	case map[string]any:
		return wrapMap(x, nil)
	default:
		return nil, fmt.Errorf("cannot wrap %T", v)
	}
}

// MustWrap is Wrap for literals known to be valid.
func MustWrap(v any) *Object {
	o, err := Wrap(v)
	if err != nil {
		panic(err)
	}
	return o
}

func wrapMap(m map[string]any, parent *Object) (*Object, error) {
	o := &Object{fields: make(map[string]any, len(m))}
	if parent != nil {
		o.links = append(o.links, link{parent: parent})
	}
	for k, v := range m {
		fv, err := o.wrapField(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		o.fields[k] = fv
	}
	return o, nil
}

func (o *Object) wrapField(v any) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		return wrapMap(x, o)
	case *Object:
		x.addLink(link{parent: o})
		return x, nil
	case []any:
		return copyPlain(x), nil
	default:
		return cell.Normalize(v), nil
	}
}

func copyPlain(s []any) []any {
	out := make([]any, len(s))
	for i, v := range s {
		switch x := v.(type) {
		case []any:
			out[i] = copyPlain(x)
		case map[string]any:
			m := make(map[string]any, len(x))
			for k, mv := range x {
				m[k] = mv
			}
			out[i] = m
		default:
			out[i] = cell.Normalize(v)
		}
	}
	return out
}

// Get returns a field value and whether it exists. Structured fields are
// returned as *Object.
func (o *Object) Get(field string) (any, bool) {
	v, ok := o.fields[field]
	return v, ok
}

// Object returns a nested object field.
func (o *Object) Object(field string) (*Object, bool) {
	v, ok := o.fields[field].(*Object)
	return v, ok
}

// Keys returns the field names, sorted.
func (o *Object) Keys() []string {
	keys := make([]string, 0, len(o.fields))
	for k := range o.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of fields.
func (o *Object) Len() int {
	return len(o.fields)
}

// Set writes a field and re-persists the object through every back-link.
// Plain maps and slices are rejected; an *Object value gains a back-link
// to o.
func (o *Object) Set(ctx context.Context, field string, v any) error {
	switch x := v.(type) {
	case map[string]any, []any:
		return ErrPlainObjectNotStorable
	case *Object:
		if x.reaches(o) {
			return ErrCyclicObject
		}
		x.addLink(link{parent: o})
	default:
		v = cell.Normalize(v)
	}
	o.fields[field] = v
	return o.persist(ctx)
}

// Delete removes a field and re-persists the object.
func (o *Object) Delete(ctx context.Context, field string) error {
	if _, ok := o.fields[field]; !ok {
		return nil
	}
	delete(o.fields, field)
	return o.persist(ctx)
}

// Map returns a plain deep copy.
func (o *Object) Map() map[string]any {
	m := make(map[string]any, len(o.fields))
	for k, v := range o.fields {
		if nested, ok := v.(*Object); ok {
			m[k] = nested.Map()
			continue
		}
		m[k] = v
	}
	return m
}

// MarshalJSON encodes the object fields.
func (o *Object) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.fields)
}

// reaches reports whether target is o or nested somewhere below o.
func (o *Object) reaches(target *Object) bool {
	if o == target {
		return true
	}
	for _, v := range o.fields {
		if nested, ok := v.(*Object); ok && nested.reaches(target) {
			return true
		}
	}
	return false
}

func (o *Object) addLink(l link) {
	for _, existing := range o.links {
		if existing == l {
			return
		}
	}
	o.links = append(o.links, l)
}

// persist writes o to every storage key holding it and asks every parent
// to do the same for its own root.
func (o *Object) persist(ctx context.Context) error {
	return o.persistVisited(ctx, make(map[*Object]bool))
}

func (o *Object) persistVisited(ctx context.Context, seen map[*Object]bool) error {
	if seen[o] {
		return nil
	}
	seen[o] = true

	var errs []error
	for _, l := range o.links {
		if l.parent != nil {
			if err := l.parent.persistVisited(ctx, seen); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		if err := l.storage.put(ctx, l.key, o); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Links returns the storage keys holding o directly, as "store/key".
func (o *Object) Links() []string {
	var out []string
	for _, l := range o.links {
		if l.storage != nil {
			out = append(out, l.storage.name+"/"+l.key)
		}
	}
	return out
}
