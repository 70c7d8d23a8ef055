package cell

import "sort"

// Metadata fields.
const (
	MetaType        = "type"
	MetaMax         = "max"
	MetaMin         = "min"
	MetaOrder       = "order"
	MetaUnits       = "units"
	MetaReadonly    = "readonly"
	MetaError       = "error"
	MetaDescription = "description"
	MetaTitle       = "title"
)

// Cell is a lazily materialized cell handle.
type Cell struct {
	ref      Ref
	value    Value
	complete bool
	meta     map[string]any
}

// Ref returns the cell reference.
func (c *Cell) Ref() Ref { return c.ref }

// Value returns the current value, nil if the cell never received one.
func (c *Cell) Value() Value { return c.value }

// Complete reports whether the cell has received a value.
func (c *Cell) Complete() bool { return c.complete }

// Meta returns a metadata field.
func (c *Cell) Meta(field string) (any, bool) {
	v, ok := c.meta[field]
	return v, ok
}

// Type returns the declared cell type, or "" if none.
func (c *Cell) Type() string {
	s, _ := c.meta[MetaType].(string)
	return s
}

// Readonly reports whether the cell is declared read-only.
func (c *Cell) Readonly() bool {
	b, _ := c.meta[MetaReadonly].(bool)
	return b
}

// MetaFields returns a copy of the cell metadata.
func (c *Cell) MetaFields() map[string]any {
	out := make(map[string]any, len(c.meta))
	for k, v := range c.meta {
		out[k] = v
	}
	return out
}

// Change describes an effective write to a cell value or metadata field.
// For metadata changes Ref.Meta is set.
type Change struct {
	Ref Ref
	Old Value
	New Value
}

// ChangeFunc receives changes after they are applied.
type ChangeFunc func(Change)

// Store holds all cells known to the process.
type Store struct {
	cells    map[Ref]*Cell
	devices  map[string][]*Cell
	onChange ChangeFunc
	depth    int
}

// NewStore creates an empty store. onChange may be nil.
func NewStore(onChange ChangeFunc) *Store {
	return &Store{
		cells:    make(map[Ref]*Cell),
		devices:  make(map[string][]*Cell),
		onChange: onChange,
	}
}

// SetChangeFunc replaces the change hook.
func (s *Store) SetChangeFunc(fn ChangeFunc) {
	s.onChange = fn
}

// Cell returns the handle for (device, name), creating it on first use.
func (s *Store) Cell(device, name string) *Cell {
	return s.cellFor(NewRef(device, name))
}

func (s *Store) cellFor(ref Ref) *Cell {
	ref = ref.CellRef()
	if c, ok := s.cells[ref]; ok {
		return c
	}
	c := &Cell{ref: ref, meta: make(map[string]any)}
	s.cells[ref] = c
	s.devices[ref.Device] = append(s.devices[ref.Device], c)
	return c
}

// Lookup returns an existing cell without materializing it.
func (s *Store) Lookup(ref Ref) (*Cell, bool) {
	c, ok := s.cells[ref.CellRef()]
	return c, ok
}

// RequireComplete enters a completeness-sensitive region. The returned
// release func must be called exactly once, normally via defer.
// Regions nest.
func (s *Store) RequireComplete() (release func()) {
	s.depth++
	released := false
	return func() {
		if released {
			return
		}
		released = true
		s.depth--
	}
}

// Strict reports whether a completeness-sensitive region is active.
func (s *Store) Strict() bool {
	return s.depth > 0
}

// Get returns the cell value. Inside a completeness-sensitive region an
// incomplete cell yields *IncompleteError.
func (s *Store) Get(device, name string) (Value, error) {
	return s.GetRef(NewRef(device, name))
}

// GetRef is Get for a parsed reference. Metadata references return the
// metadata field value.
func (s *Store) GetRef(ref Ref) (Value, error) {
	c := s.cellFor(ref)
	if ref.IsMeta() {
		v, _ := c.Meta(ref.Meta)
		return v, nil
	}
	if !c.complete && s.depth > 0 {
		return nil, &IncompleteError{Ref: c.ref}
	}
	return c.value, nil
}

// GetPath is Get for "device/cell" or "device/cell#meta".
func (s *Store) GetPath(path string) (Value, error) {
	ref, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	return s.GetRef(ref)
}

// Complete reports whether (device, name) has a value.
func (s *Store) Complete(device, name string) bool {
	return s.Cell(device, name).complete
}

// Set writes a cell value and marks the cell complete. It reports whether
// the write was effective; ineffective writes (same value on a complete
// cell) do not notify, except for pushbutton cells.
func (s *Store) Set(device, name string, v Value) bool {
	return s.SetRef(NewRef(device, name), v)
}

// SetRef is Set for a parsed reference. Metadata references set the
// metadata field. Values are coerced to the cell's declared type.
func (s *Store) SetRef(ref Ref, v Value) bool {
	if ref.IsMeta() {
		return s.setMeta(s.cellFor(ref), ref.Meta, v)
	}
	c := s.cellFor(ref)
	v = Coerce(c.Type(), Normalize(v))
	old := c.value
	if c.complete && old == v && c.Type() != TypePushbutton {
		return false
	}
	c.value = v
	c.complete = true
	s.notify(Change{Ref: c.ref, Old: old, New: v})
	return true
}

// SetPath is Set for "device/cell" or "device/cell#meta".
func (s *Store) SetPath(path string, v Value) (bool, error) {
	ref, err := ParsePath(path)
	if err != nil {
		return false, err
	}
	return s.SetRef(ref, v), nil
}

// GetMeta returns a metadata field of (device, name).
func (s *Store) GetMeta(device, name, field string) (any, bool) {
	return s.Cell(device, name).Meta(field)
}

// SetMeta writes a metadata field of (device, name).
func (s *Store) SetMeta(device, name, field string, v any) bool {
	return s.setMeta(s.Cell(device, name), field, v)
}

func (s *Store) setMeta(c *Cell, field string, v any) bool {
	v = Normalize(v)
	old, had := c.meta[field]
	if had && old == v {
		return false
	}
	if v == nil {
		delete(c.meta, field)
	} else {
		c.meta[field] = v
	}
	s.notify(Change{Ref: c.ref.WithMeta(field), Old: old, New: v})
	return true
}

// Reset drops the value of a cell, making it incomplete again.
// No change is reported.
func (s *Store) Reset(device, name string) {
	c := s.Cell(device, name)
	c.value = nil
	c.complete = false
}

// Devices returns the names of all devices with materialized cells, sorted.
func (s *Store) Devices() []string {
	names := make([]string, 0, len(s.devices))
	for name := range s.devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DeviceCells returns the cells of a device in materialization order.
func (s *Store) DeviceCells(device string) []*Cell {
	cells := s.devices[NormalizeName(device)]
	out := make([]*Cell, len(cells))
	copy(out, cells)
	return out
}

func (s *Store) notify(ch Change) {
	if s.onChange != nil {
		s.onChange(ch)
	}
}
