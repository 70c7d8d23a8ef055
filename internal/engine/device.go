package engine

import (
	"go.uber.org/zap"

	"github.com/roach88/cellrules/internal/cell"
)

// DefaultRangeMax is the max of a range cell declared without one.
const DefaultRangeMax = 255

// ControlDef declares one cell of a locally defined device.
type ControlDef struct {
	Name        string
	Title       string
	Type        string
	Default     cell.Value
	Min         *float64
	Max         *float64
	Order       int
	Units       string
	Readonly    bool
	Description string

	// ForceDefault resets the cell to Default on re-registration instead
	// of keeping a value it already has.
	ForceDefault bool
}

// DeviceDef declares a device owned by this engine.
type DeviceDef struct {
	Name     string
	Title    string
	Controls []ControlDef
}

// Control returns the control named name.
func (d DeviceDef) Control(name string) (ControlDef, bool) {
	for _, c := range d.Controls {
		if c.Name == name {
			return c, true
		}
	}
	return ControlDef{}, false
}

// Validate checks a device definition.
func (d DeviceDef) Validate() error {
	subject := "device " + d.Name
	if !cell.ValidName(d.Name) {
		return NewInvalidDefinition(subject, "invalid device name")
	}
	seen := make(map[string]bool, len(d.Controls))
	for _, c := range d.Controls {
		if !cell.ValidName(c.Name) {
			return NewInvalidDefinition(subject, "invalid cell name %q", c.Name)
		}
		if seen[c.Name] {
			return NewInvalidDefinition(subject, "duplicate cell %q", c.Name)
		}
		seen[c.Name] = true
		if !cell.KnownType(c.Type) {
			return NewInvalidDefinition(subject, "cell %q: unknown type %q", c.Name, c.Type)
		}
		if c.Default != nil && !defaultMatchesType(c.Type, cell.Normalize(c.Default)) {
			return NewInvalidDefinition(subject, "cell %q: default %v does not match type %s", c.Name, c.Default, c.Type)
		}
		if c.Min != nil && c.Max != nil && *c.Min > *c.Max {
			return NewInvalidDefinition(subject, "cell %q: min greater than max", c.Name)
		}
	}
	return nil
}

func defaultMatchesType(typ string, v cell.Value) bool {
	switch v.(type) {
	case bool:
		return cell.IsBoolType(typ)
	case string:
		return cell.IsTextType(typ)
	case float64:
		return !cell.IsBoolType(typ) && !cell.IsTextType(typ)
	default:
		return false
	}
}

// DefineDevice declares a local device and its cells. Metadata is written
// for every cell. A cell that already has a value keeps it unless its
// control sets ForceDefault.
func (e *Engine) DefineDevice(def DeviceDef) error {
	if err := def.Validate(); err != nil {
		return err
	}
	e.local[cell.NormalizeName(def.Name)] = def

	for i, c := range def.Controls {
		h := e.cells.Cell(def.Name, c.Name)
		e.cells.SetMeta(def.Name, c.Name, cell.MetaType, c.Type)

		order := c.Order
		if order == 0 {
			order = i + 1
		}
		e.cells.SetMeta(def.Name, c.Name, cell.MetaOrder, order)
		if c.Readonly {
			e.cells.SetMeta(def.Name, c.Name, cell.MetaReadonly, true)
		}
		if c.Title != "" {
			e.cells.SetMeta(def.Name, c.Name, cell.MetaTitle, c.Title)
		}
		units := c.Units
		if units == "" {
			units = cell.DefaultUnits(c.Type)
		}
		if units != "" {
			e.cells.SetMeta(def.Name, c.Name, cell.MetaUnits, units)
		}
		if c.Description != "" {
			e.cells.SetMeta(def.Name, c.Name, cell.MetaDescription, c.Description)
		}
		if c.Type == cell.TypeRange {
			max := float64(DefaultRangeMax)
			if c.Max != nil {
				max = *c.Max
			}
			e.cells.SetMeta(def.Name, c.Name, cell.MetaMax, max)
		} else if c.Max != nil {
			e.cells.SetMeta(def.Name, c.Name, cell.MetaMax, *c.Max)
		}
		if c.Min != nil {
			e.cells.SetMeta(def.Name, c.Name, cell.MetaMin, *c.Min)
		}

		if h.Complete() && !c.ForceDefault {
			continue
		}
		value := c.Default
		if value == nil {
			value = cell.ZeroValue(c.Type)
		}
		e.cells.Set(def.Name, c.Name, value)
	}

	e.log.Debug("device defined", zap.String("device", def.Name), zap.Int("cells", len(def.Controls)))
	return nil
}

// LocalDevice returns the definition of a device declared with
// DefineDevice.
func (e *Engine) LocalDevice(name string) (DeviceDef, bool) {
	d, ok := e.local[cell.NormalizeName(name)]
	return d, ok
}

// IsLocal reports whether ref belongs to a device declared locally.
func (e *Engine) IsLocal(ref cell.Ref) bool {
	_, ok := e.local[ref.Device]
	return ok
}
