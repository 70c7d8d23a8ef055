package compiler

import (
	"cuelang.org/go/cue"

	"github.com/roach88/cellrules/internal/engine"
)

// CompileDevice parses a CUE value into a DeviceDef. The value is the
// device struct itself, labelled with the device name:
//
//	device: heater: {
//		title: "Heater"
//		cells: {
//			enabled: {type: "switch", value: false}
//			level:   {type: "range", value: 10, max: 100}
//		}
//	}
func CompileDevice(v cue.Value) (engine.DeviceDef, error) {
	if err := v.Err(); err != nil {
		return engine.DeviceDef{}, formatCUEError(err, "device")
	}

	def := engine.DeviceDef{Name: label(v)}
	path := "device." + def.Name

	var err error
	if def.Title, err = optString(v, "title", path, ErrCodeDevice); err != nil {
		return engine.DeviceDef{}, err
	}

	cells := field(v, "cells")
	if !cells.Exists() {
		return engine.DeviceDef{}, errorf(ErrCodeDevice, path+".cells", v.Pos(), "cells are required")
	}
	iter, err := cells.Fields()
	if err != nil {
		return engine.DeviceDef{}, errorf(ErrCodeDevice, path+".cells", cells.Pos(), "must be a struct")
	}
	for iter.Next() {
		c, err := compileControl(iter.Value(), iter.Selector().Unquoted(), path+".cells")
		if err != nil {
			return engine.DeviceDef{}, err
		}
		def.Controls = append(def.Controls, c)
	}
	if len(def.Controls) == 0 {
		return engine.DeviceDef{}, errorf(ErrCodeDevice, path+".cells", cells.Pos(), "at least one cell is required")
	}

	if err := def.Validate(); err != nil {
		return engine.DeviceDef{}, errorf(ErrCodeDevice, path, v.Pos(), "%v", err)
	}
	return def, nil
}

func compileControl(v cue.Value, name, parent string) (engine.ControlDef, error) {
	path := parent + "." + name
	c := engine.ControlDef{Name: name}

	typ := field(v, "type")
	if !typ.Exists() {
		return c, errorf(ErrCodeCellType, path+".type", v.Pos(), "type is required")
	}
	var err error
	if c.Type, err = typ.String(); err != nil {
		return c, errorf(ErrCodeCellType, path+".type", typ.Pos(), "must be a string")
	}

	if def := field(v, "value"); def.Exists() {
		if c.Default, err = scalar(def, path+".value", ErrCodeCell); err != nil {
			return c, err
		}
	}
	if c.Title, err = optString(v, "title", path, ErrCodeCell); err != nil {
		return c, err
	}
	if c.Units, err = optString(v, "units", path, ErrCodeCell); err != nil {
		return c, err
	}
	if c.Description, err = optString(v, "description", path, ErrCodeCell); err != nil {
		return c, err
	}
	if c.Min, err = optNumber(v, "min", path, ErrCodeCell); err != nil {
		return c, err
	}
	if c.Max, err = optNumber(v, "max", path, ErrCodeCell); err != nil {
		return c, err
	}
	if c.Order, err = optInt(v, "order", path, ErrCodeCell); err != nil {
		return c, err
	}
	if c.Readonly, err = optBool(v, "readonly", path, ErrCodeCell); err != nil {
		return c, err
	}
	if c.ForceDefault, err = optBool(v, "forceDefault", path, ErrCodeCell); err != nil {
		return c, err
	}
	return c, nil
}
