package compiler

import (
	"cuelang.org/go/cue"

	"github.com/roach88/cellrules/internal/cell"
)

func field(v cue.Value, name string) cue.Value {
	return v.LookupPath(cue.MakePath(cue.Str(name)))
}

func label(v cue.Value) string {
	sels := v.Path().Selectors()
	if len(sels) == 0 {
		return ""
	}
	return sels[len(sels)-1].Unquoted()
}

// The opt* helpers return the zero value for a missing field and a
// CompileError for a field of the wrong kind.

func optString(v cue.Value, name, path, code string) (string, error) {
	f := field(v, name)
	if !f.Exists() {
		return "", nil
	}
	s, err := f.String()
	if err != nil {
		return "", errorf(code, path+"."+name, f.Pos(), "must be a string")
	}
	return s, nil
}

func optBool(v cue.Value, name, path, code string) (bool, error) {
	f := field(v, name)
	if !f.Exists() {
		return false, nil
	}
	b, err := f.Bool()
	if err != nil {
		return false, errorf(code, path+"."+name, f.Pos(), "must be a bool")
	}
	return b, nil
}

func optNumber(v cue.Value, name, path, code string) (*float64, error) {
	f := field(v, name)
	if !f.Exists() {
		return nil, nil
	}
	n, err := f.Float64()
	if err != nil {
		return nil, errorf(code, path+"."+name, f.Pos(), "must be a number")
	}
	return &n, nil
}

func optInt(v cue.Value, name, path, code string) (int, error) {
	f := field(v, name)
	if !f.Exists() {
		return 0, nil
	}
	n, err := f.Int64()
	if err != nil {
		return 0, errorf(code, path+"."+name, f.Pos(), "must be an integer")
	}
	return int(n), nil
}

// scalar converts a concrete bool, string or number to a cell value.
func scalar(v cue.Value, path, code string) (cell.Value, error) {
	switch v.Kind() {
	case cue.BoolKind:
		b, _ := v.Bool()
		return b, nil
	case cue.StringKind:
		s, _ := v.String()
		return s, nil
	case cue.IntKind, cue.FloatKind, cue.NumberKind:
		n, err := v.Float64()
		if err != nil {
			return nil, errorf(code, path, v.Pos(), "%v", err)
		}
		return n, nil
	default:
		return nil, errorf(code, path, v.Pos(), "must be a bool, string or number, got %v", v.IncompleteKind())
	}
}
