package cell

import (
	"fmt"
	"strconv"
)

// Value is a cell value: nil (no value yet), bool, float64 or string.
type Value = any

// Cell types understood by the store and the host bridge.
const (
	TypeSwitch     = "switch"
	TypeAlarm      = "alarm"
	TypePushbutton = "pushbutton"
	TypeRange      = "range"
	TypeRGB        = "rgb"
	TypeText       = "text"
	TypeValue      = "value"
)

// unitTypes are numeric types that only differ by their units.
var unitTypes = map[string]string{
	"temperature":          "deg C",
	"rel_humidity":         "%, RH",
	"atmospheric_pressure": "millibar",
	"power":                "watt",
	"power_consumption":    "kWh",
	"voltage":              "V",
	"current":              "A",
	"water_flow":           "m^3/hour",
	"heat_power":           "Gcal/hour",
	"lux":                  "lx",
	"sound_level":          "dB",
	"resistance":           "Ohm",
	"concentration":        "ppm",
}

// KnownType reports whether typ is a recognized cell type.
func KnownType(typ string) bool {
	switch typ {
	case TypeSwitch, TypeAlarm, TypePushbutton, TypeRange, TypeRGB, TypeText, TypeValue:
		return true
	}
	_, ok := unitTypes[typ]
	return ok
}

// DefaultUnits returns the implied units for a numeric cell type.
func DefaultUnits(typ string) string {
	return unitTypes[typ]
}

// IsBoolType reports whether cells of typ hold booleans.
func IsBoolType(typ string) bool {
	return typ == TypeSwitch || typ == TypeAlarm || typ == TypePushbutton
}

// IsTextType reports whether cells of typ hold strings.
func IsTextType(typ string) bool {
	return typ == TypeText || typ == TypeRGB
}

// ZeroValue returns the value a freshly declared cell of typ starts with
// when no default is given.
func ZeroValue(typ string) Value {
	switch {
	case IsBoolType(typ):
		return false
	case IsTextType(typ):
		return ""
	default:
		return float64(0)
	}
}

// Normalize converts v to one of the canonical value kinds so values can be
// compared with ==. Integers and float32 become float64; unknown kinds are
// formatted as strings.
func Normalize(v any) Value {
	switch x := v.(type) {
	case nil, bool, float64, string:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// Coerce converts a normalized value to the kind cells of typ hold:
// booleans for switch-like types, strings for text types, numbers for the
// rest. Values of an undeclared or unknown type, nil, and strings that are
// not numbers are returned unchanged.
func Coerce(typ string, v Value) Value {
	if v == nil || !KnownType(typ) {
		return v
	}
	switch {
	case IsBoolType(typ):
		return AsBool(v)
	case IsTextType(typ):
		return Format(v)
	default:
		if f, ok := AsFloat(v); ok {
			return f
		}
		return v
	}
}

// Equal compares two values after normalization.
func Equal(a, b Value) bool {
	return Normalize(a) == Normalize(b)
}

// Format renders a value the way it appears in messages and on the wire:
// integral floats without a fraction, booleans as true/false.
func Format(v Value) string {
	switch x := Normalize(v).(type) {
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// Parse converts a textual payload into a value for a cell of type typ.
func Parse(typ, s string) (Value, error) {
	switch {
	case IsBoolType(typ):
		switch s {
		case "1", "true":
			return true, nil
		case "0", "false", "":
			return false, nil
		}
		return nil, fmt.Errorf("invalid %s value %q", typ, s)
	case IsTextType(typ):
		return s, nil
	default:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s value %q: %w", typ, s, err)
		}
		return f, nil
	}
}

// Encode renders a value as a wire payload for a cell of type typ.
// Booleans are encoded as "1"/"0".
func Encode(typ string, v Value) string {
	if b, ok := Normalize(v).(bool); ok {
		if b {
			return "1"
		}
		return "0"
	}
	return Format(v)
}

// AsBool coerces v to a boolean the way conditions usually need it.
func AsBool(v Value) bool {
	switch x := Normalize(v).(type) {
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != "" && x != "0" && x != "false"
	default:
		return false
	}
}

// AsFloat coerces v to a number. Non-numeric strings report false.
func AsFloat(v Value) (float64, bool) {
	switch x := Normalize(v).(type) {
	case float64:
		return x, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
