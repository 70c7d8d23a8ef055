package cell

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Ref identifies a cell, or one metadata field of a cell when Meta is set.
type Ref struct {
	Device string
	Cell   string
	Meta   string
}

// NewRef builds a normalized cell reference.
func NewRef(device, cell string) Ref {
	return Ref{Device: NormalizeName(device), Cell: NormalizeName(cell)}
}

// String renders the reference in path form.
func (r Ref) String() string {
	if r.Meta != "" {
		return r.Device + "/" + r.Cell + "#" + r.Meta
	}
	return r.Device + "/" + r.Cell
}

// IsZero reports whether r is the zero reference.
func (r Ref) IsZero() bool {
	return r == Ref{}
}

// IsMeta reports whether r points at a metadata field.
func (r Ref) IsMeta() bool {
	return r.Meta != ""
}

// CellRef returns r without the metadata field.
func (r Ref) CellRef() Ref {
	return Ref{Device: r.Device, Cell: r.Cell}
}

// WithMeta returns r pointing at the given metadata field.
func (r Ref) WithMeta(field string) Ref {
	return Ref{Device: r.Device, Cell: r.Cell, Meta: NormalizeName(field)}
}

// PathError reports a malformed cell path.
type PathError struct {
	Path   string
	Reason string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("invalid cell path %q: %s", e.Path, e.Reason)
}

// ParsePath parses "device/cell" or "device/cell#meta".
// Names are NFC-normalized so visually identical names address the same cell.
func ParsePath(path string) (Ref, error) {
	body, meta, hasMeta := strings.Cut(path, "#")
	device, cell, ok := strings.Cut(body, "/")
	switch {
	case !ok:
		return Ref{}, &PathError{Path: path, Reason: "expected device/cell"}
	case device == "" || cell == "":
		return Ref{}, &PathError{Path: path, Reason: "empty device or cell name"}
	case strings.Contains(cell, "/"):
		return Ref{}, &PathError{Path: path, Reason: "too many path segments"}
	case hasMeta && meta == "":
		return Ref{}, &PathError{Path: path, Reason: "empty meta field"}
	}
	ref := NewRef(device, cell)
	if hasMeta {
		ref = ref.WithMeta(meta)
	}
	return ref, nil
}

// MustParsePath is ParsePath for literals known to be valid.
func MustParsePath(path string) Ref {
	ref, err := ParsePath(path)
	if err != nil {
		panic(err)
	}
	return ref
}

// ValidName reports whether s can be used as a device or cell name.
func ValidName(s string) bool {
	return s != "" && !strings.ContainsAny(s, "/#+")
}

// NormalizeName returns the NFC form device and cell names are keyed by.
func NormalizeName(s string) string {
	return norm.NFC.String(s)
}
