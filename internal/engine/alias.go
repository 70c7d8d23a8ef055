package engine

import (
	"fmt"
	"strings"

	"github.com/roach88/cellrules/internal/cell"
)

// DefineAlias binds a short name to a cell path. Aliases are resolved
// wherever a path is accepted, including "alias#meta".
func (e *Engine) DefineAlias(name, path string) error {
	if !cell.ValidName(name) {
		return NewInvalidDefinition("alias "+name, "invalid alias name")
	}
	ref, err := cell.ParsePath(path)
	if err != nil {
		return NewInvalidDefinition("alias "+name, "%v", err)
	}
	if ref.IsMeta() {
		return NewInvalidDefinition("alias "+name, "alias must point at a cell, not a meta field")
	}
	e.aliases[name] = ref
	return nil
}

// resolve turns a path or alias into a reference.
func (e *Engine) resolve(path string) (cell.Ref, error) {
	if strings.Contains(path, "/") {
		ref, err := cell.ParsePath(path)
		if err != nil {
			return cell.Ref{}, &Error{Code: ErrCodeUnknownCell, Message: err.Error()}
		}
		return ref, nil
	}
	name, meta, hasMeta := strings.Cut(path, "#")
	ref, ok := e.aliases[name]
	if !ok {
		return cell.Ref{}, &Error{Code: ErrCodeUnknownCell, Message: fmt.Sprintf("unknown cell or alias %q", path)}
	}
	if hasMeta {
		if meta == "" {
			return cell.Ref{}, &Error{Code: ErrCodeUnknownCell, Message: fmt.Sprintf("empty meta field in %q", path)}
		}
		ref = ref.WithMeta(meta)
	}
	return ref, nil
}
