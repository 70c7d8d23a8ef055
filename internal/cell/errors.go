package cell

import (
	"errors"
	"fmt"
)

// IncompleteError is returned by reads of an incomplete cell inside a
// completeness-sensitive region. It never escapes the condition evaluator.
type IncompleteError struct {
	Ref Ref
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("cell %s is incomplete", e.Ref)
}

// IsIncomplete reports whether err is, or wraps, an *IncompleteError.
func IsIncomplete(err error) bool {
	var ie *IncompleteError
	return errors.As(err, &ie)
}
