package compiler

import (
	"fmt"

	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Error codes reported by LoadDir and the validate command.
const (
	ErrCodeGeneric     = "E001" // generic/unknown error
	ErrCodeScanError   = "E002" // directory scan error
	ErrCodeNoFiles     = "E003" // no CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // path not found
	ErrCodeBuildFailed = "E006" // CUE build failed

	ErrCodeDevice    = "E101" // invalid device definition
	ErrCodeCell      = "E102" // invalid cell definition
	ErrCodeCellType  = "E103" // unknown or mismatched cell type
	ErrCodeAlarms    = "E110" // invalid alarm group
	ErrCodeAlarm     = "E111" // invalid alarm
	ErrCodeRecipient = "E112" // invalid recipient
	ErrCodeConflict  = "E120" // device name declared twice
)

// CompileError is a definition error with its source position.
type CompileError struct {
	Code    string
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func errorf(code, field string, pos token.Pos, format string, args ...any) *CompileError {
	return &CompileError{
		Code:    code,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Pos:     pos,
	}
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error, field string) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := errors.Positions(first)
	if len(positions) > 0 {
		return &CompileError{
			Code:    ErrCodeGeneric,
			Field:   field,
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return &CompileError{Code: ErrCodeGeneric, Field: field, Message: first.Error()}
}
