//go:build !ios && !android && (amd64 || arm64)

package projgo

import (
	"errors"
	"fmt"

	"github.com/osgeo/projgo/internal/capi"
)

// Common errors
var (
	// ErrOutOfMemory indicates a native factory call returned a null handle.
	ErrOutOfMemory = errors.New("projgo: out of memory")

	// ErrNotLoaded indicates the PROJ shim library is not loaded.
	ErrNotLoaded = capi.ErrNotLoaded

	// ErrUnformattable indicates the object cannot be expressed in the
	// requested convention.
	ErrUnformattable = errors.New("projgo: object cannot be formatted in the requested convention")

	// ErrNotAnOperation indicates Transform was called on an object that
	// is not a coordinate operation.
	ErrNotAnOperation = errors.New("projgo: object is not a coordinate operation")
)

// Error is an error reported by the PROJ engine.
// It contains the raw PROJ error code and a human-readable message.
type Error struct {
	Code    int32  // Raw PROJ error code
	Message string // Human-readable message
	Op      string // Operation that failed
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("proj %s: %s (code %d)", e.Op, e.Message, e.Code)
}

// NewError creates an Error from a PROJ error code.
// Returns nil if code is 0 (success).
func NewError(code int32, op string) error {
	if code == 0 {
		return nil
	}
	msg := "unknown error"
	if capi.ErrnoString != nil {
		if s := capi.ErrnoString(code); s != "" {
			msg = s
		}
	}
	return &Error{Code: code, Message: msg, Op: op}
}

// ErrorCode returns the PROJ error code from an error, or 0 if err is not
// an engine error.
func ErrorCode(err error) int32 {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return 0
}

// contextError converts the pending error of a context into an Error, or
// returns nil if the context reports no error. Reading the errno clears it
// on the shim side, so call this at most once per failed native call.
func contextError(ctx uintptr, op string) error {
	if capi.ContextErrno == nil {
		return nil
	}
	return NewError(capi.ContextErrno(ctx), op)
}

// allocationOrContextError maps a zero handle returned by a native factory
// call to a typed error: the context's pending error if it has one,
// otherwise ErrOutOfMemory (the engine signals exhaustion with a bare null).
func allocationOrContextError(ctx uintptr, op string) error {
	if err := contextError(ctx, op); err != nil {
		return err
	}
	return ErrOutOfMemory
}
