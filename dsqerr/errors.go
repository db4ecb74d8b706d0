// Package dsqerr implements the error taxonomy used throughout this
// module's Open/Read/Write paths: NotFound, Format, Incompatible,
// System, Memory, and WriteFailed, each wrapping an optional cause with
// github.com/pkg/errors so callers up the stack retain context without
// every layer having to re-wrap by hand.
package dsqerr

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Kind classifies a *Error. EOF is deliberately not represented here:
// spec treats end-of-data as a normal return value (io.EOF), not part
// of this taxonomy.
type Kind int

const (
	// NotFound: one of the four database files could not be opened.
	NotFound Kind = iota
	// Format: bad header, bad tag, truncated record, malformed
	// metadata, or a sequence-index mismatch after unpacking.
	Format
	// Incompatible: caller-supplied alphabet disagrees with the
	// database's alphabet.
	Incompatible
	// System: an OS primitive failed (I/O, goroutine lifecycle).
	System
	// Memory: an allocation failed.
	Memory
	// WriteFailed: a destination file could not be opened for writing.
	WriteFailed
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not found"
	case Format:
		return "format"
	case Incompatible:
		return "incompatible"
	case System:
		return "system"
	case Memory:
		return "memory"
	case WriteFailed:
		return "write failed"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned from Open-time and
// worker-time failures. Field is the header or record field the
// diagnostic names, if any (e.g. "tag", "flags"); it is empty when not
// applicable.
type Error struct {
	Kind  Kind
	Field string
	cause error
	msg   string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("dsqdata: %s: %s (field %q)", e.Kind, e.msg, e.Field)
	}
	return fmt.Sprintf("dsqdata: %s: %s", e.Kind, e.msg)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a *Error with no wrapped cause.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// NewField builds a *Error naming the header/record field at fault.
func NewField(kind Kind, field, format string, args ...any) *Error {
	return &Error{Kind: kind, Field: field, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches cause (via github.com/pkg/errors, so callers can still
// pkg-errors.Cause() or Unwrap() through to it) to a new *Error.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...), cause: pkgerrors.WithStack(cause)}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
