package memento

import (
	"errors"
	"fmt"

	"github.com/ehrlich-b/memento/internal/errkind"
)

// ErrorKind enumerates the non-fatal conditions a Tracker reports through a
// Recorder's OnError hook (spec.md §7). It is never returned to application
// code from Alloc/Dealloc — only WithRecorder (and WithUsecase, which
// reports it by returning ok == false) ever surfaces one directly.
type ErrorKind = errkind.Kind

const (
	// ContentionRefCell: another frame on the same goroutine already held
	// the synchronized section. Expected to happen often — recorders are
	// allowed to allocate, and any such nested call will see this.
	ContentionRefCell = errkind.ContentionRefCell
	// ContentionThreadLocal: the goroutine's own identity could not be
	// established.
	ContentionThreadLocal = errkind.ContentionThreadLocal
	// BadBytes: a raw tag failed to decode; the default usecase was
	// substituted and recording proceeded regardless.
	BadBytes = errkind.BadBytes
)

// Error is memento's structured error type, modeled directly on the
// teacher's errors.go: an operation name, a kind, optional size context, a
// message, and an optionally wrapped inner error.
type Error struct {
	Op    string   // operation that failed, e.g. "WithUsecase", "WithRecorder"
	Kind  ErrorKind // error category
	Size  *uintptr // byte size in play, if any
	Msg   string   // human-readable message
	Inner error    // wrapped error, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		return fmt.Sprintf("memento: %s: %s (op=%s)", e.Kind, msg, e.Op)
	}
	return fmt.Sprintf("memento: %s: %s", e.Kind, msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is provides errors.Is support, comparing by Kind the way the teacher's
// *Error compares by UblkErrorCode.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return e.Kind == te.Kind
	}
	return false
}

// NewError creates a structured Error for the given operation and kind.
func NewError(op string, kind ErrorKind, size *uintptr) *Error {
	return &Error{Op: op, Kind: kind, Size: size, Msg: kind.String()}
}

// WrapError wraps inner with memento context, preserving inner's kind if it
// was already a *Error.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	var ie *Error
	if errors.As(inner, &ie) {
		return &Error{Op: op, Kind: ie.Kind, Size: ie.Size, Msg: ie.Msg, Inner: ie.Inner}
	}
	return &Error{Op: op, Kind: ContentionRefCell, Msg: inner.Error(), Inner: inner}
}

// IsKind reports whether err is a memento *Error carrying the given kind,
// mirroring the teacher's IsCode helper.
func IsKind(err error, kind ErrorKind) bool {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind == kind
	}
	return false
}
