package errdefs

import (
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

/*
Error kinds shared by every storage component.
Components wrap one of these sentinels with github.com/pkg/errors so the message carries
context (file, entry, page) while callers can still classify the failure with the IsX helpers.
*/

var (
	// ErrValidation: bad constructor or configuration arguments (zero dimension, empty name, non-directory path)
	ErrValidation = errors.New("validation error")
	// ErrFormat: malformed header/index/payload bytes, unrecognized type tag
	ErrFormat = errors.New("format error")
	// ErrCapacity: read/write exceeds an entry's allocated pages, or no free pages left
	ErrCapacity = errors.New("capacity error")
	// ErrNotFound: unknown key, name or entry ID
	ErrNotFound = errors.New("not found")
	// ErrIO: underlying file operation failed
	ErrIO = errors.New("io error")
	// ErrState: operation invalid for the current lifecycle state
	ErrState = errors.New("invalid state")
	// ErrNotImplemented: declared hook with no implementation yet
	ErrNotImplemented = errors.New("not implemented")
)

func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

func IsFormat(err error) bool { return errors.Is(err, ErrFormat) }

func IsCapacity(err error) bool { return errors.Is(err, ErrCapacity) }

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsIO(err error) bool { return errors.Is(err, ErrIO) }

func IsState(err error) bool { return errors.Is(err, ErrState) }

func IsNotImplemented(err error) bool { return errors.Is(err, ErrNotImplemented) }

// IOError marks err as an ErrIO failure. Both ErrIO and the original cause stay matchable.
func IOError(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &ioError{msg: fmt.Sprintf(format, args...), cause: err}
}

type ioError struct {
	msg   string
	cause error
}

func (e *ioError) Error() string { return e.msg + ": " + e.cause.Error() }

func (e *ioError) Unwrap() []error { return []error{ErrIO, e.cause} }

func (e *ioError) Cause() error { return e.cause }

// Join aggregates the failures of a best-effort bulk operation. nil entries are dropped and
// the result is nil when nothing failed.
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}
