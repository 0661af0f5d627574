package wrapper

import (
	"fmt"
	"runtime"
	"strings"
)

// UserError is a condition the invoking user must fix: a malformed or
// unsupported command line. Run logs its message through Deps.Log, the same
// way it logs internal errors.
type UserError struct {
	msg string
}

var _ error = UserError{}

func (e UserError) Error() string {
	return e.msg
}

// NewUserErrorf builds a UserError, optionally prefixed by a crate/tool
// context (pass "" for none).
func NewUserErrorf(context, format string, v ...interface{}) UserError {
	msg := fmt.Sprintf(format, v...)
	if context != "" {
		msg = context + ": " + msg
	}
	return UserError{msg: msg}
}

// ParseErrors collects every problem found while classifying a command
// line instead of stopping at the first, so a user fixing their invocation
// sees every issue in one pass.
type ParseErrors []error

func (e ParseErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d errors:\n  %s", len(e), strings.Join(msgs, "\n  "))
}

// Unwrap exposes the individual errors to errors.Is/As via errors.Join
// semantics.
func (e ParseErrors) Unwrap() []error {
	return e
}

// OrNil returns e as an error, or nil if e is empty. Wrappers accumulate
// into a ParseErrors slice throughout ResolveArgs and call this once at the
// end.
func (e ParseErrors) OrNil() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// withSourceLoc annotates an internal (non-user-facing) error with the
// caller's file:line, mirroring the teacher's source-location error helper
// for diagnosability without turning every error into a UserError.
func withSourceLoc(skip int, format string, v ...interface{}) error {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		file, line = "???", 0
	}
	if idx := strings.LastIndex(file, "/"); idx >= 0 {
		file = file[idx+1:]
	}
	return fmt.Errorf("%s:%d: %s", file, line, fmt.Sprintf(format, v...))
}

// NewInternalErrorf builds an internal error tagged with its call site.
func NewInternalErrorf(format string, v ...interface{}) error {
	return withSourceLoc(1, format, v...)
}

// WrapInternalErrorf wraps err with additional context and a call site tag.
func WrapInternalErrorf(err error, format string, v ...interface{}) error {
	return withSourceLoc(1, "%s: %s", fmt.Sprintf(format, v...), err.Error())
}
