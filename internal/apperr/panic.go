package apperr

import (
	"fmt"

	"github.com/keithlinneman/goals-api/internal/xerrors"
)

// panicError turns a recovered value into an error that carries the stack
// of the panicking goroutine.
func panicError(v any) error {
	if err, ok := v.(error); ok {
		return xerrors.Wrap(xerrors.EnsureTrace(err), "panic")
	}
	return xerrors.Newf("panic: %s", fmt.Sprint(v))
}

// Recovered classifies a value returned by recover().
func Recovered(v any) *Error {
	return Unexpected(panicError(v))
}
