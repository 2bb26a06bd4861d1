// Package xerrors adds call-site information to errors so the logger can
// render where a failure was created or wrapped. New and WithStack record a
// full stack; Wrap records a single program counter.
package xerrors

import (
	"errors"
	"fmt"
	"runtime"
)

const maxDepth = 64

// traced carries the stack captured when the error was created.
type traced struct {
	err error
	pcs []uintptr
}

func (t *traced) Error() string       { return t.err.Error() }
func (t *traced) Unwrap() error       { return t.err }
func (t *traced) StackPCs() []uintptr { return t.pcs }

// annotated is a message prefix plus the position of the Wrap call.
type annotated struct {
	err error
	msg string
	pc  uintptr
}

func (a *annotated) Error() string { return a.msg + ": " + a.err.Error() }
func (a *annotated) Unwrap() error { return a.err }
func (a *annotated) PC() uintptr   { return a.pc }

// callers skips runtime.Callers, itself and skip more frames.
func callers(skip, depth int) []uintptr {
	pcs := make([]uintptr, depth)
	n := runtime.Callers(2+skip, pcs)
	return pcs[:n]
}

// Callers returns the stack of the caller's caller, skipping skip extra frames.
// Used by error types outside this package that want the same stack format.
func Callers(skip int) []uintptr { return callers(skip+1, maxDepth) }

func trace(err error, skip int) error {
	if err == nil {
		return nil
	}
	return &traced{err: err, pcs: callers(skip+1, maxDepth)}
}

func annotate(err error, msg string, skip int) error {
	if err == nil {
		return nil
	}
	a := &annotated{err: err, msg: msg}
	if pcs := callers(skip+1, 1); len(pcs) == 1 {
		a.pc = pcs[0]
	}
	return a
}

func New(msg string) error             { return trace(errors.New(msg), 1) }
func Newf(f string, args ...any) error { return trace(fmt.Errorf(f, args...), 1) }

func WithStack(err error) error { return trace(err, 1) }

// EnsureTrace attaches a stack unless something in the chain already has one.
func EnsureTrace(err error) error {
	if err == nil {
		return nil
	}
	type hasStack interface{ StackPCs() []uintptr }
	var hs hasStack
	if errors.As(err, &hs) && hs != nil && len(hs.StackPCs()) > 0 {
		return err
	}
	return trace(err, 1)
}

// Wrap annotates err with msg and the caller's position. nil stays nil.
func Wrap(err error, msg string) error { return annotate(err, msg, 1) }

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return annotate(err, fmt.Sprintf(format, args...), 1)
}
