package health

import (
	"context"
	"sync/atomic"

	"github.com/keithlinneman/goals-api/internal/xerrors"
)

// Checker is evaluated on every request to a health endpoint. A nil error
// passes; otherwise the error text is the reason served to the caller.
type Checker interface{ Check(context.Context) error }

// CheckFunc adapts a function into a Checker.
type CheckFunc func(context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

// Fixed always passes, or always fails with reason ("unhealthy" if empty).
func Fixed(ok bool, reason string) CheckFunc {
	if ok {
		return func(context.Context) error { return nil }
	}
	if reason == "" {
		reason = "unhealthy"
	}
	return func(context.Context) error { return xerrors.New(reason) }
}

// All runs checks in order and stops at the first failure. nil entries are
// skipped.
func All(cs ...Checker) CheckFunc {
	return func(ctx context.Context) error {
		for _, c := range cs {
			if c == nil {
				continue
			}
			if err := c.Check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

// Named prefixes a failure with name so a combined readiness answer says
// which dependency failed.
func Named(name string, c Checker) CheckFunc {
	return func(ctx context.Context) error {
		if c == nil {
			return nil
		}
		return xerrors.Wrap(c.Check(ctx), name)
	}
}

// ShutdownGate fails readiness once the server starts draining. The zero
// value is open.
type ShutdownGate struct {
	reason atomic.Pointer[string]
}

// Set closes the gate; Check fails with reason ("draining" if empty).
func (g *ShutdownGate) Set(reason string) {
	if reason == "" {
		reason = "draining"
	}
	g.reason.Store(&reason)
}

func (g *ShutdownGate) Clear() { g.reason.Store(nil) }

func (g *ShutdownGate) Check(context.Context) error {
	if r := g.reason.Load(); r != nil {
		return xerrors.New(*r)
	}
	return nil
}
