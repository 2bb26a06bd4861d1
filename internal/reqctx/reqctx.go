// Package reqctx is the per-request bag that pipeline stages fill in and
// handlers read: parsed cookies, the bounded JSON body, the URL as the
// client sent it, and values attached by upstream layers such as auth.
//
// A State is created once per request by the outermost stage and lives in
// the request context. It is never shared between requests.
package reqctx

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/goals-api/internal/sanitize"
)

type stateKey struct{}

// State holds what earlier stages learned about the request.
type State struct {
	// OriginalURL is the request URI before any prefix stripping.
	OriginalURL string
	// Cookies parsed from the Cookie header. Never nil once attached.
	Cookies map[string]string
	// Body is the decoded JSON body, nil when the request carried none.
	Body any
	// RawBody is the sanitized body re-encoded, what handlers read from r.Body.
	RawBody []byte

	sanitizer *sanitize.Sanitizer

	mu     sync.RWMutex
	values map[any]any
}

// Attach stores a fresh State for r and returns the derived request.
func Attach(r *http.Request) (*http.Request, *State) {
	if st := From(r.Context()); st != nil {
		return r, st
	}
	st := &State{
		OriginalURL: r.URL.RequestURI(),
		Cookies:     map[string]string{},
	}
	return r.WithContext(context.WithValue(r.Context(), stateKey{}, st)), st
}

// From returns the State in ctx, or nil.
func From(ctx context.Context) *State {
	st, _ := ctx.Value(stateKey{}).(*State)
	return st
}

// OriginalURL returns the URI the client requested, falling back to the
// current request URI when no State is attached.
func OriginalURL(r *http.Request) string {
	if st := From(r.Context()); st != nil && st.OriginalURL != "" {
		return st.OriginalURL
	}
	return r.URL.RequestURI()
}

// Cookie returns a parsed cookie value.
func Cookie(r *http.Request, name string) (string, bool) {
	st := From(r.Context())
	if st == nil {
		return "", false
	}
	v, ok := st.Cookies[name]
	return v, ok
}

// Body returns the decoded JSON body. Objects decode to map[string]any.
func Body(r *http.Request) any {
	if st := From(r.Context()); st != nil {
		return st.Body
	}
	return nil
}

// SetSanitizer lets the sanitize stage hand its policy to Param.
func (st *State) SetSanitizer(s *sanitize.Sanitizer) { st.sanitizer = s }

// Param returns a chi URL parameter, sanitized the same way as body and
// query values. Handlers should use this instead of chi.URLParam.
func Param(r *http.Request, key string) string {
	v := chi.URLParam(r, key)
	if st := From(r.Context()); st != nil && st.sanitizer != nil {
		return st.sanitizer.String(v)
	}
	return v
}

// Set attaches a value for later stages, e.g. an authenticated identity.
func (st *State) Set(key, val any) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.values == nil {
		st.values = make(map[any]any)
	}
	st.values[key] = val
}

func (st *State) Get(key any) (any, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	v, ok := st.values[key]
	return v, ok
}
