package dispatch

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/goals-api/internal/apperr"
	"github.com/keithlinneman/goals-api/internal/httpmw"
	"github.com/keithlinneman/goals-api/internal/ratelimit"
	"github.com/keithlinneman/goals-api/internal/reqctx"
)

// Options configures a Dispatcher.
type Options struct {
	Table Table
	// Limiters builds one limiter per rate-limited mount. nil disables
	// limiting, which is only meant for tests.
	Limiters *ratelimit.Factory
	// Fallback serves unmatched GET and HEAD requests (production static
	// assets). It is expected to raise through NotFound when it cannot
	// serve anything.
	Fallback http.Handler
}

type entry struct {
	prefix  string
	name    string
	limited bool
	h       http.Handler
}

// Dispatcher is the terminal pipeline stage.
type Dispatcher struct {
	entries  []entry
	fallback http.Handler
}

// New validates the table and wires each mount with its limiter.
func New(opts Options) (*Dispatcher, error) {
	if err := opts.Table.Validate(); err != nil {
		return nil, err
	}
	d := &Dispatcher{fallback: opts.Fallback}
	for _, m := range opts.Table {
		name := m.Name
		if name == "" {
			name = m.Prefix
		}
		h := httpmw.Scope(name)(m.Group)
		limited := m.RateLimited && opts.Limiters != nil
		if limited {
			h = opts.Limiters.New(m.Prefix).Middleware(h)
		}
		d.entries = append(d.entries, entry{prefix: m.Prefix, name: name, limited: limited, h: h})
	}
	return d, nil
}

// MountInfo describes a mount for listings.
type MountInfo struct {
	Prefix      string `json:"prefix"`
	Name        string `json:"name"`
	RateLimited bool   `json:"rate_limited"`
}

// Mounts returns the table in evaluation order.
func (d *Dispatcher) Mounts() []MountInfo {
	out := make([]MountInfo, len(d.entries))
	for i, e := range d.entries {
		out[i] = MountInfo{Prefix: e.prefix, Name: e.name, RateLimited: e.limited}
	}
	return out
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	for _, e := range d.entries {
		rest, ok := matchPrefix(e.prefix, r.URL.Path)
		if !ok {
			continue
		}
		e.h.ServeHTTP(w, withRoute(r, e.prefix, rest))
		return
	}

	if d.fallback != nil && (r.Method == http.MethodGet || r.Method == http.MethodHead) {
		d.fallback.ServeHTTP(w, r)
		return
	}
	NotFound(w, r)
}

// withRoute makes sure a chi route context exists, records the mount pattern
// and hands the suffix to the group's router.
func withRoute(r *http.Request, prefix, rest string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
		r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
	}
	rctx.RoutePatterns = append(rctx.RoutePatterns, prefix+"/*")
	rctx.RoutePath = rest
	return r
}

// NotFound is the unmatched-route synthesizer. It never writes; it raises
// an operational 404 carrying the URL as the client sent it.
func NotFound(w http.ResponseWriter, r *http.Request) {
	apperr.Raise(w, r, apperr.NotFound(reqctx.OriginalURL(r)))
}
