package apperr

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"sync"

	"github.com/keithlinneman/goals-api/internal/log"
)

type sinkKey struct{}

// sink is the per-request error state. Idle until the first Raise, then
// Handling for the rest of the request.
type sink struct {
	n *Normalizer

	mu      sync.Mutex
	handled *Error
	started bool                // downstream already sent headers through a Guard
	w       http.ResponseWriter // writer beneath the Guard, once one is entered
}

// Middleware installs the request's error sink. It must wrap every stage
// that can Raise; only transport stages like compression sit outside it.
func Middleware(n *Normalizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := &sink{n: n}
			ctx := context.WithValue(r.Context(), sinkKey{}, s)
			r = r.WithContext(ctx)

			defer func() {
				if v := recover(); v != nil {
					if v == http.ErrAbortHandler {
						panic(v)
					}
					Raise(w, r, Recovered(v))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Raise reports a failure for the current request. The first call wins and
// produces the response; later calls are logged and ignored. Without a sink
// in the context (unit tests of single stages) a default normalizer answers.
func Raise(w http.ResponseWriter, r *http.Request, err any) {
	e := From(err)
	s, _ := r.Context().Value(sinkKey{}).(*sink)
	if s == nil {
		(&Normalizer{}).Write(w, r, e)
		return
	}

	s.mu.Lock()
	if s.handled != nil {
		s.mu.Unlock()
		log.FromContextOr(r.Context(), s.n.Logger).Debug(r.Context(), "error raised after response was already decided",
			"err", e.Error(),
			"first_status", s.handled.Status,
		)
		return
	}
	s.handled = e
	started := s.started
	under := s.w
	s.mu.Unlock()

	if started {
		log.FromContextOr(r.Context(), s.n.Logger).Error(r.Context(), e, "error raised after response headers were sent")
		return
	}

	// Write beneath the Guard so the normalizer is never blocked by it, even
	// when route middleware has wrapped the guarded writer again.
	if under != nil {
		w = under
	}
	s.n.Write(w, r, e)
}

// Raised returns the error already handled for this request, if any.
func Raised(ctx context.Context) (*Error, bool) {
	s, _ := ctx.Value(sinkKey{}).(*sink)
	if s == nil {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handled, s.handled != nil
}

// Guard wraps the downstream writer. Once an error has been normalized, any
// further WriteHeader or Write from handlers is dropped. The writer it wraps
// becomes the one Raise answers on.
func Guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, _ := r.Context().Value(sinkKey{}).(*sink)
		if s == nil {
			next.ServeHTTP(w, r)
			return
		}
		s.mu.Lock()
		if s.w == nil {
			s.w = w
		}
		s.mu.Unlock()
		next.ServeHTTP(&guardWriter{ResponseWriter: w, s: s}, r)
	})
}

type guardWriter struct {
	http.ResponseWriter
	s *sink
}

// blocked reports whether the normalizer owns the response. Otherwise it
// records that downstream started the response.
func (g *guardWriter) blocked() bool {
	g.s.mu.Lock()
	defer g.s.mu.Unlock()
	if g.s.handled != nil {
		return true
	}
	g.s.started = true
	return false
}

func (g *guardWriter) WriteHeader(code int) {
	if g.blocked() {
		return
	}
	g.ResponseWriter.WriteHeader(code)
}

func (g *guardWriter) Write(b []byte) (int, error) {
	if g.blocked() {
		// report success so handlers do not treat the drop as a transport error
		return len(b), nil
	}
	return g.ResponseWriter.Write(b)
}

func (g *guardWriter) Flush() {
	if f, ok := g.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (g *guardWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := g.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return h.Hijack()
}

func (g *guardWriter) Unwrap() http.ResponseWriter { return g.ResponseWriter }
