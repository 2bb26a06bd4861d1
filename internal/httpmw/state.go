package httpmw

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/goals-api/internal/reqctx"
)

// RequestState attaches the per-request reqctx.State. It runs before any
// stage that rewrites the URL so OriginalURL is what the client sent.
// It also installs the chi route context the dispatcher fills in, so the
// route pattern is visible to every outer stage once dispatch returns.
func RequestState(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r, _ = reqctx.Attach(r)
		if chi.RouteContext(r.Context()) == nil {
			r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, chi.NewRouteContext()))
		}
		next.ServeHTTP(w, r)
	})
}
