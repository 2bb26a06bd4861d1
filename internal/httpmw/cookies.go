package httpmw

import (
	"net/http"

	"github.com/keithlinneman/goals-api/internal/reqctx"
)

// Cookies parses the Cookie header into the request's reqctx.State.
// Pairs that do not parse are skipped; a header with nothing valid yields an
// empty set. The first value wins for repeated names.
func Cookies(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r, st := reqctx.Attach(r)
		for _, c := range r.Cookies() {
			if _, seen := st.Cookies[c.Name]; !seen {
				st.Cookies[c.Name] = c.Value
			}
		}
		next.ServeHTTP(w, r)
	})
}
