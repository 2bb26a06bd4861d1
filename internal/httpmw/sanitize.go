package httpmw

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/keithlinneman/goals-api/internal/apperr"
	"github.com/keithlinneman/goals-api/internal/reqctx"
	"github.com/keithlinneman/goals-api/internal/sanitize"
)

// Sanitize strips script markup from the parsed body, the query string and
// route params. It must run after JSONBody. Handlers reading r.Body, r.URL
// query values, reqctx.Body or reqctx.Param all see the sanitized values.
func Sanitize(s *sanitize.Sanitizer) Middleware {
	if s == nil {
		s = sanitize.New()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r, st := reqctx.Attach(r)
			st.SetSanitizer(s)

			if queryHasMarkup(s, r) {
				u := *r.URL
				u.RawQuery = s.Values(r.URL.Query()).Encode()
				r.URL = &u
			}

			if st.Body != nil {
				clean := s.Value(st.Body)
				raw, err := json.Marshal(clean)
				if err != nil {
					apperr.Raise(w, r, err)
					return
				}
				st.Body = clean
				st.RawBody = raw
				r.Body = io.NopCloser(bytes.NewReader(raw))
				r.ContentLength = int64(len(raw))
			}

			next.ServeHTTP(w, r)
		})
	}
}

// queryHasMarkup checks decoded keys and values, so percent-encoded tags
// are caught too. Clean queries are left byte-for-byte as sent.
func queryHasMarkup(s *sanitize.Sanitizer, r *http.Request) bool {
	if r.URL.RawQuery == "" {
		return false
	}
	for k, vs := range r.URL.Query() {
		if s.Contains(k) {
			return true
		}
		for _, v := range vs {
			if s.Contains(v) {
				return true
			}
		}
	}
	return false
}
