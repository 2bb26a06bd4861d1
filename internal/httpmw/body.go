package httpmw

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"

	"github.com/keithlinneman/goals-api/internal/apperr"
	"github.com/keithlinneman/goals-api/internal/reqctx"
)

// DefaultBodyLimit is the JSON body ceiling in bytes.
const DefaultBodyLimit int64 = 10 << 10

// JSONBody reads and decodes application/json bodies of at most limit bytes
// into the request's reqctx.State. Oversized bodies raise 413, malformed
// ones 400, both before any handler runs. Other content types pass through
// untouched. Objects and arrays are the only accepted top-level values.
func JSONBody(limit int64) Middleware {
	if limit <= 0 {
		limit = DefaultBodyLimit
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isJSON(r) || r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)
				return
			}
			if r.ContentLength > limit {
				apperr.Raise(w, r, apperr.PayloadTooLarge(limit))
				return
			}

			raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
			_ = r.Body.Close()
			if err != nil {
				apperr.Raise(w, r, err)
				return
			}

			r, st := reqctx.Attach(r)
			trimmed := bytes.TrimSpace(raw)
			if len(trimmed) > 0 {
				if c := trimmed[0]; c != '{' && c != '[' {
					apperr.Raise(w, r, apperr.BadRequest("invalid JSON body: expected object or array"))
					return
				}
				dec := json.NewDecoder(bytes.NewReader(trimmed))
				dec.UseNumber()
				var v any
				if err := dec.Decode(&v); err != nil {
					apperr.Raise(w, r, err)
					return
				}
				if dec.More() {
					apperr.Raise(w, r, apperr.BadRequest("invalid JSON body: trailing data"))
					return
				}
				st.Body = v
			}
			st.RawBody = raw

			r.Body = io.NopCloser(bytes.NewReader(raw))
			r.ContentLength = int64(len(raw))
			next.ServeHTTP(w, r)
		})
	}
}

func isJSON(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mt == "application/json" || (len(mt) > 5 && mt[len(mt)-5:] == "+json")
}
