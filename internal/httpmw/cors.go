package httpmw

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSOptions configures cross-origin headers. The zero value allows any origin.
type CORSOptions struct {
	// AllowedOrigins lists exact origins, "*" allows all. Empty means "*".
	AllowedOrigins []string
	// AllowedMethods defaults to GET,HEAD,PUT,PATCH,POST,DELETE.
	AllowedMethods []string
	// MaxAge, when > 0, lets browsers cache preflight results (seconds).
	MaxAge int
}

var defaultCORSMethods = []string{
	http.MethodGet, http.MethodHead, http.MethodPut,
	http.MethodPatch, http.MethodPost, http.MethodDelete,
}

// CORS sets cross-origin headers on every response. For OPTIONS requests it
// adds the preflight headers too, but leaves termination to Preflight so the
// security headers stage still runs for them.
func CORS(opts CORSOptions) Middleware {
	allowAll := len(opts.AllowedOrigins) == 0
	allowed := make(map[string]bool, len(opts.AllowedOrigins))
	for _, o := range opts.AllowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			allowAll = true
			continue
		}
		allowed[strings.ToLower(o)] = true
	}
	methods := opts.AllowedMethods
	if len(methods) == 0 {
		methods = defaultCORSMethods
	}
	allowMethods := strings.Join(methods, ",")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			origin := r.Header.Get("Origin")

			switch {
			case allowAll:
				h.Set("Access-Control-Allow-Origin", "*")
			case origin != "" && allowed[strings.ToLower(origin)]:
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			default:
				// unknown origin: no allow header, the browser blocks the response
				h.Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", allowMethods)
				if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
					h.Set("Access-Control-Allow-Headers", reqHeaders)
					h.Add("Vary", "Access-Control-Request-Headers")
				}
				if opts.MaxAge > 0 {
					h.Set("Access-Control-Max-Age", strconv.Itoa(opts.MaxAge))
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Preflight answers every OPTIONS request with 204 and no body. It runs
// after CORS and SecurityHeaders and before anything that could route.
func Preflight(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.Header().Set("Content-Length", "0")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
