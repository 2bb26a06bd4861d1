package health

import "net/http"

// HealthzHandler answers 200 "ok" when c passes, 503 with the reason otherwise.
// A nil Checker is healthy.
func HealthzHandler(c Checker) http.HandlerFunc {
	return statusHandler(c, "ok\n")
}

// ReadyzHandler answers 200 "ready" when c passes, 503 with the reason otherwise.
// A nil Checker is ready.
func ReadyzHandler(c Checker) http.HandlerFunc {
	return statusHandler(c, "ready\n")
}

func statusHandler(c Checker, okBody string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		if c != nil {
			if err := c.Check(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(err.Error() + "\n"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(okBody))
	}
}
