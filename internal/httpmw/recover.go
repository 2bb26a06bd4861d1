package httpmw

import (
	"net/http"

	"github.com/keithlinneman/goals-api/internal/apperr"
)

// Recover turns handler panics into an unclassified 500 through the error
// sink. onPanic, if set, is called once per recovered panic (metrics).
// http.ErrAbortHandler is re-panicked so net/http can abort the connection.
func Recover(onPanic func()) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					panic(v)
				}
				if onPanic != nil {
					onPanic()
				}
				apperr.Raise(w, r, apperr.Recovered(v))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
