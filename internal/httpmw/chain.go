package httpmw

import "net/http"

// Middleware is a pipeline stage.
type Middleware = func(http.Handler) http.Handler

// Chain wraps h so that mws[0] is the outermost stage and runs first.
// nil entries are skipped, which lets callers toggle optional stages inline.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			h = mws[i](h)
		}
	}
	return h
}
