package dispatch

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewGroup builds a handler group on a chi router. Unknown sub-paths and
// unsupported methods both reach the synthesizer, so a group miss looks
// exactly like a table miss to the client.
func NewGroup(routes func(r chi.Router)) http.Handler {
	r := chi.NewRouter()
	r.NotFound(NotFound)
	r.MethodNotAllowed(NotFound)
	routes(r)
	return r
}
