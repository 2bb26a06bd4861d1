package features

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/goals-api/internal/dispatch"
)

// Ping answers {"status":"success","message":"pong"} on the group root.
func Ping() http.Handler {
	return dispatch.NewGroup(func(r chi.Router) {
		get(r, "/", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, r, http.StatusOK, envelope{Status: "success", Message: "pong"})
		})
	})
}
