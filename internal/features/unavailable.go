package features

import (
	"net/http"

	"github.com/keithlinneman/goals-api/internal/apperr"
)

// Unavailable stands in for a feature group this server does not carry.
// Every method and sub-path raises an operational 501.
func Unavailable(name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apperr.Raise(w, r, apperr.Newf(http.StatusNotImplemented, "The %s service is not available on this server.", name))
	})
}
