package httpserver

import (
	"net/http"

	"github.com/keithlinneman/goals-api/internal/apidocs"
	"github.com/keithlinneman/goals-api/internal/cfg"
	"github.com/keithlinneman/goals-api/internal/features"
	"github.com/keithlinneman/goals-api/internal/log"
	"github.com/keithlinneman/goals-api/internal/metrics"
	"github.com/keithlinneman/goals-api/internal/ratelimit"
	"github.com/keithlinneman/goals-api/internal/sanitize"
)

type Options struct {
	Config cfg.App
	Logger log.Logger

	// Metrics enables HTTP metrics and error counters. Optional.
	Metrics *metrics.ServerMetrics
	// Limiters gates the rate-limited mounts. nil disables limiting.
	Limiters *ratelimit.Factory

	// Docs backs the docs group; nil serves the embedded document.
	Docs *apidocs.Store
	// Info describes this server on /info. Mounts is filled in by NewHandler.
	Info features.InfoOptions
	// Groups replaces built-in or placeholder groups by name.
	Groups features.Groups

	// Static overrides the production fallback built from Config.StaticDir.
	Static http.Handler

	// Sanitizer defaults to sanitize.New().
	Sanitizer *sanitize.Sanitizer
	// BodyLimit defaults to httpmw.DefaultBodyLimit.
	BodyLimit int64

	// OnPanic runs for every recovered handler panic, e.g. to count it.
	OnPanic func()
}
