package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/keithlinneman/goals-api/internal/apidocs"
	"github.com/keithlinneman/goals-api/internal/apperr"
	"github.com/keithlinneman/goals-api/internal/dispatch"
	"github.com/keithlinneman/goals-api/internal/features"
	"github.com/keithlinneman/goals-api/internal/httpmw"
	"github.com/keithlinneman/goals-api/internal/log"
	"github.com/keithlinneman/goals-api/internal/static"
	"github.com/keithlinneman/goals-api/internal/webassets"
	"github.com/keithlinneman/goals-api/internal/xerrors"
)

// compressibleTypes are the content types gzip is applied to. Error bodies
// are application/json.
var compressibleTypes = []string{
	"text/html",
	"text/css",
	"text/plain",
	"application/javascript",
	"text/javascript",
	"application/json",
	"application/yaml",
	"image/svg+xml",
	"image/x-icon",
}

// NewHandler assembles the public pipeline around the dispatcher.
// main() owns *http.Server so it can do graceful shutdown.
func NewHandler(opts *Options) (http.Handler, error) {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	mode := opts.Config.Mode()

	d, err := newDispatcher(opts)
	if err != nil {
		return nil, err
	}

	normalizer := &apperr.Normalizer{
		Verbose: mode.Verbose(),
		Logger:  opts.Logger,
	}
	var metricsMW httpmw.Middleware
	onPanic := opts.OnPanic
	if m := opts.Metrics; m != nil {
		normalizer.OnError = m.ObserveAPIError
		metricsMW = m.Middleware
		if onPanic == nil {
			onPanic = m.IncHttpPanic
		}
	}

	bodyLimit := opts.BodyLimit
	if bodyLimit <= 0 {
		bodyLimit = httpmw.DefaultBodyLimit
	}

	h := httpmw.Chain(d,
		// transport
		otelMiddleware,
		middleware.Compress(5, compressibleTypes...),

		// everything below may Raise
		apperr.Middleware(normalizer),
		httpmw.RequestState,

		// headers on every response, preflight answered here
		httpmw.CORS(httpmw.CORSOptions{AllowedOrigins: opts.Config.CORSOrigins}),
		httpmw.SecurityHeaders,
		httpmw.Preflight,

		httpmw.RequestID("X-Request-Id"),
		httpmw.ClientIPWithOptions(httpmw.ClientIPOptions{TrustedHops: opts.Config.TrustedHops}),
		httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id"),
		httpmw.WithLogger(opts.Logger),

		httpmw.RequestLog(mode.Diagnostic()),
		metricsMW,

		// input hardening
		httpmw.JSONBody(bodyLimit),
		httpmw.Cookies,
		httpmw.Sanitize(opts.Sanitizer),

		apperr.Guard,
		httpmw.Recover(onPanic),
		httpmw.AnnotateHTTPRoute,
	)
	return h, nil
}

// newDispatcher binds the built-in groups, applies overrides and wires the
// production static fallback.
func newDispatcher(opts *Options) (*dispatch.Dispatcher, error) {
	docs := opts.Docs
	if docs == nil {
		var err error
		docs, err = apidocs.NewStore(apidocs.Options{Default: webassets.OpenAPI(), Logger: opts.Logger})
		if err != nil {
			return nil, err
		}
	}

	var d *dispatch.Dispatcher
	info := opts.Info
	info.Mounts = func() []dispatch.MountInfo { return d.Mounts() }

	groups := features.Groups{
		features.GroupDocs: features.Docs(docs),
		features.GroupPing: features.Ping(),
		features.GroupInfo: features.Info(info),
	}
	for name, g := range opts.Groups {
		groups[name] = g
	}

	var fallback http.Handler
	if opts.Config.Mode().Production() {
		fallback = opts.Static
		if fallback == nil {
			s, err := newStatic(opts)
			if err != nil {
				return nil, err
			}
			fallback = s
		}
	}

	var err error
	d, err = dispatch.New(dispatch.Options{
		Table:    features.Table(groups),
		Limiters: opts.Limiters,
		Fallback: fallback,
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "build mount table")
	}
	return d, nil
}

func newStatic(opts *Options) (*static.Handler, error) {
	c := opts.Config
	if c.StaticDir == "" {
		opts.Logger.Warn(context.Background(), "no static dir configured, serving placeholder index")
		return static.New(static.Options{FS: webassets.FallbackFS()})
	}
	s, err := static.New(static.Options{FS: os.DirFS(c.StaticDir), IndexFile: c.IndexFile})
	if err != nil {
		return nil, xerrors.Wrapf(err, "static dir %s", c.StaticDir)
	}
	return s, nil
}

// shouldTrace skips spans for static assets.
func shouldTrace(p string) bool {
	if p == "/favicon.ico" || p == "/favicon.svg" || p == "/robots.txt" {
		return false
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".css", ".js", ".png", ".jpg", ".jpeg", ".webp", ".svg", ".ico", ".woff", ".woff2", ".map":
		return false
	}
	return true
}

func otelMiddleware(next http.Handler) http.Handler {
	return otelhttp.NewHandler(
		next,
		"http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return shouldTrace(r.URL.Path)
		}),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			// AnnotateHTTPRoute renames the span to the route pattern once routed
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithPublicEndpointFn(func(r *http.Request) bool { return true }),
	)
}

// Server timeout defaults, shared with opshttp.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20 // 1 MB
)

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// Start public HTTP server
// Returns stop(ctx) for graceful shutdown
func Start(ctx context.Context, opts *Options) (func(context.Context) error, error) {
	handler, err := NewHandler(opts)
	if err != nil {
		return nil, err
	}

	port := opts.Config.HTTPPort
	if port == 0 {
		port = 8080
	}
	addr := fmt.Sprintf(":%d", port)
	srv := NewServer(addr, handler)
	srv.BaseContext = func(net.Listener) context.Context {
		return context.WithoutCancel(ctx)
	}

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, xerrors.EnsureTrace(err)
	}

	go func() {
		opts.Logger.Info(ctx, "http server listening", "addr", ln.Addr().String(), "mode", string(opts.Config.Mode()))
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			opts.Logger.Error(ctx, err, "http server error")
		}
	}()

	var once sync.Once
	stop := func(sctx context.Context) (retErr error) {
		once.Do(func() {
			opts.Logger.Info(sctx, "http server shutting down")
			c, cancel := context.WithTimeout(sctx, 5*time.Second)
			defer cancel()
			retErr = srv.Shutdown(c)
		})
		return retErr
	}
	return stop, nil
}
