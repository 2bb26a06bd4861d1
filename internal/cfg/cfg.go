// Package cfg is the process configuration. App is filled once in main from
// flags and GOALS_* environment variables, validated, and then passed by
// value to every constructor. Nothing reads flags or the environment at
// request time.
package cfg

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/keithlinneman/goals-api/internal/log"
)

// EnvPrefix is prepended to upper-cased flag names for environment lookup.
const EnvPrefix = "GOALS_"

// Mode is the environment mode. Only development and production change
// behaviour; any other value is a neutral mode.
type Mode string

const (
	ModeDevelopment Mode = "development"
	ModeProduction  Mode = "production"
)

// Diagnostic enables the request log.
func (m Mode) Diagnostic() bool { return m == ModeDevelopment }

// Production enables the static fallback and hides unexpected error details.
func (m Mode) Production() bool { return m == ModeProduction }

// Verbose exposes unexpected error messages and stacks to clients.
func (m Mode) Verbose() bool { return !m.Production() }

type App struct {
	Env string

	LogJSON           bool
	LogLevel          string
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int

	HTTPPort    int
	AdminPort   int
	EnablePprof bool
	// DrainDelay is how long readiness fails before listeners close.
	DrainDelay time.Duration

	CORSOrigins []string
	TrustedHops int

	RateLimit      int
	RateWindow     time.Duration
	RateMaxClients int

	StaticDir string
	IndexFile string
	DocsFile  string
	WatchDocs bool

	EnableTracing bool
	OTLPEndpoint  string
	TraceSample   float64

	EnablePyroscope bool
	PyroServer      string
	PyroTenantID    string
}

// Mode returns the normalized environment mode.
func (c App) Mode() Mode { return Mode(strings.ToLower(strings.TrimSpace(c.Env))) }

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *pflag.FlagSet, c *App) {
	fs.StringVar(&c.Env, "env", string(ModeProduction), "environment mode: development|production")

	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")

	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.DurationVar(&c.DrainDelay, "drain-delay", 15*time.Second, "time readiness fails before shutdown so load balancers stop sending traffic")

	fs.StringSliceVar(&c.CORSOrigins, "cors-origins", []string{"*"}, "allowed CORS origins, * for any")
	fs.IntVar(&c.TrustedHops, "trusted-hops", 0, "number of reverse proxies in front of the server whose X-Forwarded-For entries are trusted")

	fs.IntVar(&c.RateLimit, "rate-limit", 30, "requests per client per rate-window on each rate-limited mount")
	fs.DurationVar(&c.RateWindow, "rate-window", 3*time.Second, "rate limit window")
	fs.IntVar(&c.RateMaxClients, "rate-max-clients", 100_000, "clients tracked per rate-limited mount, 0 for unlimited")

	fs.StringVar(&c.StaticDir, "static-dir", "", "built frontend served in production; empty uses the embedded placeholder")
	fs.StringVar(&c.IndexFile, "index-file", "index.html", "single-page-app index inside static-dir")
	fs.StringVar(&c.DocsFile, "docs-file", "", "OpenAPI YAML document; empty uses the embedded document")
	fs.BoolVar(&c.WatchDocs, "watch-docs", false, "reload docs-file when it changes on disk")

	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")

	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in --pyro-server")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *pflag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *pflag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *pflag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag --%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		restore := snapshot(f.Value)
		if err := fs.Set(f.Name, envVal); err != nil {
			restore()
			f.Changed = false
			if logf != nil {
				logf("flag --%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// snapshot captures a flag value so a failed Set can be undone. Slice
// values print as "[a,b]" and cannot round-trip through Set.
func snapshot(v pflag.Value) func() {
	if sv, ok := v.(pflag.SliceValue); ok {
		prev := sv.GetSlice()
		return func() { _ = sv.Replace(prev) }
	}
	prev := v.String()
	return func() { _ = v.Set(prev) }
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	// Ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	if c.DrainDelay < 0 || c.DrainDelay > 5*time.Minute {
		errs = append(errs, fmt.Errorf("DRAIN_DELAY must be 0..5m (got %s)", c.DrainDelay))
	}

	// Log levels
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}

	// CORS: "*" on its own or a list of origins
	if len(c.CORSOrigins) == 0 {
		errs = append(errs, fmt.Errorf("CORS_ORIGINS must not be empty (use * to allow any origin)"))
	}
	for _, o := range c.CORSOrigins {
		if o == "*" {
			if len(c.CORSOrigins) > 1 {
				errs = append(errs, fmt.Errorf("CORS_ORIGINS: * cannot be combined with other origins"))
			}
			continue
		}
		if u, err := url.Parse(o); err != nil || u.Scheme == "" || u.Host == "" || (u.Path != "" && u.Path != "/") {
			errs = append(errs, fmt.Errorf("CORS_ORIGINS entry %q must be scheme://host[:port]", o))
		}
	}
	if c.TrustedHops < 0 {
		errs = append(errs, fmt.Errorf("TRUSTED_HOPS must be >= 0 (got %d)", c.TrustedHops))
	}

	// Rate limiting
	if c.RateLimit < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT must be >= 1 (got %d)", c.RateLimit))
	}
	if c.RateWindow <= 0 {
		errs = append(errs, fmt.Errorf("RATE_WINDOW must be positive (got %s)", c.RateWindow))
	} else if c.RateLimit >= 1 && c.RateWindow/time.Duration(c.RateLimit) <= 0 {
		errs = append(errs, fmt.Errorf("RATE_WINDOW %s too short for RATE_LIMIT %d", c.RateWindow, c.RateLimit))
	}
	if c.RateMaxClients < 0 {
		errs = append(errs, fmt.Errorf("RATE_MAX_CLIENTS must be >= 0 (got %d)", c.RateMaxClients))
	}

	// Static assets
	if c.StaticDir != "" {
		if st, err := os.Stat(c.StaticDir); err != nil || !st.IsDir() {
			errs = append(errs, fmt.Errorf("STATIC_DIR %q must be an existing directory", c.StaticDir))
		}
	}
	if c.IndexFile == "" || strings.Contains(c.IndexFile, "..") || strings.HasPrefix(c.IndexFile, "/") {
		errs = append(errs, fmt.Errorf("INDEX_FILE %q must be a relative path inside STATIC_DIR", c.IndexFile))
	}

	// API docs
	if c.WatchDocs && c.DocsFile == "" {
		errs = append(errs, fmt.Errorf("DOCS_FILE required when WATCH_DOCS=true"))
	}

	// Tracing sample
	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}

	// Pyroscope (URL and scheme)
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	// OTLP tracing (grpc exporter wants host:port, no scheme)
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	// Error link limits
	if c.IncludeErrorLinks {
		if c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64 {
			errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
