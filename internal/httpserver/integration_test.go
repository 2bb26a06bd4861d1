package httpserver_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keithlinneman/goals-api/internal/apperr"
	"github.com/keithlinneman/goals-api/internal/cfg"
	"github.com/keithlinneman/goals-api/internal/features"
	"github.com/keithlinneman/goals-api/internal/httpserver"
	"github.com/keithlinneman/goals-api/internal/log"
	"github.com/keithlinneman/goals-api/internal/metrics"
	"github.com/keithlinneman/goals-api/internal/ratelimit"
	"github.com/keithlinneman/goals-api/internal/reqctx"
	"github.com/keithlinneman/goals-api/internal/static"
)

var securityHeaders = []string{
	"Strict-Transport-Security",
	"Content-Security-Policy",
	"X-Content-Type-Options",
	"X-Frame-Options",
	"Referrer-Policy",
}

func testConfig(env string) cfg.App {
	return cfg.App{
		Env:            env,
		CORSOrigins:    []string{"*"},
		RateLimit:      3,
		RateWindow:     time.Hour,
		RateMaxClients: 1000,
		IndexFile:      "index.html",
	}
}

func testLimiters(t *testing.T) *ratelimit.Factory {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ratelimit.NewFactory(ctx, ratelimit.WithPolicy(ratelimit.Policy{Limit: 3, Window: time.Hour}))
}

func newHandler(t *testing.T, opts *httpserver.Options) http.Handler {
	t.Helper()
	if opts.Limiters == nil {
		opts.Limiters = testLimiters(t)
	}
	h, err := httpserver.NewHandler(opts)
	require.NoError(t, err)
	return h
}

type reqOpt func(*http.Request)

func withHeader(k, v string) reqOpt { return func(r *http.Request) { r.Header.Set(k, v) } }

func withClient(addr string) reqOpt { return func(r *http.Request) { r.RemoteAddr = addr } }

func do(h http.Handler, method, target, body string, opts ...reqOpt) *httptest.ResponseRecorder {
	var rd io.Reader = http.NoBody
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	req.RemoteAddr = "203.0.113.10:5555"
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, o := range opts {
		o(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) apperr.Body {
	t.Helper()
	var b apperr.Body
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b), rec.Body.String())
	return b
}

func assertSecurityHeaders(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	for _, h := range securityHeaders {
		assert.NotEmpty(t, rec.Header().Get(h), "missing %s on %d", h, rec.Code)
	}
}

// recordingGroups overrides every group with a handler that reports its
// name and counts calls.
func recordingGroups(calls *atomic.Int64) features.Groups {
	g := features.Groups{}
	for _, name := range features.Names() {
		name := name
		g[name] = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.Header().Set("X-Group", name)
			w.WriteHeader(http.StatusOK)
		})
	}
	return g
}

func TestEveryMountReachesItsGroup(t *testing.T) {
	var calls atomic.Int64
	h := newHandler(t, &httpserver.Options{Config: testConfig("development"), Groups: recordingGroups(&calls)})

	prefixes := features.Table(nil).Prefixes()
	names := features.Names()
	for i, p := range prefixes {
		for j, target := range []string{p, p + "/", p + "/anything/below"} {
			// distinct clients keep the limited mounts under quota
			rec := do(h, http.MethodGet, target, "", withClient(fmt.Sprintf("198.51.100.%d:1", j+1)))
			assert.Equal(t, http.StatusOK, rec.Code, target)
			assert.Equal(t, names[i], rec.Header().Get("X-Group"), target)
		}
	}
	assert.Equal(t, int64(len(prefixes)*3), calls.Load())
}

func TestUnmatchedRouteIs404WithPath(t *testing.T) {
	h := newHandler(t, &httpserver.Options{Config: testConfig("development")})

	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch} {
		rec := do(h, method, "/api/v1/doesnotexist", "")
		require.Equal(t, http.StatusNotFound, rec.Code, method)
		b := errorBody(t, rec)
		assert.Equal(t, "fail", b.Status)
		assert.Equal(t, "Can't find /api/v1/doesnotexist on this server!", b.Message)
		assertSecurityHeaders(t, rec)
	}

	rec := do(h, http.MethodGet, "/api/v1/goalsX", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "segment boundary")
}

func TestPreflightNeverRoutes(t *testing.T) {
	var calls atomic.Int64
	h := newHandler(t, &httpserver.Options{Config: testConfig("production"), Groups: recordingGroups(&calls)})

	for _, target := range []string{"/api/v1/users", "/api/v1/doesnotexist", "/"} {
		rec := do(h, http.MethodOptions, target, "",
			withHeader("Origin", "https://app.example"),
			withHeader("Access-Control-Request-Method", "POST"),
		)
		assert.Equal(t, http.StatusNoContent, rec.Code, target)
		assert.Empty(t, rec.Body.String())
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Methods"))
		assertSecurityHeaders(t, rec)
	}
	assert.Zero(t, calls.Load())
}

func TestRateLimitPerMountIndependent(t *testing.T) {
	h := newHandler(t, &httpserver.Options{Config: testConfig("development")})

	for i := 0; i < 3; i++ {
		rec := do(h, http.MethodPost, "/api/v1/rooms", `{}`)
		require.Equal(t, http.StatusNotImplemented, rec.Code, "request %d", i+1)
	}
	rec := do(h, http.MethodPost, "/api/v1/rooms", `{}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Too many requests, please try again later.", errorBody(t, rec).Message)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assertSecurityHeaders(t, rec)

	// same client, other limited mount
	assert.Equal(t, http.StatusNotImplemented, do(h, http.MethodPost, "/api/v1/users", `{}`).Code)
	// same client, unlimited mount
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusNotImplemented, do(h, http.MethodPost, "/api/v1/goals", `{}`).Code)
	}
	// other client, same mount
	assert.Equal(t, http.StatusNotImplemented, do(h, http.MethodPost, "/api/v1/rooms", `{}`, withClient("203.0.113.99:1")).Code)
}

func TestBodyLimit(t *testing.T) {
	var calls atomic.Int64
	h := newHandler(t, &httpserver.Options{Config: testConfig("development"), Groups: recordingGroups(&calls)})

	pad := func(n int) string {
		// {"a":"xxx..."} is n bytes long
		return `{"a":"` + strings.Repeat("x", n-8) + `"}`
	}

	rec := do(h, http.MethodPost, "/api/v1/goals", pad(10241))
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "fail", errorBody(t, rec).Status)
	assertSecurityHeaders(t, rec)
	assert.Zero(t, calls.Load())

	rec = do(h, http.MethodPost, "/api/v1/goals", pad(10240))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), calls.Load())
}

func TestMalformedJSONIs400(t *testing.T) {
	h := newHandler(t, &httpserver.Options{Config: testConfig("production")})

	rec := do(h, http.MethodPost, "/api/v1/goals", `{"a":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "fail", errorBody(t, rec).Status)
}

func TestHandlersSeeSanitizedInput(t *testing.T) {
	var title, query string
	goals := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := reqctx.Body(r).(map[string]any)
		title, _ = body["title"].(string)
		query = r.URL.Query().Get("q")
	})
	h := newHandler(t, &httpserver.Options{Config: testConfig("production"), Groups: features.Groups{features.GroupGoals: goals}})

	rec := do(h, http.MethodPost, "/api/v1/goals?q=%3Cscript%3Ealert(1)%3C%2Fscript%3Eok", `{"title":"<script>alert(1)</script>Run"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Run", title)
	assert.Equal(t, "ok", query)
}

func TestUnexpectedErrors(t *testing.T) {
	groups := features.Groups{
		features.GroupGoals: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("db password is hunter2")
		}),
		features.GroupMission: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apperr.Raise(w, r, errors.New("mission store offline"))
			// writes after raising are dropped
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("late"))
			apperr.Raise(w, r, apperr.BadRequest("second"))
		}),
	}

	t.Run("production hides details", func(t *testing.T) {
		h := newHandler(t, &httpserver.Options{Config: testConfig("production"), Groups: groups})
		for _, target := range []string{"/api/v1/goals", "/api/v1/mission"} {
			rec := do(h, http.MethodGet, target, "")
			require.Equal(t, http.StatusInternalServerError, rec.Code, target)
			b := errorBody(t, rec)
			assert.Equal(t, "error", b.Status)
			assert.Equal(t, "Something went very wrong!", b.Message)
			assert.Empty(t, b.Stack)
			assert.NotContains(t, rec.Body.String(), "hunter2")
			assertSecurityHeaders(t, rec)
		}
	})

	t.Run("development explains", func(t *testing.T) {
		h := newHandler(t, &httpserver.Options{Config: testConfig("development"), Groups: groups})

		rec := do(h, http.MethodGet, "/api/v1/goals", "")
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		b := errorBody(t, rec)
		assert.Contains(t, b.Message, "hunter2")
		assert.NotEmpty(t, b.Stack)

		rec = do(h, http.MethodGet, "/api/v1/mission", "")
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "mission store offline", errorBody(t, rec).Message)
		assert.NotContains(t, rec.Body.String(), "late")
	})
}

func TestErrorResponsesCompressed(t *testing.T) {
	h := newHandler(t, &httpserver.Options{Config: testConfig("development")})

	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		wantStatus int
	}{
		{"not found", http.MethodGet, "/api/v1/doesnotexist", "", http.StatusNotFound},
		{"too large", http.MethodPost, "/api/v1/goals", `{"a":"` + strings.Repeat("x", 11000) + `"}`, http.StatusRequestEntityTooLarge},
		{"malformed", http.MethodPost, "/api/v1/goals", `{"a":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, tt.method, tt.target, tt.body, withHeader("Accept-Encoding", "gzip"))
			require.Equal(t, tt.wantStatus, rec.Code)
			require.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))

			zr, err := gzip.NewReader(rec.Body)
			require.NoError(t, err)
			raw, err := io.ReadAll(zr)
			require.NoError(t, err)

			var b apperr.Body
			require.NoError(t, json.Unmarshal(raw, &b))
			assert.Equal(t, "fail", b.Status)
			assertSecurityHeaders(t, rec)
		})
	}
}

func TestSecurityHeadersOnSuccess(t *testing.T) {
	h := newHandler(t, &httpserver.Options{Config: testConfig("production")})

	rec := do(h, http.MethodGet, "/ping", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"success","message":"pong"}`, rec.Body.String())
	assertSecurityHeaders(t, rec)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Empty(t, rec.Header().Get("X-Powered-By"))
}

func TestProductionStaticFallback(t *testing.T) {
	assets := fstest.MapFS{
		"index.html":    {Data: []byte("<html>spa</html>")},
		"assets/app.js": {Data: []byte("console.log(1)")},
	}
	s, err := static.New(static.Options{FS: assets})
	require.NoError(t, err)

	h := newHandler(t, &httpserver.Options{Config: testConfig("production"), Static: s})

	rec := do(h, http.MethodGet, "/goals/42/edit", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<html>spa</html>", rec.Body.String())
	assertSecurityHeaders(t, rec)

	rec = do(h, http.MethodGet, "/assets/app.js", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "console.log(1)", rec.Body.String())

	rec = do(h, http.MethodPost, "/goals/42/edit", `{}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Can't find /goals/42/edit on this server!", errorBody(t, rec).Message)

	// API misses never reach the fallback
	rec = do(h, http.MethodGet, "/ping/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProductionEmbeddedPlaceholder(t *testing.T) {
	h := newHandler(t, &httpserver.Options{Config: testConfig("production")})

	rec := do(h, http.MethodGet, "/dashboard", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/v1/docs")
}

func TestNoStaticFallbackOutsideProduction(t *testing.T) {
	for _, env := range []string{"development", "staging"} {
		h := newHandler(t, &httpserver.Options{Config: testConfig(env)})
		rec := do(h, http.MethodGet, "/dashboard", "")
		assert.Equal(t, http.StatusNotFound, rec.Code, env)
	}
}

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func TestRequestLogOnlyInDevelopment(t *testing.T) {
	for _, tt := range []struct {
		env  string
		want bool
	}{
		{"development", true},
		{"production", false},
		{"staging", false},
	} {
		var buf syncBuffer
		L, err := log.New(log.Options{JSON: true, Level: slog.LevelDebug, Writer: &buf})
		require.NoError(t, err)

		h := newHandler(t, &httpserver.Options{Config: testConfig(tt.env), Logger: L})
		do(h, http.MethodGet, "/ping", "")

		assert.Equal(t, tt.want, strings.Contains(buf.String(), `"msg":"http request"`), tt.env)
	}
}

func TestInfoListsMounts(t *testing.T) {
	h := newHandler(t, &httpserver.Options{
		Config: testConfig("production"),
		Info:   features.InfoOptions{Name: "goals"},
	})

	rec := do(h, http.MethodGet, "/info", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			Name   string `json:"name"`
			Mounts []struct {
				Prefix      string `json:"prefix"`
				RateLimited bool   `json:"rate_limited"`
			} `json:"mounts"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "goals", body.Data.Name)
	require.Len(t, body.Data.Mounts, 11)
	assert.Equal(t, "/api/v1/rooms", body.Data.Mounts[2].Prefix)
	assert.True(t, body.Data.Mounts[2].RateLimited)
}

func TestMetricsObserveErrors(t *testing.T) {
	m := metrics.New()
	h := newHandler(t, &httpserver.Options{Config: testConfig("production"), Metrics: m})

	do(h, http.MethodGet, "/api/v1/doesnotexist", "")
	do(h, http.MethodGet, "/ping", "")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	out := rec.Body.String()
	assert.Contains(t, out, `http_requests_total{method="GET",route="unmatched",status="404"} 1`)
	assert.Contains(t, out, `http_requests_total{method="GET",route="/ping",status="200"} 1`)
}

func TestStart_ServesAndStops(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	c := testConfig("production")
	c.HTTPPort = port
	stop, err := httpserver.Start(context.Background(), &httpserver.Options{Config: c, Logger: log.Nop(), Limiters: testLimiters(t)})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(port) + "/ping")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, stop(context.Background()))
	require.NoError(t, stop(context.Background()), "stop is idempotent")
}
