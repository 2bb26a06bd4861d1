package ratelimit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/keithlinneman/goals-api/internal/apperr"
	"github.com/keithlinneman/goals-api/internal/httpmw"
)

// fakeClock only moves when told to.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{t: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newFactory(t *testing.T, p Policy, opts ...Option) (*Factory, *fakeClock) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	clk := newFakeClock()
	opts = append([]Option{WithPolicy(p), withClock(clk.Now)}, opts...)
	return NewFactory(ctx, opts...), clk
}

func TestAllow_NPlusOneDenied(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 64).Draw(rt, "limit")
		window := time.Duration(rapid.IntRange(1, 60).Draw(rt, "window_s")) * time.Second

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		clk := newFakeClock()
		l := NewFactory(ctx, WithPolicy(Policy{Limit: n, Window: window}), withClock(clk.Now)).New("/ping")

		for i := 0; i < n; i++ {
			ok, _ := l.Allow("198.51.100.1")
			require.True(rt, ok, "request %d of %d denied", i+1, n)
		}
		ok, wait := l.Allow("198.51.100.1")
		require.False(rt, ok, "request %d allowed", n+1)
		require.Greater(rt, wait, time.Duration(0))

		clk.Advance(window)
		ok, _ = l.Allow("198.51.100.1")
		require.True(rt, ok, "not admitted after the window closed")
	})
}

func TestAllow_SpreadAcrossWindow(t *testing.T) {
	f, clk := newFactory(t, Policy{Limit: 3, Window: 3 * time.Second})
	l := f.New("/api/v1/rooms")

	allowed := 0
	for i := 0; i < 6; i++ {
		if ok, _ := l.Allow("198.51.100.7"); ok {
			allowed++
		}
		clk.Advance(500 * time.Millisecond)
	}
	assert.Equal(t, 3, allowed, "requests spread over 2.5s of a 3s window")

	// 3s after the first request the window closes
	clk.Advance(500 * time.Millisecond)
	ok, _ := l.Allow("198.51.100.7")
	assert.True(t, ok, "new window should admit again")
}

func TestAllow_SpreadProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 20).Draw(rt, "limit")
		window := time.Duration(rapid.IntRange(1, 60).Draw(rt, "window_s")) * time.Second
		gaps := rapid.SliceOfN(rapid.Int64Range(0, int64(window)), 1, 100).Draw(rt, "gaps")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		clk := newFakeClock()
		l := NewFactory(ctx, WithPolicy(Policy{Limit: n, Window: window}), withClock(clk.Now)).New("/ping")

		// requests admitted inside the first window, measured from the first request
		start := clk.Now()
		admitted := 0
		for _, g := range gaps {
			if clk.Now().Sub(start) >= window {
				break
			}
			if ok, _ := l.Allow("203.0.113.9"); ok {
				admitted++
			}
			clk.Advance(time.Duration(g))
		}
		require.LessOrEqual(rt, admitted, n)
	})
}

func TestAllow_RetryAfterIsWindowEnd(t *testing.T) {
	f, clk := newFactory(t, Policy{Limit: 1, Window: 10 * time.Second})
	l := f.New("/ping")

	ok, _ := l.Allow("a")
	require.True(t, ok)
	clk.Advance(4 * time.Second)
	ok, wait := l.Allow("a")
	require.False(t, ok)
	assert.Equal(t, 6*time.Second, wait)
}

func TestAllow_ClientsIndependent(t *testing.T) {
	f, _ := newFactory(t, Policy{Limit: 2, Window: time.Minute})
	l := f.New("/ping")

	for i := 0; i < 2; i++ {
		ok, _ := l.Allow("a")
		require.True(t, ok)
	}
	ok, _ := l.Allow("a")
	assert.False(t, ok)

	ok, _ = l.Allow("b")
	assert.True(t, ok)
}

func TestFactory_MountsIndependent(t *testing.T) {
	f, _ := newFactory(t, Policy{Limit: 3, Window: time.Minute})
	ping, info := f.New("/ping"), f.New("/info")

	for i := 0; i < 3; i++ {
		ok, _ := ping.Allow("203.0.113.5")
		require.True(t, ok)
	}
	ok, _ := ping.Allow("203.0.113.5")
	require.False(t, ok)

	for i := 0; i < 3; i++ {
		ok, _ := info.Allow("203.0.113.5")
		assert.True(t, ok, "info request %d denied after ping was exhausted", i+1)
	}
}

func TestAllow_ConcurrentNeverOverAdmits(t *testing.T) {
	const limit, callers = 25, 200
	f, _ := newFactory(t, Policy{Limit: limit, Window: time.Hour})
	l := f.New("/api/v1/rooms")

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.Allow("192.0.2.1"); ok {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, limit, allowed.Load())
}

func TestHooks(t *testing.T) {
	var mu sync.Mutex
	var denied, first []string
	f, _ := newFactory(t, Policy{Limit: 1, Window: time.Hour}, WithHooks(Hooks{
		OnDenied: func(mount, client string) {
			mu.Lock()
			denied = append(denied, mount+" "+client)
			mu.Unlock()
		},
		OnFirstDenied: func(mount, client string) {
			mu.Lock()
			first = append(first, mount+" "+client)
			mu.Unlock()
		},
	}))
	l := f.New("/info")

	for i := 0; i < 4; i++ {
		l.Allow("a")
	}
	l.Allow("b")
	l.Allow("b")

	assert.Len(t, denied, 4)
	assert.Equal(t, []string{"/info a", "/info b"}, first)
}

func TestCapacity(t *testing.T) {
	var capHits int
	f, clk := newFactory(t, Policy{Limit: 5, Window: time.Minute, TTL: time.Minute, MaxClients: 2},
		WithHooks(Hooks{OnCapacity: func(string) { capHits++ }}))
	l := f.New("/api/v1/users")

	ok, _ := l.Allow("a")
	require.True(t, ok)
	ok, _ = l.Allow("b")
	require.True(t, ok)

	ok, _ = l.Allow("c")
	assert.False(t, ok, "new client admitted at capacity")
	ok, _ = l.Allow("d")
	assert.False(t, ok)
	assert.Equal(t, 1, capHits, "capacity hook should fire once per fill")

	ok, _ = l.Allow("a")
	assert.True(t, ok, "known client denied at capacity")

	clk.Advance(2 * time.Minute)
	l.evict(clk.Now())
	assert.Zero(t, l.Len())
	ok, _ = l.Allow("c")
	assert.True(t, ok, "eviction should free capacity")
}

func TestEvict_KeepsActiveClients(t *testing.T) {
	f, clk := newFactory(t, Policy{Limit: 5, Window: time.Minute, TTL: time.Minute})
	l := f.New("/ping")

	l.Allow("idle")
	clk.Advance(50 * time.Second)
	l.Allow("active")
	clk.Advance(20 * time.Second)
	l.evict(clk.Now())

	assert.Equal(t, 1, l.Len())
}

func TestMiddleware_DeniesThroughErrorSink(t *testing.T) {
	f, _ := newFactory(t, Policy{Limit: 2, Window: 10 * time.Second})
	l := f.New("/ping")

	reached := 0
	h := httpmw.Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached++
		w.WriteHeader(http.StatusOK)
	}), apperr.Middleware(&apperr.Normalizer{}), httpmw.ClientIP, l.Middleware)

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/ping", http.NoBody)
		req.RemoteAddr = "203.0.113.77:5000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, do().Code)
	assert.Equal(t, http.StatusOK, do().Code)

	rec := do()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 2, reached)
	assert.Equal(t, "10", rec.Header().Get("Retry-After"))

	var b apperr.Body
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	assert.Equal(t, "fail", b.Status)
	assert.Equal(t, "Too many requests, please try again later.", b.Message)
}

func TestClientKey_FallsBackToRemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.RemoteAddr = "192.0.2.9:1234"
	assert.Equal(t, "192.0.2.9", clientKey(req))

	req.RemoteAddr = "weird"
	assert.Equal(t, "weird", clientKey(req))
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 1, retryAfterSeconds(0))
	assert.Equal(t, 1, retryAfterSeconds(200*time.Millisecond))
	assert.Equal(t, 3, retryAfterSeconds(2100*time.Millisecond))
}

func TestDefaults(t *testing.T) {
	f := NewFactory(context.Background())
	assert.Equal(t, DefaultPolicy, f.Policy())
}
