package ratelimit

import (
	"context"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/keithlinneman/goals-api/internal/apperr"
	"github.com/keithlinneman/goals-api/internal/httpmw"
)

// Policy is N requests per fixed Window for one client. A client's window
// opens with its first request; the Limit+1-th request before the window
// closes is denied however the requests are spread.
type Policy struct {
	Limit  int
	Window time.Duration
	// TTL is how long an idle client stays tracked.
	TTL time.Duration
	// MaxClients caps tracked clients per limiter; 0 disables the cap.
	// At capacity new clients are denied, known clients are still served.
	MaxClients int
}

// DefaultPolicy allows 30 requests per 3 second window.
var DefaultPolicy = Policy{
	Limit:      30,
	Window:     3 * time.Second,
	TTL:        5 * time.Minute,
	MaxClients: 100_000,
}

// Hooks are called outside the limiter lock.
type Hooks struct {
	// OnDenied runs for every denied request.
	OnDenied func(mount, client string)
	// OnFirstDenied runs once per tracked client, for a single log line per offender.
	OnFirstDenied func(mount, client string)
	// OnCapacity runs once each time the client table fills up.
	OnCapacity func(mount string)
}

// Factory produces independent per-mount limiters sharing a policy.
type Factory struct {
	ctx    context.Context
	policy Policy
	hooks  Hooks
	now    func() time.Time
}

type Option func(*Factory)

func WithPolicy(p Policy) Option {
	return func(f *Factory) {
		if p.Limit > 0 {
			f.policy.Limit = p.Limit
		}
		if p.Window > 0 {
			f.policy.Window = p.Window
		}
		if p.TTL > 0 {
			f.policy.TTL = p.TTL
		}
		if p.MaxClients >= 0 {
			f.policy.MaxClients = p.MaxClients
		}
	}
}

func WithHooks(h Hooks) Option {
	return func(f *Factory) { f.hooks = h }
}

// withClock is for tests; windows are driven by this clock.
func withClock(now func() time.Time) Option {
	return func(f *Factory) { f.now = now }
}

// NewFactory returns a Factory whose limiters stop their eviction loops when
// ctx is done.
func NewFactory(ctx context.Context, opts ...Option) *Factory {
	f := &Factory{ctx: ctx, policy: DefaultPolicy, now: time.Now}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Policy returns the effective policy.
func (f *Factory) Policy() Policy { return f.policy }

// New returns a fresh limiter for mount with its own client table.
func (f *Factory) New(mount string) *Limiter {
	p := f.policy
	l := &Limiter{
		mount:   mount,
		policy:  p,
		hooks:   f.hooks,
		now:     f.now,
		clients: make(map[string]*client),
	}
	go l.evictLoop(f.ctx)
	return l
}

// client holds one window. The bucket never refills (rate 0) and is
// replaced when the window closes.
type client struct {
	bucket      *rate.Limiter
	windowStart time.Time
	lastSeen    time.Time
	logged      bool
}

func (c *client) open(now time.Time, limit int) {
	c.windowStart = now
	c.bucket = rate.NewLimiter(0, limit)
}

// Limiter gates one mount point.
type Limiter struct {
	mount  string
	policy Policy
	hooks  Hooks
	now    func() time.Time

	mu      sync.Mutex
	clients map[string]*client
	full    bool
}

// Allow counts a request for key against its current window. When denied
// it reports how long until the window closes.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	c, ok := l.clients[key]
	if !ok {
		if l.policy.MaxClients > 0 && len(l.clients) >= l.policy.MaxClients {
			first := !l.full
			l.full = true
			l.mu.Unlock()
			if first && l.hooks.OnCapacity != nil {
				l.hooks.OnCapacity(l.mount)
			}
			l.denied(key, false)
			return false, l.policy.Window
		}
		c = &client{}
		c.open(now, l.policy.Limit)
		l.clients[key] = c
	}
	c.lastSeen = now

	end := c.windowStart.Add(l.policy.Window)
	if !now.Before(end) {
		c.open(now, l.policy.Limit)
		end = now.Add(l.policy.Window)
	}

	allowed := c.bucket.AllowN(now, 1)
	var delay time.Duration
	if !allowed {
		delay = end.Sub(now)
	}
	first := !allowed && !c.logged
	if first {
		c.logged = true
	}
	l.mu.Unlock()

	if !allowed {
		l.denied(key, first)
	}
	return allowed, delay
}

func (l *Limiter) denied(key string, first bool) {
	if first && l.hooks.OnFirstDenied != nil {
		l.hooks.OnFirstDenied(l.mount, key)
	}
	if l.hooks.OnDenied != nil {
		l.hooks.OnDenied(l.mount, key)
	}
}

// Len is the number of tracked clients.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func (l *Limiter) evictLoop(ctx context.Context) {
	if ctx == nil {
		return
	}
	ticker := time.NewTicker(l.policy.TTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.evict(l.now())
		}
	}
}

func (l *Limiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, c := range l.clients {
		if now.Sub(c.lastSeen) > l.policy.TTL {
			delete(l.clients, k)
		}
	}
	if l.policy.MaxClients == 0 || len(l.clients) < l.policy.MaxClients {
		l.full = false
	}
}

// Middleware denies requests over the limit with a 429 raised through the
// error sink. The response never reveals the limit or remaining budget.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, wait := l.Allow(clientKey(r))
		if !ok {
			apperr.Raise(w, r, apperr.TooManyRequests(retryAfterSeconds(wait)))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey prefers the address resolved by httpmw.ClientIP.
func clientKey(r *http.Request) string {
	if ip := httpmw.ClientIPFromContext(r.Context()); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func retryAfterSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
