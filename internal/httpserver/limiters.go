package httpserver

import (
	"context"

	"github.com/keithlinneman/goals-api/internal/cfg"
	"github.com/keithlinneman/goals-api/internal/log"
	"github.com/keithlinneman/goals-api/internal/metrics"
	"github.com/keithlinneman/goals-api/internal/ratelimit"
)

// NewLimiters builds the per-mount limiter factory from config. Denials are
// counted per mount; each offending client is logged once.
func NewLimiters(ctx context.Context, c cfg.App, m *metrics.ServerMetrics, L log.Logger) *ratelimit.Factory {
	if L == nil {
		L = log.Nop()
	}
	hooks := ratelimit.Hooks{
		OnFirstDenied: func(mount, client string) {
			L.Warn(ctx, "rate limit exceeded", "mount", mount, "client.address", client)
		},
		OnCapacity: func(mount string) {
			L.Warn(ctx, "rate limiter client table full, denying new clients", "mount", mount, "max_clients", c.RateMaxClients)
		},
	}
	if m != nil {
		hooks.OnDenied = func(mount, _ string) { m.IncRateLimitDenied(mount) }
		onCapacity := hooks.OnCapacity
		hooks.OnCapacity = func(mount string) {
			m.IncRateLimitCapacity(mount)
			onCapacity(mount)
		}
	}
	return ratelimit.NewFactory(ctx,
		ratelimit.WithPolicy(ratelimit.Policy{
			Limit:      c.RateLimit,
			Window:     c.RateWindow,
			MaxClients: c.RateMaxClients,
		}),
		ratelimit.WithHooks(hooks),
	)
}
