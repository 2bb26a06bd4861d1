package opshttp

import (
	"net"
	"net/http"
	"net/netip"

	"github.com/keithlinneman/goals-api/internal/log"
)

// requireNonPublicNetwork rejects peers outside loopback, private and
// link-local ranges, and anything that came through a proxy. The admin
// port must never be reachable from the internet even if a security
// group or load balancer is misconfigured.
func requireNonPublicNetwork(L log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Forwarded-For") != "" || r.Header.Get("Forwarded") != "" {
			forbid(w, r, L, "proxied request")
			return
		}
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			forbid(w, r, L, "unparseable remote addr")
			return
		}
		ip, err := netip.ParseAddr(host)
		if err != nil {
			forbid(w, r, L, "invalid remote ip")
			return
		}
		ip = ip.Unmap()
		if !ip.IsLoopback() && !ip.IsPrivate() && !ip.IsLinkLocalUnicast() {
			forbid(w, r, L, "public remote ip")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func forbid(w http.ResponseWriter, r *http.Request, L log.Logger, reason string) {
	L.Warn(r.Context(), "ops request rejected", "reason", reason, "network.peer.address", r.RemoteAddr, "url.path", r.URL.Path)
	http.Error(w, "forbidden", http.StatusForbidden)
}
