// Package dispatch routes requests to handler groups by path prefix.
//
// The mount table is an ordered list fixed at startup. For each request the
// first entry whose prefix is a segment prefix of the path wins: /ping
// matches /ping and /ping/x but never /pingx. The matched prefix is
// stripped before the group sees the request, so groups route on the
// remaining suffix ("/" when nothing remains).
//
// Requests no entry claims go to the static fallback when one is installed
// (GET and HEAD only), and otherwise to the unmatched-route synthesizer,
// which raises an operational 404 naming the original URL. Groups built
// with NewGroup send their own misses to the same synthesizer.
package dispatch
