// Package ratelimit is the admission gate placed in front of selected mount
// points. A Factory hands out one Limiter per mount; limiters never share
// state, so exhausting /ping leaves /info untouched for the same client.
//
// Each Limiter counts requests per client address in a fixed window that
// opens with the client's first request, backed by a non-refilling
// golang.org/x/time/rate bucket, and evicts idle clients in the background. State is in memory and local to
// the process: it does not protect against distributed floods, and bodies are
// already read by the time a request is denied. Upstream filtering is still
// expected in front of the server.
package ratelimit
