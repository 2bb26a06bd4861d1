// Package health holds the liveness and readiness checks served on the
// admin listener. Checks compose with All and Named; ShutdownGate fails
// readiness while the server drains before shutdown.
package health
