// Package apperr is the single error path of the API server.
//
// Every pipeline stage, rate limiter and handler group reports failure by
// calling [Raise] instead of writing a response. Raise classifies the value
// with [From] into an [*Error] and hands it to the request's [Normalizer],
// which is the only component that writes error responses.
//
// Operational errors (not-found, payload too large, rate limited, bad input)
// carry a status and a message that is safe to show to clients. Anything else
// is unclassified and always becomes a 500; its message and stack are only
// exposed outside production mode.
package apperr
