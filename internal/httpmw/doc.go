// Package httpmw provides the pipeline stages of the API server.
//
// httpserver.NewHandler composes them in a fixed order, outermost first:
// request state, CORS, security headers, preflight termination, request
// id, client ip, trace headers, request-scoped logger, diagnostic request
// log, body-size-bounded JSON parse, cookies, sanitize, panic recovery and
// route annotation. Tracing, compression and the error sink wrap the whole
// chain from outside.
//
// Stages never write error responses themselves. They call apperr.Raise
// and return, leaving the response to the normalizer. User-supplied data
// (query params, user-agent, cookies, bodies) is kept out of logs.
package httpmw
