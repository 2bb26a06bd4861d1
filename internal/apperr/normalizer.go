package apperr

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"strings"

	"github.com/keithlinneman/goals-api/internal/log"
)

// genericMessage replaces the message of unclassified errors in production.
const genericMessage = "Something went very wrong!"

// Body is the JSON shape of every error response.
type Body struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Stack   string `json:"stack,omitempty"`
}

// Normalizer turns classified errors into exactly one HTTP response.
type Normalizer struct {
	// Verbose exposes messages and stacks of unclassified errors.
	// Must be false in production.
	Verbose bool
	Logger  log.Logger
	// OnError is called once per normalized error, e.g. to count by status.
	OnError func(status int, operational bool)
}

// Write sends the response for e. It writes to w as given, so callers
// downstream of the compression stage get compressed error bodies.
func (n *Normalizer) Write(w http.ResponseWriter, r *http.Request, e *Error) {
	ctx := r.Context()
	L := n.logger(ctx)

	if n.OnError != nil {
		n.OnError(e.Status, e.Operational)
	}

	if ClientGone(ctx, e) {
		L.Debug(ctx, "client gone before error response", "http.response.status_code", e.Status)
		return
	}

	switch {
	case !e.Operational:
		L.Error(ctx, e, "unexpected error", "http.response.status_code", e.Status)
	case e.Status >= 500:
		L.Error(ctx, e, "request failed", "http.response.status_code", e.Status)
	default:
		L.Debug(ctx, "request rejected", "http.response.status_code", e.Status, "code", e.Code, "err", e.Message)
	}

	body := n.body(e)
	buf, err := json.Marshal(body)
	if err != nil {
		// Body only holds strings; this is unreachable in practice.
		buf = []byte(`{"status":"error","message":"` + genericMessage + `"}`)
	}

	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	h.Del("Content-Length")
	if e.RetryAfter > 0 {
		h.Set("Retry-After", strconv.Itoa(e.RetryAfter))
	}
	w.WriteHeader(e.Status)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(buf); err != nil {
		L.Debug(ctx, "error response write failed", "err", err.Error())
	}
}

func (n *Normalizer) body(e *Error) Body {
	b := Body{Status: e.StatusWord(), Message: e.Message, Code: e.Code}
	if e.Operational {
		return b
	}
	if !n.Verbose {
		b.Message = genericMessage
		return b
	}
	b.Stack = renderStack(e.StackPCs())
	return b
}

func (n *Normalizer) logger(ctx context.Context) log.Logger {
	return log.FromContextOr(ctx, n.Logger)
}

func renderStack(pcs []uintptr) string {
	if len(pcs) == 0 {
		return ""
	}
	var b strings.Builder
	frames := runtime.CallersFrames(pcs)
	for {
		fr, more := frames.Next()
		if strings.HasPrefix(fr.Function, "runtime.") {
			if !more {
				break
			}
			continue
		}
		b.WriteString(fr.Function)
		b.WriteString("\n\t")
		b.WriteString(fr.File)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(fr.Line))
		b.WriteByte('\n')
		if !more {
			break
		}
	}
	return strings.TrimSpace(b.String())
}
