package httpmw

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/goals-api/internal/reqctx"
	"github.com/keithlinneman/goals-api/internal/sanitize"
)

func TestSanitize_BodySeenByHandler(t *testing.T) {
	var fromState map[string]any
	var fromBody map[string]any
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromState, _ = reqctx.Body(r).(map[string]any)
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &fromBody); err != nil {
			t.Errorf("re-encoded body: %v", err)
		}
	}), JSONBody(DefaultBodyLimit), Cookies, Sanitize(sanitize.New()))

	h.ServeHTTP(httptest.NewRecorder(), jsonRequest(`{"title":"<script>alert(1)</script>Run 5k","tags":["<b>fit</b>"]}`))

	for name, m := range map[string]map[string]any{"state": fromState, "r.Body": fromBody} {
		title, _ := m["title"].(string)
		if strings.Contains(title, "<script") || strings.Contains(title, "alert") {
			t.Fatalf("%s: title not sanitized: %q", name, title)
		}
		if title != "Run 5k" {
			t.Fatalf("%s: title = %q, want %q", name, title, "Run 5k")
		}
	}
}

func TestSanitize_Query(t *testing.T) {
	var q, raw string
	h := Sanitize(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q = r.URL.Query().Get("q")
		raw = r.URL.RawQuery
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/goals?q=%3Cscript%3Ealert(1)%3C%2Fscript%3Erun&page=2", http.NoBody))
	if q != "run" {
		t.Fatalf("q = %q, want run", q)
	}
	if strings.Contains(strings.ToLower(raw), "script") {
		t.Fatalf("raw query still carries markup: %q", raw)
	}

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x?b=2&a=1", http.NoBody))
	if raw != "b=2&a=1" {
		t.Fatalf("clean query rewritten: %q", raw)
	}
}

func TestSanitize_Params(t *testing.T) {
	var id string
	r := chi.NewRouter()
	r.Use(Sanitize(nil))
	r.Get("/goals/{id}", func(w http.ResponseWriter, r *http.Request) {
		id = reqctx.Param(r, "id")
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/goals/%3Cb%3E7", http.NoBody))
	if id != "7" {
		t.Fatalf("id = %q, want 7", id)
	}
}
