package httpmw

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/keithlinneman/goals-api/internal/apperr"
)

func TestRecover_NoPanicUntouched(t *testing.T) {
	h := Recover(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Custom", "value")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("created"))
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", http.NoBody))

	if rec.Code != http.StatusCreated || rec.Body.String() != "created" || rec.Header().Get("X-Custom") != "value" {
		t.Fatalf("response altered: %d %q", rec.Code, rec.Body.String())
	}
}

func TestRecover_PanicBecomesSingle500(t *testing.T) {
	for _, v := range []any{"boom", errors.New("db gone"), 42} {
		panics := 0
		n := &apperr.Normalizer{Verbose: false}
		h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic(v)
		}), apperr.Middleware(n), apperr.Guard, Recover(func() { panics++ }))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("%v: status = %d", v, rec.Code)
		}
		if panics != 1 {
			t.Fatalf("%v: onPanic called %d times", v, panics)
		}
		b := decodeErrorBody(t, rec)
		if b.Status != "error" || b.Message != "Something went very wrong!" || b.Stack != "" {
			t.Fatalf("%v: body = %+v", v, b)
		}
		if strings.Contains(rec.Body.String(), ".go:") {
			t.Fatalf("%v: stack leaked: %s", v, rec.Body.String())
		}
	}
}

func TestRecover_VerboseIncludesDetail(t *testing.T) {
	n := &apperr.Normalizer{Verbose: true}
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("widget exploded")
	}), apperr.Middleware(n), apperr.Guard, Recover(nil))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	b := decodeErrorBody(t, rec)
	if !strings.Contains(b.Message, "widget exploded") {
		t.Fatalf("message = %q", b.Message)
	}
	if b.Stack == "" {
		t.Fatal("stack missing in verbose mode")
	}
}

func TestRecover_AbortHandlerRepanics(t *testing.T) {
	h := Recover(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	defer func() {
		if v := recover(); v != http.ErrAbortHandler {
			t.Fatalf("recovered %v, want ErrAbortHandler", v)
		}
	}()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", http.NoBody))
}
