package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
)

func TestTerminalContextInjectsID(t *testing.T) {
	r := chi.NewRouter()
	var seen string
	r.With(TerminalContext(logger.Nop())).Get("/terminals/{terminalId}", func(w http.ResponseWriter, r *http.Request) {
		seen = TerminalIDFromContext(r.Context())
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/terminals/lane-3", nil))
	if seen != "lane-3" {
		t.Fatalf("expected terminal id lane-3, got %q", seen)
	}
}

func TestRequestIDEchoesHeader(t *testing.T) {
	handler := RequestID(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "req-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get(requestIDHeader); got != "req-1" {
		t.Fatalf("expected request id echoed, got %q", got)
	}
}

func TestRecovererWritesInternalError(t *testing.T) {
	handler := Recoverer(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rec.Code)
	}
}
