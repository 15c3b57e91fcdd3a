package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewRouter_LogsRequestIDFromGateway(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := newRouter(zap.New(core))

	r := httptest.NewRequest(http.MethodGet, "/employees/", nil)
	r.Header.Set("X-Request-Id", "req-42")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	hits := logs.FilterMessage("upstream hit").All()
	if len(hits) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(hits))
	}
	if got := hits[0].ContextMap()["request_id"]; got != "req-42" {
		t.Fatalf("expected request_id req-42, got %v", got)
	}
}
