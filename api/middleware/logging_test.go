package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/angelmondragon/dashbite-backend/pkg/logger"
)

func TestLoggingRecordsStatusAndRequestID(t *testing.T) {
	var logs bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Output: &logs})

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	handler := RequestID(logg)(Logging(logg)(inner))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("X-Request-Id", "req-1")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if got := resp.Header().Get("X-Request-Id"); got != "req-1" {
		t.Fatalf("expected request id echo, got %q", got)
	}

	var complete map[string]any
	for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("decode log line %q: %v", line, err)
		}
		if entry["message"] == "request.complete" {
			complete = entry
		}
	}
	if complete == nil {
		t.Fatalf("missing request.complete entry in %q", logs.String())
	}
	if complete["status"] != float64(http.StatusTeapot) || complete["request_id"] != "req-1" {
		t.Fatalf("unexpected completion entry %+v", complete)
	}
}

func TestRecovererReturnsInternalError(t *testing.T) {
	handler := Recoverer(logger.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", resp.Code)
	}
}

func TestRequestIDReplacesUnusableHeader(t *testing.T) {
	var seen string
	handler := RequestID(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = w.Header().Get("X-Request-Id")
	}))

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-Id", strings.Repeat("x", maxRequestIDLength+1))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if len(seen) != 36 {
		t.Fatalf("expected generated uuid request id, got %q", seen)
	}
}
