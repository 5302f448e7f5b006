package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/preston-bernstein/venue-scheduler/internal/logging"
	"github.com/preston-bernstein/venue-scheduler/internal/testutil"
)

func TestWriteErrorIncludesRequestID(t *testing.T) {
	logger, _ := testutil.NewBufferLogger()
	req := httptest.NewRequest(http.MethodGet, "/allocations/missing", nil)
	req.Header.Set("X-Request-ID", "abc123")

	rr := testutil.ServeRequest(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "allocation not found", logger)
	}), req)

	testutil.AssertStatus(t, rr, http.StatusNotFound)
	if got := rr.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("expected content type json, got %s", got)
	}
	var body map[string]string
	testutil.DecodeJSON(t, rr, &body)
	if body["error"] != "allocation not found" || body["requestId"] != "abc123" {
		t.Fatalf("unexpected error body %+v", body)
	}
}

func TestWriteJSONLogsEncodeError(t *testing.T) {
	logger, buf := testutil.NewBufferLogger()
	rr := testutil.Serve(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, make(chan int), logger)
	}), http.MethodGet, "/encode-error", nil)

	testutil.AssertStatus(t, rr, http.StatusOK)
	if !bytes.Contains(buf.Bytes(), []byte("failed to encode response")) {
		t.Fatalf("expected logger to record encode error, got %s", buf.String())
	}
}

func TestLoggerFromContextPrefersRequestLogger(t *testing.T) {
	fallback, _ := testutil.NewBufferLogger()
	scoped, _ := testutil.NewBufferLogger()

	if got := loggerFromContext(nil, fallback); got != fallback {
		t.Fatalf("expected fallback for nil request")
	}
	req := httptest.NewRequest(http.MethodGet, "/games", nil)
	req = req.WithContext(logging.WithLogger(context.Background(), scoped))
	if got := loggerFromContext(req, fallback); got != scoped {
		t.Fatalf("expected request-scoped logger")
	}
}
