package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/authgate/pkg/logger"
)

func runRequestLogger(t *testing.T, ctx context.Context) map[string]any {
	t.Helper()
	var buf bytes.Buffer

	h := RequestLogger(newTestLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Info("handler log")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
	h.ServeHTTP(httptest.NewRecorder(), req)

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func TestRequestLogger_IncludesCorrelationID(t *testing.T) {
	out := runRequestLogger(t, logger.WithCorrelationID(context.Background(), "corr-test-123"))

	if got := out["correlation_id"]; got != "corr-test-123" {
		t.Errorf("correlation_id = %v, want %q", got, "corr-test-123")
	}
}

func TestRequestLogger_MasksUserFromClaims(t *testing.T) {
	ctx := WithClaims(context.Background(), &Claims{Email: "jane@example.com", Role: "admin"})
	out := runRequestLogger(t, ctx)

	if got := out["user"]; got != "j***@example.com" {
		t.Errorf("user = %v, want masked email", got)
	}
}

func TestRequestLogger_NoUser_OmitsField(t *testing.T) {
	out := runRequestLogger(t, context.Background())

	if _, ok := out["user"]; ok {
		t.Error("user should be absent for anonymous requests")
	}
}

func TestRequestLogger_IncludesTraceFields(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	out := runRequestLogger(t, ctx)

	if got := out["trace_id"]; got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("trace_id = %v", got)
	}
	if got := out["span_id"]; got != "00f067aa0ba902b7" {
		t.Errorf("span_id = %v", got)
	}
}
