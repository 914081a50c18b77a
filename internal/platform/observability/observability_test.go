package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/shorebytelabs/nailsbyabri-sub001/internal/platform/requestctx"
)

func TestEventLoggerPrefersRequestLogger(t *testing.T) {
	baseCore, baseLogs := observer.New(zapcore.DebugLevel)
	reqCore, reqLogs := observer.New(zapcore.DebugLevel)

	logEvent := EventLogger(zap.New(baseCore))

	logEvent(context.Background(), "capacity.fail_open", map[string]any{"week": "2024-12-16"})
	if baseLogs.Len() != 1 {
		t.Fatalf("expected base logger entry, got %d", baseLogs.Len())
	}

	ctx := requestctx.WithLogger(context.Background(), zap.New(reqCore))
	logEvent(ctx, "order.paid", map[string]any{"orderId": "ord_1", "error": errors.New("boom")})
	if reqLogs.Len() != 1 {
		t.Fatalf("expected request logger entry, got %d", reqLogs.Len())
	}
	entry := reqLogs.All()[0]
	if entry.Message != "order.paid" {
		t.Fatalf("unexpected message %q", entry.Message)
	}
	if entry.Level != zapcore.WarnLevel {
		t.Fatalf("expected warn level for error field, got %s", entry.Level)
	}
	if entry.ContextMap()["orderId"] != "ord_1" {
		t.Fatalf("missing orderId field: %v", entry.ContextMap())
	}
}

func TestHTTPMetricsRecordsRoutePattern(t *testing.T) {
	metrics := NewHTTPMetrics("nails")
	router := chi.NewRouter()
	router.Use(metrics.Middleware)
	router.Get("/orders/{orderID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	router.Handle("/metrics", metrics.Handler())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/ord_123", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, `nails_http_requests_total{code="404",method="GET",route="/orders/{orderID}"} 1`) {
		t.Fatalf("expected route-labelled counter, got:\n%s", body)
	}
}

func TestTraceMiddlewareContinuesCloudTraceHeader(t *testing.T) {
	var got requestctx.TraceInfo
	handler := TraceMiddleware("nails-prod")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = requestctx.Trace(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/capacity/current", nil)
	req.Header.Set(cloudTraceHeader, "105445aa7843bc8bf206b12000100000/1;o=1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got.ProjectID != "nails-prod" {
		t.Fatalf("unexpected project %q", got.ProjectID)
	}
	if got.TraceID != "105445aa7843bc8bf206b12000100000" {
		t.Fatalf("expected continued trace id, got %q", got.TraceID)
	}
	if rec.Header().Get("traceparent") == "" {
		t.Fatal("expected traceparent response header")
	}
}

func TestSanitizeStripsControlCharacters(t *testing.T) {
	if got := SanitizeCustomerID("cust\n_1\x00"); got != "cust_1" {
		t.Fatalf("unexpected sanitised id %q", got)
	}
	if got := SanitizeRoute(""); got != "/" {
		t.Fatalf("unexpected empty route %q", got)
	}
}

func TestRequestLoggerTagsOrderRoutes(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	router := chi.NewRouter()
	router.Use(InjectLoggerMiddleware(zap.New(core)), RequestLoggerMiddleware())
	router.Post("/orders/{orderID}:pay", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders/ord_9:pay", nil))

	entries := logs.FilterMessage("request completed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one completion entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Level != zapcore.WarnLevel {
		t.Fatalf("expected warn for 409, got %s", entry.Level)
	}
	fields := entry.ContextMap()
	if fields["order_id"] != "ord_9" {
		t.Fatalf("missing order_id: %v", fields)
	}
	if fields["route"] != "/orders/{orderID}:pay" {
		t.Fatalf("unexpected route %v", fields["route"])
	}
}

func TestRecoveryMiddlewareWritesEnvelope(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	handler := RecoveryMiddleware(zap.New(core))(RequestLoggerMiddleware()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/capacity/current", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "internal_server_error") {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Fatal("expected panic to be logged")
	}
}

func TestParseCloudTraceDecimalSpan(t *testing.T) {
	parsed, ok := parseCloudTrace("105445aa7843bc8bf206b12000100000/255;o=1")
	if !ok {
		t.Fatal("expected header to parse")
	}
	if parsed.spanID.String() != "00000000000000ff" || !parsed.sampled {
		t.Fatalf("unexpected parse %+v", parsed)
	}
	if _, ok := parseCloudTrace("short/1"); ok {
		t.Fatal("expected short trace id to be rejected")
	}
	if got := cloudTraceValue(requestctx.TraceInfo{TraceID: "abc", SpanID: "00000000000000ff", Sampled: true}); got != "abc/255;o=1" {
		t.Fatalf("unexpected header %q", got)
	}
}
