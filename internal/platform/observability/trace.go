package observability

import (
	"encoding/binary"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/shorebytelabs/nailsbyabri-sub001/internal/platform/requestctx"
)

const cloudTraceHeader = "X-Cloud-Trace-Context"

var (
	tracer     = otel.Tracer("github.com/shorebytelabs/nailsbyabri-sub001/internal/platform/observability")
	propagator = propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
)

// TraceMiddleware starts a server span per request. A W3C traceparent wins over the Cloud Run
// X-Cloud-Trace-Context header when both are present. The span is named after the matched route
// once routing finishes.
func TraceMiddleware(projectID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			if !trace.SpanContextFromContext(ctx).IsValid() {
				if remote, ok := parseCloudTrace(r.Header.Get(cloudTraceHeader)); ok {
					ctx = trace.ContextWithRemoteSpanContext(ctx, remote.spanContext())
				}
			}

			ctx, span := tracer.Start(ctx, r.Method+" "+SanitizeRoute(r.URL.Path),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(requestAttributes(r)...),
			)
			defer span.End()

			info := requestctx.TraceInfo{ProjectID: projectID}
			if sc := span.SpanContext(); sc.IsValid() {
				info.TraceID = sc.TraceID().String()
				info.SpanID = sc.SpanID().String()
				info.Sampled = sc.IsSampled()
			}
			ctx = requestctx.WithTrace(ctx, info)

			if header := cloudTraceValue(info); header != "" {
				w.Header().Set(cloudTraceHeader, header)
			}
			propagator.Inject(ctx, propagation.HeaderCarrier(w.Header()))

			recorder := newResponseRecorder(w)
			r = r.WithContext(ctx)
			next.ServeHTTP(recorder, r)

			route := SanitizeRoute(routePattern(r))
			span.SetName(r.Method + " " + route)
			span.SetAttributes(
				semconv.HTTPRoute(route),
				semconv.HTTPResponseStatusCode(recorder.Status()),
			)
			if recorder.Status() >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(recorder.Status()))
			}
		})
	}
}

// cloudTrace is the parsed form of "TRACE_ID/SPAN_ID;o=OPTIONS".
type cloudTrace struct {
	traceID trace.TraceID
	spanID  trace.SpanID
	sampled bool
}

func (c cloudTrace) spanContext() trace.SpanContext {
	var flags trace.TraceFlags
	if c.sampled {
		flags = trace.FlagsSampled
	}
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    c.traceID,
		SpanID:     c.spanID,
		TraceFlags: flags,
		Remote:     true,
	})
}

func parseCloudTrace(header string) (cloudTrace, bool) {
	traceHex, rest, found := strings.Cut(strings.TrimSpace(header), "/")
	if !found || len(traceHex) != 32 {
		return cloudTrace{}, false
	}
	traceID, err := trace.TraceIDFromHex(traceHex)
	if err != nil {
		return cloudTrace{}, false
	}

	spanPart, options, _ := strings.Cut(rest, ";")
	spanID, ok := parseCloudSpanID(strings.TrimSpace(spanPart))
	if !ok {
		return cloudTrace{}, false
	}

	var sampled bool
	for _, option := range strings.Split(options, ";") {
		if value, ok := strings.CutPrefix(strings.TrimSpace(option), "o="); ok {
			sampled = value == "1"
			break
		}
	}
	return cloudTrace{traceID: traceID, spanID: spanID, sampled: sampled}, true
}

// parseCloudSpanID accepts the documented decimal form and the 16 digit hex form some proxies send.
func parseCloudSpanID(value string) (trace.SpanID, bool) {
	if len(value) == 16 {
		if id, err := trace.SpanIDFromHex(value); err == nil {
			return id, true
		}
	}
	num, err := strconv.ParseUint(value, 10, 64)
	if err != nil || num == 0 {
		return trace.SpanID{}, false
	}
	var id trace.SpanID
	binary.BigEndian.PutUint64(id[:], num)
	return id, true
}

// cloudTraceValue renders the span id in decimal, the form Cloud Trace documents.
func cloudTraceValue(info requestctx.TraceInfo) string {
	if info.TraceID == "" || info.SpanID == "" {
		return ""
	}
	spanID, err := strconv.ParseUint(info.SpanID, 16, 64)
	if err != nil {
		return ""
	}
	sampled := 0
	if info.Sampled {
		sampled = 1
	}
	return fmt.Sprintf("%s/%d;o=%d", info.TraceID, spanID, sampled)
}

// requestAttributes leaves the query string out; it can carry customer ids.
func requestAttributes(r *http.Request) []attribute.KeyValue {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	attrs := []attribute.KeyValue{
		semconv.HTTPRequestMethodKey.String(SanitizeMethod(r.Method)),
		semconv.URLScheme(scheme),
		semconv.URLPath(SanitizeRoute(r.URL.Path)),
	}
	if r.Host != "" {
		attrs = append(attrs, semconv.ServerAddress(r.Host))
	}
	if ua := r.UserAgent(); ua != "" {
		attrs = append(attrs, semconv.UserAgentOriginal(sanitizeString(ua, 0)))
	}
	return attrs
}
