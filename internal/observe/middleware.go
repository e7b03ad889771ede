package observe

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

// opsRoutes are the paths served by the ops server. Any other path is
// reported as routeOther so that scanners cannot blow up label cardinality.
var opsRoutes = map[string]bool{
	"/metrics": true,
	"/healthz": true,
	"/readyz":  true,
}

const routeOther = "other"

func route(path string) string {
	if opsRoutes[path] {
		return path
	}
	return routeOther
}

// responseStatus remembers the status code the wrapped handler wrote.
type responseStatus struct {
	http.ResponseWriter
	code int
}

func (w *responseStatus) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Middleware instruments the ops server. Every request runs in a server span
// that continues an incoming W3C traceparent, gets its trace id echoed in the
// X-Correlation-ID response header, and is recorded in
// [Metrics.HTTPRequestDuration] labelled by method, route and status.
//
// Scrapes and probes are logged at debug level, everything else at info.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	prop := propagation.TraceContext{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rt := route(r.URL.Path)

			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := StartSpan(ctx, r.Method+" "+rt,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			cid := CorrelationID(ctx)
			if cid != "" {
				w.Header().Set("X-Correlation-ID", cid)
			}

			rw := &responseStatus{ResponseWriter: w, code: http.StatusOK}
			next.ServeHTTP(rw, r.WithContext(ctx))
			elapsed := time.Since(start)

			span.SetAttributes(semconv.HTTPResponseStatusCode(rw.code))
			m.HTTPRequestDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
				attribute.String("method", r.Method),
				attribute.String("route", rt),
				attribute.String("status", strconv.Itoa(rw.code)),
			))

			level := slog.LevelInfo
			if rt != routeOther {
				level = slog.LevelDebug
			}
			slog.LogAttrs(ctx, level, "observe: ops request",
				slog.String("trace_id", cid),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rw.code),
				slog.Duration("elapsed", elapsed),
			)
		})
	}
}
