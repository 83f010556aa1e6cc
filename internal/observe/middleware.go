package observe

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// metricsPath is where the ops server exposes Prometheus metrics.
const metricsPath = "/metrics"

// opsRoutes are the paths the ops server answers. Every other path is
// labelled "other" so stray requests cannot grow the metric label set.
var opsRoutes = map[string]bool{
	"/healthz":  true,
	"/readyz":   true,
	metricsPath: true,
}

// routeLabel maps a request path to the bounded value used in span names and
// the path metric label.
func routeLabel(path string) string {
	if opsRoutes[path] {
		return path
	}
	return "other"
}

// statusRecorder captures the status code written by the downstream handler.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware wraps the ops HTTP endpoints. Health probes get a server span
// continued from any W3C trace context in the headers, an X-Correlation-ID
// response header and a debug log line. Metrics scrapes arrive every few
// seconds and are only timed. Every request lands in
// [Metrics.HTTPRequestDuration].
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	prop := propagation.TraceContext{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			route := routeLabel(r.URL.Path)
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			if route == metricsPath {
				next.ServeHTTP(rec, r)
				m.recordHTTP(r.Context(), r.Method, route, rec.statusCode, time.Since(start))
				return
			}

			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := StartSpan(ctx, "HTTP "+r.Method+" "+route,
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
			prop.Inject(ctx, propagation.HeaderCarrier(w.Header()))

			next.ServeHTTP(rec, r.WithContext(ctx))

			duration := time.Since(start)
			m.recordHTTP(ctx, r.Method, route, rec.statusCode, duration)
			span.SetAttributes(semconv.HTTPResponseStatusCode(rec.statusCode))

			slog.LogAttrs(ctx, slog.LevelDebug, "http: request completed",
				slog.String("trace_id", cid),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Duration("duration", duration),
			)
		})
	}
}

func (m *Metrics) recordHTTP(ctx context.Context, method, route string, status int, d time.Duration) {
	m.HTTPRequestDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("path", route),
			attribute.String("status", strconv.Itoa(status)),
		),
	)
}
