package observe

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// responseWriter wraps [http.ResponseWriter] to capture the status code.
// The streaming endpoint upgrades to WebSocket through the middleware, so
// the wrapper must keep the underlying connection hijackable.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the wrapped writer to [http.ResponseController], which the
// WebSocket library uses to hijack the connection during the upgrade.
func (w *responseWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Middleware instruments the whole HTTP surface: it extracts W3C trace
// context, opens a server span, stamps X-Correlation-ID so stream clients
// can tie their events to server traces, records request duration, and logs
// completion.
//
// Most of this surface is probe and scrape traffic (/healthz, /readyz,
// /metrics), so completions log at debug; a finished stream (the request
// that upgraded) and anything that failed log at info.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	prop := propagation.TraceContext{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := StartSpan(ctx, "HTTP "+r.Method+" "+r.URL.Path,
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

			rec := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctx))

			// For an upgraded stream this duration is the stream lifetime,
			// not a request-response latency; the status attribute (101)
			// keeps the two populations separable in the histogram.
			duration := time.Since(start)
			m.HTTPRequestDuration.Record(ctx, duration.Seconds(),
				metric.WithAttributes(
					attribute.String("method", r.Method),
					attribute.String("path", r.URL.Path),
					attribute.Int("status", rec.status),
				),
			)
			span.SetAttributes(semconv.HTTPResponseStatusCode(rec.status))

			level := slog.LevelDebug
			if rec.status == http.StatusSwitchingProtocols || rec.status >= 400 {
				level = slog.LevelInfo
			}
			slog.LogAttrs(ctx, level, "request completed",
				slog.String("trace_id", cid),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", duration),
			)
		})
	}
}
