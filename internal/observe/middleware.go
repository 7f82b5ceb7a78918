package observe

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware instruments the bridge's route table: one server span per
// request, duration keyed on the matched route pattern, and the trace ID
// echoed as X-Correlation-ID so overlay logs can be lined up with ours.
//
// The bridge only ever talks to local overlay clients, none of which carry
// trace context, so no propagation headers are read or written; every request
// roots its own trace. Note that for the websocket route the span covers the
// whole connection, not a single exchange.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ctx, span := StartSpan(r.Context(), r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(semconv.HTTPRequestMethodKey.String(r.Method)),
			)
			defer span.End()

			if cid := CorrelationID(ctx); cid != "" {
				w.Header().Set("X-Correlation-ID", cid)
			}

			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			r = r.WithContext(ctx)
			next.ServeHTTP(rec, r)

			// The mux fills in Pattern while routing. Metrics are keyed on the
			// pattern, not the raw path, so an arbitrary URL cannot mint a new
			// label value.
			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			span.SetName(route)
			span.SetAttributes(
				semconv.HTTPRoute(route),
				semconv.HTTPResponseStatusCode(rec.statusCode),
			)

			dur := time.Since(start)
			m.HTTPRequestDuration.Record(ctx, dur.Seconds(),
				metric.WithAttributes(
					attribute.String("method", r.Method),
					attribute.String("route", route),
					attribute.Int("status", rec.statusCode),
				))

			Logger(ctx).LogAttrs(ctx, slog.LevelDebug, "request served",
				slog.String("route", route),
				slog.Int("status", rec.statusCode),
				slog.Duration("duration", dur),
			)
		})
	}
}
