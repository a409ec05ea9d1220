package httpmw

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Tracing открывает server-span на запрос, продолжая входящий traceparent.
// Ставится после RequestID, чтобы trace-атрибуты не дублировались в логгере.
func Tracing(next http.Handler) http.Handler {
	tracer := otel.Tracer("board-service/http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(ctx, "http "+r.Method,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
				attribute.String("req_id", RequestIDFromCtx(ctx)),
			))
		defer span.End()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
