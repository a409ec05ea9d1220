package logger

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// InitTracer ставит глобальный TracerProvider и W3C traceparent-пропагатор.
// Экспортёра нет: спаны дают trace_id/span_id в логах и сквозной id из
// входящего traceparent.
func InitTracer() (shutdown func(context.Context) error) {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return tp.Shutdown
}
