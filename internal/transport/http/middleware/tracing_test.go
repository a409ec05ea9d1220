package httpmw

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cwrk-planet/board-service/internal/logger"
)

func TestTracingPutsSpanIntoLoggerContext(t *testing.T) {
	shutdown := logger.InitTracer()
	defer func() { _ = shutdown(context.Background()) }()

	var attrs int
	var traceID string
	h := RequestID(Tracing(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := logger.AttrsFromCtx(r.Context())
		attrs = len(got)
		for _, a := range got {
			if a.Key == "trace_id" {
				traceID = a.Value.String()
			}
		}
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/rooms/public", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if attrs != 2 {
		t.Fatalf("expected trace_id and span_id, got %d attrs", attrs)
	}
	if traceID != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Fatalf("incoming traceparent not continued, trace_id=%q", traceID)
	}
}
