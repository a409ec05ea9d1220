package httpmw

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/cwrk-planet/board-service/internal/logger"
)

type ctxKey string

const (
	HeaderRequestID        = "X-Request-ID"
	ctxKeyReqID     ctxKey = "req_id"
)

// RequestID — пробрасывает/генерирует X-Request-ID и кладёт в контекст
// логгер с этим id.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(HeaderRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, reqID)

		ctx := context.WithValue(r.Context(), ctxKeyReqID, reqID)
		ctx = logger.WithContext(ctx, logger.FromContext(ctx).With("req_id", reqID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFromCtx — достать request id из контекста.
func RequestIDFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyReqID).(string)
	return v
}
