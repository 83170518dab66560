package middlewares

import (
	"net/http"
	"time"

	"sportlink/sportlink/utils/logging"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// RequestLogger writes one line per request to the request log.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote", r.RemoteAddr),
		}
		if id := middleware.GetReqID(r.Context()); id != "" {
			fields = append(fields, zap.String("request_id", id))
		}
		if actor, ok := ActorFromContext(r.Context()); ok {
			fields = append(fields, zap.String("user_id", actor.ID))
		}
		logging.RequestLogger.Info("request", fields...)
	})
}
