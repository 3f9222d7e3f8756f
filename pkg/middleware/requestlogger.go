package middleware

import (
	"log/slog"
	"net/http"

	"github.com/itsobito471-bot/thebottlestories/pkg/logger"
)

// RequestLogger stores a request-scoped logger in context (see
// logger.FromContext). It carries correlation_id, device_id, trace_id and
// span_id from context plus the request method and path, so handler logs
// can be joined with the access log.
//
// Mount it after RequestLogging, Tracing and DeviceID.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			l := logger.WithContext(ctx, base).With(
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			next.ServeHTTP(w, r.WithContext(logger.NewContext(ctx, l)))
		})
	}
}
