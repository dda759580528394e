package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"SocialMeshPlatform/pkg/logger"
)

// TraceHeader заголовок, в котором trace_id передается между сервисами
const TraceHeader = "X-Trace-Id"

// LoggingMiddleware логирует все HTTP запросы.
// trace_id берется из входящего X-Trace-Id, если шлюз его уже выставил, иначе генерируется.
func LoggingMiddleware(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := r.Header.Get(TraceHeader)
			if traceID == "" {
				traceID = uuid.NewString()
				r.Header.Set(TraceHeader, traceID)
			}
			w.Header().Set(TraceHeader, traceID)

			r = r.WithContext(logger.WithTraceID(r.Context(), traceID))

			logFields := []logger.Field{
				logger.String("method", r.Method),
				logger.String("url", r.URL.String()),
				logger.String("remote_addr", r.RemoteAddr),
				logger.String("user_agent", r.UserAgent()),
				logger.String("trace_id", traceID),
			}

			log.Debug("Started request", logFields...)

			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			logFields = append(logFields,
				logger.Int("status_code", wrapped.statusCode),
				logger.Duration("duration", time.Since(start)))

			switch {
			case wrapped.statusCode >= http.StatusInternalServerError:
				log.Error("Completed request", logFields...)
			case wrapped.statusCode >= http.StatusBadRequest:
				log.Warn("Completed request", logFields...)
			default:
				log.Info("Completed request", logFields...)
			}
		})
	}
}

// responseWriter обертка для перехвата статуса ответа
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

// WriteHeader перехватывает установку статуса
func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap нужен http.ResponseController (Flush для проксируемых ответов)
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Chain оборачивает обработчик в middleware; первый в списке выполняется первым
func Chain(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
