// logging.go — журнал входящих HTTP-запросов через slog.
// Кроме статуса и длительности в запись попадают нормализованный путь
// и субъект запроса, установленный JWT middleware.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/bigkaa/servicedesk/internal/domain/model"
)

// responseWriter — обёртка для перехвата статус-кода и размера ответа.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// requestTrace — сведения о запросе, которые middleware ниже по цепочке
// сообщают журналу. RequestLogger работает до аутентификации и не видит
// контекст, созданный после него, поэтому получает указатель.
type requestTrace struct {
	actor *model.Actor
}

type requestTraceKey struct{}

// traceActor отмечает субъекта в записи журнала текущего запроса.
func traceActor(ctx context.Context, actor *model.Actor) {
	if tr, ok := ctx.Value(requestTraceKey{}).(*requestTrace); ok {
		tr.actor = actor
	}
}

// statusLevel: INFO (1xx-3xx), WARN (4xx), ERROR (5xx).
func statusLevel(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// RequestLogger возвращает middleware, логирующий каждый HTTP-запрос.
// Идентификаторы в пути заменяются на {id}, сам путь пишется в поле route.
// Для аутентифицированных запросов добавляются actor_id и service_account.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With(slog.String("component", "http"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newResponseWriter(w)
			trace := &requestTrace{}

			next.ServeHTTP(wrapped, r.WithContext(context.WithValue(r.Context(), requestTraceKey{}, trace)))

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("route", normalizePath(r.URL.Path)),
				slog.String("path", r.URL.Path),
				slog.Int("status", wrapped.statusCode),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", wrapped.written),
				slog.String("remote_addr", r.RemoteAddr),
			}
			if r.URL.RawQuery != "" {
				attrs = append(attrs, slog.String("query", r.URL.RawQuery))
			}
			if trace.actor != nil {
				attrs = append(attrs,
					slog.String("actor_id", trace.actor.ID),
					slog.Bool("service_account", trace.actor.ServiceAccount),
				)
			}
			logger.LogAttrs(r.Context(), statusLevel(wrapped.statusCode), "HTTP запрос", attrs...)
		})
	}
}
