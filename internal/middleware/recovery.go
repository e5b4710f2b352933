package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// PanicHandler writes the response for a request whose handler panicked
type PanicHandler func(w http.ResponseWriter, r *http.Request, err any)

// Recovery creates panic recovery middleware with a custom panic handler.
// Streaming handlers that have already hijacked the connection only get
// the log line.
func Recovery(logger *slog.Logger, handler PanicHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				err := recover()
				if err == nil {
					return
				}
				if err == http.ErrAbortHandler {
					panic(err)
				}

				logger.Error("panic recovered",
					slog.Any("error", err),
					slog.String("stack", string(debug.Stack())),
					slog.String("request_id", w.Header().Get(RequestIDHeader)),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)

				if r.Header.Get("Upgrade") != "" {
					return
				}
				handler(w, r, err)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
