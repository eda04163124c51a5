package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// loggingMiddleware shims in a handler middleware that logs requests.
func loggingMiddleware(log *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Debug("request", zap.String("method", r.Method), zap.String("uri", r.RequestURI), zap.Int64("length", r.ContentLength))
			next.ServeHTTP(w, r)
		})
	}
}
