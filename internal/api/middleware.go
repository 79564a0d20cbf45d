package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// Streaming endpoints hold the connection open; logging them at
		// close time with a giant duration is just noise at info level.
		logFn := slog.Info
		if strings.HasPrefix(r.URL.Path, "/api/v1/events") || strings.HasPrefix(r.URL.Path, "/api/v1/popup/socket") {
			logFn = slog.Debug
		}
		logFn("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"remote", r.RemoteAddr,
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
