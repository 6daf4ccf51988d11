// Package mw holds the HTTP middleware shared by every gateway route.
package mw

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Recover turns a handler panic into a 500 error envelope. http.ErrAbortHandler
// is re-raised so net/http can drop the connection.
func Recover(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler {
				panic(v)
			}
			if logger != nil {
				id, _ := RequestIDFrom(r.Context())
				logger.Error("handler panic", "panic", v, "request_id", id, "path", r.URL.Path)
			}
			WriteError(w, r, fmt.Errorf("panic: %v", v))
		}()
		next.ServeHTTP(w, r)
	})
}

// AccessLog writes one line per request. Server errors log at warn; health checks
// log at debug.
func AccessLog(logger *slog.Logger, next http.Handler) http.Handler {
	if logger == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := NewStatusWriter(w)
		next.ServeHTTP(sw, r)

		level := slog.LevelInfo
		switch {
		case sw.Status >= 500:
			level = slog.LevelWarn
		case r.URL.Path == "/healthz" || r.URL.Path == "/readyz" || r.URL.Path == "/metrics":
			level = slog.LevelDebug
		}
		id, _ := RequestIDFrom(r.Context())
		logger.Log(context.WithoutCancel(r.Context()), level, "request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.Status,
			"bytes", sw.Bytes,
			"upgraded", sw.Upgraded,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
