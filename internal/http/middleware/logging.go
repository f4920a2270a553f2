// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides the correlation-id injector, the plain access logger,
// and the panic recovery handler:
//
//   - RequestID() gives every request a stable correlation id, propagated
//     through the X-Request-ID header and the Gin context. The id is what
//     ties a gateway retry of POST /api/v1/webhook/messages to the server
//     logs of the attempt that failed.
//   - Logger() emits one structured access line per request with latency,
//     status and sizes, and attaches a request-scoped zerolog.Logger so
//     services can log with the request context
//     (e.g., lg.Info().Str("operation_id", op).Msg("sale validated")).
//   - Recovery() turns panics into JSON 500 responses that still carry the
//     correlation id, and logs the stack.
//
// Install RequestID first, then a logger, then Recovery, so panics and
// errors land in the logs with the correlation id attached. The router
// uses RedactingLogger (redact_logger.go) instead of Logger because
// webhook traffic carries submitter phone numbers; Logger stays for
// surfaces that never see them.
//
// Query strings are capped at maxQueryLogLength bytes in the log line.
package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// requestIDKey is the Gin context key holding the correlation id.
	requestIDKey = "requestID"
	// requestIDHeader propagates the correlation id to and from clients.
	requestIDHeader = "X-Request-ID"
	// maxQueryLogLength caps how much of a raw query string is logged.
	maxQueryLogLength = 2048
)

// RequestID reuses the caller's X-Request-ID when present (header lookup is
// case-insensitive) and generates a UUIDv4 otherwise. The id is echoed on
// the response and stored in the Gin context for the rest of the chain.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// Logger writes one structured access log line per request and attaches a
// request-scoped zerolog.Logger under the "logger" context key.
//
// The log level follows the outcome: error for 5xx or when the Gin context
// collected errors, warn for 4xx, info otherwise. The path field is the
// registered route (e.g. /api/v1/sales/:id); when no route matched it
// falls back to the raw URL path.
//
// Place after RequestID() so the line carries the correlation id.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		rid, _ := c.Get(requestIDKey)
		uid, _ := c.Get("userID")
		path := c.FullPath()
		if path == "" {
			// No route matched (404 and friends).
			path = c.Request.URL.Path
		}

		l := log.With().
			Str("request_id", asString(rid)).
			Str("user_id", asString(uid)).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("remote_ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Str("referer", c.Request.Referer()).
			Str("query", truncate(c.Request.URL.RawQuery, maxQueryLogLength)).
			// ContentLength is -1 when the client did not declare it.
			Int64("bytes_in", c.Request.ContentLength).
			Logger()

		c.Set("logger", &l)

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		bytesOut := c.Writer.Size()

		ev := l.With().
			Int("status", status).
			Dur("latency", latency).
			Int("bytes_out", bytesOut).
			Logger()

		switch {
		case len(c.Errors) > 0:
			ev.Error().Str("errors", c.Errors.String()).Msg("request")
		case status >= 500:
			ev.Error().Msg("request")
		case status >= 400:
			ev.Warn().Msg("request")
		default:
			ev.Info().Msg("request")
		}
	}
}

// Recovery logs the panic value and stack with the correlation id and, when
// nothing has been written yet, answers with the standard JSON error
// envelope:
//
//	{ "request_id": "...", "code": "internal_error", "message": "internal server error" }
//
// A panic after the response started only aborts with status 500.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				rid, _ := c.Get(requestIDKey)
				log.Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Str("request_id", asString(rid)).
					Msg("panic recovered")

				if !c.Writer.Written() {
					c.Header("Content-Type", "application/json")
					c.Header(requestIDHeader, asString(rid))
					c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
						"request_id": asString(rid),
						"code":       "internal_error",
						"message":    "internal server error",
					})
					return
				}
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger attached by Logger or
// RedactingLogger. Without one it returns the global logger, so callers
// never need a nil check.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get("logger"); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

// asString unwraps a context value that should be a string; anything else
// becomes "".
func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// truncate caps s at max bytes and appends an ellipsis. max <= 0 disables
// the cap. Byte truncation can split a rune, which is fine for log lines.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
