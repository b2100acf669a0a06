package logger

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// ContextKey is the gin context key holding the request-scoped *Logger
	ContextKey = "logger"
	// RequestIDHeader is echoed back on every response
	RequestIDHeader = "X-Request-ID"
	// NicknameKey is set by the session middleware once the caller is known
	NicknameKey = "nickname"
)

// Middleware returns a gin middleware that attaches a request logger and
// logs each completed request.
func Middleware(base *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(RequestIDHeader, requestID)

		reqLogger := base.WithRequestID(requestID)
		c.Set(ContextKey, reqLogger)

		start := time.Now()
		c.Next()

		done := reqLogger
		if nick := c.GetString(NicknameKey); nick != "" {
			done = done.WithNickname(nick)
		}
		done.LogRequest(c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))

		for _, err := range c.Errors {
			done.LogError(err.Err, "request error",
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"error_type", err.Type,
			)
		}
	}
}

// FromContext returns the request logger stored by Middleware, or the global one.
func FromContext(c *gin.Context) *Logger {
	if v, ok := c.Get(ContextKey); ok {
		if l, ok := v.(*Logger); ok {
			return l
		}
	}
	return GetGlobal()
}
