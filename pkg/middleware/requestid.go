package middleware

import (
	"context"

	"quacker/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

type contextKey string

const (
	// RequestIDKey holds the request ID in a context.Context
	RequestIDKey contextKey = "requestID"
	// NicknameKey holds the session nickname in a context.Context
	NicknameKey contextKey = "nickname"
)

// RequestContext copies the request ID chosen by the logger middleware into
// the request's context.Context so services below the handlers can see it.
func RequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := c.Writer.Header().Get(logger.RequestIDHeader); id != "" {
			c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), RequestIDKey, id))
		}
		c.Next()
	}
}

// WithNickname returns a copy of ctx carrying nickname
func WithNickname(ctx context.Context, nickname string) context.Context {
	return context.WithValue(ctx, NicknameKey, nickname)
}

// GetRequestID extracts the request ID from a context
func GetRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// GetNickname extracts the nickname from a context
func GetNickname(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	nick, _ := ctx.Value(NicknameKey).(string)
	return nick
}
