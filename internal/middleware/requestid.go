// Package middleware holds the gin middlewares shared by every route.
package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type contextKey string

const (
	// RequestIDKey stores the request ID in both the gin and the request context.
	RequestIDKey contextKey = "request_id"

	HeaderRequestID = "X-Request-ID"
	HeaderActorID   = "X-Actor-ID"
)

// RequestID reuses an incoming X-Request-ID or generates a new one, echoes it
// on the response and makes it available to downstream clients through the
// request context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		c.Set(string(RequestIDKey), requestID)
		c.Request = c.Request.WithContext(WithRequestID(c.Request.Context(), requestID))
		c.Header(HeaderRequestID, requestID)

		c.Next()
	}
}

// WithRequestID attaches a request ID to ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// RequestIDFromContext returns the request ID carried by ctx, if any.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(RequestIDKey).(string); ok {
		return v
	}
	return ""
}
