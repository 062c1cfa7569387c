// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package logging

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// RequestIDKey is the gin context key holding the short request id.
const RequestIDKey = "request_id"

// RequestID returns the request id stored on the gin context, if any.
func RequestID(c *gin.Context) string {
	if v, ok := c.Get(RequestIDKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GinLogrusLogger assigns every request a short id, exposes it in the
// X-Request-ID header and writes one access log line through logrus.
func GinLogrusLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.New().String()[:8]
		}
		c.Set(RequestIDKey, reqID)
		c.Header("X-Request-ID", reqID)

		start := time.Now()
		c.Next()

		entry := log.WithFields(log.Fields{
			"request_id": reqID,
			"status":     c.Writer.Status(),
			"latency":    time.Since(start).Round(time.Millisecond),
		})
		msg := fmt.Sprintf("%s %s", c.Request.Method, c.Request.URL.Path)
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			entry.Error(msg)
		case c.Writer.Status() >= http.StatusBadRequest:
			entry.Warn(msg)
		default:
			entry.Info(msg)
		}
	}
}

// GinLogrusRecovery converts panics into 500 responses and logs the stack.
func GinLogrusRecovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				log.WithField("request_id", RequestID(c)).Errorf("panic recovered: %v\n%s", rec, debug.Stack())
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			}
		}()
		c.Next()
	}
}
