// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/localassist/internal/config"
	"github.com/traylinx/localassist/internal/logging"
	"github.com/traylinx/localassist/internal/util"
)

// AuthMiddleware checks the API key when cfg.AuthRequired is set. The key
// is read from "Authorization: Bearer <key>" or the X-API-Key header and
// compared against the configured bcrypt hash.
func AuthMiddleware(cfg config.APIConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.AuthRequired {
			c.Next()
			return
		}
		key := extractAPIKey(c)
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
			return
		}
		if cfg.APIKey == "" || !config.VerifyAPIKey(cfg.APIKey, key) {
			entry := log.WithField("request_id", logging.RequestID(c))
			if h := c.GetHeader("Authorization"); h != "" {
				entry = entry.WithField("authorization", util.MaskAuthorizationHeader(h))
			} else {
				entry = entry.WithField("api_key", util.HideAPIKey(key))
			}
			entry.Warn("rejected request with invalid API key")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			return
		}
		c.Next()
	}
}

func extractAPIKey(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(c.GetHeader("X-API-Key"))
}
