// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package logging

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogFormatter_Format(t *testing.T) {
	entry := &log.Entry{
		Logger:  log.StandardLogger(),
		Time:    time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
		Level:   log.WarnLevel,
		Message: "weight clamped\n",
		Data: log.Fields{
			"request_id": "abcd1234",
			"model":      "qwen2.5-coder:7b",
			"weight":     2.0,
		},
	}

	out, err := (&LogFormatter{}).Format(entry)
	require.NoError(t, err)

	line := string(out)
	assert.Equal(t, "[2026-03-04 05:06:07] [abcd1234] [warn ] weight clamped | model=qwen2.5-coder:7b, weight=2\n", line)
}

func TestLogFormatter_NoRequestID(t *testing.T) {
	entry := &log.Entry{
		Logger:  log.StandardLogger(),
		Time:    time.Now(),
		Level:   log.InfoLevel,
		Message: "ready",
		Data:    log.Fields{},
	}
	out, err := (&LogFormatter{}).Format(entry)
	require.NoError(t, err)
	assert.Contains(t, string(out), "[--------] [info ] ready")
	assert.NotContains(t, string(out), "|")
}

func TestSetLevel(t *testing.T) {
	defer log.SetLevel(log.InfoLevel)

	SetLevel("debug")
	assert.Equal(t, log.DebugLevel, log.GetLevel())

	SetLevel("nonsense")
	assert.Equal(t, log.InfoLevel, log.GetLevel())
}

func TestConfigureLogOutput_File(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, ConfigureLogOutput(true, dir, 1))
	defer func() { _ = ConfigureLogOutput(false, "", 0) }()

	log.Info("written to file")

	data, err := os.ReadFile(filepath.Join(dir, "localassist.log"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "written to file"))
}

func TestGinLogrusLogger_SetsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(GinLogrusLogger())
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, RequestID(c))
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, w.Body.String(), 8)
	assert.Equal(t, w.Body.String(), w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "given-id")
	router.ServeHTTP(w, req)
	assert.Equal(t, "given-id", w.Body.String())
}

func TestGinLogrusRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(GinLogrusLogger(), GinLogrusRecovery())
	router.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/boom", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
