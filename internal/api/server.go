// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package api exposes the assistant and its feedback loop over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/localassist/internal/assistant"
	"github.com/traylinx/localassist/internal/config"
	"github.com/traylinx/localassist/internal/intelligence"
	"github.com/traylinx/localassist/internal/logging"
	"github.com/traylinx/localassist/internal/store"
	"github.com/traylinx/localassist/internal/util"
)

// Dependencies are the components served by the API.
type Dependencies struct {
	Manager *intelligence.Manager
	Session *assistant.Session
	// Archiver is optional; without it POST /v1/backup?archive=true fails.
	Archiver store.Archiver
	StateBox *util.StateBox
}

// Server is the HTTP front end of the assistant.
type Server struct {
	cfg      config.APIConfig
	engine   *gin.Engine
	manager  *intelligence.Manager
	session  *assistant.Session
	archiver store.Archiver
	sb       *util.StateBox
	server   *http.Server
}

// NewServer builds the gin engine and registers every route.
//
// Parameters:
//   - cfg: The application configuration
//   - deps: The served components
//
// Returns:
//   - *Server: The server, not yet listening
func NewServer(cfg *config.Config, deps Dependencies) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	engine := gin.New()
	engine.Use(logging.GinLogrusLogger(), logging.GinLogrusRecovery())

	s := &Server{
		cfg:      cfg.API,
		engine:   engine,
		manager:  deps.Manager,
		session:  deps.Session,
		archiver: deps.Archiver,
		sb:       deps.StateBox,
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:              cfg.API.Addr(),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", s.health)

	v1 := s.engine.Group("/v1")
	v1.Use(AuthMiddleware(s.cfg))
	{
		v1.GET("/state", StateStatusHandler(s.sb, s.statePaths))

		v1.POST("/optimize", s.optimize)
		v1.POST("/select-model", s.selectModel)
		v1.POST("/ask", s.ask)

		v1.POST("/feedback", s.submitFeedback)
		v1.GET("/feedback/should-request/:conversation_id", s.shouldRequestFeedback)
		v1.GET("/feedback/stats", s.feedbackStats)
		v1.GET("/stats", s.stats)

		v1.POST("/export", s.export)
		v1.POST("/backup", s.backup)
		v1.POST("/weights/reset", s.resetWeights)
	}
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens on the configured address and blocks until Shutdown.
func (s *Server) Start() error {
	log.Infof("API server listening on %s", s.cfg.Addr())
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("API server failed: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) statePaths() map[string]string {
	if s.manager == nil {
		return nil
	}
	return map[string]string{
		"feedback_database": s.manager.Store().Path(),
		"learner_state":     s.manager.StatePath(),
	}
}
