// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/localassist/internal/assistant"
	"github.com/traylinx/localassist/internal/intelligence/feedback"
	"github.com/traylinx/localassist/internal/intelligence/query"
	"github.com/traylinx/localassist/internal/logging"
	"github.com/traylinx/localassist/internal/util"
)

// QueryRequest is the body of /v1/optimize and /v1/select-model.
type QueryRequest struct {
	Query string `json:"query" binding:"required"`
	// Candidates restricts model selection; empty means the whole catalog.
	Candidates []string `json:"candidates,omitempty"`
}

// SelectModelResponse is returned by /v1/select-model.
type SelectModelResponse struct {
	Model    string         `json:"model"`
	Analysis query.Analysis `json:"query_analysis"`
}

// AskRequest is the body of /v1/ask.
type AskRequest struct {
	Query              string  `json:"query" binding:"required"`
	ConversationID     string  `json:"conversation_id,omitempty"`
	Model              string  `json:"model,omitempty"`
	UseGroupDiscussion *bool   `json:"use_group_discussion,omitempty"`
	SystemPrompt       string  `json:"system_prompt,omitempty"`
	Temperature        float64 `json:"temperature,omitempty"`
	MaxTokens          int     `json:"max_tokens,omitempty"`
}

// FeedbackRequest is the body of /v1/feedback. When Responses is empty the
// answers cached by the session for Query are used.
type FeedbackRequest struct {
	ConversationID   string            `json:"conversation_id,omitempty"`
	Query            string            `json:"query" binding:"required"`
	Responses        map[string]string `json:"responses,omitempty"`
	SelectedResponse string            `json:"selected_response" binding:"required"`
	Score            *float64          `json:"score,omitempty"`
	FeedbackText     *string           `json:"feedback_text,omitempty"`
}

// ExportRequest is the body of /v1/export.
type ExportRequest struct {
	Format   string   `json:"format,omitempty"`
	MinScore *float64 `json:"min_score,omitempty"`
	MaxCount int      `json:"max_count,omitempty"`
}

func (s *Server) health(c *gin.Context) {
	resp := gin.H{"status": "ok"}
	if s.manager != nil {
		resp["optimization_enabled"] = s.manager.Enabled()
		resp["models"] = s.manager.ModelNames()
	}
	c.JSON(http.StatusOK, resp)
}

// optimize handles POST /v1/optimize.
//
// Request Body:
//   - QueryRequest
//
// Response:
//   - 200: intelligence.OptimizationResult
//   - 400: Invalid request body
func (s *Server) optimize(c *gin.Context) {
	var req QueryRequest
	if !bindJSON(c, &req) {
		return
	}
	c.JSON(http.StatusOK, s.manager.OptimizeQuery(req.Query))
}

// selectModel handles POST /v1/select-model.
//
// Response:
//   - 200: SelectModelResponse, model is "" when optimization is disabled
//   - 400: Invalid request body
func (s *Server) selectModel(c *gin.Context) {
	var req QueryRequest
	if !bindJSON(c, &req) {
		return
	}
	analysis := s.manager.Analyze(req.Query)
	c.JSON(http.StatusOK, SelectModelResponse{
		Model:    s.manager.SelectBestModel(req.Query, &analysis, req.Candidates),
		Analysis: analysis,
	})
}

// ask handles POST /v1/ask.
//
// Response:
//   - 200: assistant.Answer
//   - 400: Invalid request body
//   - 502: The inference server failed
//   - 503: No session or no model configured
func (s *Server) ask(c *gin.Context) {
	if s.session == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "assistant session not available"})
		return
	}
	var req AskRequest
	if !bindJSON(c, &req) {
		return
	}

	ans, err := s.session.Ask(c.Request.Context(), req.Query, assistant.AskOptions{
		ConversationID:     req.ConversationID,
		Model:              req.Model,
		UseGroupDiscussion: req.UseGroupDiscussion,
		SystemPrompt:       req.SystemPrompt,
		Temperature:        req.Temperature,
		MaxTokens:          req.MaxTokens,
	})
	if err != nil {
		log.WithField("request_id", logging.RequestID(c)).Errorf("ask failed: %v", err)
		status := http.StatusBadGateway
		if errors.Is(err, assistant.ErrNoModel) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ans)
}

// submitFeedback handles POST /v1/feedback.
//
// Response:
//   - 201: Feedback recorded
//   - 400: Invalid request body
//   - 422: Nothing was stored (collection disabled, unknown query or store failure)
func (s *Server) submitFeedback(c *gin.Context) {
	var req FeedbackRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Score != nil && (*req.Score < 0 || *req.Score > 1) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "score must be between 0 and 1"})
		return
	}

	var recorded bool
	if len(req.Responses) == 0 && s.session != nil {
		recorded = s.session.Feedback(c.Request.Context(), req.Query, req.SelectedResponse, req.Score, req.FeedbackText)
	} else {
		if _, ok := req.Responses[req.SelectedResponse]; !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "selected_response must be a key of responses"})
			return
		}
		recorded = s.manager.ProcessFeedback(c.Request.Context(), feedback.Event{
			ConversationID:   req.ConversationID,
			Query:            req.Query,
			Responses:        req.Responses,
			SelectedResponse: req.SelectedResponse,
			Score:            req.Score,
			Text:             req.FeedbackText,
		})
	}
	if !recorded {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"recorded": false})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"recorded": true})
}

func (s *Server) shouldRequestFeedback(c *gin.Context) {
	id := strings.TrimSpace(c.Param("conversation_id"))
	c.JSON(http.StatusOK, gin.H{
		"conversation_id":  id,
		"request_feedback": s.manager.ShouldRequestFeedback(id),
	})
}

func (s *Server) stats(c *gin.Context) {
	c.JSON(http.StatusOK, s.manager.Stats(c.Request.Context()))
}

func (s *Server) feedbackStats(c *gin.Context) {
	stats, err := s.manager.Store().GetFeedbackStats(c.Request.Context())
	if err != nil {
		log.WithField("request_id", logging.RequestID(c)).Errorf("failed to read feedback stats: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read feedback stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// export handles POST /v1/export. An empty body exports JSON.
//
// Response:
//   - 200: {"path": ..., "format": ..., "count": ...}
//   - 400: Unknown format
//   - 403: Read-only mode
//   - 500: Export failed
func (s *Server) export(c *gin.Context) {
	var req ExportRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	format := strings.ToLower(strings.TrimSpace(req.Format))
	if format == "" {
		format = feedback.FormatJSON
	}

	switch format {
	case feedback.FormatJSON:
		if s.readOnly() {
			c.JSON(http.StatusForbidden, gin.H{"error": util.ErrReadOnlyMode.Error()})
			return
		}
		path := s.manager.ExportFeedbackData(c.Request.Context(), "")
		if path == "" {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"path": path, "format": format})
	case feedback.FormatJSONL:
		path, n, err := s.manager.ExportJSONL(c.Request.Context(), "", feedback.ExportOptions{
			MinScore: req.MinScore,
			MaxCount: req.MaxCount,
		})
		if err != nil {
			writeStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"path": path, "format": format, "count": n})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be json or jsonl"})
	}
}

// backup handles POST /v1/backup. With ?archive=true the snapshot is also
// uploaded to object storage.
//
// Response:
//   - 200: {"path": ..., "archived": ...}
//   - 400: Archive requested but not configured
//   - 403: Read-only mode
//   - 500: Backup failed
//   - 502: Upload failed, the local snapshot is kept
func (s *Server) backup(c *gin.Context) {
	archive, _ := strconv.ParseBool(c.DefaultQuery("archive", "false"))
	if archive && s.archiver == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "archive is not configured"})
		return
	}

	path, err := s.manager.Store().Backup(c.Request.Context(), "")
	if err != nil {
		writeStoreError(c, err)
		return
	}
	resp := gin.H{"path": path}
	if archive {
		location, err := s.archiver.Archive(c.Request.Context(), path)
		if err != nil {
			log.WithField("request_id", logging.RequestID(c)).Errorf("archive upload failed: %v", err)
			resp["error"] = err.Error()
			c.JSON(http.StatusBadGateway, resp)
			return
		}
		resp["archived"] = location
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) resetWeights(c *gin.Context) {
	s.manager.ResetWeights()
	c.JSON(http.StatusOK, gin.H{
		"status":            "ok",
		"model_preferences": s.manager.Optimizer().Weights(),
	})
}

func (s *Server) readOnly() bool {
	return s.sb != nil && s.sb.IsReadOnly()
}

func bindJSON(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func writeStoreError(c *gin.Context, err error) {
	if errors.Is(err, util.ErrReadOnlyMode) {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}
	log.WithField("request_id", logging.RequestID(c)).Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
