// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package assistant answers user queries through the optimization manager,
// the inference backend and, for hard questions, a group discussion.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/localassist/internal/config"
	"github.com/traylinx/localassist/internal/intelligence"
	"github.com/traylinx/localassist/internal/intelligence/discussion"
	"github.com/traylinx/localassist/internal/intelligence/feedback"
	"github.com/traylinx/localassist/internal/intelligence/query"
	"github.com/traylinx/localassist/internal/runtime/executor"
)

// ErrNoModel is returned when no model is configured.
var ErrNoModel = errors.New("no model available")

// Roles used in the conversation history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one conversation history entry.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// AskOptions overrides session defaults for a single query.
type AskOptions struct {
	ConversationID string
	// Model skips automatic selection.
	Model string
	// UseGroupDiscussion overrides the configured suitability check.
	UseGroupDiscussion *bool
	SystemPrompt       string
	Temperature        float64
	MaxTokens          int
}

// Answer is the result of Session.Ask.
type Answer struct {
	Response        string          `json:"response"`
	ConversationID  string          `json:"conversation_id"`
	ModelUsed       string          `json:"model_used"`
	AutoSelected    bool            `json:"auto_selected"`
	Optimized       bool            `json:"optimized"`
	TemplateUsed    string          `json:"template_used,omitempty"`
	Analysis        *query.Analysis `json:"query_analysis,omitempty"`
	DiscussionID    string          `json:"discussion_id,omitempty"`
	Tokens          int             `json:"tokens"`
	RequestFeedback bool            `json:"request_feedback"`
	Duration        time.Duration   `json:"completion_time"`
}

// Session keeps one conversation with the assistant.
type Session struct {
	manager     *intelligence.Manager
	gen         executor.Generator
	discussions *discussion.Manager
	settings    config.AssistantConfig

	mu             sync.Mutex
	autoSelect     bool
	useGroup       bool
	conversationID string
	history        []Turn
	// responses caches query -> model -> answer for later feedback.
	responses map[string]map[string]string
}

// NewSession creates a session. discussions may be nil to disable group
// discussions.
func NewSession(cfg *config.Config, manager *intelligence.Manager, gen executor.Generator, discussions *discussion.Manager) *Session {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Session{
		manager:     manager,
		gen:         gen,
		discussions: discussions,
		settings:    cfg.Assistant,
		autoSelect:  cfg.Optimization.AutoSelectModel,
		useGroup:    cfg.Optimization.CheckGroupDiscussionSuitability && discussions != nil,
		responses:   make(map[string]map[string]string),
	}
}

// Ask answers q. The query is optimized, a model is picked unless one is
// given, and a group discussion is run when enabled and the query suits it.
//
// Parameters:
//   - ctx: Context for generation
//   - q: The user query
//   - opts: Per-query overrides
//
// Returns:
//   - *Answer: The answer and how it was produced
//   - error: ErrNoModel or a generation failure
func (s *Session) Ask(ctx context.Context, q string, opts AskOptions) (*Answer, error) {
	start := time.Now()
	convID := s.conversation(opts.ConversationID)

	opt := s.manager.OptimizeQuery(q)
	ans := &Answer{
		ConversationID: convID,
		Optimized:      s.manager.Enabled(),
		TemplateUsed:   opt.TemplateUsed,
	}
	var analysis *query.Analysis
	if ans.Optimized {
		a := opt.Analysis
		analysis = &a
		ans.Analysis = analysis
	}

	s.mu.Lock()
	autoSelect, useGroup := s.autoSelect, s.useGroup
	s.mu.Unlock()

	model := opts.Model
	if model == "" && autoSelect {
		if model = s.manager.SelectBestModel(q, analysis, nil); model != "" {
			ans.AutoSelected = true
			log.Infof("auto-selected model %s", model)
		}
	}

	if opts.UseGroupDiscussion != nil {
		useGroup = *opts.UseGroupDiscussion && s.discussions != nil
	}
	groupName := s.manager.GroupDiscussion().Name
	runGroup := useGroup && discussion.Suitable(q, analysis)
	if model != "" && model == groupName && opts.UseGroupDiscussion == nil {
		runGroup = s.discussions != nil
	}
	if runGroup {
		d, err := s.discussions.Conduct(ctx, opt.OptimizedPrompt, discussion.Options{
			Temperature: opts.Temperature,
			MaxTokens:   opts.MaxTokens,
		})
		if err == nil {
			ans.Response = d.FinalResponse
			ans.ModelUsed = s.discussions.Name()
			ans.DiscussionID = d.ID
		} else {
			log.Errorf("group discussion failed, answering with a single model: %v", err)
		}
	}

	if ans.ModelUsed == "" {
		if model == "" || model == groupName {
			model = s.defaultModel()
		}
		if model == "" {
			return nil, ErrNoModel
		}
		res, err := s.generate(ctx, model, s.promptWithHistory(opt.OptimizedPrompt), opts)
		if err != nil {
			return nil, fmt.Errorf("failed to get answer from %s: %w", model, err)
		}
		ans.Response = res.Response
		ans.ModelUsed = model
		ans.Tokens = res.Tokens
	}

	s.remember(q, ans.ModelUsed, ans.Response)
	s.appendHistory(q, ans.Response)
	ans.RequestFeedback = s.manager.ShouldRequestFeedback(convID)
	ans.Duration = time.Since(start)
	return ans, nil
}

// Compare asks each of models (the whole catalog when empty) the same query
// so that feedback on one answer yields pairwise comparisons. Failing models
// are left out; an error is returned only when none answered.
func (s *Session) Compare(ctx context.Context, q string, models []string) (map[string]string, error) {
	if len(models) == 0 {
		models = s.manager.ModelNames()
	}
	if len(models) == 0 {
		return nil, ErrNoModel
	}
	s.conversation("")
	opt := s.manager.OptimizeQuery(q)

	out := make(map[string]string, len(models))
	var lastErr error
	for _, model := range models {
		res, err := s.generate(ctx, model, opt.OptimizedPrompt, AskOptions{})
		if err != nil {
			log.Warnf("compare: %s failed: %v", model, err)
			lastErr = err
			continue
		}
		out[model] = res.Response
		s.remember(q, model, res.Response)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no model answered: %w", lastErr)
	}
	return out, nil
}

// Feedback forwards the cached answers for q to the optimization manager
// with model as the preferred one. It returns false when nothing is cached
// for q or the manager stored nothing.
func (s *Session) Feedback(ctx context.Context, q, model string, score *float64, text *string) bool {
	s.mu.Lock()
	cached := copyResponses(s.responses[q])
	convID := s.conversationID
	s.mu.Unlock()
	if len(cached) == 0 {
		log.Debugf("no cached answers for feedback on %q", q)
		return false
	}
	return s.manager.ProcessFeedback(ctx, feedback.Event{
		ConversationID:   convID,
		Query:            q,
		Responses:        cached,
		SelectedResponse: model,
		Score:            score,
		Text:             text,
	})
}

// Remember caches an answer produced elsewhere so it can receive feedback.
func (s *Session) Remember(q, model, response string) {
	s.conversation("")
	s.remember(q, model, response)
}

// CachedResponses returns the cached answers for q.
func (s *Session) CachedResponses(q string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyResponses(s.responses[q])
}

// History returns a copy of the conversation history.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.history...)
}

// ConversationID returns the current conversation id, "" before the first query.
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// NewConversation starts a fresh conversation and drops the history and
// answer cache.
func (s *Session) NewConversation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversationID = newConversationID()
	s.history = nil
	s.responses = make(map[string]map[string]string)
	return s.conversationID
}

// ToggleAutoSelect switches automatic model selection.
func (s *Session) ToggleAutoSelect(enabled bool) {
	s.mu.Lock()
	s.autoSelect = enabled
	s.mu.Unlock()
}

// ToggleGroupDiscussion switches group discussions for suitable queries.
func (s *Session) ToggleGroupDiscussion(enabled bool) {
	s.mu.Lock()
	s.useGroup = enabled && s.discussions != nil
	s.mu.Unlock()
}

func (s *Session) conversation(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case id != "":
		s.conversationID = id
	case s.conversationID == "":
		s.conversationID = newConversationID()
	}
	return s.conversationID
}

func (s *Session) generate(ctx context.Context, model, prompt string, opts AskOptions) (executor.GenerateResult, error) {
	system := opts.SystemPrompt
	if system == "" {
		if spec, ok := s.manager.Model(model); ok {
			system = spec.SystemPrompt
		}
	}
	temperature := opts.Temperature
	if temperature <= 0 {
		temperature = s.settings.DefaultTemperature
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = s.settings.DefaultMaxTokens
	}
	return s.gen.Generate(ctx, executor.GenerateRequest{
		Model:       model,
		Prompt:      prompt,
		System:      system,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
}

func (s *Session) defaultModel() string {
	names := s.manager.ModelNames()
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

// promptWithHistory prefixes the prompt with the bounded history.
func (s *Session) promptWithHistory(prompt string) string {
	s.mu.Lock()
	history := append([]Turn(nil), s.history...)
	s.mu.Unlock()
	if len(history) == 0 {
		return prompt
	}

	parts := make([]string, 0, len(history)+2)
	for _, turn := range history {
		if turn.Role == RoleUser {
			parts = append(parts, "Người dùng: "+turn.Content)
		} else {
			parts = append(parts, "Trợ lý: "+turn.Content)
		}
	}
	parts = append(parts, "Người dùng: "+prompt, "Trợ lý:")
	return strings.Join(parts, "\n\n")
}

func (s *Session) appendHistory(q, response string) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history,
		Turn{Role: RoleUser, Content: q, Timestamp: now},
		Turn{Role: RoleAssistant, Content: response, Timestamp: now},
	)
	if limit := s.settings.ConversationHistoryLimit; limit > 0 && len(s.history) > limit {
		s.history = append([]Turn(nil), s.history[len(s.history)-limit:]...)
	}
}

func (s *Session) remember(q, model, response string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.responses[q] == nil {
		s.responses[q] = make(map[string]string)
	}
	s.responses[q][model] = response
}

func copyResponses(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func newConversationID() string {
	return "conv_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
