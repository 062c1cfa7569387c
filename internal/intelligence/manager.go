// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package intelligence coordinates the feedback optimization loop: query
// analysis, model and template selection, feedback collection and the
// weight updates that feedback drives.
package intelligence

import (
	"context"
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/traylinx/localassist/internal/config"
	"github.com/traylinx/localassist/internal/intelligence/feedback"
	"github.com/traylinx/localassist/internal/intelligence/prompt"
	"github.com/traylinx/localassist/internal/intelligence/query"
	"github.com/traylinx/localassist/internal/learning"
	"github.com/traylinx/localassist/internal/util"
)

// StatFeedbackScore is the stats row type appended for every scored feedback.
const StatFeedbackScore = "feedback_score"

// OptimizationResult is the outcome of OptimizeQuery.
type OptimizationResult struct {
	Analysis        query.Analysis `json:"analysis"`
	TemplateUsed    string         `json:"template_used"`
	OptimizedPrompt string         `json:"optimized_prompt"`
	TokenCount      int            `json:"token_count"`
}

// FeedbackTotals buckets stored feedback by score: positive >= 0.7,
// negative <= 0.3, neutral in [0.3, 0.7]. Total includes comparisons.
type FeedbackTotals struct {
	TotalSamples    int `json:"total_samples"`
	PositiveSamples int `json:"positive_samples"`
	NegativeSamples int `json:"negative_samples"`
	NeutralSamples  int `json:"neutral_samples"`
}

// Stats is the summary returned by Manager.Stats.
type Stats struct {
	Enabled             bool                           `json:"enabled"`
	FeedbackCollection  FeedbackTotals                 `json:"feedback_collection"`
	ModelPreferences    map[string]float64             `json:"model_preferences"`
	ModelStats          map[string]learning.ModelStats `json:"model_stats"`
	TemplatePerformance map[string]prompt.Performance  `json:"template_performance"`
}

// Manager owns the optimization components and the learner state file.
type Manager struct {
	mu      sync.RWMutex
	enabled bool

	sb        *util.StateBox
	statePath string
	exportDir string
	group     config.GroupDiscussionConfig
	models    []config.ModelSpec

	analyzer  *query.Analyzer
	optimizer *learning.Optimizer
	selector  *prompt.Selector
	store     *feedback.Store
	collector *feedback.Collector

	// templateUsed remembers which template rendered each query so feedback
	// can credit it.
	templateUsed map[string]string
}

// NewManager builds a manager from cfg and the loaded catalogs. Paths in
// cfg.System are resolved through sb when it is non-nil. No file is touched
// until Initialize.
//
// Parameters:
//   - cfg: The application configuration
//   - models: The model catalog
//   - templates: The prompt template catalog
//   - sb: Optional state box for path resolution and read-only mode
//
// Returns:
//   - *Manager: A manager ready for Initialize
func NewManager(cfg *config.Config, models []config.ModelSpec, templates []config.PromptTemplate, sb *util.StateBox) *Manager {
	if cfg == nil {
		cfg = config.Default()
	}
	resolve := func(p string) string {
		if sb == nil || p == "" {
			return p
		}
		return sb.ResolvePath(p)
	}

	store := feedback.NewStore(cfg.System.FeedbackDB, sb)
	opt := cfg.Optimization
	return &Manager{
		enabled:      opt.Enabled,
		sb:           sb,
		statePath:    resolve(cfg.System.StateFile),
		exportDir:    resolve(cfg.System.RLHFExportDir),
		group:        cfg.GroupDiscussion,
		models:       append([]config.ModelSpec(nil), models...),
		analyzer:     query.NewAnalyzer(),
		optimizer:    learning.NewOptimizer(opt.Preference, models, cfg.GroupDiscussion),
		selector:     prompt.NewSelector(templates, opt.PromptOptimization),
		store:        store,
		collector:    feedback.NewCollector(opt.Feedback, store),
		templateUsed: make(map[string]string),
	}
}

// Initialize prepares the feedback store and restores the learner state.
//
// Parameters:
//   - ctx: Context for store operations
//
// Returns:
//   - error: A store initialization failure; a bad state file is only logged
func (m *Manager) Initialize(ctx context.Context) error {
	if err := m.store.Initialize(ctx); err != nil {
		return err
	}
	m.loadState()
	log.Infof("optimization manager ready (enabled=%v, %d models, %d templates)",
		m.Enabled(), len(m.models), len(m.selector.Templates()))
	return nil
}

func (m *Manager) loadState() {
	if m.statePath == "" {
		return
	}
	st, err := learning.LoadState(m.sb, m.statePath)
	if err != nil {
		log.Warnf("ignoring learner state: %v", err)
		return
	}
	m.optimizer.Restore(st)
	if len(st.Templates) > 0 {
		perf := make(map[string]prompt.Performance, len(st.Templates))
		for name, e := range st.Templates {
			perf[name] = prompt.Performance{Score: e.Score, Count: e.Count}
		}
		m.selector.RestorePerformance(perf)
	}
}

// SaveState persists optimizer and template state. Read-only state boxes
// and an empty state path are silently skipped.
func (m *Manager) SaveState() error {
	if m.statePath == "" {
		return nil
	}
	st := m.optimizer.Snapshot()
	perf := m.selector.Performance()
	st.Templates = make(map[string]learning.PerformanceEntry, len(perf))
	for name, p := range perf {
		st.Templates[name] = learning.PerformanceEntry{Score: p.Score, Count: p.Count}
	}
	err := learning.SaveState(m.sb, m.statePath, st)
	if errors.Is(err, util.ErrReadOnlyMode) {
		log.Debug("read-only mode, learner state not saved")
		return nil
	}
	return err
}

// Enabled reports whether optimization is on.
func (m *Manager) Enabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// ToggleOptimization switches optimization on or off.
func (m *Manager) ToggleOptimization(enabled bool) {
	m.mu.Lock()
	m.enabled = enabled
	m.mu.Unlock()
	log.Infof("optimization enabled=%v", enabled)
}

// ToggleFeedbackCollection switches feedback collection on or off.
func (m *Manager) ToggleFeedbackCollection(enabled bool) {
	m.collector.ToggleCollection(enabled)
}

// OptimizeQuery analyses q, picks a template and renders the prompt. With
// optimization off the query is passed through under the default template.
func (m *Manager) OptimizeQuery(q string) OptimizationResult {
	if !m.Enabled() {
		return OptimizationResult{
			TemplateUsed:    prompt.DefaultTemplateName,
			OptimizedPrompt: q,
			TokenCount:      m.selector.CountTokens(q),
		}
	}

	a := m.analyzer.Analyze(q)
	t := m.selector.SelectBestTemplate(a)
	rendered := m.selector.Render(q, a, t)

	m.mu.Lock()
	m.templateUsed[q] = t.Name
	m.mu.Unlock()

	log.Debugf("query optimized with template %s (domain=%s, complexity=%.2f)", t.Name, a.Domain, a.Complexity)
	return OptimizationResult{
		Analysis:        a,
		TemplateUsed:    t.Name,
		OptimizedPrompt: rendered,
		TokenCount:      m.selector.CountTokens(rendered),
	}
}

// Analyze returns the memoized analysis of q.
func (m *Manager) Analyze(q string) query.Analysis {
	return m.analyzer.Analyze(q)
}

// SelectBestModel picks a model for q. A nil analysis is computed and nil
// candidates mean the whole catalog. Returns "" when optimization is off or
// no candidate is known.
func (m *Manager) SelectBestModel(q string, a *query.Analysis, candidates []string) string {
	if !m.Enabled() {
		return ""
	}
	analysis := a
	if analysis == nil {
		v := m.analyzer.Analyze(q)
		analysis = &v
	}
	if candidates == nil {
		candidates = m.ModelNames()
	}
	return m.optimizer.SelectBestModel(*analysis, candidates)
}

// ShouldRequestFeedback reports whether to ask for feedback in conversationID.
func (m *Manager) ShouldRequestFeedback(conversationID string) bool {
	if !m.Enabled() {
		return false
	}
	return m.collector.ShouldRequestFeedback(conversationID)
}

// ProcessFeedback stores ev, updates model weights and, when a score is
// given, the performance of the template that rendered the query. It
// returns false when optimization is off or nothing was stored.
func (m *Manager) ProcessFeedback(ctx context.Context, ev feedback.Event) bool {
	if !m.Enabled() {
		return false
	}

	id := m.collector.CollectFeedback(ctx, ev)
	if id == "" {
		return false
	}

	m.optimizer.UpdateWeightsFromFeedback(ev.Query, ev.Responses, ev.SelectedResponse, ev.Score)

	if ev.Score != nil {
		template := m.TemplateUsed(ev.Query)
		m.selector.UpdateTemplatePerformance(template, *ev.Score)
		meta := map[string]interface{}{
			"feedback_id": id,
			"model":       ev.SelectedResponse,
			"template":    template,
		}
		if err := m.store.UpdateStat(ctx, StatFeedbackScore, *ev.Score, meta); err != nil {
			log.Warnf("failed to record feedback stat: %v", err)
		}
	}

	if err := m.SaveState(); err != nil {
		log.Warnf("failed to save learner state: %v", err)
	}
	return true
}

// TemplateUsed returns the template that last rendered q, or "default".
func (m *Manager) TemplateUsed(q string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if name, ok := m.templateUsed[q]; ok {
		return name
	}
	return prompt.DefaultTemplateName
}

// ExportFeedbackData writes the JSON training export into dir, or into the
// configured export directory when dir is empty. Returns "" on failure.
func (m *Manager) ExportFeedbackData(ctx context.Context, dir string) string {
	if dir == "" {
		dir = m.exportDir
	}
	if m.sb != nil && m.sb.IsReadOnly() {
		log.Warn("read-only mode, export skipped")
		return ""
	}
	return m.collector.ExportFeedbackData(ctx, dir)
}

// ExportJSONL writes the JSONL training export into dir (or the configured
// export directory).
func (m *Manager) ExportJSONL(ctx context.Context, dir string, opts feedback.ExportOptions) (string, int, error) {
	if dir == "" {
		dir = m.exportDir
	}
	if m.sb != nil && m.sb.IsReadOnly() {
		return "", 0, util.ErrReadOnlyMode
	}
	return m.collector.ExportJSONL(ctx, dir, opts)
}

// Stats summarises stored feedback and the learned state. Store failures
// are logged and leave the counts at zero.
func (m *Manager) Stats(ctx context.Context) Stats {
	var totals FeedbackTotals
	var err error
	count := func(lo, hi *float64) int {
		if err != nil {
			return 0
		}
		var n int
		n, err = m.store.CountByScore(ctx, lo, hi)
		return n
	}
	if totals.TotalSamples, err = m.store.TotalCount(ctx); err == nil {
		totals.PositiveSamples = count(ptr(0.7), nil)
		totals.NegativeSamples = count(nil, ptr(0.3))
		totals.NeutralSamples = count(ptr(0.3), ptr(0.7))
	}
	if err != nil {
		log.Warnf("feedback totals unavailable: %v", err)
		totals = FeedbackTotals{}
	}

	return Stats{
		Enabled:             m.Enabled(),
		FeedbackCollection:  totals,
		ModelPreferences:    m.optimizer.Weights(),
		ModelStats:          m.optimizer.Stats(),
		TemplatePerformance: m.selector.Performance(),
	}
}

// ClearCaches drops the analysis cache, the keyword performance cache and
// the remembered templates.
func (m *Manager) ClearCaches() {
	m.analyzer.ClearCache()
	m.optimizer.ClearCache()
	m.mu.Lock()
	m.templateUsed = make(map[string]string)
	m.mu.Unlock()
}

// ResetWeights restores every model to its default state and saves it.
func (m *Manager) ResetWeights() {
	m.optimizer.ResetWeights()
	if err := m.SaveState(); err != nil {
		log.Warnf("failed to save learner state: %v", err)
	}
}

// ReloadCatalog swaps in new catalogs, keeping learned state for models
// that are still present.
func (m *Manager) ReloadCatalog(models []config.ModelSpec, templates []config.PromptTemplate) {
	m.mu.Lock()
	m.models = append([]config.ModelSpec(nil), models...)
	m.mu.Unlock()
	m.optimizer.Reload(models, m.group)
	m.selector.SetTemplates(templates)
}

// Models returns the model catalog.
func (m *Manager) Models() []config.ModelSpec {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]config.ModelSpec(nil), m.models...)
}

// ModelNames returns the catalog model names in order.
func (m *Manager) ModelNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.models))
	for _, spec := range m.models {
		names = append(names, spec.Name)
	}
	return names
}

// Model returns the catalog entry for name.
func (m *Manager) Model(name string) (config.ModelSpec, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, spec := range m.models {
		if spec.Name == name {
			return spec, true
		}
	}
	return config.ModelSpec{}, false
}

// GroupDiscussion returns the group discussion pseudo-model settings.
func (m *Manager) GroupDiscussion() config.GroupDiscussionConfig {
	return m.group
}

// StatePath returns the learner state file, "" when persistence is off.
func (m *Manager) StatePath() string { return m.statePath }

// Store returns the feedback store.
func (m *Manager) Store() *feedback.Store { return m.store }

// Optimizer returns the preference optimizer.
func (m *Manager) Optimizer() *learning.Optimizer { return m.optimizer }

// Selector returns the template selector.
func (m *Manager) Selector() *prompt.Selector { return m.selector }

func ptr(v float64) *float64 { return &v }
