// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package prompt selects prompt templates for analysed queries, renders
// them and tracks per-template feedback.
package prompt

import (
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/traylinx/localassist/internal/config"
	"github.com/traylinx/localassist/internal/intelligence/query"
)

// Template is a parameterized prompt skeleton from the catalog.
type Template = config.PromptTemplate

// DefaultTemplateName names the passthrough template used when no catalog
// template is loaded.
const DefaultTemplateName = "default"

// DefaultTemplate passes the query through unchanged.
func DefaultTemplate() Template {
	return Template{
		Name:       DefaultTemplateName,
		Domains:    []string{query.DomainGeneral},
		Complexity: "medium",
		Template:   "{query}",
	}
}

// Performance is the running feedback average of one template.
type Performance struct {
	Score float64 `json:"score"`
	Count int     `json:"count"`
}

// Selector chooses and renders prompt templates.
type Selector struct {
	mu          sync.RWMutex
	templates   []Template
	strategy    string
	performance map[string]Performance

	dynamicTuning bool
	maxTokens     int
	directives    *DirectiveSet
	counter       *TokenCounter
}

// NewSelector creates a selector over templates configured by cfg.
func NewSelector(templates []Template, cfg config.PromptOptimizationConfig) *Selector {
	strategy := cfg.TemplateSelectionStrategy
	if strategy != config.StrategyPerformanceBased {
		strategy = config.StrategyBestMatch
	}
	s := &Selector{
		templates:     append([]Template(nil), templates...),
		strategy:      strategy,
		performance:   make(map[string]Performance),
		dynamicTuning: cfg.DynamicInstructionTuning,
		maxTokens:     cfg.MaxPromptTokenCount,
		directives:    NewDirectiveSet(cfg.Directives),
		counter:       NewTokenCounter(MethodTiktoken),
	}
	log.Debugf("template selector ready: %d templates, strategy %s", len(s.templates), s.strategy)
	return s
}

// SetTemplates replaces the template catalog. Performance history is kept.
func (s *Selector) SetTemplates(templates []Template) {
	s.mu.Lock()
	s.templates = append([]Template(nil), templates...)
	s.mu.Unlock()
}

// Templates returns a copy of the loaded templates.
func (s *Selector) Templates() []Template {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Template(nil), s.templates...)
}

// Strategy returns the active selection strategy.
func (s *Selector) Strategy() string {
	return s.strategy
}

// SelectBestTemplate picks a template for a using the configured strategy.
// With no templates loaded it returns DefaultTemplate.
func (s *Selector) SelectBestTemplate(a query.Analysis) Template {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.templates) == 0 {
		return DefaultTemplate()
	}
	if s.strategy == config.StrategyPerformanceBased {
		return s.selectByPerformance(a)
	}
	return s.selectBestMatch(a)
}

func (s *Selector) selectBestMatch(a query.Analysis) Template {
	tier := a.ComplexityTier()
	best, bestScore := 0, -1
	for i, t := range s.templates {
		score := 0
		switch {
		case contains(t.Domains, a.Domain):
			score += 3
		case contains(t.Domains, query.DomainGeneral):
			score++
		}
		for _, uc := range t.UseCases {
			if uc == string(a.QueryType) {
				score += 2
			}
			if (uc == "code" && a.RequiresCode) ||
				(uc == "reasoning" && a.RequiresReasoning) ||
				(uc == "creative" && a.RequiresCreativity) {
				score += 2
			}
		}
		if t.Complexity == tier {
			score += 2
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return s.templates[best]
}

func (s *Selector) selectByPerformance(a query.Analysis) Template {
	pool := make([]Template, 0, len(s.templates))
	for _, t := range s.templates {
		if contains(t.Domains, a.Domain) || contains(t.Domains, query.DomainGeneral) {
			pool = append(pool, t)
		}
	}
	if len(pool) == 0 {
		pool = s.templates
	}

	best, bestScore := 0, -1.0
	for i, t := range pool {
		score := 0.5
		if p, ok := s.performance[t.Name]; ok {
			score = p.Score
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return pool[best]
}

// UpdateTemplatePerformance folds score into the running average of name.
// Templates without history start from 0.5.
func (s *Selector) UpdateTemplatePerformance(name string, score float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.performance[name]
	if !ok {
		p = Performance{Score: 0.5}
	}
	s.performance[name] = Performance{
		Score: (p.Score*float64(p.Count) + score) / float64(p.Count+1),
		Count: p.Count + 1,
	}
}

// Performance returns a copy of the template performance table.
func (s *Selector) Performance() map[string]Performance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Performance, len(s.performance))
	for k, v := range s.performance {
		out[k] = v
	}
	return out
}

// RestorePerformance replaces the template performance table.
func (s *Selector) RestorePerformance(perf map[string]Performance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.performance = make(map[string]Performance, len(perf))
	for k, v := range perf {
		s.performance[k] = v
	}
}

// ResetPerformance clears all template history.
func (s *Selector) ResetPerformance() {
	s.RestorePerformance(nil)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
