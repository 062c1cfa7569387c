// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/traylinx/localassist/internal/config"
	"github.com/traylinx/localassist/internal/intelligence/query"
)

func bestMatchConfig() config.PromptOptimizationConfig {
	return config.PromptOptimizationConfig{TemplateSelectionStrategy: config.StrategyBestMatch}
}

func TestSelectBestTemplate_BestMatch(t *testing.T) {
	s := NewSelector(config.DefaultTemplates(), bestMatchConfig())

	tests := []struct {
		query string
		want  string
	}{
		{"Viết function sắp xếp nhanh trong Python", "programming"},
		{"Làm thế nào để học guitar?", "step_by_step"},
		{"hello", "general"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := s.SelectBestTemplate(query.Analyze(tt.query))
			assert.Equal(t, tt.want, got.Name)
		})
	}
}

func TestSelectBestTemplate_TieGoesToFirst(t *testing.T) {
	s := NewSelector([]Template{
		{Name: "first", Domains: []string{"general"}, Complexity: "medium", Template: "{query}"},
		{Name: "second", Domains: []string{"general"}, Complexity: "medium", Template: "{query}"},
	}, bestMatchConfig())
	assert.Equal(t, "first", s.SelectBestTemplate(query.Analyze("hello")).Name)
}

func TestSelectBestTemplate_ComplexityTier(t *testing.T) {
	s := NewSelector([]Template{
		{Name: "low", Complexity: "low", Template: "{query}"},
		{Name: "high", Complexity: "high", Template: "{query}"},
	}, bestMatchConfig())

	assert.Equal(t, "low", s.SelectBestTemplate(query.Analysis{Complexity: 1}).Name)
	assert.Equal(t, "high", s.SelectBestTemplate(query.Analysis{Complexity: 9}).Name)
}

func TestSelectBestTemplate_NoTemplates(t *testing.T) {
	s := NewSelector(nil, bestMatchConfig())
	got := s.SelectBestTemplate(query.Analyze("anything"))
	assert.Equal(t, DefaultTemplateName, got.Name)
	assert.Equal(t, "anything", s.Render("anything", query.Analyze("anything"), got))
}

func TestSelectBestTemplate_PerformanceBased(t *testing.T) {
	s := NewSelector([]Template{
		{Name: "tech", Domains: []string{"technology"}, Template: "{query}"},
		{Name: "any", Domains: []string{"general"}, Template: "{query}"},
		{Name: "art", Domains: []string{"arts"}, Template: "{query}"},
	}, config.PromptOptimizationConfig{TemplateSelectionStrategy: config.StrategyPerformanceBased})
	require.Equal(t, config.StrategyPerformanceBased, s.Strategy())

	tech := query.Analysis{Domain: query.DomainTechnology}
	assert.Equal(t, "tech", s.SelectBestTemplate(tech).Name, "untried templates tie at 0.5")

	s.UpdateTemplatePerformance("any", 0.9)
	s.UpdateTemplatePerformance("art", 1.0)
	assert.Equal(t, "any", s.SelectBestTemplate(tech).Name, "art is outside the domain pool")

	s.ResetPerformance()
	noGeneral := NewSelector([]Template{
		{Name: "tech", Domains: []string{"technology"}, Template: "{query}"},
		{Name: "art", Domains: []string{"arts"}, Template: "{query}"},
	}, config.PromptOptimizationConfig{TemplateSelectionStrategy: config.StrategyPerformanceBased})
	noGeneral.UpdateTemplatePerformance("art", 0.8)
	assert.Equal(t, "art", noGeneral.SelectBestTemplate(query.Analysis{Domain: query.DomainScience}).Name)
}

func TestUpdateTemplatePerformance(t *testing.T) {
	s := NewSelector(nil, bestMatchConfig())
	s.UpdateTemplatePerformance("x", 1.0)
	assert.Equal(t, Performance{Score: 1.0, Count: 1}, s.Performance()["x"])
	s.UpdateTemplatePerformance("x", 0.0)
	assert.Equal(t, Performance{Score: 0.5, Count: 2}, s.Performance()["x"])

	s.RestorePerformance(map[string]Performance{"y": {Score: 0.2, Count: 4}})
	assert.Equal(t, map[string]Performance{"y": {Score: 0.2, Count: 4}}, s.Performance())
}

func TestSubstitute(t *testing.T) {
	a := query.Analysis{
		Complexity:         10,
		Domain:             "technology",
		Topics:             []string{"python", "code"},
		QueryType:          query.TypeHowTo,
		RequiresCode:       true,
		FormatRequirements: query.FormatRequirements{RequiresList: true, RequiresTable: true},
		Sentiment:          "neutral",
		Urgency:            "normal",
		Languages:          []string{"vietnamese", "english"},
	}
	body := "{query}|{domain}|{complexity}|{query_type}|{topics}|{requires_code}|{requires_reasoning}|{requires_creativity}|{sentiment}|{urgency}|{languages}|{unknown}"
	got := Substitute(body, "Q", a)
	assert.Equal(t, "Q|technology|10.0|how_to|python, code|true|false|false|neutral|normal|vietnamese, english|{unknown}", got)

	assert.Equal(t, instrList+" "+instrTable, Substitute("{format_requirements}", "", a))
}

func TestSubstitute_QueryContainingPlaceholder(t *testing.T) {
	// Replacement is literal and ordered: a placeholder inside the query
	// text is expanded by the later passes.
	a := query.Analysis{Domain: "general"}
	assert.Equal(t, "about general", Substitute("{query}", "about {domain}", a))
}

func TestFormatFloat(t *testing.T) {
	assert.Equal(t, "0.4", formatFloat(0.4))
	assert.Equal(t, "10.0", formatFloat(10))
	assert.Equal(t, "0.0", formatFloat(0))
	assert.Equal(t, "1.25", formatFloat(1.25))
}

func TestRender_Directives(t *testing.T) {
	s := NewSelector(nil, config.PromptOptimizationConfig{DynamicInstructionTuning: true})
	a := query.Analysis{
		Complexity:   1,
		RequiresCode: true,
		Languages:    []string{"vietnamese"},
		Urgency:      "normal",
	}
	got := s.Render("viết code", a, Template{Template: "{query}"})
	want := "viết code\n\n" + strings.Join([]string{
		"Cung cấp câu trả lời ngắn gọn, súc tích và dễ hiểu.",
		"Đưa ra mã nguồn rõ ràng, có chú thích và tuân thủ các nguyên tắc clean code.",
		"Trả lời bằng tiếng Việt, sử dụng các thuật ngữ phù hợp với văn phong tự nhiên.",
	}, " ")
	assert.Equal(t, want, got)

	// Medium complexity, no flags: nothing to append.
	plain := query.Analysis{Complexity: 5, Urgency: "normal"}
	assert.Equal(t, "x", s.Render("x", plain, Template{Template: "{query}"}))
}

func TestRender_TuningDisabled(t *testing.T) {
	s := NewSelector(nil, bestMatchConfig())
	a := query.Analysis{Complexity: 9, RequiresCode: true, Urgency: "high"}
	assert.Equal(t, "x", s.Render("x", a, Template{Template: "{query}"}))
}

func TestRender_TokenBudgetDropsDirectives(t *testing.T) {
	s := NewSelector(nil, config.PromptOptimizationConfig{DynamicInstructionTuning: true, MaxPromptTokenCount: 3})
	a := query.Analysis{Complexity: 9, RequiresCode: true, RequiresReasoning: true, Urgency: "high"}
	assert.Equal(t, "hi", s.Render("hi", a, Template{Template: "{query}"}))
}

func TestDirectiveSet_ConfigRules(t *testing.T) {
	ds := NewDirectiveSet([]config.DirectiveRule{
		{Name: "tables", When: "FormatRequirements.RequiresTable && Complexity > 5", Text: "tables please"},
		{Name: "broken", When: "Complexity >", Text: "never"},
	})
	assert.Equal(t, len(builtinDirectives)+1, ds.Len())

	a := query.Analysis{Complexity: 6, FormatRequirements: query.FormatRequirements{RequiresTable: true}}
	assert.Equal(t, []string{"tables please"}, ds.Match(a))
	assert.Empty(t, ds.Match(query.Analysis{Complexity: 6}))
}

func TestTokenCounter(t *testing.T) {
	simple := NewTokenCounter("bogus")
	assert.Equal(t, MethodSimple, simple.Method())
	assert.Equal(t, 3, simple.Count("one two  three"))
	assert.Zero(t, simple.Count(""))

	exact := NewTokenCounter(MethodTiktoken)
	assert.Equal(t, 2, exact.Count("hello world"))
}
