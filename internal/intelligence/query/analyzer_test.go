// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package query

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyze_CodingRequest(t *testing.T) {
	a := Analyze("Viết function sắp xếp nhanh trong Python")

	assert.True(t, a.RequiresCode)
	assert.Equal(t, DomainTechnology, a.Domain)
	assert.Equal(t, []string{"python", "function"}, a.Topics)
	assert.True(t, a.RequiresCreativity, "viết is a creativity indicator")
	assert.Equal(t, UrgencyHigh, a.Urgency, "nhanh is an urgency word")
	assert.Equal(t, []string{LanguageVietnamese}, a.Languages)
	assert.Equal(t, TypeStatement, a.QueryType)
	assert.Less(t, a.Complexity, 3.0)
	assert.Equal(t, "low", a.ComplexityTier())
}

func TestAnalyze_ShortKeywordsMatchWholeWords(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		domain string
	}{
		{"ai inside email", "Gửi email cho sếp", DomainGeneral},
		{"ai inside main", "the main idea", DomainGeneral},
		{"standalone ai", "AI thay đổi thế giới", DomainTechnology},
		{"ai with punctuation", "Bạn nghĩ gì về AI?", DomainTechnology},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.domain, Analyze(tt.query).Domain)
		})
	}
}

func TestClassifyType(t *testing.T) {
	tests := []struct {
		query string
		want  QueryType
	}{
		{"Làm thế nào để học Go?", TypeHowTo},
		{"Tại sao bầu trời màu xanh?", TypeWhy},
		{"Docker là gì?", TypeWhatIs},
		{"So sánh Go và Rust", TypeComparison},
		{"Cho tôi một ví dụ", TypeExample},
		{"Liệt kê các ngôn ngữ", TypeList},
		{"Nhận xét bài thơ này", TypeOpinion},
		{"Dự đoán giá vàng năm sau", TypePrediction},
		{"Hello there?", TypeQuestion},
		{"Hello there", TypeStatement},
		{"", TypeStatement},
	}
	for _, tt := range tests {
		t.Run(string(tt.want)+"/"+tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyType(tt.query))
			assert.Equal(t, tt.want, Analyze(tt.query).QueryType)
		})
	}
}

func TestClassifyFeedbackType(t *testing.T) {
	assert.Equal(t, TypePrediction, ClassifyType("Giá vàng sẽ tăng không?"))
	assert.Equal(t, TypeQuestion, ClassifyFeedbackType("Giá vàng sẽ tăng không?"))
	assert.Equal(t, TypeStatement, ClassifyFeedbackType("Dự đoán giá vàng năm sau"))
	assert.Equal(t, TypeHowTo, ClassifyFeedbackType("Làm thế nào để học Go?"))
	assert.Equal(t, TypeOpinion, ClassifyFeedbackType("Nhận xét bài thơ này"))
}

func TestAnalyze_Complexity(t *testing.T) {
	// 8 runes, two commas, one question mark.
	assert.InDelta(t, 0.08+0.2+0.3, Analyze("a, b, c?").Complexity, 1e-9)

	// Each matched indicator adds 0.5.
	q := "phân tích và so sánh"
	want := float64(len([]rune(q)))/100 + 1.0
	assert.InDelta(t, want, Analyze(q).Complexity, 1e-9)

	long := strings.Repeat("tại sao, ", 400)
	a := Analyze(long)
	assert.Equal(t, MaxComplexity, a.Complexity)
	assert.Equal(t, "high", a.ComplexityTier())
}

func TestAnalyze_FormatRequirements(t *testing.T) {
	a := Analyze("Liệt kê từng bước kèm ví dụ và ưu điểm")
	f := a.FormatRequirements
	assert.True(t, f.RequiresList)
	assert.True(t, f.RequiresStepByStep)
	assert.True(t, f.RequiresExamples)
	assert.True(t, f.RequiresProsCons)
	assert.False(t, f.RequiresSummary)
	assert.False(t, f.RequiresDiagram)

	assert.Equal(t, FormatRequirements{}, Analyze("hello").FormatRequirements)
}

func TestAnalyze_SentimentAndLanguages(t *testing.T) {
	tests := []struct {
		query     string
		sentiment string
		languages []string
	}{
		{"Bài viết này rất tốt và hay", SentimentPositive, []string{LanguageVietnamese}},
		{"Dịch vụ tệ và kém", SentimentNegative, []string{LanguageVietnamese}},
		{"tốt nhưng kém", SentimentNeutral, []string{LanguageVietnamese}},
		{"plain english text", SentimentNeutral, []string{LanguageEnglish}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			a := Analyze(tt.query)
			assert.Equal(t, tt.sentiment, a.Sentiment)
			assert.Equal(t, tt.languages, a.Languages)
		})
	}
}

func TestAnalyze_Defaults(t *testing.T) {
	a := Analyze("")
	assert.Equal(t, DomainGeneral, a.Domain)
	assert.Equal(t, TypeStatement, a.QueryType)
	assert.Equal(t, SentimentNeutral, a.Sentiment)
	assert.Equal(t, UrgencyNormal, a.Urgency)
	assert.NotNil(t, a.Topics)
	assert.Empty(t, a.Topics)
	assert.Zero(t, a.Complexity)
	assert.False(t, a.RequiresCode || a.RequiresReasoning || a.RequiresCreativity)
}

func TestAnalyzer_Cache(t *testing.T) {
	an := NewAnalyzer()
	q := "Viết code Python"

	first := an.Analyze(q)
	require.True(t, an.Cached(q))
	require.Equal(t, 1, an.Len())

	first.Topics[0] = "mutated"
	second := an.Analyze(q)
	assert.NotEqual(t, "mutated", second.Topics[0], "cached analysis must not be shared")

	an.ClearCache()
	assert.False(t, an.Cached(q))
	assert.Zero(t, an.Len())
}

func TestExtractKeywords(t *testing.T) {
	got := ExtractKeywords("Làm thế nào để học lập trình Python")
	assert.Equal(t, []string{"thế", "nào", "học", "lập", "trình", "python"}, got)
	assert.Empty(t, ExtractKeywords("là và của"))
}
