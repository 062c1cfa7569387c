// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package prompt

import (
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/traylinx/localassist/internal/intelligence/query"
)

// Instruction sentences for each format requirement, in flag order.
const (
	instrList       = "Trình bày kết quả dưới dạng danh sách có cấu trúc."
	instrStepByStep = "Cung cấp hướng dẫn từng bước chi tiết."
	instrExamples   = "Đưa ra các ví dụ cụ thể để minh họa."
	instrSummary    = "Kèm theo tóm tắt ngắn gọn các điểm chính."
	instrComparison = "So sánh rõ ràng các khía cạnh khác nhau."
	instrProsCons   = "Liệt kê ưu điểm và nhược điểm."
	instrTable      = "Trình bày dữ liệu dưới dạng bảng nếu phù hợp."
	instrDiagram    = "Mô tả bằng sơ đồ hoặc biểu đồ nếu có thể."
)

// Render substitutes the analysis into t and, when dynamic tuning is on,
// appends the matching directives. Directives are dropped from the end
// while the prompt exceeds the token budget.
func (s *Selector) Render(q string, a query.Analysis, t Template) string {
	body := Substitute(t.Template, q, a)
	if !s.dynamicTuning {
		return body
	}

	directives := s.directives.Match(a)
	for len(directives) > 0 {
		out := body + "\n\n" + strings.Join(directives, " ")
		if s.maxTokens <= 0 || s.counter.Count(out) <= s.maxTokens {
			return out
		}
		log.Debugf("prompt over %d tokens, dropping directive", s.maxTokens)
		directives = directives[:len(directives)-1]
	}
	return body
}

// CountTokens returns the token count of text using the selector's counter.
func (s *Selector) CountTokens(text string) int {
	return s.counter.Count(text)
}

// Substitute replaces every placeholder in body with its value. Replacement
// is literal and runs in a fixed order.
func Substitute(body, q string, a query.Analysis) string {
	replacements := []struct{ key, value string }{
		{"{query}", q},
		{"{domain}", a.Domain},
		{"{complexity}", formatFloat(a.Complexity)},
		{"{query_type}", string(a.QueryType)},
		{"{topics}", strings.Join(a.Topics, ", ")},
		{"{requires_code}", strconv.FormatBool(a.RequiresCode)},
		{"{requires_reasoning}", strconv.FormatBool(a.RequiresReasoning)},
		{"{requires_creativity}", strconv.FormatBool(a.RequiresCreativity)},
		{"{format_requirements}", FormatInstructions(a.FormatRequirements)},
		{"{sentiment}", a.Sentiment},
		{"{urgency}", a.Urgency},
		{"{languages}", strings.Join(a.Languages, ", ")},
	}
	for _, r := range replacements {
		body = strings.ReplaceAll(body, r.key, r.value)
	}
	return body
}

// FormatInstructions turns format flags into instruction sentences joined
// by a space.
func FormatInstructions(f query.FormatRequirements) string {
	var parts []string
	add := func(on bool, text string) {
		if on {
			parts = append(parts, text)
		}
	}
	add(f.RequiresList, instrList)
	add(f.RequiresStepByStep, instrStepByStep)
	add(f.RequiresExamples, instrExamples)
	add(f.RequiresSummary, instrSummary)
	add(f.RequiresComparison, instrComparison)
	add(f.RequiresProsCons, instrProsCons)
	add(f.RequiresTable, instrTable)
	add(f.RequiresDiagram, instrDiagram)
	return strings.Join(parts, " ")
}

// formatFloat prints v in shortest form, always with a decimal point.
func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".") {
		s += ".0"
	}
	return s
}
