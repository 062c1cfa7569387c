// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package prompt

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	log "github.com/sirupsen/logrus"
	"github.com/traylinx/localassist/internal/config"
	"github.com/traylinx/localassist/internal/intelligence/query"
)

// builtinDirectives are evaluated in order; each condition is an expr
// expression over query.Analysis.
var builtinDirectives = []config.DirectiveRule{
	{Name: "high_complexity", When: "Complexity > 7", Text: "Phân tích vấn đề một cách toàn diện, xem xét nhiều khía cạnh và cung cấp phân tích sâu."},
	{Name: "low_complexity", When: "Complexity < 3", Text: "Cung cấp câu trả lời ngắn gọn, súc tích và dễ hiểu."},
	{Name: "code", When: "RequiresCode", Text: "Đưa ra mã nguồn rõ ràng, có chú thích và tuân thủ các nguyên tắc clean code."},
	{Name: "reasoning", When: "RequiresReasoning", Text: "Giải thích logic và lý luận chi tiết, đưa ra các luận điểm có cơ sở."},
	{Name: "creativity", When: "RequiresCreativity", Text: "Thể hiện sự sáng tạo, độc đáo và tư duy ngoài khuôn khổ."},
	{Name: "vietnamese", When: `"vietnamese" in Languages`, Text: "Trả lời bằng tiếng Việt, sử dụng các thuật ngữ phù hợp với văn phong tự nhiên."},
	{Name: "urgent", When: `Urgency == "high"`, Text: "Ưu tiên cung cấp thông tin thiết yếu và giải pháp nhanh chóng."},
}

type directive struct {
	name    string
	text    string
	program *vm.Program
}

// DirectiveSet holds compiled directive rules.
type DirectiveSet struct {
	rules []directive
}

// NewDirectiveSet compiles the built-in directives followed by extra.
// Extra rules that fail to compile are skipped with a warning.
func NewDirectiveSet(extra []config.DirectiveRule) *DirectiveSet {
	ds := &DirectiveSet{}
	for _, r := range builtinDirectives {
		if err := ds.add(r); err != nil {
			log.Errorf("built-in directive %s: %v", r.Name, err)
		}
	}
	for _, r := range extra {
		if err := ds.add(r); err != nil {
			log.Warnf("skipping directive %q: %v", r.Name, err)
		}
	}
	return ds
}

func (ds *DirectiveSet) add(r config.DirectiveRule) error {
	program, err := expr.Compile(r.When, expr.Env(query.Analysis{}), expr.AsBool())
	if err != nil {
		return fmt.Errorf("failed to compile condition '%s': %w", r.When, err)
	}
	ds.rules = append(ds.rules, directive{name: r.Name, text: r.Text, program: program})
	return nil
}

// Len returns the number of compiled directives.
func (ds *DirectiveSet) Len() int {
	return len(ds.rules)
}

// Match returns the text of every directive whose condition holds for a,
// in declaration order.
func (ds *DirectiveSet) Match(a query.Analysis) []string {
	var out []string
	for _, d := range ds.rules {
		result, err := expr.Run(d.program, a)
		if err != nil {
			log.Debugf("directive %s failed: %v", d.name, err)
			continue
		}
		if ok, _ := result.(bool); ok {
			out = append(out, d.text)
		}
	}
	return out
}
