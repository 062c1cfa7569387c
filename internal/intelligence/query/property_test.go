package query

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestProperty_AnalyzeIdempotent checks that analysing the same string twice
// produces byte-identical output.
func TestProperty_AnalyzeIdempotent(t *testing.T) {
	properties := gopter.NewProperties(nil)
	an := NewAnalyzer()

	properties.Property("analyze is idempotent", prop.ForAll(
		func(q string) bool {
			first, err := json.Marshal(Analyze(q))
			if err != nil {
				return false
			}
			second, err := json.Marshal(an.Analyze(q))
			if err != nil {
				return false
			}
			third, _ := json.Marshal(an.Analyze(q))
			return string(first) == string(second) && string(second) == string(third)
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

// TestProperty_AnalysisShape checks the invariants every analysis holds.
func TestProperty_AnalysisShape(t *testing.T) {
	properties := gopter.NewProperties(nil)

	valid := map[QueryType]bool{
		TypeHowTo: true, TypeWhy: true, TypeWhatIs: true, TypeComparison: true,
		TypeExample: true, TypeList: true, TypeOpinion: true, TypePrediction: true,
		TypeQuestion: true, TypeStatement: true,
	}

	vocabulary := []string{"tại sao", "so sánh", "python", "?", "viết", "ai", "xin chào", "hello"}

	properties.Property("complexity bounded and query type enumerated", prop.ForAll(
		func(picks []int) bool {
			q := ""
			for _, i := range picks {
				q += vocabulary[i] + ", "
			}
			a := Analyze(q)
			return a.Complexity >= 0 && a.Complexity <= MaxComplexity &&
				valid[a.QueryType] && a.Domain != "" && len(a.Languages) > 0
		},
		gen.SliceOf(gen.IntRange(0, len(vocabulary)-1)),
	))

	properties.TestingRun(t)
}
