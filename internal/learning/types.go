package learning

// Categories lists the strength categories a model is scored on, in
// evaluation order.
var Categories = []string{
	"programming", "analysis", "creative", "reasoning", "math", "language",
	"technical_explanation", "evaluation", "critical_thinking", "problem_solving",
	"algorithms", "conciseness", "clarity", "summarization", "general_knowledge",
	"communication", "balanced", "comprehensive", "thorough",
}

// GroupDiscussionModel is the default name of the pseudo-model representing
// a multi-model discussion.
const GroupDiscussionModel = "group_discussion"

const (
	defaultStrength      = 0.5
	defaultGroupStrength = 0.7
	baselineImportance   = 0.1
)

// ModelState is the learned, mutable preference state of one model.
type ModelState struct {
	Weight         float64 `json:"weight"`
	WinRate        float64 `json:"win_rate"`
	AvgScore       float64 `json:"avg_score"`
	SelectionCount int     `json:"selection_count"`
}

// ModelStats is the diagnostic view of a model returned by Optimizer.Stats.
type ModelStats struct {
	ModelState
	Confidence float64            `json:"confidence"`
	Strengths  map[string]float64 `json:"strengths"`
}

// PerformanceEntry is a plain running average.
type PerformanceEntry struct {
	Score float64 `json:"score"`
	Count int     `json:"count"`
}

// Add folds score into the running average.
func (p PerformanceEntry) Add(score float64) PerformanceEntry {
	return PerformanceEntry{
		Score: (p.Score*float64(p.Count) + score) / float64(p.Count+1),
		Count: p.Count + 1,
	}
}

func newPerformanceEntry() PerformanceEntry {
	return PerformanceEntry{Score: 0.5}
}
