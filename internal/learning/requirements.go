package learning

import (
	"github.com/traylinx/localassist/internal/intelligence/query"
)

type importance struct {
	category string
	value    float64
}

var (
	codeNeeds       = []importance{{"programming", 0.9}, {"algorithms", 0.7}, {"technical_explanation", 0.6}}
	reasoningNeeds  = []importance{{"reasoning", 0.8}, {"critical_thinking", 0.7}, {"analysis", 0.7}, {"evaluation", 0.6}}
	creativityNeeds = []importance{{"creative", 0.9}}
	highComplexity  = []importance{{"comprehensive", 0.8}, {"thorough", 0.7}, {"balanced", 0.6}}
	lowComplexity   = []importance{{"conciseness", 0.8}, {"clarity", 0.7}}

	queryTypeNeeds = map[query.QueryType][]importance{
		query.TypeHowTo:      {{"technical_explanation", 0.7}, {"clarity", 0.7}},
		query.TypeComparison: {{"balanced", 0.8}, {"analysis", 0.7}},
		query.TypeWhatIs:     {{"general_knowledge", 0.7}, {"clarity", 0.6}},
		query.TypeOpinion:    {{"critical_thinking", 0.8}, {"evaluation", 0.7}},
		query.TypeList:       {{"comprehensive", 0.7}, {"clarity", 0.6}},
	}

	domainNeeds = map[string][]importance{
		query.DomainTechnology: {{"technical_explanation", 0.8}, {"programming", 0.7}},
		query.DomainScience:    {{"analysis", 0.8}, {"reasoning", 0.7}},
		query.DomainBusiness:   {{"analysis", 0.7}, {"balanced", 0.7}},
		query.DomainArts:       {{"creative", 0.8}},
	}
)

// RequiredStrengths maps every category to its importance for a. Categories
// start at the 0.1 baseline; rules run in a fixed order and a later rule
// overwrites an earlier one for the same category.
func RequiredStrengths(a query.Analysis) map[string]float64 {
	required := make(map[string]float64, len(Categories))
	for _, c := range Categories {
		required[c] = baselineImportance
	}
	apply := func(rules []importance) {
		for _, r := range rules {
			required[r.category] = r.value
		}
	}

	if a.RequiresCode {
		apply(codeNeeds)
	}
	if a.RequiresReasoning {
		apply(reasoningNeeds)
	}
	if a.RequiresCreativity {
		apply(creativityNeeds)
	}

	switch {
	case a.Complexity > 7:
		apply(highComplexity)
	case a.Complexity < 3:
		apply(lowComplexity)
	}

	apply(queryTypeNeeds[a.QueryType])

	f := a.FormatRequirements
	if f.RequiresStepByStep {
		apply([]importance{{"clarity", 0.8}})
	}
	if f.RequiresExamples {
		apply([]importance{{"technical_explanation", 0.7}})
	}
	if f.RequiresComparison {
		apply([]importance{{"balanced", 0.8}, {"analysis", 0.7}})
	}

	apply(domainNeeds[a.Domain])
	return required
}

// fitScore is the importance-weighted mean strength over the categories
// raised above the baseline, or the plain mean of all strengths when none
// were raised.
func fitScore(strengths, required map[string]float64) float64 {
	var weighted, total float64
	for _, c := range Categories {
		imp := required[c]
		if imp <= baselineImportance {
			continue
		}
		weighted += strengths[c] * imp
		total += imp
	}
	if total > 0 {
		return weighted / total
	}

	if len(strengths) == 0 {
		return 0
	}
	var sum float64
	for _, v := range strengths {
		sum += v
	}
	return sum / float64(len(strengths))
}
