// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package query turns a raw user query into a fixed-shape feature analysis
// (domain, complexity, query type, format and capability flags) used for
// model and template selection.
package query

import (
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// QueryType classifies the intent of a query.
type QueryType string

const (
	TypeHowTo      QueryType = "how_to"
	TypeWhy        QueryType = "why"
	TypeWhatIs     QueryType = "what_is"
	TypeComparison QueryType = "comparison"
	TypeExample    QueryType = "example"
	TypeList       QueryType = "list"
	TypeOpinion    QueryType = "opinion"
	TypePrediction QueryType = "prediction"
	TypeQuestion   QueryType = "question"
	TypeStatement  QueryType = "statement"
)

// Domains recognised by the analyzer.
const (
	DomainTechnology = "technology"
	DomainBusiness   = "business"
	DomainScience    = "science"
	DomainHealth     = "health"
	DomainEducation  = "education"
	DomainArts       = "arts"
	DomainLifestyle  = "lifestyle"
	DomainGeneral    = "general"
)

const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"

	UrgencyHigh   = "high"
	UrgencyNormal = "normal"

	LanguageVietnamese = "vietnamese"
	LanguageEnglish    = "english"

	// MaxComplexity is the upper bound of Analysis.Complexity.
	MaxComplexity = 10.0
)

// FormatRequirements flags the output shapes a query asks for.
type FormatRequirements struct {
	RequiresList       bool `json:"requires_list"`
	RequiresStepByStep bool `json:"requires_step_by_step"`
	RequiresExamples   bool `json:"requires_examples"`
	RequiresSummary    bool `json:"requires_summary"`
	RequiresComparison bool `json:"requires_comparison"`
	RequiresProsCons   bool `json:"requires_pros_cons"`
	RequiresTable      bool `json:"requires_table"`
	RequiresDiagram    bool `json:"requires_diagram"`
}

// Analysis is the structured feature view of a query.
type Analysis struct {
	// Complexity is in [0, 10].
	Complexity         float64            `json:"complexity"`
	Domain             string             `json:"domain"`
	Topics             []string           `json:"topics"`
	QueryType          QueryType          `json:"query_type"`
	FormatRequirements FormatRequirements `json:"format_requirements"`
	RequiresCode       bool               `json:"requires_code"`
	RequiresReasoning  bool               `json:"requires_reasoning"`
	RequiresCreativity bool               `json:"requires_creativity"`
	Languages          []string           `json:"languages"`
	Sentiment          string             `json:"sentiment"`
	Urgency            string             `json:"urgency"`
}

// Clone returns a deep copy so callers cannot mutate cached slices.
func (a Analysis) Clone() Analysis {
	a.Topics = append([]string{}, a.Topics...)
	a.Languages = append([]string{}, a.Languages...)
	return a
}

// HasLanguage reports whether lang was detected.
func (a Analysis) HasLanguage(lang string) bool {
	for _, l := range a.Languages {
		if l == lang {
			return true
		}
	}
	return false
}

// ComplexityTier buckets the complexity score: high above 7, low below 3,
// medium otherwise.
func (a Analysis) ComplexityTier() string {
	switch {
	case a.Complexity > 7:
		return "high"
	case a.Complexity < 3:
		return "low"
	default:
		return "medium"
	}
}

// Analyzer memoizes analyses by exact query string.
type Analyzer struct {
	mu    sync.RWMutex
	cache map[string]Analysis
}

// NewAnalyzer creates an analyzer with an empty cache.
func NewAnalyzer() *Analyzer {
	return &Analyzer{cache: make(map[string]Analysis)}
}

// Analyze returns the analysis of q, computing it on first use.
//
// Parameters:
//   - q: The raw user query
//
// Returns:
//   - Analysis: A copy of the (possibly cached) analysis
func (a *Analyzer) Analyze(q string) Analysis {
	a.mu.RLock()
	cached, ok := a.cache[q]
	a.mu.RUnlock()
	if ok {
		return cached.Clone()
	}

	result := Analyze(q)

	a.mu.Lock()
	a.cache[q] = result
	a.mu.Unlock()
	return result.Clone()
}

// Cached reports whether q has a cached analysis.
func (a *Analyzer) Cached(q string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.cache[q]
	return ok
}

// Len returns the number of cached analyses.
func (a *Analyzer) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.cache)
}

// ClearCache drops all cached analyses.
func (a *Analyzer) ClearCache() {
	a.mu.Lock()
	a.cache = make(map[string]Analysis)
	a.mu.Unlock()
}

// Analyze computes the analysis of q. It is deterministic and never fails.
func Analyze(q string) Analysis {
	lower := strings.ToLower(q)
	domain, topics := identifyDomain(lower)

	return Analysis{
		Complexity:         complexity(q, lower),
		Domain:             domain,
		Topics:             topics,
		QueryType:          ClassifyType(q),
		FormatRequirements: detectFormat(lower),
		RequiresCode:       containsAny(lower, codeIndicators),
		RequiresReasoning:  containsAny(lower, reasoningIndicators),
		RequiresCreativity: containsAny(lower, creativityIndicators),
		Languages:          detectLanguages(lower),
		Sentiment:          sentiment(lower),
		Urgency:            urgency(lower),
	}
}

// ClassifyType returns the query type of q using the phrase tables in
// priority order, falling back to question or statement.
func ClassifyType(q string) QueryType {
	return classifyWith(queryTypeTable, q)
}

// ClassifyFeedbackType is the tag used by the optimizer's performance cache.
// It never yields TypePrediction, so "...sẽ...?" is a question there.
func ClassifyFeedbackType(q string) QueryType {
	return classifyWith(feedbackTypeTable, q)
}

func classifyWith(table []typePhrases, q string) QueryType {
	lower := strings.ToLower(q)
	for _, entry := range table {
		if containsAny(lower, entry.phrases) {
			return entry.queryType
		}
	}
	if strings.Contains(q, "?") {
		return TypeQuestion
	}
	return TypeStatement
}

// ExtractKeywords splits q on whitespace, lowercases it and drops stop
// words and tokens of two characters or fewer.
func ExtractKeywords(q string) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(q)) {
		if utf8.RuneCountInString(w) <= 2 {
			continue
		}
		if _, stop := StopWords[w]; stop {
			continue
		}
		out = append(out, w)
	}
	return out
}

func complexity(q, lower string) float64 {
	score := float64(utf8.RuneCountInString(q))/100 +
		float64(strings.Count(q, ","))*0.1 +
		float64(strings.Count(q, "?"))*0.3

	for _, indicator := range complexityIndicators {
		if containsKeyword(lower, indicator) {
			score += 0.5
		}
	}
	if score > MaxComplexity {
		return MaxComplexity
	}
	if score < 0 {
		return 0
	}
	return score
}

func identifyDomain(lower string) (string, []string) {
	topics := []string{}
	seen := make(map[string]struct{})
	best, bestScore := DomainGeneral, 0

	for _, entry := range domainTable {
		hits := 0
		for _, kw := range entry.keywords {
			if !containsKeyword(lower, kw) {
				continue
			}
			hits++
			if _, dup := seen[kw]; !dup {
				seen[kw] = struct{}{}
				topics = append(topics, kw)
			}
		}
		if hits > bestScore {
			best, bestScore = entry.domain, hits
		}
	}
	return best, topics
}

func detectFormat(lower string) FormatRequirements {
	return FormatRequirements{
		RequiresList:       containsAny(lower, listPhrases),
		RequiresStepByStep: containsAny(lower, stepPhrases),
		RequiresExamples:   containsAny(lower, examplePhrases),
		RequiresSummary:    containsAny(lower, summaryPhrases),
		RequiresComparison: containsAny(lower, comparisonPhrases),
		RequiresProsCons:   containsAny(lower, prosConsPhrases),
		RequiresTable:      containsAny(lower, tablePhrases),
		RequiresDiagram:    containsAny(lower, diagramPhrases),
	}
}

func detectLanguages(lower string) []string {
	ascii := true
	for _, r := range lower {
		if strings.ContainsRune(vietnameseDiacritics, r) {
			return []string{LanguageVietnamese}
		}
		if r > unicode.MaxASCII {
			ascii = false
		}
	}
	if ascii {
		return []string{LanguageEnglish}
	}
	return []string{LanguageVietnamese, LanguageEnglish}
}

func sentiment(lower string) string {
	pos, neg := countMatches(lower, positiveWords), countMatches(lower, negativeWords)
	switch {
	case pos > neg:
		return SentimentPositive
	case neg > pos:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

func urgency(lower string) string {
	if containsAny(lower, urgencyWords) {
		return UrgencyHigh
	}
	return UrgencyNormal
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if containsKeyword(text, kw) {
			return true
		}
	}
	return false
}

func countMatches(text string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if containsKeyword(text, kw) {
			n++
		}
	}
	return n
}

// containsKeyword matches kw as a substring, or as a whole word when kw is
// three runes or shorter.
func containsKeyword(text, kw string) bool {
	if utf8.RuneCountInString(kw) > 3 {
		return strings.Contains(text, kw)
	}
	for offset := 0; ; {
		idx := strings.Index(text[offset:], kw)
		if idx < 0 {
			return false
		}
		start := offset + idx
		end := start + len(kw)
		if isBoundaryBefore(text, start) && isBoundaryAfter(text, end) {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		offset = start + size
	}
}

func isBoundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !isWordRune(r)
}

func isBoundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
}
