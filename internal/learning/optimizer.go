package learning

import (
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/traylinx/localassist/internal/config"
	"github.com/traylinx/localassist/internal/intelligence/query"
)

// Optimizer scores candidate models against a query analysis and adjusts
// per-model weights from human feedback.
type Optimizer struct {
	mu       sync.Mutex
	settings config.PreferenceConfig

	groupName string
	order     []string
	strengths map[string]map[string]float64
	states    map[string]*ModelState

	// perfCache maps a keyword or "type:<query type>" tag to per-model
	// running averages. It is diagnostic only and never read by selection.
	perfCache map[string]map[string]PerformanceEntry
}

// NewOptimizer creates an optimizer for the given catalog. The group
// discussion pseudo-model is appended after the catalog models.
//
// Parameters:
//   - settings: Weight bounds and update factors
//   - models: The static model catalog
//   - group: The group discussion pseudo-model definition
//
// Returns:
//   - *Optimizer: An optimizer with every model at its default state
func NewOptimizer(settings config.PreferenceConfig, models []config.ModelSpec, group config.GroupDiscussionConfig) *Optimizer {
	o := &Optimizer{
		settings:  settings,
		perfCache: make(map[string]map[string]PerformanceEntry),
	}
	o.loadCatalog(models, group)
	return o
}

func (o *Optimizer) loadCatalog(models []config.ModelSpec, group config.GroupDiscussionConfig) {
	o.groupName = group.Name
	if o.groupName == "" {
		o.groupName = GroupDiscussionModel
	}

	previous := o.states
	o.order = o.order[:0]
	o.strengths = make(map[string]map[string]float64, len(models)+1)
	o.states = make(map[string]*ModelState, len(models)+1)

	add := func(name string, declared map[string]float64, fallback float64) {
		if _, dup := o.strengths[name]; dup {
			return
		}
		profile := make(map[string]float64, len(Categories))
		for _, c := range Categories {
			if v, ok := declared[c]; ok {
				profile[c] = v
			} else {
				profile[c] = fallback
			}
		}
		o.order = append(o.order, name)
		o.strengths[name] = profile
		if prev, ok := previous[name]; ok {
			o.states[name] = prev
		} else {
			o.states[name] = o.defaultState()
		}
	}

	for _, m := range models {
		add(m.Name, m.Strengths, defaultStrength)
	}
	add(o.groupName, group.Strengths, defaultGroupStrength)
}

func (o *Optimizer) defaultState() *ModelState {
	return &ModelState{
		Weight:   o.settings.DefaultWeight,
		WinRate:  0.5,
		AvgScore: 0.5,
	}
}

// Reload swaps in a new catalog. Learned state is kept for models that are
// still present.
func (o *Optimizer) Reload(models []config.ModelSpec, group config.GroupDiscussionConfig) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.loadCatalog(models, group)
	log.Infof("preference optimizer reloaded with %d models", len(o.order))
}

// GroupModel returns the name of the group discussion pseudo-model.
func (o *Optimizer) GroupModel() string {
	return o.groupName
}

// Models returns the known model names in catalog order.
func (o *Optimizer) Models() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.order...)
}

// Known reports whether name is in the catalog.
func (o *Optimizer) Known(name string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.states[name]
	return ok
}

// SelectBestModel returns the candidate with the highest weighted fit for
// a, or "" when no candidate is known. Ties go to the model that comes
// first in catalog order. The winner's selection count is incremented.
func (o *Optimizer) SelectBestModel(a query.Analysis, candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	wanted := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		wanted[c] = true
	}

	required := RequiredStrengths(a)
	best, bestScore := "", 0.0
	for _, name := range o.order {
		if !wanted[name] {
			continue
		}
		score := fitScore(o.strengths[name], required) * o.states[name].Weight
		log.Debugf("model %s scored %.4f", name, score)
		if best == "" || score > bestScore {
			best, bestScore = name, score
		}
	}
	if best == "" {
		log.Debugf("no known model among candidates %v", candidates)
		return ""
	}

	o.states[best].SelectionCount++
	return best
}

// UpdateWeightsFromFeedback applies one feedback event. responses maps each
// candidate model to its answer; score is optional and in [0,1]. Unknown
// selected models are ignored.
func (o *Optimizer) UpdateWeightsFromFeedback(q string, responses map[string]string, selected string, score *float64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	state, ok := o.states[selected]
	if !ok {
		log.Debugf("feedback for unknown model %q ignored", selected)
		return
	}

	if _, present := responses[selected]; present && len(responses) > 1 {
		for _, name := range sortedKeys(responses) {
			s, known := o.states[name]
			if !known {
				continue
			}
			signal := 0.0
			if name == selected {
				signal = 1.0
			}
			n := s.SelectionCount + 1
			capped := float64(min(100, n))
			decay := capped / (capped + 10)
			s.WinRate = s.WinRate*decay + signal*(1-decay)
			s.SelectionCount = n
		}
	}

	if score != nil {
		state.AvgScore = 0.9*state.AvgScore + 0.1*clamp(*score, 0, 1)
	}

	performance := state.WinRate*o.settings.WinRateWeight + state.AvgScore*o.settings.ScoreWeight
	adjustment := (performance - 0.5) * o.settings.WeightUpdateFactor
	state.Weight = clamp(state.Weight+adjustment, o.settings.MinWeight, o.settings.MaxWeight)

	log.WithField("model", selected).Debugf("weight=%.4f win_rate=%.4f avg_score=%.4f", state.Weight, state.WinRate, state.AvgScore)

	if score != nil {
		o.updatePerformanceCache(q, selected, *score)
	}
}

// updatePerformanceCache records score against each keyword of q and its
// query type tag. Callers hold o.mu.
func (o *Optimizer) updatePerformanceCache(q, model string, score float64) {
	keys := query.ExtractKeywords(q)
	keys = append(keys, "type:"+string(query.ClassifyFeedbackType(q)))
	for _, key := range keys {
		models, ok := o.perfCache[key]
		if !ok {
			models = make(map[string]PerformanceEntry)
			o.perfCache[key] = models
		}
		entry, ok := models[model]
		if !ok {
			entry = newPerformanceEntry()
		}
		models[model] = entry.Add(score)
	}
}

// Weights returns a copy of the current weight of every model.
func (o *Optimizer) Weights() map[string]float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]float64, len(o.states))
	for name, s := range o.states {
		out[name] = s.Weight
	}
	return out
}

// Stats returns the state and strength profile of every model.
func (o *Optimizer) Stats() map[string]ModelStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]ModelStats, len(o.states))
	for name, s := range o.states {
		out[name] = o.statsLocked(name, s)
	}
	return out
}

// ModelStats returns the stats of one model.
func (o *Optimizer) ModelStats(name string) (ModelStats, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.states[name]
	if !ok {
		return ModelStats{}, false
	}
	return o.statsLocked(name, s), true
}

func (o *Optimizer) statsLocked(name string, s *ModelState) ModelStats {
	strengths := make(map[string]float64, len(o.strengths[name]))
	for k, v := range o.strengths[name] {
		strengths[k] = v
	}
	return ModelStats{
		ModelState: *s,
		Confidence: StateConfidence(*s, o.settings.WinRateWeight, o.settings.ScoreWeight),
		Strengths:  strengths,
	}
}

// PerformanceCache returns a copy of the keyword performance cache.
func (o *Optimizer) PerformanceCache() map[string]map[string]PerformanceEntry {
	o.mu.Lock()
	defer o.mu.Unlock()
	return copyPerfCache(o.perfCache)
}

// ClearCache empties the keyword performance cache.
func (o *Optimizer) ClearCache() {
	o.mu.Lock()
	o.perfCache = make(map[string]map[string]PerformanceEntry)
	o.mu.Unlock()
}

// ResetWeights puts every model back to its default state. The performance
// cache is left untouched.
func (o *Optimizer) ResetWeights() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for name := range o.states {
		o.states[name] = o.defaultState()
	}
	log.Info("model weights reset to defaults")
}

// Reset clears both the learned state and the performance cache.
func (o *Optimizer) Reset() {
	o.ResetWeights()
	o.ClearCache()
}

func copyPerfCache(in map[string]map[string]PerformanceEntry) map[string]map[string]PerformanceEntry {
	out := make(map[string]map[string]PerformanceEntry, len(in))
	for key, models := range in {
		m := make(map[string]PerformanceEntry, len(models))
		for name, e := range models {
			m[name] = e
		}
		out[key] = m
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
