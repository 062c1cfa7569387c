package learning

import (
	"math"
)

// StateConfidence estimates how much a model's learned state can be trusted.
// The blended performance score is scaled by a sample-size penalty that grows
// logarithmically and reaches 1.0 at 100 selections.
func StateConfidence(s ModelState, winRateWeight, scoreWeight float64) float64 {
	if s.SelectionCount <= 0 {
		return 0.0
	}

	base := s.WinRate*winRateWeight + s.AvgScore*scoreWeight

	// 5 selections -> ~0.39, 20 -> ~0.66, 100 -> 1.0
	samplePenalty := 1.0
	if s.SelectionCount < 100 {
		samplePenalty = math.Log(float64(s.SelectionCount)+1) / math.Log(101)
	}

	return clamp(base*samplePenalty, 0, 1)
}
