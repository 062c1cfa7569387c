package learning

import (
	"errors"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/traylinx/localassist/internal/util"
)

// stateVersion is bumped when the persisted layout changes incompatibly.
const stateVersion = 1

// State is the persisted learner state: optimizer model state, the keyword
// performance cache and template performance.
type State struct {
	Version          int                                    `json:"version"`
	SavedAt          time.Time                              `json:"saved_at"`
	Models           map[string]ModelState                  `json:"models"`
	PerformanceCache map[string]map[string]PerformanceEntry `json:"performance_cache,omitempty"`
	Templates        map[string]PerformanceEntry            `json:"templates,omitempty"`
}

// Snapshot captures the optimizer state. Templates is left empty for the
// caller to fill.
func (o *Optimizer) Snapshot() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	models := make(map[string]ModelState, len(o.states))
	for name, s := range o.states {
		models[name] = *s
	}
	return State{
		Version:          stateVersion,
		SavedAt:          time.Now(),
		Models:           models,
		PerformanceCache: copyPerfCache(o.perfCache),
	}
}

// Restore loads model state and the performance cache from s. Models not in
// the catalog are skipped and weights are clamped to the configured bounds.
func (o *Optimizer) Restore(s State) {
	o.mu.Lock()
	defer o.mu.Unlock()

	restored := 0
	for name, ms := range s.Models {
		if _, ok := o.states[name]; !ok {
			log.Debugf("skipping persisted state for unknown model %s", name)
			continue
		}
		ms.Weight = clamp(ms.Weight, o.settings.MinWeight, o.settings.MaxWeight)
		ms.WinRate = clamp(ms.WinRate, 0, 1)
		ms.AvgScore = clamp(ms.AvgScore, 0, 1)
		if ms.SelectionCount < 0 {
			ms.SelectionCount = 0
		}
		o.states[name] = &ms
		restored++
	}
	if s.PerformanceCache != nil {
		o.perfCache = copyPerfCache(s.PerformanceCache)
	}
	log.Debugf("restored learner state for %d models", restored)
}

// SaveState writes s to path atomically, keeping a .bak of the previous file.
func SaveState(sb *util.StateBox, path string, s State) error {
	if err := sb.WriteJSON(path, s, util.WriteOptions{KeepBackup: true}); err != nil {
		return fmt.Errorf("failed to save learner state: %w", err)
	}
	return nil
}

// LoadState reads the learner state at path. A missing file yields an empty
// state and no error; a damaged file falls back to the .bak written by
// SaveState.
func LoadState(sb *util.StateBox, path string) (State, error) {
	var s State
	if err := sb.ReadJSON(path, &s); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return State{Version: stateVersion}, nil
		}
		return State{}, fmt.Errorf("failed to load learner state: %w", err)
	}
	if s.Version > stateVersion {
		return State{}, fmt.Errorf("learner state version %d is newer than supported %d", s.Version, stateVersion)
	}
	return s, nil
}
