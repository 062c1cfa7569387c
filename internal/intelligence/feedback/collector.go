// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package feedback

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/traylinx/localassist/internal/config"
)

// ErrCollectionDisabled is returned by Collect while collection is off.
var ErrCollectionDisabled = errors.New("feedback collection is disabled")

// cacheEvictBatch is how many of the oldest cached records are dropped once
// the cache exceeds its capacity.
const cacheEvictBatch = 100

// Repository is the persistence the collector writes to and exports from.
// *Store implements it.
type Repository interface {
	SaveFeedback(ctx context.Context, r *Record) error
	SaveComparison(ctx context.Context, c *Comparison) error
	GetAll(ctx context.Context) ([]Entry, error)
}

// Event is one piece of human feedback on a set of candidate responses.
type Event struct {
	ConversationID   string
	Query            string
	Responses        map[string]string
	SelectedResponse string
	Score            *float64
	Text             *string
	Metadata         map[string]interface{}
}

// Collector turns feedback events into stored records and pairwise
// comparisons, and decides when to ask the user for feedback.
type Collector struct {
	mu       sync.Mutex
	settings config.FeedbackConfig
	repo     Repository

	cache     map[string]*Record
	requested map[string]struct{}

	random func() float64
	now    func() time.Time
}

// NewCollector creates a collector writing to repo.
//
// Parameters:
//   - settings: Collection switches, probability and cache capacity
//   - repo: The feedback persistence
//
// Returns:
//   - *Collector: A collector with empty caches
func NewCollector(settings config.FeedbackConfig, repo Repository) *Collector {
	if settings.FeedbackCacheSize <= 0 {
		settings.FeedbackCacheSize = 1000
	}
	return &Collector{
		settings:  settings,
		repo:      repo,
		cache:     make(map[string]*Record),
		requested: make(map[string]struct{}),
		random:    rand.Float64,
		now:       time.Now,
	}
}

// Enabled reports whether collection is on.
func (c *Collector) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings.Enabled
}

// ToggleCollection switches collection on or off.
func (c *Collector) ToggleCollection(enabled bool) {
	c.mu.Lock()
	c.settings.Enabled = enabled
	c.mu.Unlock()
	log.Infof("feedback collection enabled=%v", enabled)
}

// ShouldRequestFeedback reports whether the user should be asked for
// feedback in this conversation. A conversation is asked at most once;
// otherwise the answer is true with the configured probability.
func (c *Collector) ShouldRequestFeedback(conversationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.settings.Enabled {
		return false
	}
	if _, done := c.requested[conversationID]; done {
		return false
	}
	if c.random() >= c.settings.CollectionProbability {
		return false
	}
	c.requested[conversationID] = struct{}{}
	return true
}

// CollectFeedback stores ev and returns the new feedback id, or "" when
// collection is disabled or anything fails. Failures are logged.
func (c *Collector) CollectFeedback(ctx context.Context, ev Event) string {
	id, err := c.Collect(ctx, ev)
	if err != nil {
		if !errors.Is(err, ErrCollectionDisabled) {
			log.Errorf("failed to collect feedback: %v", err)
		}
		return ""
	}
	return id
}

// Collect stores ev as a feedback record and, when comparison collection
// is on and more than one response was given, one comparison per
// non-selected response.
func (c *Collector) Collect(ctx context.Context, ev Event) (string, error) {
	c.mu.Lock()
	settings := c.settings
	now := c.now()
	c.mu.Unlock()

	if !settings.Enabled {
		return "", ErrCollectionDisabled
	}

	responses := make(map[string]string, len(ev.Responses))
	for k, v := range ev.Responses {
		responses[k] = v
	}
	record := &Record{
		ID:               NewFeedbackID(now),
		Timestamp:        now,
		ConversationID:   ev.ConversationID,
		Query:            ev.Query,
		Responses:        responses,
		SelectedResponse: ev.SelectedResponse,
		FeedbackScore:    ev.Score,
		FeedbackText:     ev.Text,
		Metadata:         ev.Metadata,
	}

	if err := c.repo.SaveFeedback(ctx, record); err != nil {
		return "", err
	}
	c.remember(record)

	if settings.CollectComparisons && len(responses) > 1 {
		n, err := c.saveComparisons(ctx, record)
		if err != nil {
			return "", err
		}
		log.Debugf("feedback %s produced %d comparisons", record.ID, n)
	}

	log.WithField("conversation_id", record.ConversationID).Infof("feedback %s recorded for %s", record.ID, record.SelectedResponse)
	return record.ID, nil
}

func (c *Collector) saveComparisons(ctx context.Context, r *Record) (int, error) {
	chosen := r.SelectedText()
	if chosen == "" {
		log.Warnf("feedback %s: selected model %q has no response, skipping comparisons", r.ID, r.SelectedResponse)
		return 0, nil
	}

	models := make([]string, 0, len(r.Responses))
	for m := range r.Responses {
		models = append(models, m)
	}
	sort.Strings(models)

	saved := 0
	for _, model := range models {
		rejected := r.Responses[model]
		if model == r.SelectedResponse || rejected == "" {
			continue
		}
		metadata := map[string]interface{}{
			"type":        TypePairwiseComparison,
			"feedback_id": r.ID,
		}
		if r.FeedbackScore != nil {
			metadata["feedback_score"] = *r.FeedbackScore
		}
		cmp := &Comparison{
			ID:             NewComparisonID(r.Timestamp),
			Timestamp:      r.Timestamp,
			ConversationID: r.ConversationID,
			Query:          r.Query,
			Chosen:         chosen,
			Rejected:       rejected,
			ChosenModel:    r.SelectedResponse,
			RejectedModel:  model,
			Metadata:       metadata,
		}
		if err := c.repo.SaveComparison(ctx, cmp); err != nil {
			return saved, fmt.Errorf("comparison %s vs %s: %w", r.SelectedResponse, model, err)
		}
		saved++
	}
	return saved, nil
}

// remember caches r, evicting the oldest records in batches once the cache
// is over capacity.
func (c *Collector) remember(r *Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache[r.ID] = r
	if len(c.cache) <= c.settings.FeedbackCacheSize {
		return
	}

	ids := make([]string, 0, len(c.cache))
	for id := range c.cache {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return c.cache[ids[i]].Timestamp.Before(c.cache[ids[j]].Timestamp)
	})
	for _, id := range ids[:min(cacheEvictBatch, len(ids))] {
		delete(c.cache, id)
	}
}

// Cached returns a recently collected record.
func (c *Collector) Cached(id string) (*Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.cache[id]
	return r, ok
}

// CacheLen returns the number of cached records.
func (c *Collector) CacheLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}
