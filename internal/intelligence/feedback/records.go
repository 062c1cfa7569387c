// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package feedback

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TimestampLayout is the on-disk timestamp format (local time, microseconds).
const TimestampLayout = "2006-01-02T15:04:05.000000"

// TypePairwiseComparison tags comparison entries returned by GetAll.
const (
	TypeFeedback           = "feedback"
	TypePairwiseComparison = "pairwise_comparison"
)

// Record is one feedback event: the query, every candidate response keyed
// by model name, and the model the user picked.
type Record struct {
	ID               string                 `json:"id"`
	Timestamp        time.Time              `json:"timestamp"`
	ConversationID   string                 `json:"conversation_id"`
	Query            string                 `json:"query"`
	Responses        map[string]string      `json:"responses"`
	SelectedResponse string                 `json:"selected_response"`
	FeedbackScore    *float64               `json:"feedback_score"`
	FeedbackText     *string                `json:"feedback_text"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// SelectedText returns the response text of the selected model.
func (r *Record) SelectedText() string {
	return r.Responses[r.SelectedResponse]
}

// Comparison pairs the chosen response with one rejected alternative.
type Comparison struct {
	ID             string                 `json:"id"`
	Timestamp      time.Time              `json:"timestamp"`
	ConversationID string                 `json:"conversation_id"`
	Query          string                 `json:"query"`
	Chosen         string                 `json:"chosen"`
	Rejected       string                 `json:"rejected"`
	ChosenModel    string                 `json:"chosen_model"`
	RejectedModel  string                 `json:"rejected_model"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// Entry is one item of GetAll: either a feedback record or a comparison.
type Entry struct {
	Type       string      `json:"type"`
	Feedback   *Record     `json:"feedback,omitempty"`
	Comparison *Comparison `json:"comparison,omitempty"`
}

// ID returns the id of the wrapped record.
func (e Entry) ID() string {
	if e.Comparison != nil {
		return e.Comparison.ID
	}
	if e.Feedback != nil {
		return e.Feedback.ID
	}
	return ""
}

// Stat is one row of the stats table.
type Stat struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	StatType  string                 `json:"stat_type"`
	Value     float64                `json:"value"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// FeedbackStats aggregates the feedback table. Score buckets only count
// rows with a score: positive >= 0.8, negative <= 0.3, neutral between.
type FeedbackStats struct {
	TotalFeedback     int            `json:"total_feedback"`
	PositiveFeedback  int            `json:"positive_feedback"`
	NegativeFeedback  int            `json:"negative_feedback"`
	NeutralFeedback   int            `json:"neutral_feedback"`
	AverageScore      float64        `json:"average_score"`
	ModelDistribution map[string]int `json:"model_distribution"`
	ComparisonCount   int            `json:"comparison_count"`
	DailyStats        map[string]int `json:"daily_stats"`
}

func newID(prefix string, now time.Time) string {
	return fmt.Sprintf("%s_%d_%s", prefix, now.Unix(), strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// NewFeedbackID returns an id of the form fb_<unix>_<8 hex>.
func NewFeedbackID(now time.Time) string {
	return newID("fb", now)
}

// NewComparisonID returns an id of the form comp_<unix>_<8 hex>.
func NewComparisonID(now time.Time) string {
	return newID("comp", now)
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.Local().Format(TimestampLayout)
}

var timestampLayouts = []string{
	TimestampLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// parseTimestamp accepts the on-disk layout plus a few common variants.
// Unparseable values yield the zero time.
func parseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}
