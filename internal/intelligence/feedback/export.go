// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package feedback

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/localassist/internal/util"
)

// Export formats.
const (
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
)

// ExportVersion is written into the metadata of JSON exports.
const ExportVersion = "1.0"

// Export is the document written by a JSON export.
type Export struct {
	Metadata    ExportMetadata     `json:"metadata"`
	Feedback    []ExportFeedback   `json:"feedback"`
	Comparisons []ExportComparison `json:"comparisons"`
}

// ExportMetadata describes an export file.
type ExportMetadata struct {
	Timestamp   string `json:"timestamp"`
	Version     string `json:"version"`
	RecordCount int    `json:"record_count"`
}

// ExportFeedback is a feedback record in training layout.
type ExportFeedback struct {
	ID             string   `json:"id,omitempty"`
	Prompt         string   `json:"prompt"`
	Response       string   `json:"response"`
	Model          string   `json:"model"`
	Score          *float64 `json:"score"`
	Feedback       *string  `json:"feedback"`
	ConversationID string   `json:"conversation_id,omitempty"`
	Timestamp      string   `json:"timestamp,omitempty"`
}

// ExportComparison is a comparison in training layout.
type ExportComparison struct {
	ID             string `json:"id,omitempty"`
	Prompt         string `json:"prompt"`
	Chosen         string `json:"chosen"`
	Rejected       string `json:"rejected"`
	ChosenModel    string `json:"chosen_model"`
	RejectedModel  string `json:"rejected_model"`
	ConversationID string `json:"conversation_id,omitempty"`
	Timestamp      string `json:"timestamp,omitempty"`
}

// ExportOptions filters a JSONL export.
type ExportOptions struct {
	// MinScore drops feedback records without a score or below it.
	// Comparisons are always kept.
	MinScore *float64
	// MaxCount limits the number of exported entries when positive.
	MaxCount int
}

// ExportFeedbackData writes every stored record to
// <dir>/feedback_export_<YYYYmmdd_HHMMSS>.json and returns its path, or ""
// on failure.
func (c *Collector) ExportFeedbackData(ctx context.Context, dir string) string {
	path, err := c.ExportJSON(ctx, dir)
	if err != nil {
		log.Errorf("failed to export feedback data: %v", err)
		return ""
	}
	return path
}

// ExportJSON writes the JSON training export into dir.
func (c *Collector) ExportJSON(ctx context.Context, dir string) (string, error) {
	entries, err := c.repo.GetAll(ctx)
	if err != nil {
		return "", err
	}

	now := c.now()
	doc := Export{
		Metadata: ExportMetadata{
			Timestamp:   now.Format(TimestampLayout),
			Version:     ExportVersion,
			RecordCount: len(entries),
		},
		Feedback:    []ExportFeedback{},
		Comparisons: []ExportComparison{},
	}
	for _, e := range entries {
		switch {
		case e.Comparison != nil:
			cmp := exportComparison(e.Comparison)
			cmp.ConversationID, cmp.Timestamp = "", ""
			doc.Comparisons = append(doc.Comparisons, cmp)
		case e.Feedback != nil:
			fb := exportFeedback(e.Feedback)
			fb.ConversationID, fb.Timestamp = "", ""
			doc.Feedback = append(doc.Feedback, fb)
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode export: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("feedback_export_%s.json", now.Format("20060102_150405")))
	if err := util.WriteFileAtomic(path, data, 0600); err != nil {
		return "", err
	}
	log.Infof("exported %d feedback entries to %s", len(entries), path)
	return path, nil
}

// ExportJSONL writes one training line per stored record into
// <dir>/rlhf_export_<YYYYmmdd_HHMMSS>.jsonl.
//
// Returns:
//   - string: The file path
//   - int: The number of lines written
//   - error: Any read or write failure
func (c *Collector) ExportJSONL(ctx context.Context, dir string, opts ExportOptions) (string, int, error) {
	entries, err := c.repo.GetAll(ctx)
	if err != nil {
		return "", 0, err
	}
	entries = FilterEntries(entries, opts)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	written := 0
	for _, e := range entries {
		var line interface{}
		switch {
		case e.Comparison != nil:
			cmp := exportComparison(e.Comparison)
			cmp.ID = ""
			line = cmp
		case e.Feedback != nil:
			fb := exportFeedback(e.Feedback)
			fb.ID = ""
			line = fb
		default:
			continue
		}
		if err := enc.Encode(line); err != nil {
			return "", 0, fmt.Errorf("failed to encode export line: %w", err)
		}
		written++
	}

	path := filepath.Join(dir, fmt.Sprintf("rlhf_export_%s.jsonl", c.now().Format("20060102_150405")))
	if err := util.WriteFileAtomic(path, buf.Bytes(), 0600); err != nil {
		return "", 0, err
	}
	log.Infof("exported %d lines to %s", written, path)
	return path, written, nil
}

// FilterEntries applies opts to entries, keeping their order.
func FilterEntries(entries []Entry, opts ExportOptions) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if opts.MinScore != nil && e.Comparison == nil {
			if e.Feedback == nil || e.Feedback.FeedbackScore == nil || *e.Feedback.FeedbackScore < *opts.MinScore {
				continue
			}
		}
		out = append(out, e)
	}
	if opts.MaxCount > 0 && len(out) > opts.MaxCount {
		out = out[:opts.MaxCount]
	}
	return out
}

func exportFeedback(r *Record) ExportFeedback {
	return ExportFeedback{
		ID:             r.ID,
		Prompt:         r.Query,
		Response:       r.SelectedText(),
		Model:          r.SelectedResponse,
		Score:          r.FeedbackScore,
		Feedback:       r.FeedbackText,
		ConversationID: r.ConversationID,
		Timestamp:      formatExportTime(r.Timestamp),
	}
}

func exportComparison(c *Comparison) ExportComparison {
	return ExportComparison{
		ID:             c.ID,
		Prompt:         c.Query,
		Chosen:         c.Chosen,
		Rejected:       c.Rejected,
		ChosenModel:    c.ChosenModel,
		RejectedModel:  c.RejectedModel,
		ConversationID: c.ConversationID,
		Timestamp:      formatExportTime(c.Timestamp),
	}
}

func formatExportTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(TimestampLayout)
}
