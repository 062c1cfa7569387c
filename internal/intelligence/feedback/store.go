// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package feedback persists human feedback on model responses and turns
// feedback events into pairwise training comparisons.
package feedback

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/localassist/internal/util"
)

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("feedback record not found")

// Store is the SQLite-backed feedback store. Every operation opens its own
// connection and closes it before returning. The column layout is checked on
// each open; an outdated layout is repaired and the operation retried once.
type Store struct {
	path string
	sb   *util.StateBox
	open func() (*sql.DB, error)
}

// NewStore creates a store for the database file at path. When sb is
// non-nil, a relative path is resolved against the state box root and the
// box's read-only flag is honoured.
//
// Parameters:
//   - path: Database file path
//   - sb: Optional state box
//
// Returns:
//   - *Store: The store; the file is not touched until first use
func NewStore(path string, sb *util.StateBox) *Store {
	if sb != nil {
		path = sb.ResolvePath(path)
	}
	s := &Store{path: path, sb: sb}
	s.open = s.openSQLite
	return s
}

// Path returns the resolved database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) readOnly() bool {
	return s.sb != nil && s.sb.IsReadOnly()
}

func (s *Store) openSQLite() (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", s.path)
	if s.readOnly() {
		dsn = fmt.Sprintf("file:%s?mode=ro&_busy_timeout=5000", s.path)
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open feedback store: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func (s *Store) ensureDir() error {
	dir := filepath.Dir(s.path)
	if s.sb != nil {
		return s.sb.EnsureDir(dir)
	}
	return os.MkdirAll(dir, 0700)
}

// Initialize creates the database directory and tables, repairs an outdated
// layout and creates indexes. In read-only mode it only verifies the layout.
func (s *Store) Initialize(ctx context.Context) error {
	if s.readOnly() {
		return s.attempt(ctx, func(*sql.DB) error { return nil })
	}
	if err := s.ensureDir(); err != nil {
		return fmt.Errorf("failed to create feedback store directory: %w", err)
	}

	db, err := s.open()
	if err != nil {
		return err
	}
	for _, t := range schema {
		if _, err := db.ExecContext(ctx, t.ddl); err != nil {
			db.Close()
			return fmt.Errorf("failed to create table %s: %w", t.name, err)
		}
	}
	checkErr := checkSchema(ctx, db)
	db.Close()

	if checkErr != nil {
		if !errors.Is(checkErr, ErrMissingColumn) {
			return checkErr
		}
		log.Warnf("feedback store layout is outdated: %v", checkErr)
		if err := s.RepairSchema(ctx); err != nil {
			return err
		}
	}

	return s.attempt(ctx, func(db *sql.DB) error {
		return createIndexes(ctx, db)
	})
}

// attempt opens a connection, verifies the layout and runs fn.
func (s *Store) attempt(ctx context.Context, fn func(*sql.DB) error) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := checkSchema(ctx, db); err != nil {
		return err
	}
	return fn(db)
}

// run executes fn with a fresh connection. A missing-column condition
// triggers RepairSchema followed by exactly one retry.
func (s *Store) run(ctx context.Context, write bool, fn func(*sql.DB) error) error {
	if write && s.readOnly() {
		return util.ErrReadOnlyMode
	}

	err := s.attempt(ctx, fn)
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) || s.readOnly() {
		return err
	}

	log.Warnf("feedback store needs repair: %v", schemaErr)
	if err := s.RepairSchema(ctx); err != nil {
		return fmt.Errorf("feedback store repair failed: %w", err)
	}
	return s.attempt(ctx, fn)
}

// SaveFeedback inserts or replaces a feedback record.
func (s *Store) SaveFeedback(ctx context.Context, r *Record) error {
	responses, err := json.MarshalNoEscape(r.Responses)
	if err != nil {
		return fmt.Errorf("failed to encode responses: %w", err)
	}
	metadata, err := encodeMetadata(r.Metadata)
	if err != nil {
		return err
	}

	return s.run(ctx, true, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `INSERT OR REPLACE INTO feedback
			(id, timestamp, conversation_id, query, responses, selected_response, feedback_score, feedback_text, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, formatTimestamp(r.Timestamp), r.ConversationID, r.Query, string(responses),
			r.SelectedResponse, nullFloat(r.FeedbackScore), nullString(r.FeedbackText), metadata)
		if err != nil {
			return fmt.Errorf("failed to save feedback %s: %w", r.ID, err)
		}
		return nil
	})
}

// SaveComparison inserts or replaces a comparison record.
func (s *Store) SaveComparison(ctx context.Context, c *Comparison) error {
	metadata, err := encodeMetadata(c.Metadata)
	if err != nil {
		return err
	}

	return s.run(ctx, true, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `INSERT OR REPLACE INTO comparisons
			(id, timestamp, conversation_id, query, chosen, rejected, chosen_model, rejected_model, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, formatTimestamp(c.Timestamp), c.ConversationID, c.Query, c.Chosen, c.Rejected,
			c.ChosenModel, c.RejectedModel, metadata)
		if err != nil {
			return fmt.Errorf("failed to save comparison %s: %w", c.ID, err)
		}
		return nil
	})
}

const (
	feedbackColumns   = "id, timestamp, conversation_id, query, responses, selected_response, feedback_score, feedback_text, metadata"
	comparisonColumns = "id, timestamp, conversation_id, query, chosen, rejected, chosen_model, rejected_model, metadata"
)

// GetFeedback returns the feedback record with the given id or ErrNotFound.
func (s *Store) GetFeedback(ctx context.Context, id string) (*Record, error) {
	var out []*Record
	err := s.run(ctx, false, func(db *sql.DB) error {
		var err error
		out, err = queryFeedback(ctx, db, "SELECT "+feedbackColumns+" FROM feedback WHERE id = ?", id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out[0], nil
}

// GetComparison returns the comparison with the given id or ErrNotFound.
func (s *Store) GetComparison(ctx context.Context, id string) (*Comparison, error) {
	var out []*Comparison
	err := s.run(ctx, false, func(db *sql.DB) error {
		var err error
		out, err = queryComparisons(ctx, db, "SELECT "+comparisonColumns+" FROM comparisons WHERE id = ?", id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out[0], nil
}

// GetAll returns every feedback record, newest first, followed by every
// comparison, newest first, tagged TypePairwiseComparison.
func (s *Store) GetAll(ctx context.Context) ([]Entry, error) {
	var records []*Record
	var comparisons []*Comparison
	err := s.run(ctx, false, func(db *sql.DB) error {
		var err error
		records, err = queryFeedback(ctx, db, "SELECT "+feedbackColumns+" FROM feedback ORDER BY timestamp DESC")
		if err != nil {
			return err
		}
		comparisons, err = queryComparisons(ctx, db, "SELECT "+comparisonColumns+" FROM comparisons ORDER BY timestamp DESC")
		return err
	})
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(records)+len(comparisons))
	for _, r := range records {
		entries = append(entries, Entry{Type: TypeFeedback, Feedback: r})
	}
	for _, c := range comparisons {
		entries = append(entries, Entry{Type: TypePairwiseComparison, Comparison: c})
	}
	return entries, nil
}

// GetFeedbackByConversation returns the feedback of one conversation, newest first.
func (s *Store) GetFeedbackByConversation(ctx context.Context, conversationID string) ([]*Record, error) {
	var out []*Record
	err := s.run(ctx, false, func(db *sql.DB) error {
		var err error
		out, err = queryFeedback(ctx, db,
			"SELECT "+feedbackColumns+" FROM feedback WHERE conversation_id = ? ORDER BY timestamp DESC", conversationID)
		return err
	})
	return out, err
}

// GetComparisonsByConversation returns the comparisons of one conversation, newest first.
func (s *Store) GetComparisonsByConversation(ctx context.Context, conversationID string) ([]*Comparison, error) {
	var out []*Comparison
	err := s.run(ctx, false, func(db *sql.DB) error {
		var err error
		out, err = queryComparisons(ctx, db,
			"SELECT "+comparisonColumns+" FROM comparisons WHERE conversation_id = ? ORDER BY timestamp DESC", conversationID)
		return err
	})
	return out, err
}

// TotalCount returns the number of feedback records plus comparisons.
func (s *Store) TotalCount(ctx context.Context) (int, error) {
	var total int
	err := s.run(ctx, false, func(db *sql.DB) error {
		return db.QueryRowContext(ctx,
			"SELECT (SELECT COUNT(*) FROM feedback) + (SELECT COUNT(*) FROM comparisons)").Scan(&total)
	})
	return total, err
}

// CountByScore counts scored feedback records within the optional bounds
// (inclusive). Records without a score are never counted.
func (s *Store) CountByScore(ctx context.Context, minScore, maxScore *float64) (int, error) {
	q := "SELECT COUNT(*) FROM feedback WHERE feedback_score IS NOT NULL"
	var args []interface{}
	if minScore != nil {
		q += " AND feedback_score >= ?"
		args = append(args, *minScore)
	}
	if maxScore != nil {
		q += " AND feedback_score <= ?"
		args = append(args, *maxScore)
	}

	var n int
	err := s.run(ctx, false, func(db *sql.DB) error {
		return db.QueryRowContext(ctx, q, args...).Scan(&n)
	})
	return n, err
}

// DeleteFeedback removes a feedback record and reports whether it existed.
func (s *Store) DeleteFeedback(ctx context.Context, id string) (bool, error) {
	return s.deleteByID(ctx, "feedback", id)
}

// DeleteComparison removes a comparison and reports whether it existed.
func (s *Store) DeleteComparison(ctx context.Context, id string) (bool, error) {
	return s.deleteByID(ctx, "comparisons", id)
}

func (s *Store) deleteByID(ctx context.Context, table, id string) (bool, error) {
	var deleted bool
	err := s.run(ctx, true, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, "DELETE FROM "+quoteIdent(table)+" WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("failed to delete %s from %s: %w", id, table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		deleted = n > 0
		return nil
	})
	return deleted, err
}

// ClearAll deletes every row of every table.
func (s *Store) ClearAll(ctx context.Context) error {
	return s.run(ctx, true, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		for _, t := range schema {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+quoteIdent(t.name)); err != nil {
				return fmt.Errorf("failed to clear %s: %w", t.name, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		log.Info("feedback store cleared")
		return nil
	})
}

func queryFeedback(ctx context.Context, db *sql.DB, q string, args ...interface{}) ([]*Record, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var (
			r                  Record
			ts, responses      string
			score              sql.NullFloat64
			text, metadataBlob sql.NullString
		)
		if err := rows.Scan(&r.ID, &ts, &r.ConversationID, &r.Query, &responses,
			&r.SelectedResponse, &score, &text, &metadataBlob); err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		r.Timestamp = parseTimestamp(ts)
		if err := json.Unmarshal([]byte(responses), &r.Responses); err != nil {
			log.Warnf("feedback %s has unreadable responses: %v", r.ID, err)
		}
		if r.Responses == nil {
			r.Responses = map[string]string{}
		}
		if score.Valid {
			v := score.Float64
			r.FeedbackScore = &v
		}
		if text.Valid {
			v := text.String
			r.FeedbackText = &v
		}
		r.Metadata = decodeMetadata(r.ID, metadataBlob)
		out = append(out, &r)
	}
	return out, rows.Err()
}

func queryComparisons(ctx context.Context, db *sql.DB, q string, args ...interface{}) ([]*Comparison, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query comparisons: %w", err)
	}
	defer rows.Close()

	var out []*Comparison
	for rows.Next() {
		var (
			c            Comparison
			ts           string
			metadataBlob sql.NullString
		)
		if err := rows.Scan(&c.ID, &ts, &c.ConversationID, &c.Query, &c.Chosen, &c.Rejected,
			&c.ChosenModel, &c.RejectedModel, &metadataBlob); err != nil {
			return nil, fmt.Errorf("failed to scan comparison: %w", err)
		}
		c.Timestamp = parseTimestamp(ts)
		c.Metadata = decodeMetadata(c.ID, metadataBlob)
		out = append(out, &c)
	}
	return out, rows.Err()
}

func encodeMetadata(m map[string]interface{}) (interface{}, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.MarshalNoEscape(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return string(b), nil
}

func decodeMetadata(id string, blob sql.NullString) map[string]interface{} {
	if !blob.Valid || blob.String == "" {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(blob.String), &m); err != nil {
		log.Warnf("record %s has unreadable metadata: %v", id, err)
		return nil
	}
	return m
}

func nullFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullString(v *string) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
