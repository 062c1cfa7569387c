// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package feedback

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/traylinx/localassist/internal/util"
)

// ErrMissingColumn is matched by every *SchemaError.
var ErrMissingColumn = errors.New("feedback store schema is missing columns")

// SchemaError reports a table that is absent or lacks required columns.
type SchemaError struct {
	Table   string
	Missing []string
}

func (e *SchemaError) Error() string {
	if len(e.Missing) == 0 {
		return fmt.Sprintf("table %s does not exist", e.Table)
	}
	return fmt.Sprintf("table %s is missing columns: %s", e.Table, strings.Join(e.Missing, ", "))
}

// Is makes errors.Is(err, ErrMissingColumn) true for schema errors.
func (e *SchemaError) Is(target error) bool {
	return target == ErrMissingColumn
}

type column struct {
	name string
	// fill is the SQL literal used for rows migrated from a table that
	// lacks this column. Empty means NULL.
	fill string
}

type tableSpec struct {
	name    string
	ddl     string
	columns []column
	indexes []string
}

var schema = []tableSpec{
	{
		name: "feedback",
		ddl: `CREATE TABLE IF NOT EXISTS feedback (
			id TEXT PRIMARY KEY,
			timestamp TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			query TEXT NOT NULL,
			responses TEXT NOT NULL,
			selected_response TEXT NOT NULL,
			feedback_score REAL,
			feedback_text TEXT,
			metadata TEXT
		)`,
		columns: []column{
			{"id", ""}, {"timestamp", "''"}, {"conversation_id", "''"}, {"query", "''"},
			{"responses", "'{}'"}, {"selected_response", "''"}, {"feedback_score", ""},
			{"feedback_text", ""}, {"metadata", ""},
		},
		indexes: []string{
			"CREATE INDEX IF NOT EXISTS idx_feedback_conversation ON feedback(conversation_id)",
			"CREATE INDEX IF NOT EXISTS idx_feedback_timestamp ON feedback(timestamp)",
		},
	},
	{
		name: "comparisons",
		ddl: `CREATE TABLE IF NOT EXISTS comparisons (
			id TEXT PRIMARY KEY,
			timestamp TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			query TEXT NOT NULL,
			chosen TEXT NOT NULL,
			rejected TEXT NOT NULL,
			chosen_model TEXT NOT NULL,
			rejected_model TEXT NOT NULL,
			metadata TEXT
		)`,
		columns: []column{
			{"id", ""}, {"timestamp", "''"}, {"conversation_id", "''"}, {"query", "''"},
			{"chosen", "''"}, {"rejected", "''"}, {"chosen_model", "''"},
			{"rejected_model", "''"}, {"metadata", ""},
		},
		indexes: []string{
			"CREATE INDEX IF NOT EXISTS idx_comparisons_conversation ON comparisons(conversation_id)",
		},
	},
	{
		name: "stats",
		ddl: `CREATE TABLE IF NOT EXISTS stats (
			id TEXT PRIMARY KEY,
			timestamp TEXT NOT NULL,
			stat_type TEXT NOT NULL,
			value REAL NOT NULL,
			metadata TEXT
		)`,
		columns: []column{
			{"id", ""}, {"timestamp", "''"}, {"stat_type", "''"}, {"value", "0"}, {"metadata", ""},
		},
		indexes: []string{
			"CREATE INDEX IF NOT EXISTS idx_stats_type ON stats(stat_type)",
		},
	},
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// tableColumns returns the column names of table; empty when the table
// does not exist.
func tableColumns(ctx context.Context, q queryer, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect table %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

// checkSchema verifies that every table exists with all required columns.
// It returns a *SchemaError for the first table that does not.
func checkSchema(ctx context.Context, q queryer) error {
	for _, t := range schema {
		cols, err := tableColumns(ctx, q, t.name)
		if err != nil {
			return err
		}
		if len(cols) == 0 {
			return &SchemaError{Table: t.name}
		}
		if missing := missingColumns(t, cols); len(missing) > 0 {
			return &SchemaError{Table: t.name, Missing: missing}
		}
	}
	return nil
}

func missingColumns(t tableSpec, have []string) []string {
	present := make(map[string]bool, len(have))
	for _, c := range have {
		present[c] = true
	}
	var missing []string
	for _, c := range t.columns {
		if !present[c.name] {
			missing = append(missing, c.name)
		}
	}
	return missing
}

// createSchema creates absent tables and all indexes.
func createSchema(ctx context.Context, db execer) error {
	for _, t := range schema {
		if _, err := db.ExecContext(ctx, t.ddl); err != nil {
			return fmt.Errorf("failed to create table %s: %w", t.name, err)
		}
	}
	return createIndexes(ctx, db)
}

func createIndexes(ctx context.Context, db execer) error {
	for _, t := range schema {
		for _, idx := range t.indexes {
			if _, err := db.ExecContext(ctx, idx); err != nil {
				return fmt.Errorf("failed to create index on %s: %w", t.name, err)
			}
		}
	}
	return nil
}

// RepairSchema brings an outdated store file up to the current layout. The
// file is first copied to <path>.backup. Tables lacking required columns are
// rebuilt and their rows copied forward, filling new columns with defaults
// (an empty conversation_id for legacy feedback). Missing tables are created.
func (s *Store) RepairSchema(ctx context.Context) error {
	if s.readOnly() {
		return util.ErrReadOnlyMode
	}
	if err := s.ensureDir(); err != nil {
		return fmt.Errorf("failed to create feedback store directory: %w", err)
	}

	if _, err := os.Stat(s.path); err == nil {
		backup := s.path + ".backup"
		if err := s.sb.Snapshot(s.path, backup); err != nil {
			return fmt.Errorf("failed to back up store before repair: %w", err)
		}
		log.Infof("feedback store backed up to %s", backup)
	}

	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin repair: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, t := range schema {
		cols, err := tableColumns(ctx, tx, t.name)
		if err != nil {
			return err
		}
		switch {
		case len(cols) == 0:
			if _, err := tx.ExecContext(ctx, t.ddl); err != nil {
				return fmt.Errorf("failed to create table %s: %w", t.name, err)
			}
			log.Infof("created missing table %s", t.name)
		case len(missingColumns(t, cols)) > 0:
			n, err := rebuildTable(ctx, tx, t, cols)
			if err != nil {
				return err
			}
			log.Infof("rebuilt table %s, migrated %d rows", t.name, n)
		}
	}
	if err := createIndexes(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit repair: %w", err)
	}
	log.Info("feedback store schema repaired")
	return nil
}

func rebuildTable(ctx context.Context, tx *sql.Tx, t tableSpec, oldCols []string) (int64, error) {
	temp := t.name + "_temp"
	steps := []string{
		"DROP TABLE IF EXISTS " + quoteIdent(temp),
		fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM %s", quoteIdent(temp), quoteIdent(t.name)),
		"DROP TABLE " + quoteIdent(t.name),
		t.ddl,
	}
	for _, stmt := range steps {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return 0, fmt.Errorf("failed to rebuild table %s: %w", t.name, err)
		}
	}

	have := make(map[string]bool, len(oldCols))
	for _, c := range oldCols {
		have[c] = true
	}
	var targets, sources []string
	for _, c := range t.columns {
		switch {
		case have[c.name]:
			targets = append(targets, quoteIdent(c.name))
			sources = append(sources, quoteIdent(c.name))
		case c.fill != "":
			targets = append(targets, quoteIdent(c.name))
			sources = append(sources, c.fill)
		}
	}

	insert := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
		quoteIdent(t.name), strings.Join(targets, ", "), strings.Join(sources, ", "), quoteIdent(temp))
	res, err := tx.ExecContext(ctx, insert)
	if err != nil {
		return 0, fmt.Errorf("failed to migrate rows of %s: %w", t.name, err)
	}
	if _, err := tx.ExecContext(ctx, "DROP TABLE "+quoteIdent(temp)); err != nil {
		return 0, fmt.Errorf("failed to drop %s: %w", temp, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
