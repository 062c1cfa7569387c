// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package feedback

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traylinx/localassist/internal/util"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(filepath.Join(t.TempDir(), "data", "feedback.db"), nil)
	require.NoError(t, s.Initialize(context.Background()))
	return s
}

func floatPtr(v float64) *float64 { return &v }
func strPtr(v string) *string     { return &v }

func sampleRecord(id, conv string, ts time.Time, score *float64) *Record {
	return &Record{
		ID:               id,
		Timestamp:        ts,
		ConversationID:   conv,
		Query:            "Giải thích goroutine",
		Responses:        map[string]string{"a": "answer a", "b": "answer <b>"},
		SelectedResponse: "a",
		FeedbackScore:    score,
		FeedbackText:     strPtr("rõ ràng"),
		Metadata:         map[string]interface{}{"source": "test"},
	}
}

func TestStore_SaveAndGetFeedback(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ts := time.Date(2026, 3, 1, 10, 30, 0, 123456000, time.Local)

	require.NoError(t, s.SaveFeedback(ctx, sampleRecord("fb_1", "conv_1", ts, floatPtr(0.8))))

	got, err := s.GetFeedback(ctx, "fb_1")
	require.NoError(t, err)
	assert.Equal(t, "conv_1", got.ConversationID)
	assert.Equal(t, "answer <b>", got.Responses["b"])
	assert.Equal(t, "a", got.SelectedResponse)
	require.NotNil(t, got.FeedbackScore)
	assert.InDelta(t, 0.8, *got.FeedbackScore, 1e-9)
	require.NotNil(t, got.FeedbackText)
	assert.Equal(t, "rõ ràng", *got.FeedbackText)
	assert.Equal(t, "test", got.Metadata["source"])
	assert.True(t, ts.Equal(got.Timestamp), "timestamp %v != %v", got.Timestamp, ts)

	_, err = s.GetFeedback(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_NullableColumns(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	r := sampleRecord("fb_null", "c", time.Now(), nil)
	r.FeedbackText = nil
	r.Metadata = nil
	require.NoError(t, s.SaveFeedback(ctx, r))

	got, err := s.GetFeedback(ctx, "fb_null")
	require.NoError(t, err)
	assert.Nil(t, got.FeedbackScore)
	assert.Nil(t, got.FeedbackText)
	assert.Nil(t, got.Metadata)
}

func TestStore_SaveReplacesSameID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.SaveFeedback(ctx, sampleRecord("fb_1", "c", time.Now(), floatPtr(0.1))))
	require.NoError(t, s.SaveFeedback(ctx, sampleRecord("fb_1", "c", time.Now(), floatPtr(0.9))))

	n, err := s.TotalCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err := s.GetFeedback(ctx, "fb_1")
	require.NoError(t, err)
	assert.InDelta(t, 0.9, *got.FeedbackScore, 1e-9)
}

func TestStore_GetAllOrdering(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	base := time.Date(2026, 1, 1, 8, 0, 0, 0, time.Local)

	require.NoError(t, s.SaveFeedback(ctx, sampleRecord("old", "c", base, nil)))
	require.NoError(t, s.SaveFeedback(ctx, sampleRecord("new", "c", base.Add(time.Hour), nil)))
	require.NoError(t, s.SaveComparison(ctx, &Comparison{
		ID: "cmp_1", Timestamp: base.Add(2 * time.Hour), ConversationID: "c", Query: "q",
		Chosen: "x", Rejected: "y", ChosenModel: "a", RejectedModel: "b",
	}))

	entries, err := s.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "new", entries[0].ID())
	assert.Equal(t, "old", entries[1].ID())
	assert.Equal(t, TypePairwiseComparison, entries[2].Type)
	assert.Equal(t, "cmp_1", entries[2].ID())

	total, err := s.TotalCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
}

func TestStore_ByConversationAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.SaveFeedback(ctx, sampleRecord("fb_1", "conv_1", time.Now(), nil)))
	require.NoError(t, s.SaveFeedback(ctx, sampleRecord("fb_2", "conv_2", time.Now(), nil)))
	require.NoError(t, s.SaveComparison(ctx, &Comparison{ID: "cmp_1", ConversationID: "conv_1", ChosenModel: "a", RejectedModel: "b"}))

	records, err := s.GetFeedbackByConversation(ctx, "conv_1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "fb_1", records[0].ID)

	cmps, err := s.GetComparisonsByConversation(ctx, "conv_1")
	require.NoError(t, err)
	require.Len(t, cmps, 1)

	deleted, err := s.DeleteFeedback(ctx, "fb_1")
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = s.DeleteFeedback(ctx, "fb_1")
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = s.DeleteComparison(ctx, "cmp_1")
	require.NoError(t, err)
	assert.True(t, deleted)
	_, err = s.GetComparison(ctx, "cmp_1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_CountByScore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for i, score := range []*float64{floatPtr(0.1), floatPtr(0.5), floatPtr(0.9), nil} {
		require.NoError(t, s.SaveFeedback(ctx, sampleRecord("fb_"+string(rune('a'+i)), "c", time.Now(), score)))
	}

	tests := []struct {
		name     string
		min, max *float64
		want     int
	}{
		{"all scored", nil, nil, 3},
		{"min only", floatPtr(0.5), nil, 2},
		{"max only", nil, floatPtr(0.5), 2},
		{"range", floatPtr(0.2), floatPtr(0.8), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := s.CountByScore(ctx, tt.min, tt.max)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestStore_ClearAll(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.SaveFeedback(ctx, sampleRecord("fb_1", "c", time.Now(), nil)))
	require.NoError(t, s.UpdateStat(ctx, "feedback_score", 0.7, nil))

	require.NoError(t, s.ClearAll(ctx))

	n, err := s.TotalCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	stats, err := s.GetStats(ctx, "feedback_score", 0)
	require.NoError(t, err)
	assert.Empty(t, stats)
}

func TestStore_Stats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.UpdateStat(ctx, "feedback_score", 0.4, map[string]interface{}{"model": "a"}))
	require.NoError(t, s.UpdateStat(ctx, "feedback_score", 0.9, nil))
	require.NoError(t, s.UpdateStat(ctx, "other", 1, nil))

	stats, err := s.GetStats(ctx, "feedback_score", 0)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	for _, st := range stats {
		assert.Equal(t, "feedback_score", st.StatType)
	}

	limited, err := s.GetStats(ctx, "feedback_score", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestStore_GetFeedbackStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now()

	records := []*Record{
		sampleRecord("fb_1", "c", now, floatPtr(0.9)),
		sampleRecord("fb_2", "c", now, floatPtr(0.5)),
		sampleRecord("fb_3", "c", now, floatPtr(0.2)),
		sampleRecord("fb_4", "c", now, nil),
	}
	records[3].SelectedResponse = "b"
	for _, r := range records {
		require.NoError(t, s.SaveFeedback(ctx, r))
	}
	require.NoError(t, s.SaveComparison(ctx, &Comparison{ID: "cmp_1", Timestamp: now, ChosenModel: "a", RejectedModel: "b"}))

	stats, err := s.GetFeedbackStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalFeedback)
	assert.Equal(t, 1, stats.PositiveFeedback)
	assert.Equal(t, 1, stats.NegativeFeedback)
	assert.Equal(t, 1, stats.NeutralFeedback)
	assert.InDelta(t, (0.9+0.5+0.2)/3, stats.AverageScore, 1e-9)
	assert.Equal(t, map[string]int{"a": 3, "b": 1}, stats.ModelDistribution)
	assert.Equal(t, 1, stats.ComparisonCount)
	assert.Equal(t, 4, stats.DailyStats[now.Format("2006-01-02")])
}

func TestStore_BackupAndRestore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.SaveFeedback(ctx, sampleRecord("fb_keep", "c", time.Now(), nil)))

	snapshot, err := s.Backup(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(s.Path()), "backups"), filepath.Dir(snapshot))
	assert.FileExists(t, snapshot)

	_, err = s.Backup(ctx, snapshot)
	assert.Error(t, err, "existing backup target must not be overwritten")

	require.NoError(t, s.ClearAll(ctx))
	require.NoError(t, s.SaveFeedback(ctx, sampleRecord("fb_new", "c", time.Now(), nil)))

	// A second live backup would collide with the first one within the same second.
	require.NoError(t, os.Rename(snapshot, snapshot+".src"))
	previous, err := s.Restore(ctx, snapshot+".src")
	require.NoError(t, err)
	assert.FileExists(t, previous)

	_, err = s.GetFeedback(ctx, "fb_keep")
	assert.NoError(t, err)
	_, err = s.GetFeedback(ctx, "fb_new")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_RestoreRejectsInvalidSnapshot(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	bogus := filepath.Join(t.TempDir(), "bogus.db")
	db, err := sql.Open("sqlite3", bogus)
	require.NoError(t, err)
	_, err = db.Exec("CREATE TABLE unrelated (x TEXT)")
	require.NoError(t, err)
	db.Close()

	_, err = s.Restore(ctx, bogus)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingColumn)

	_, err = s.Restore(ctx, filepath.Join(t.TempDir(), "absent.db"))
	assert.Error(t, err)
}

func createLegacyStore(t *testing.T, path string, rows int) {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE feedback (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		query TEXT NOT NULL,
		responses TEXT NOT NULL,
		selected_response TEXT NOT NULL,
		feedback_score REAL,
		feedback_text TEXT,
		metadata TEXT
	)`)
	require.NoError(t, err)
	for i := 0; i < rows; i++ {
		_, err = db.Exec(`INSERT INTO feedback (id, timestamp, query, responses, selected_response, feedback_score)
			VALUES (?, ?, ?, ?, ?, ?)`,
			"legacy_"+string(rune('a'+i)), "2025-01-01T00:00:00.000000", "q", `{"m":"r"}`, "m", 0.5)
		require.NoError(t, err)
	}
}

func TestStore_RepairsLegacyLayoutOnFirstOperation(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "legacy.db")
	createLegacyStore(t, path, 3)

	s := NewStore(path, nil)
	total, err := s.TotalCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.FileExists(t, path+".backup")

	records, err := s.GetFeedbackByConversation(ctx, "")
	require.NoError(t, err)
	require.Len(t, records, 3)
	for _, r := range records {
		assert.Equal(t, "", r.ConversationID)
		assert.Equal(t, "r", r.Responses["m"])
	}

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()
	cols, err := tableColumns(ctx, db, "feedback")
	require.NoError(t, err)
	assert.Contains(t, cols, "conversation_id")
	assert.NoError(t, checkSchema(ctx, db))
}

func TestStore_InitializeRepairsLegacyLayout(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "legacy.db")
	createLegacyStore(t, path, 2)

	s := NewStore(path, nil)
	require.NoError(t, s.Initialize(ctx))

	records, err := s.GetFeedbackByConversation(ctx, "")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestSchemaError(t *testing.T) {
	err := error(&SchemaError{Table: "feedback", Missing: []string{"conversation_id"}})
	assert.True(t, errors.Is(err, ErrMissingColumn))
	assert.Contains(t, err.Error(), "conversation_id")
	assert.Contains(t, (&SchemaError{Table: "stats"}).Error(), "does not exist")
}

func TestStore_ReadOnly(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	writable, err := util.NewStateBoxAt(dir, false)
	require.NoError(t, err)
	rw := NewStore("data/feedback.db", writable)
	require.NoError(t, rw.Initialize(ctx))
	require.NoError(t, rw.SaveFeedback(ctx, sampleRecord("fb_1", "c", time.Now(), nil)))

	readOnly, err := util.NewStateBoxAt(dir, true)
	require.NoError(t, err)
	ro := NewStore("data/feedback.db", readOnly)
	assert.Equal(t, rw.Path(), ro.Path())

	err = ro.SaveFeedback(ctx, sampleRecord("fb_2", "c", time.Now(), nil))
	assert.ErrorIs(t, err, util.ErrReadOnlyMode)
	_, err = ro.Backup(ctx, "")
	assert.ErrorIs(t, err, util.ErrReadOnlyMode)
	assert.ErrorIs(t, ro.RepairSchema(ctx), util.ErrReadOnlyMode)

	got, err := ro.GetFeedback(ctx, "fb_1")
	require.NoError(t, err)
	assert.Equal(t, "fb_1", got.ID)
}

// expectSchemaCheck queues the pre-flight column inspection of every table.
func expectSchemaCheck(mock sqlmock.Sqlmock) {
	for _, table := range schema {
		rows := sqlmock.NewRows([]string{"name"})
		for _, c := range table.columns {
			rows.AddRow(c.name)
		}
		mock.ExpectQuery("pragma_table_info").WithArgs(table.name).WillReturnRows(rows)
	}
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	s := &Store{path: filepath.Join(t.TempDir(), "mock.db")}
	s.open = func() (*sql.DB, error) { return db, nil }
	return s, mock
}

func TestStore_DriverErrorSurfaces(t *testing.T) {
	s, mock := newMockStore(t)
	expectSchemaCheck(mock)
	mock.ExpectExec("INSERT OR REPLACE INTO feedback").WillReturnError(errors.New("disk I/O error"))
	mock.ExpectClose()

	err := s.SaveFeedback(context.Background(), sampleRecord("fb_1", "c", time.Now(), nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_InspectionErrorIsNotRepaired(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("pragma_table_info").WithArgs("feedback").WillReturnError(errors.New("database is locked"))
	mock.ExpectClose()

	_, err := s.TotalCount(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrMissingColumn))
	assert.NoError(t, mock.ExpectationsWereMet())
	_, statErr := os.Stat(s.path + ".backup")
	assert.True(t, os.IsNotExist(statErr))
}
