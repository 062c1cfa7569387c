// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package feedback

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultStatsLimit = 100

// UpdateStat appends one row to the stats table. The id is
// <type>_<YYYYmmddHHMMSS>_<8 hex>.
func (s *Store) UpdateStat(ctx context.Context, statType string, value float64, metadata map[string]interface{}) error {
	now := time.Now()
	id := fmt.Sprintf("%s_%s_%s", statType, now.Format("20060102150405"),
		strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	blob, err := encodeMetadata(metadata)
	if err != nil {
		return err
	}

	return s.run(ctx, true, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			"INSERT INTO stats (id, timestamp, stat_type, value, metadata) VALUES (?, ?, ?, ?, ?)",
			id, formatTimestamp(now), statType, value, blob)
		if err != nil {
			return fmt.Errorf("failed to record stat %s: %w", statType, err)
		}
		return nil
	})
}

// GetStats returns up to limit rows of statType, newest first. A limit of
// zero or less means 100.
func (s *Store) GetStats(ctx context.Context, statType string, limit int) ([]Stat, error) {
	if limit <= 0 {
		limit = defaultStatsLimit
	}

	var out []Stat
	err := s.run(ctx, false, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx,
			"SELECT id, timestamp, stat_type, value, metadata FROM stats WHERE stat_type = ? ORDER BY timestamp DESC LIMIT ?",
			statType, limit)
		if err != nil {
			return fmt.Errorf("failed to query stats: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				st   Stat
				ts   string
				blob sql.NullString
			)
			if err := rows.Scan(&st.ID, &ts, &st.StatType, &st.Value, &blob); err != nil {
				return err
			}
			st.Timestamp = parseTimestamp(ts)
			st.Metadata = decodeMetadata(st.ID, blob)
			out = append(out, st)
		}
		return rows.Err()
	})
	return out, err
}

// GetFeedbackStats aggregates the feedback and comparison tables.
func (s *Store) GetFeedbackStats(ctx context.Context) (FeedbackStats, error) {
	stats := FeedbackStats{
		ModelDistribution: map[string]int{},
		DailyStats:        map[string]int{},
	}

	err := s.run(ctx, false, func(db *sql.DB) error {
		var avg sql.NullFloat64
		err := db.QueryRowContext(ctx, `SELECT
				COUNT(*),
				COALESCE(SUM(CASE WHEN feedback_score >= 0.8 THEN 1 ELSE 0 END), 0),
				COALESCE(SUM(CASE WHEN feedback_score <= 0.3 THEN 1 ELSE 0 END), 0),
				COALESCE(SUM(CASE WHEN feedback_score > 0.3 AND feedback_score < 0.8 THEN 1 ELSE 0 END), 0),
				AVG(feedback_score)
			FROM feedback WHERE feedback_score IS NOT NULL`).Scan(
			&stats.TotalFeedback, &stats.PositiveFeedback, &stats.NegativeFeedback, &stats.NeutralFeedback, &avg)
		if err != nil {
			return fmt.Errorf("failed to aggregate feedback scores: %w", err)
		}
		stats.AverageScore = avg.Float64

		if err := scanCounts(ctx, db, stats.ModelDistribution,
			"SELECT selected_response, COUNT(*) FROM feedback GROUP BY selected_response"); err != nil {
			return err
		}

		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM comparisons").Scan(&stats.ComparisonCount); err != nil {
			return fmt.Errorf("failed to count comparisons: %w", err)
		}

		return scanCounts(ctx, db, stats.DailyStats, `SELECT strftime('%Y-%m-%d', timestamp) AS day, COUNT(*)
			FROM feedback GROUP BY day ORDER BY day DESC LIMIT 30`)
	})
	return stats, err
}

func scanCounts(ctx context.Context, db *sql.DB, into map[string]int, q string) error {
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return fmt.Errorf("failed to query counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key sql.NullString
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		if key.Valid {
			into[key.String] = n
		}
	}
	return rows.Err()
}
