package statestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const dayLayout = "2006-01-02"

// DayCount is the number of completions recorded on one local calendar day.
type DayCount struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

// Stats summarizes recorded completions.
type Stats struct {
	Total   int        `json:"total"`
	History []DayCount `json:"history"`
}

// RecordCompletions adds n completions to the day containing at.
func (s *Store) RecordCompletions(ctx context.Context, at time.Time, n int) error {
	if n <= 0 {
		return nil
	}
	err := s.execWithRetry(ctx,
		`INSERT INTO daily_completions (day, count) VALUES (?, ?)
         ON CONFLICT(day) DO UPDATE SET count = count + excluded.count`,
		at.Format(dayLayout), n,
	)
	if err != nil {
		return fmt.Errorf("record completions: %w", err)
	}
	return nil
}

// Stats returns the all-time total and one entry per day for the last days
// days ending at now, oldest first. Days without completions report zero.
func (s *Store) Stats(ctx context.Context, now time.Time, days int) (Stats, error) {
	ctx = ensureContext(ctx)
	var out Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(count), 0) FROM daily_completions`).Scan(&out.Total); err != nil {
		return Stats{}, fmt.Errorf("sum completions: %w", err)
	}
	if days <= 0 {
		return out, nil
	}

	start := now.AddDate(0, 0, -(days - 1))
	rows, err := s.db.QueryContext(ctx,
		`SELECT day, count FROM daily_completions WHERE day >= ? AND day <= ?`,
		start.Format(dayLayout), now.Format(dayLayout))
	if err != nil {
		return Stats{}, fmt.Errorf("query completions: %w", err)
	}
	defer rows.Close()

	byDay := make(map[string]int)
	for rows.Next() {
		var day string
		var count int
		if err := rows.Scan(&day, &count); err != nil {
			return Stats{}, fmt.Errorf("scan completions: %w", err)
		}
		byDay[day] = count
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("iterate completions: %w", err)
	}

	out.History = make([]DayCount, 0, days)
	for i := 0; i < days; i++ {
		day := start.AddDate(0, 0, i).Format(dayLayout)
		out.History = append(out.History, DayCount{Day: day, Count: byDay[day]})
	}
	return out, nil
}

// DeleteStats drops the completions recorded on the day containing day and
// reports how many were removed.
func (s *Store) DeleteStats(ctx context.Context, day time.Time) (int, error) {
	return s.clearCompletions(ctx, `DELETE FROM daily_completions WHERE day = ? RETURNING count`, day.Format(dayLayout))
}

// ResetStats drops every recorded completion and reports how many were
// removed.
func (s *Store) ResetStats(ctx context.Context) (int, error) {
	return s.clearCompletions(ctx, `DELETE FROM daily_completions RETURNING count`)
}

func (s *Store) clearCompletions(ctx context.Context, query string, args ...any) (int, error) {
	ctx = ensureContext(ctx)
	var removed int
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		removed = 0
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var n int
			if err := rows.Scan(&n); err != nil {
				return err
			}
			removed += n
		}
		return rows.Err()
	})
	if err != nil {
		return 0, fmt.Errorf("clear completions: %w", err)
	}
	return removed, nil
}
