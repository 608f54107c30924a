package statestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// TrackedFile is a persisted open spreadsheet.
type TrackedFile struct {
	Path        string
	DisplayName string
	Position    int
	Active      bool
	OpenedAt    time.Time
}

// SaveTrackedFile records path at the end of the open list, or updates the
// display name of an existing entry without moving it.
func (s *Store) SaveTrackedFile(ctx context.Context, path, displayName string, openedAt time.Time) error {
	err := s.execWithRetry(ctx,
		`INSERT INTO tracked_files (path, display_name, position, active, opened_at)
         VALUES (?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM tracked_files), 0, ?)
         ON CONFLICT(path) DO UPDATE SET display_name = excluded.display_name`,
		path, displayName, formatTime(openedAt),
	)
	if err != nil {
		return fmt.Errorf("save tracked file: %w", err)
	}
	return nil
}

// RemoveTrackedFile forgets path and its job states.
func (s *Store) RemoveTrackedFile(ctx context.Context, path string) error {
	if err := s.execWithRetry(ctx, `DELETE FROM tracked_files WHERE path = ?`, path); err != nil {
		return fmt.Errorf("remove tracked file: %w", err)
	}
	return nil
}

// SetActive marks path as the only active file. An empty path clears the flag.
func (s *Store) SetActive(ctx context.Context, path string) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE tracked_files SET active = 0 WHERE active <> 0`); err != nil {
			return err
		}
		if path == "" {
			return nil
		}
		_, err := tx.ExecContext(ctx, `UPDATE tracked_files SET active = 1 WHERE path = ?`, path)
		return err
	})
	if err != nil {
		return fmt.Errorf("set active file: %w", err)
	}
	return nil
}

// TrackedFiles lists persisted files in open order.
func (s *Store) TrackedFiles(ctx context.Context) ([]TrackedFile, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT path, display_name, position, active, opened_at FROM tracked_files ORDER BY position, path`)
	if err != nil {
		return nil, fmt.Errorf("list tracked files: %w", err)
	}
	defer rows.Close()

	var out []TrackedFile
	for rows.Next() {
		var (
			tf       TrackedFile
			active   int
			openedAt string
		)
		if err := rows.Scan(&tf.Path, &tf.DisplayName, &tf.Position, &active, &openedAt); err != nil {
			return nil, fmt.Errorf("scan tracked file: %w", err)
		}
		tf.Active = active != 0
		tf.OpenedAt = parseTime(openedAt)
		out = append(out, tf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tracked files: %w", err)
	}
	return out, nil
}
