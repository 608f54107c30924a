package statestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"vmanga/internal/jobs"
)

// JobState is the persisted part of a job: enough to seed reconciliation
// after a restart.
type JobState struct {
	Status        jobs.Status
	LastUpdatedAt time.Time
}

// SaveJobStates replaces the stored states for path with list.
func (s *Store) SaveJobStates(ctx context.Context, path string, list []jobs.Job) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM job_states WHERE path = ?`, path); err != nil {
			return err
		}
		if len(list) == 0 {
			return nil
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR REPLACE INTO job_states (path, job_id, status, last_updated_at) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, job := range list {
			if _, err := stmt.ExecContext(ctx, path, job.ID, job.Status.String(), formatTime(job.LastUpdatedAt)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save job states: %w", err)
	}
	return nil
}

// JobStates returns the stored states for path keyed by job id.
func (s *Store) JobStates(ctx context.Context, path string) (map[string]JobState, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT job_id, status, last_updated_at FROM job_states WHERE path = ?`, path)
	if err != nil {
		return nil, fmt.Errorf("query job states: %w", err)
	}
	defer rows.Close()

	out := make(map[string]JobState)
	for rows.Next() {
		var id, status, updated string
		if err := rows.Scan(&id, &status, &updated); err != nil {
			return nil, fmt.Errorf("scan job state: %w", err)
		}
		out[id] = JobState{Status: jobs.ParseStatus(status), LastUpdatedAt: parseTime(updated)}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job states: %w", err)
	}
	return out, nil
}

// PreviousJobs turns stored states into the job list shape the reconciler
// expects as its previous snapshot.
func PreviousJobs(states map[string]JobState) []jobs.Job {
	out := make([]jobs.Job, 0, len(states))
	for id, st := range states {
		out = append(out, jobs.Job{ID: id, Status: st.Status, LastUpdatedAt: st.LastUpdatedAt})
	}
	return out
}
