// Package reconcile merges freshly parsed and scanned jobs with previously
// published state.
package reconcile

import (
	"time"

	"vmanga/internal/jobs"
)

// Reconcile returns fresh in its own order with LastUpdatedAt settled against
// previous. A job whose id existed before with the same status keeps its
// previous timestamp; a changed status or a first sighting is stamped with now.
// Neither input is modified.
func Reconcile(previous, fresh []jobs.Job, now time.Time) []jobs.Job {
	prior := index(previous)
	out := make([]jobs.Job, len(fresh))
	for i, job := range fresh {
		if prev, ok := prior[job.ID]; ok && prev.Status == job.Status && !prev.LastUpdatedAt.IsZero() {
			job.LastUpdatedAt = prev.LastUpdatedAt
		} else {
			job.LastUpdatedAt = now
		}
		out[i] = job
	}
	return out
}

// Transition describes a job whose status changed between two snapshots.
type Transition struct {
	ID   string
	From jobs.Status
	To   jobs.Status
}

// Transitions lists status changes from previous to merged for ids present in
// both. First sightings are not transitions.
func Transitions(previous, merged []jobs.Job) []Transition {
	prior := index(previous)
	var out []Transition
	for _, job := range merged {
		prev, ok := prior[job.ID]
		if !ok || prev.Status == job.Status {
			continue
		}
		out = append(out, Transition{ID: job.ID, From: prev.Status, To: job.Status})
	}
	return out
}

// Completions counts transitions into Completed.
func Completions(transitions []Transition) int {
	n := 0
	for _, tr := range transitions {
		if tr.To == jobs.StatusCompleted {
			n++
		}
	}
	return n
}

func index(list []jobs.Job) map[string]jobs.Job {
	out := make(map[string]jobs.Job, len(list))
	for _, job := range list {
		out[job.ID] = job
	}
	return out
}
