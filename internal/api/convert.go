package api

import (
	"strings"
	"time"

	"vmanga/internal/jobs"
	"vmanga/internal/license"
	"vmanga/internal/registry"
	"vmanga/internal/statestore"
	"vmanga/internal/watchdog"
)

// FromJob converts a job to its API representation.
func FromJob(job jobs.Job) Job {
	return Job{
		ID:            job.ID,
		Prompt:        job.Prompt,
		References:    job.References(),
		Status:        job.Status.String(),
		StatusLabel:   job.Status.Label(),
		ResultName:    job.ResultName,
		Kind:          string(job.Kind),
		ResultPath:    job.ResultPath,
		ResultMissing: job.ResultMissing(),
		LastUpdatedAt: formatTime(job.LastUpdatedAt),
	}
}

// Summarize counts jobs per status. Count keys are lowercase labels.
func Summarize(list []jobs.Job) Summary {
	s := Summary{Total: len(list), Counts: make(map[string]int, len(jobs.AllStatuses()))}
	for _, status := range jobs.AllStatuses() {
		s.Counts[statusKey(status)] = 0
	}
	for _, job := range list {
		s.Counts[statusKey(job.Status)]++
		switch {
		case job.Status == jobs.StatusCompleted:
			s.Completed++
		case job.Status == jobs.StatusFailed:
			s.Failed++
		case job.Status.InProgress():
			s.InProgress++
		}
	}
	return s
}

// FromTrackedFile converts a snapshot. Jobs are included only when withJobs
// is set.
func FromTrackedFile(tf jobs.TrackedFile, activePath string, withJobs bool) FileSnapshot {
	dto := FileSnapshot{
		Path:        tf.SourcePath,
		DisplayName: tf.DisplayName,
		Active:      tf.SourcePath != "" && tf.SourcePath == activePath,
		UpdatedAt:   formatTime(tf.UpdatedAt),
		Summary:     Summarize(tf.Jobs),
	}
	if withJobs {
		dto.Jobs = make([]Job, 0, len(tf.Jobs))
		for _, job := range tf.Jobs {
			dto.Jobs = append(dto.Jobs, FromJob(job))
		}
	}
	return dto
}

// FromTrackedFiles converts the open list.
func FromTrackedFiles(list []jobs.TrackedFile, activePath string) FileListResponse {
	out := FileListResponse{Active: activePath, Files: make([]FileSnapshot, 0, len(list))}
	for _, tf := range list {
		out.Files = append(out.Files, FromTrackedFile(tf, activePath, false))
	}
	return out
}

// FromLicenseStatus converts the activation state.
func FromLicenseStatus(st license.Status) LicenseStatus {
	return LicenseStatus{
		MachineID:   st.MachineID,
		Activated:   st.Activated,
		Required:    st.Required,
		ActivatedAt: formatTime(st.ActivatedAt),
	}
}

// FromStats converts completion statistics.
func FromStats(st statestore.Stats) StatsResponse {
	out := StatsResponse{Total: st.Total, History: make([]DayCount, 0, len(st.History))}
	for _, d := range st.History {
		out.History = append(out.History, DayCount{Day: d.Day, Count: d.Count})
	}
	return out
}

// FromSweep converts a watchdog result.
func FromSweep(res watchdog.Result) SweepResponse {
	return SweepResponse{Files: res.Files, Jobs: res.Jobs, Failed: res.Failed}
}

// FromEvent converts a registry event. Published events carry the job list.
func FromEvent(ev registry.Event) Event {
	return Event{
		Kind:   string(ev.Kind),
		Active: ev.Active,
		At:     formatTime(ev.At),
		File:   FromTrackedFile(ev.File, ev.Active, ev.Kind == registry.EventPublished),
	}
}

func statusKey(status jobs.Status) string {
	return strings.ToLower(status.Label())
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
