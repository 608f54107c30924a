package jobs

import (
	"fmt"
	"strings"
	"time"
)

// MaxReferenceImages is the number of reference image slots per job.
const MaxReferenceImages = 10

// Kind describes the generation mode of a job.
type Kind string

const (
	KindImage        Kind = "IMG"
	KindImageToVideo Kind = "IN2V"
	KindStory        Kind = "STORY"
)

// ParseKind normalizes known kinds case-insensitively and keeps anything else
// verbatim so unknown values survive a round trip.
func ParseKind(raw string) Kind {
	trimmed := strings.TrimSpace(raw)
	for _, known := range []Kind{KindImage, KindImageToVideo, KindStory} {
		if strings.EqualFold(trimmed, string(known)) {
			return known
		}
	}
	return Kind(raw)
}

// Job is one unit of generation work, one spreadsheet row.
type Job struct {
	ID              string
	Prompt          string
	ReferenceImages [MaxReferenceImages]string
	Status          Status
	ResultName      string
	Kind            Kind
	ResultPath      string
	LastUpdatedAt   time.Time
}

// HasResult reports whether an output artifact has been matched.
func (j Job) HasResult() bool {
	return j.ResultPath != ""
}

// ResultMissing reports the display-only anomaly of a Completed job without a
// matched artifact. The next scan either matches a file or leaves it as is.
func (j Job) ResultMissing() bool {
	return j.Status == StatusCompleted && j.ResultPath == ""
}

// PrimaryReference returns the first reference image path, if any.
func (j Job) PrimaryReference() string {
	return j.ReferenceImages[0]
}

// References returns the non-empty reference image paths in slot order.
func (j Job) References() []string {
	out := make([]string, 0, MaxReferenceImages)
	for _, ref := range j.ReferenceImages {
		if ref != "" {
			out = append(out, ref)
		}
	}
	return out
}

// SyntheticID returns the identifier assigned to a row without an explicit id.
// ordinal is 1-based.
func SyntheticID(ordinal int) string {
	return fmt.Sprintf("job_%d", ordinal)
}

// TrackedFile is one open spreadsheet session.
type TrackedFile struct {
	DisplayName string
	SourcePath  string
	Jobs        []Job
	UpdatedAt   time.Time
}

// Find returns the job with the given id.
func (f TrackedFile) Find(id string) (Job, bool) {
	for _, job := range f.Jobs {
		if job.ID == id {
			return job, true
		}
	}
	return Job{}, false
}

// Counts tallies jobs per status.
func (f TrackedFile) Counts() map[Status]int {
	counts := make(map[Status]int, len(statusWire))
	for _, job := range f.Jobs {
		counts[job.Status]++
	}
	return counts
}

// Clone returns a copy whose job slice does not alias the receiver's.
func (f TrackedFile) Clone() TrackedFile {
	out := f
	if f.Jobs != nil {
		out.Jobs = make([]Job, len(f.Jobs))
		copy(out.Jobs, f.Jobs)
	}
	return out
}
