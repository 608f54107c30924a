package jobs

import "fmt"

// Status is the lifecycle state of a job as recorded in the spreadsheet.
type Status uint8

const (
	// StatusEmpty is the not-started or reset state.
	StatusEmpty Status = iota
	StatusPending
	StatusProcessing
	StatusGenerating
	StatusCompleted
	StatusFailed
)

var statusWire = [...]string{
	StatusEmpty:      "",
	StatusPending:    "Pending",
	StatusProcessing: "Processing",
	StatusGenerating: "Generating",
	StatusCompleted:  "Completed",
	StatusFailed:     "Failed",
}

// ParseStatus converts a raw cell value into a Status. Matching is exact and
// case-sensitive; unrecognized values collapse to StatusEmpty.
func ParseStatus(raw string) Status {
	for i, wire := range statusWire {
		if wire == raw {
			return Status(i)
		}
	}
	return StatusEmpty
}

// String returns the wire format of the status.
func (s Status) String() string {
	if int(s) < len(statusWire) {
		return statusWire[s]
	}
	return ""
}

// Label returns a human readable status name. The empty status renders as "Idle".
func (s Status) Label() string {
	if s == StatusEmpty {
		return "Idle"
	}
	return s.String()
}

// InProgress reports whether an external generator is believed to be working
// on the job.
func (s Status) InProgress() bool {
	return s == StatusProcessing || s == StatusGenerating
}

// AllStatuses lists every status in display order.
func AllStatuses() []Status {
	return []Status{StatusEmpty, StatusPending, StatusProcessing, StatusGenerating, StatusCompleted, StatusFailed}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unlike ParseStatus it
// rejects unknown values so API clients get an explicit error.
func (s *Status) UnmarshalText(text []byte) error {
	raw := string(text)
	parsed := ParseStatus(raw)
	if parsed == StatusEmpty && raw != "" {
		return fmt.Errorf("unknown job status %q", raw)
	}
	*s = parsed
	return nil
}
