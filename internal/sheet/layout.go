package sheet

import (
	"fmt"
	"strings"

	"vmanga/internal/jobs"
)

// SheetName is the worksheet name used when creating new workbooks.
const SheetName = "MangaJobs"

const (
	HeaderJobID     = "JOB_ID"
	HeaderPrompt    = "PROMPT"
	HeaderStatus    = "STATUS"
	HeaderVideoName = "VIDEO_NAME"
	HeaderTypeVideo = "TYPE_VIDEO"
	HeaderVideoPath = "VIDEO_PATH"
)

// ImageHeader returns the header for the zero-based reference slot.
func ImageHeader(slot int) string {
	if slot == 0 {
		return "IMAGE_PATH"
	}
	return fmt.Sprintf("IMAGE_PATH_%d", slot+1)
}

// Headers returns the canonical header row. VIDEO_PATH is appended when
// withResultPath is set.
func Headers(withResultPath bool) []string {
	out := make([]string, 0, 16)
	out = append(out, HeaderJobID, HeaderPrompt)
	for i := 0; i < jobs.MaxReferenceImages; i++ {
		out = append(out, ImageHeader(i))
	}
	out = append(out, HeaderStatus, HeaderVideoName, HeaderTypeVideo)
	if withResultPath {
		out = append(out, HeaderVideoPath)
	}
	return out
}

// layout maps job fields to zero-based column indexes; -1 means absent.
type layout struct {
	id     int
	prompt int
	images [jobs.MaxReferenceImages]int
	status int
	name   int
	kind   int
	result int
}

func positionalLayout() layout {
	l := layout{id: 0, prompt: 1, status: 12, name: 13, kind: 14, result: 15}
	for i := range l.images {
		l.images[i] = 2 + i
	}
	return l
}

// headerLayout builds a layout from a header row. ok is false when the row
// does not look like a header at all.
func headerLayout(row []string) (layout, bool) {
	index := make(map[string]int, len(row))
	for i, cell := range row {
		key := strings.ToUpper(strings.TrimSpace(cell))
		if key == "" {
			continue
		}
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}
	_, hasID := index[HeaderJobID]
	_, hasStatus := index[HeaderStatus]
	if !hasID && !hasStatus {
		return layout{}, false
	}

	lookup := func(name string) int {
		if i, ok := index[name]; ok {
			return i
		}
		return -1
	}
	l := layout{
		id:     lookup(HeaderJobID),
		prompt: lookup(HeaderPrompt),
		status: lookup(HeaderStatus),
		name:   lookup(HeaderVideoName),
		kind:   lookup(HeaderTypeVideo),
		result: lookup(HeaderVideoPath),
	}
	for i := range l.images {
		l.images[i] = lookup(ImageHeader(i))
	}
	return l, true
}

// detectLayout picks the layout for rows and reports whether row 0 is a header.
func detectLayout(rows [][]string) (layout, bool) {
	if len(rows) > 0 {
		if l, ok := headerLayout(rows[0]); ok {
			return l, true
		}
	}
	return positionalLayout(), false
}

func (l layout) decode(row []string, ordinal int) jobs.Job {
	job := jobs.Job{
		ID:         strings.TrimSpace(cell(row, l.id)),
		Prompt:     cell(row, l.prompt),
		Status:     jobs.ParseStatus(strings.TrimSpace(cell(row, l.status))),
		ResultName: strings.TrimSpace(cell(row, l.name)),
		Kind:       jobs.ParseKind(cell(row, l.kind)),
		ResultPath: strings.TrimSpace(cell(row, l.result)),
	}
	for i, col := range l.images {
		job.ReferenceImages[i] = strings.TrimSpace(cell(row, col))
	}
	if job.ID == "" {
		job.ID = jobs.SyntheticID(ordinal)
	}
	return job
}

func encode(job jobs.Job, withResultPath bool) []any {
	out := make([]any, 0, 16)
	out = append(out, job.ID, job.Prompt)
	for _, ref := range job.ReferenceImages {
		out = append(out, ref)
	}
	out = append(out, job.Status.String(), job.ResultName, string(job.Kind))
	if withResultPath {
		out = append(out, job.ResultPath)
	}
	return out
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func isBlank(row []string) bool {
	for _, value := range row {
		if strings.TrimSpace(value) != "" {
			return false
		}
	}
	return true
}

func indexOf(row []string, header string) int {
	for i, value := range row {
		if strings.EqualFold(strings.TrimSpace(value), header) {
			return i
		}
	}
	return -1
}
