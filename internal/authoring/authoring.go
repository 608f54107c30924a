// Package authoring turns a scene script and a folder of character reference
// images into a job workbook ready for the external generator.
package authoring

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"vmanga/internal/jobs"
	"vmanga/internal/sheet"
)

// Mode selects the generation kind assigned to built jobs.
type Mode string

const (
	ModeImage Mode = "image"
	ModeVideo Mode = "video"
)

// ParseMode accepts "image" or "video" case-insensitively.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeImage:
		return ModeImage, nil
	case ModeVideo:
		return ModeVideo, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want image or video)", raw)
	}
}

// Scene is one row of the script workbook.
type Scene struct {
	Number      string
	Description string
	Characters  []string
}

const (
	columnNumber      = "stt"
	columnDescription = "description"
	columnCharacters  = "characters"
)

var characterSeparators = regexp.MustCompile(`[,;]`)

var referenceExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".webp": {},
}

// LoadScenes reads the first worksheet of the script at path. Header names are
// matched case-insensitively. A row without a scene number is numbered by its
// 1-based data row position.
func LoadScenes(path string) ([]Scene, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, jobs.Wrap(jobs.ErrParse, "load scenes", path, "", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, jobs.Wrap(jobs.ErrParse, "load scenes", path, "workbook has no sheets", nil)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, jobs.Wrap(jobs.ErrParse, "load scenes", path, "", err)
	}
	if len(rows) == 0 {
		return nil, jobs.Wrap(jobs.ErrStructure, "load scenes", path, "missing header row", nil)
	}

	cols := map[string]int{}
	for i, name := range rows[0] {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, seen := cols[key]; !seen {
			cols[key] = i
		}
	}
	descCol, ok := cols[columnDescription]
	if !ok {
		return nil, jobs.Wrap(jobs.ErrStructure, "load scenes", path, "missing Description column", nil)
	}
	numCol, hasNum := cols[columnNumber]
	charCol, hasChars := cols[columnCharacters]

	var scenes []Scene
	for i, row := range rows[1:] {
		desc := cellAt(row, descCol)
		var chars string
		if hasChars {
			chars = cellAt(row, charCol)
		}
		num := ""
		if hasNum {
			num = cellAt(row, numCol)
		}
		if desc == "" && chars == "" && num == "" {
			continue
		}
		if num == "" {
			num = strconv.Itoa(i + 1)
		}
		scenes = append(scenes, Scene{
			Number:      num,
			Description: desc,
			Characters:  splitCharacters(chars),
		})
	}
	return scenes, nil
}

// LoadCharacters lists reference images in dir, sorted by name.
func LoadCharacters(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read character folder: %w", err)
	}
	var out []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := referenceExtensions[strings.ToLower(filepath.Ext(entry.Name()))]; !ok {
			continue
		}
		out = append(out, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// Options controls Build.
type Options struct {
	// BaseName prefixes every result name. A trailing .xlsx is stripped.
	BaseName string
	Mode     Mode
}

// Build creates one job per scene. Each character name is matched against
// the reference file names by case-insensitive substring; the first hit fills
// the next free reference slot.
func Build(scenes []Scene, characterFiles []string, opts Options) ([]jobs.Job, error) {
	base := strings.TrimSpace(opts.BaseName)
	if strings.HasSuffix(strings.ToLower(base), ".xlsx") {
		base = base[:len(base)-len(".xlsx")]
	}
	if base == "" {
		return nil, errors.New("output name is required")
	}

	names := make([]string, len(characterFiles))
	for i, file := range characterFiles {
		names[i] = strings.ToLower(filepath.Base(file))
	}

	out := make([]jobs.Job, 0, len(scenes))
	for _, scene := range scenes {
		job := jobs.Job{
			ID:         "Job_" + scene.Number,
			Prompt:     scene.Description,
			ResultName: base + "_" + scene.Number,
		}
		slot := 0
		for _, character := range scene.Characters {
			if slot >= jobs.MaxReferenceImages {
				break
			}
			needle := strings.ToLower(character)
			for i, name := range names {
				if strings.Contains(name, needle) {
					job.ReferenceImages[slot] = characterFiles[i]
					slot++
					break
				}
			}
		}
		switch {
		case opts.Mode == ModeImage:
			job.Kind = jobs.KindImage
		case job.PrimaryReference() != "":
			job.Kind = jobs.KindImageToVideo
		default:
			job.Kind = jobs.KindStory
		}
		out = append(out, job)
	}
	return out, nil
}

// Write stores list as a new job workbook at path. A non-empty lockDir holds
// the same cross-process lock the daemon takes for the path.
func Write(ctx context.Context, lockDir, path string, list []jobs.Job) error {
	return sheet.NewWriter(lockDir).WriteJobs(ctx, path, list)
}

func splitCharacters(raw string) []string {
	var out []string
	for _, part := range characterSeparators.Split(raw, -1) {
		if name := strings.TrimSpace(part); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
