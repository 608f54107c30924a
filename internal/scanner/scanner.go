// Package scanner associates jobs with generated output files on disk by
// filename convention.
package scanner

import (
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"vmanga/internal/fileutil"
	"vmanga/internal/jobs"
	"vmanga/internal/logging"
)

var resultExtensions = map[string]struct{}{
	".mp4":  {},
	".mov":  {},
	".avi":  {},
	".mkv":  {},
	".webm": {},
	".png":  {},
	".jpg":  {},
	".jpeg": {},
}

// IsResultFile reports whether name carries one of the recognised output
// extensions.
func IsResultFile(name string) bool {
	_, ok := resultExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// ResultDir returns the sibling result folder named after the spreadsheet.
func ResultDir(spreadsheetPath string) string {
	base := filepath.Base(spreadsheetPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(spreadsheetPath), stem)
}

// CandidateDirs lists the directories scanned for results: the spreadsheet's
// own folder and, when present, its result folder.
func CandidateDirs(spreadsheetPath string) []string {
	dirs := []string{filepath.Dir(spreadsheetPath)}
	sub := ResultDir(spreadsheetPath)
	if info, err := os.Stat(sub); err == nil && info.IsDir() {
		dirs = append(dirs, sub)
	}
	return dirs
}

// Scanner matches jobs against candidate result files.
type Scanner struct {
	logger *slog.Logger
}

// New constructs a Scanner. A nil logger discards output.
func New(logger *slog.Logger) *Scanner {
	return &Scanner{logger: logging.NewComponentLogger(logger, "scanner")}
}

type candidate struct {
	path   string
	stem   string
	folded string
}

// Scan returns a copy of list where every job matched to an output file has
// Status Completed and ResultPath set. Jobs whose ResultPath already exists
// are not rematched. A ResultPath whose file has gone is dropped before
// matching, so it never outlives the file; Status is left for ResultMissing
// to report. Ties are resolved by lexicographic path order.
func (s *Scanner) Scan(list []jobs.Job, spreadsheetPath string) []jobs.Job {
	out := make([]jobs.Job, len(list))
	copy(out, list)
	if len(out) == 0 || spreadsheetPath == "" {
		return out
	}

	fold := cases.Fold()
	candidates := s.collect(spreadsheetPath, fold)

	for i := range out {
		job := &out[i]
		if job.ResultPath != "" && fileutil.Exists(job.ResultPath) {
			job.Status = jobs.StatusCompleted
			continue
		}
		job.ResultPath = ""
		if len(candidates) == 0 {
			continue
		}
		if match, ok := s.match(*job, candidates, fold); ok {
			job.ResultPath = match
			job.Status = jobs.StatusCompleted
		}
	}
	return out
}

func (s *Scanner) collect(spreadsheetPath string, fold cases.Caser) []candidate {
	var out []candidate
	for _, dir := range CandidateDirs(spreadsheetPath) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			s.logger.Debug("result directory unreadable",
				logging.String("dir", dir),
				logging.Error(err),
			)
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !IsResultFile(entry.Name()) {
				continue
			}
			name := entry.Name()
			stem := norm.NFC.String(strings.TrimSuffix(name, filepath.Ext(name)))
			out = append(out, candidate{
				path:   filepath.Join(dir, name),
				stem:   stem,
				folded: fold.String(stem),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out
}

func (s *Scanner) match(job jobs.Job, candidates []candidate, fold cases.Caser) (string, bool) {
	name := norm.NFC.String(job.ResultName)
	id := norm.NFC.String(job.ID)
	image := fold.String("Image_" + id + "_" + name)
	video := fold.String("Video_" + id + "_" + name)
	for _, c := range candidates {
		if c.folded == image || c.folded == video {
			return c.path, true
		}
	}

	if strings.TrimSpace(name) == "" {
		return "", false
	}
	pattern, err := regexp.Compile("(?i)" + regexp.QuoteMeta(name) + "(?:[^0-9]|$)")
	if err != nil {
		return "", false
	}
	var hits []string
	for _, c := range candidates {
		if pattern.MatchString(c.stem) {
			hits = append(hits, c.path)
		}
	}
	if len(hits) == 0 {
		return "", false
	}
	if len(hits) > 1 {
		s.logger.Debug("ambiguous result match resolved lexicographically",
			logging.String("job_id", job.ID),
			logging.String("result_name", job.ResultName),
			logging.String("chosen", hits[0]),
			logging.Int("candidates", len(hits)),
			logging.Error(jobs.ErrAmbiguousMatch),
		)
	}
	return hits[0], true
}
