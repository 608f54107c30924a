package sheet

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/xuri/excelize/v2"

	"vmanga/internal/fileutil"
	"vmanga/internal/jobs"
)

const lockRetryDelay = 50 * time.Millisecond

// StatusUpdate sets the status of the row whose JOB_ID equals ID.
type StatusUpdate struct {
	ID     string
	Status jobs.Status
}

// Writer applies in-place edits to job workbooks on disk.
type Writer struct {
	lockDir string

	mu    sync.Mutex
	paths map[string]*sync.Mutex
}

// NewWriter returns a Writer. When lockDir is non-empty, every rewrite also
// holds an flock under lockDir so separate processes do not interleave.
func NewWriter(lockDir string) *Writer {
	return &Writer{lockDir: strings.TrimSpace(lockDir), paths: make(map[string]*sync.Mutex)}
}

// ApplyStatusUpdates re-reads the workbook at path, rewrites the STATUS cell of
// every row whose id matches an update and atomically replaces the file. It
// returns the number of rows updated. The workbook is not rewritten when no row
// matches.
func (w *Writer) ApplyStatusUpdates(ctx context.Context, path string, updates []StatusUpdate) (int, error) {
	if len(updates) == 0 {
		return 0, nil
	}
	want := make(map[string]jobs.Status, len(updates))
	for _, u := range updates {
		want[strings.TrimSpace(u.ID)] = u.Status
	}

	updated := 0
	err := w.rewrite(ctx, path, "apply status updates", func(ed *editor) error {
		for _, r := range ed.dataRows() {
			status, ok := want[r.id]
			if !ok {
				continue
			}
			if err := ed.set(r.index, ed.statusCol, status.String()); err != nil {
				return err
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

// SetResultPath links a result file to a job: VIDEO_PATH is set to resultPath
// (the column is created when missing) and STATUS to Completed in one write.
func (w *Writer) SetResultPath(ctx context.Context, path, id, resultPath string) error {
	id = strings.TrimSpace(id)
	matched := false
	err := w.rewrite(ctx, path, "set result path", func(ed *editor) error {
		col := indexOf(ed.header(), HeaderVideoPath)
		if col < 0 {
			col = len(ed.header())
			if err := ed.set(0, col, HeaderVideoPath); err != nil {
				return err
			}
		}
		for _, r := range ed.dataRows() {
			if r.id != id {
				continue
			}
			if err := ed.set(r.index, col, resultPath); err != nil {
				return err
			}
			if err := ed.set(r.index, ed.statusCol, jobs.StatusCompleted.String()); err != nil {
				return err
			}
			matched = true
		}
		if !matched {
			ed.discard()
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !matched {
		return jobs.Wrap(jobs.ErrNotFound, "set result path", path, fmt.Sprintf("job %q", id), nil)
	}
	return nil
}

// WriteJobs serializes list into a new workbook at path, replacing any
// existing file atomically.
func (w *Writer) WriteJobs(ctx context.Context, path string, list []jobs.Job) error {
	unlock, err := w.lock(ctx, path)
	if err != nil {
		return err
	}
	defer unlock()

	data, err := Serialize(list)
	if err != nil {
		return jobs.Wrap(jobs.ErrIO, "write jobs", path, "", err)
	}
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return jobs.Wrap(jobs.ErrIO, "write jobs", path, "", err)
	}
	return nil
}

func (w *Writer) rewrite(ctx context.Context, path, op string, edit func(*editor) error) error {
	unlock, err := w.lock(ctx, path)
	if err != nil {
		return err
	}
	defer unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return jobs.Wrap(jobs.ErrNotFound, op, path, "", err)
		}
		return jobs.Wrap(jobs.ErrIO, op, path, "read workbook", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return jobs.Wrap(jobs.ErrParse, op, path, "", err)
	}
	defer f.Close()

	sheetName, rows, err := firstSheetRows(f)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return jobs.Wrap(jobs.ErrStructure, op, path, "", errNoRows)
	}
	ed := &editor{file: f, sheet: sheetName, rows: rows}
	ed.idCol = indexOf(rows[0], HeaderJobID)
	ed.statusCol = indexOf(rows[0], HeaderStatus)
	if ed.idCol < 0 || ed.statusCol < 0 {
		return jobs.Wrap(jobs.ErrStructure, op, path, "JOB_ID and STATUS columns are required", nil)
	}

	if err := edit(ed); err != nil {
		return jobs.Wrap(jobs.ErrIO, op, path, "edit workbook", err)
	}
	if !ed.dirty {
		return nil
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return jobs.Wrap(jobs.ErrIO, op, path, "encode workbook", err)
	}
	if err := fileutil.WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		return jobs.Wrap(jobs.ErrIO, op, path, "", err)
	}
	return nil
}

func (w *Writer) lock(ctx context.Context, path string) (func(), error) {
	key := filepath.Clean(path)

	w.mu.Lock()
	mu, ok := w.paths[key]
	if !ok {
		mu = &sync.Mutex{}
		w.paths[key] = mu
	}
	w.mu.Unlock()
	mu.Lock()

	if w.lockDir == "" {
		return mu.Unlock, nil
	}

	if err := os.MkdirAll(w.lockDir, 0o755); err != nil {
		mu.Unlock()
		return nil, jobs.Wrap(jobs.ErrIO, "lock workbook", path, "create lock directory", err)
	}
	sum := sha1.Sum([]byte(key))
	fl := flock.New(filepath.Join(w.lockDir, hex.EncodeToString(sum[:])+".lock"))
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		mu.Unlock()
		if err == nil {
			err = ctx.Err()
		}
		return nil, jobs.Wrap(jobs.ErrIO, "lock workbook", path, "", err)
	}
	return func() {
		_ = fl.Unlock()
		mu.Unlock()
	}, nil
}

type dataRow struct {
	index int
	id    string
}

type editor struct {
	file      *excelize.File
	sheet     string
	rows      [][]string
	idCol     int
	statusCol int
	dirty     bool
}

func (e *editor) header() []string {
	return e.rows[0]
}

// dataRows lists the non-blank rows below the header with their effective id,
// using the same ordinal rule as Parse for rows without one.
func (e *editor) dataRows() []dataRow {
	out := make([]dataRow, 0, len(e.rows))
	ordinal := 0
	for i := 1; i < len(e.rows); i++ {
		if isBlank(e.rows[i]) {
			continue
		}
		ordinal++
		id := strings.TrimSpace(cell(e.rows[i], e.idCol))
		if id == "" {
			id = jobs.SyntheticID(ordinal)
		}
		out = append(out, dataRow{index: i, id: id})
	}
	return out
}

// set writes value at the zero-based row and column. Writing a value the cell
// already holds leaves the workbook clean.
func (e *editor) set(row, col int, value string) error {
	if row < len(e.rows) && cell(e.rows[row], col) == value {
		return nil
	}
	ref, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return err
	}
	if err := e.file.SetCellValue(e.sheet, ref, value); err != nil {
		return err
	}
	e.dirty = true
	return nil
}

func (e *editor) discard() {
	e.dirty = false
}
