package sheet

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"

	"vmanga/internal/jobs"
)

// Parse decodes the first worksheet of an xlsx workbook into jobs in row
// order. Blank rows are skipped and rows without an id receive job_<n>, where
// n is the 1-based ordinal of the data row.
func Parse(data []byte) ([]jobs.Job, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, jobs.Wrap(jobs.ErrParse, "open workbook", "", "", err)
	}
	defer f.Close()

	_, rows, err := firstSheetRows(f)
	if err != nil {
		return nil, err
	}
	return decodeRows(rows), nil
}

func decodeRows(rows [][]string) []jobs.Job {
	l, header := detectLayout(rows)
	start := 0
	if header {
		start = 1
	}

	out := make([]jobs.Job, 0, len(rows))
	ordinal := 0
	for _, row := range rows[min(start, len(rows)):] {
		if isBlank(row) {
			continue
		}
		ordinal++
		job := l.decode(row, ordinal)
		if job.ID == "" {
			continue
		}
		out = append(out, job)
	}
	return out
}

// Serialize encodes jobs into a new workbook using the canonical header
// layout. VIDEO_PATH is written only when at least one job has a result.
func Serialize(list []jobs.Job) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	withResult := false
	for _, job := range list {
		if job.ResultPath != "" {
			withResult = true
			break
		}
	}

	headers := Headers(withResult)
	header := make([]any, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	for i, job := range list {
		ref, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		values := encode(job, withResult)
		if err := f.SetSheetRow(SheetName, ref, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func firstSheetRows(f *excelize.File) (string, [][]string, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", nil, jobs.Wrap(jobs.ErrParse, "read workbook", "", "workbook has no sheets", nil)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return "", nil, jobs.Wrap(jobs.ErrParse, "read rows", "", sheets[0], err)
	}
	return sheets[0], rows, nil
}

var errNoRows = errors.New("workbook has no header row")
