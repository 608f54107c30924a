// Package gateway applies user and watchdog actions to spreadsheets on disk.
//
// Every operation returns once the write has landed. Callers must not assume
// the published job list reflects it yet; the watch cycle re-reads the file
// and republishes.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"vmanga/internal/fileutil"
	"vmanga/internal/jobs"
	"vmanga/internal/logging"
	"vmanga/internal/notifications"
	"vmanga/internal/scanner"
	"vmanga/internal/sheet"
)

// Gateway writes status changes through a sheet.Writer.
type Gateway struct {
	writer   *sheet.Writer
	notifier notifications.Service
	logger   *slog.Logger
}

// New constructs a Gateway. A nil notifier disables failure notifications.
func New(writer *sheet.Writer, notifier notifications.Service, logger *slog.Logger) *Gateway {
	if notifier == nil {
		notifier = notifications.NewService(nil)
	}
	return &Gateway{
		writer:   writer,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "gateway"),
	}
}

// RetrySingle clears the status of jobID so the external generator picks it
// up again. It fails with jobs.ErrNotFound when no row carries that id.
func (g *Gateway) RetrySingle(ctx context.Context, tf jobs.TrackedFile, jobID string) error {
	jobID = strings.TrimSpace(jobID)
	n, err := g.writer.ApplyStatusUpdates(ctx, tf.SourcePath, []sheet.StatusUpdate{{ID: jobID, Status: jobs.StatusEmpty}})
	if err != nil {
		return g.fail(ctx, "retry job", tf.SourcePath, jobID, err)
	}
	if n == 0 {
		return g.fail(ctx, "retry job", tf.SourcePath, jobID,
			jobs.Wrap(jobs.ErrNotFound, "retry job", tf.SourcePath, fmt.Sprintf("job %q", jobID), nil))
	}
	g.logger.Info("job reset for retry", logging.Sheet(tf.SourcePath), logging.JobID(jobID))
	return nil
}

// ResetAllIncomplete clears every job in the published snapshot whose status
// is not Completed, in a single write. It returns the number of rows reset.
func (g *Gateway) ResetAllIncomplete(ctx context.Context, tf jobs.TrackedFile) (int, error) {
	var ids []string
	for _, job := range tf.Jobs {
		if job.Status != jobs.StatusCompleted {
			ids = append(ids, job.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := g.ResetJobs(ctx, tf.SourcePath, ids)
	if err != nil {
		return 0, g.fail(ctx, "reset incomplete jobs", tf.SourcePath, "", err)
	}
	g.logger.Info("incomplete jobs reset", logging.Sheet(tf.SourcePath), logging.Int("count", n))
	return n, nil
}

// ResetJobs clears the status of ids in one write. It does not notify; callers
// decide how to report.
func (g *Gateway) ResetJobs(ctx context.Context, path string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	updates := make([]sheet.StatusUpdate, 0, len(ids))
	for _, id := range ids {
		updates = append(updates, sheet.StatusUpdate{ID: id, Status: jobs.StatusEmpty})
	}
	return g.writer.ApplyStatusUpdates(ctx, path, updates)
}

// DeleteResultAndReset removes the job's result file and then clears its
// status. An already absent file counts as removed. When removal fails the
// spreadsheet is left untouched and an ErrIO error is returned. An empty
// resultPath falls back to the path in the published snapshot.
//
// Only the job's published result, or a result-extension file directly inside
// one of the spreadsheet's candidate folders, may be deleted. Anything else
// fails with ErrNotFound and nothing is touched.
func (g *Gateway) DeleteResultAndReset(ctx context.Context, tf jobs.TrackedFile, jobID, resultPath string) error {
	jobID = strings.TrimSpace(jobID)
	job, found := tf.Find(jobID)
	if resultPath == "" && found {
		resultPath = job.ResultPath
	}

	if resultPath != "" {
		if !deletableResult(tf, job, resultPath) {
			return g.fail(ctx, "delete result", tf.SourcePath, jobID,
				jobs.Wrap(jobs.ErrNotFound, "delete result", resultPath, "not a result file of this spreadsheet", nil))
		}
		removed, err := fileutil.RemoveIfExists(resultPath)
		if err != nil {
			return g.fail(ctx, "delete result", tf.SourcePath, jobID,
				jobs.Wrap(jobs.ErrIO, "delete result", resultPath, "", err))
		}
		if removed {
			g.logger.Info("result file deleted", logging.Sheet(tf.SourcePath), logging.JobID(jobID), logging.String("result", resultPath))
		}
	}

	n, err := g.writer.ApplyStatusUpdates(ctx, tf.SourcePath, []sheet.StatusUpdate{{ID: jobID, Status: jobs.StatusEmpty}})
	if err != nil {
		return g.fail(ctx, "delete result", tf.SourcePath, jobID, err)
	}
	if n == 0 {
		return g.fail(ctx, "delete result", tf.SourcePath, jobID,
			jobs.Wrap(jobs.ErrNotFound, "delete result", tf.SourcePath, fmt.Sprintf("job %q", jobID), nil))
	}
	return nil
}

// deletableResult reports whether path is the job's published result or a
// result file sitting directly in one of the spreadsheet's candidate folders.
func deletableResult(tf jobs.TrackedFile, job jobs.Job, path string) bool {
	if !filepath.IsAbs(path) {
		return false
	}
	path = filepath.Clean(path)
	if job.ResultPath != "" && filepath.Clean(job.ResultPath) == path {
		return true
	}
	if !scanner.IsResultFile(path) {
		return false
	}
	dir := filepath.Dir(path)
	for _, candidate := range scanner.CandidateDirs(tf.SourcePath) {
		if filepath.Clean(candidate) == dir {
			return true
		}
	}
	return false
}

// LinkResult records filePath as the result of jobID and marks it Completed.
// Only files with a result extension can be linked, since a linked path may
// later be deleted through DeleteResultAndReset.
func (g *Gateway) LinkResult(ctx context.Context, tf jobs.TrackedFile, jobID, filePath string) error {
	jobID = strings.TrimSpace(jobID)
	if !scanner.IsResultFile(filePath) {
		return g.fail(ctx, "link result", tf.SourcePath, jobID,
			jobs.Wrap(jobs.ErrParse, "link result", filePath, "not a video or image file", nil))
	}
	if !fileutil.Exists(filePath) {
		return g.fail(ctx, "link result", tf.SourcePath, jobID,
			jobs.Wrap(jobs.ErrNotFound, "link result", filePath, "result file does not exist", nil))
	}
	if err := g.writer.SetResultPath(ctx, tf.SourcePath, jobID, filePath); err != nil {
		return g.fail(ctx, "link result", tf.SourcePath, jobID, err)
	}
	g.logger.Info("result linked", logging.Sheet(tf.SourcePath), logging.JobID(jobID), logging.String("result", filePath))
	return nil
}

// fail logs and reports a denied user action, then returns err unchanged.
func (g *Gateway) fail(ctx context.Context, op, path, jobID string, err error) error {
	attrs := []logging.Attr{
		logging.Sheet(path),
		logging.String("operation", op),
		logging.Error(err),
		logging.String(logging.FieldImpact, "spreadsheet was not changed as requested"),
	}
	if jobID != "" {
		attrs = append(attrs, logging.JobID(jobID))
	}
	if errors.Is(err, jobs.ErrStructure) {
		attrs = append(attrs, logging.String(logging.FieldErrorHint, "the sheet needs JOB_ID and STATUS header columns"))
	}
	logging.WarnWithContext(logging.WithContext(ctx, g.logger), "spreadsheet action failed", "mutation_failed", attrs...)

	if notifyErr := g.notifier.Publish(ctx, notifications.EventMutationFailed, notifications.Payload{
		"operation": op,
		"sheet":     path,
		"error":     err,
	}); notifyErr != nil {
		g.logger.Debug("failure notification not sent", logging.Error(notifyErr))
	}
	return err
}
