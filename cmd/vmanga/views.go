package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"vmanga/internal/api"
)

const promptWidth = 48

func writeFileList(out io.Writer, resp api.FileListResponse) {
	if len(resp.Files) == 0 {
		fmt.Fprintln(out, "No spreadsheets are open")
		return
	}
	rows := make([][]string, 0, len(resp.Files))
	for _, f := range resp.Files {
		marker := ""
		if f.Active {
			marker = "*"
		}
		rows = append(rows, []string{
			marker,
			f.DisplayName,
			fmt.Sprintf("%d", f.Summary.Total),
			fmt.Sprintf("%d", f.Summary.Completed),
			fmt.Sprintf("%d", f.Summary.InProgress),
			fmt.Sprintf("%d", f.Summary.Failed),
			f.Path,
		})
	}
	fmt.Fprint(out, renderTable([]column{
		{header: ""},
		{header: "Name"},
		{header: "Jobs", align: alignRight},
		{header: "Done", align: alignRight},
		{header: "Running", align: alignRight},
		{header: "Failed", align: alignRight},
		{header: "Path"},
	}, rows))
}

func writeFileSnapshot(out io.Writer, snap api.FileSnapshot, colorize bool) {
	title := snap.DisplayName
	if snap.Active {
		title += " (active)"
	}
	for _, line := range renderSectionHeader(title, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, summaryLine(snap.Summary))
	if snap.UpdatedAt != "" {
		fmt.Fprintf(out, "Updated: %s\n", snap.UpdatedAt)
	}
	if len(snap.Jobs) == 0 {
		fmt.Fprintln(out, "No jobs")
		return
	}
	rows := make([][]string, 0, len(snap.Jobs))
	for _, job := range snap.Jobs {
		rows = append(rows, []string{
			job.ID,
			colorizeJobStatus(job.StatusLabel, colorize),
			job.Kind,
			job.ResultName,
			resultCell(job),
			fmt.Sprintf("%d", len(job.References)),
			job.Prompt,
		})
	}
	fmt.Fprint(out, renderTable([]column{
		{header: "ID"},
		{header: "Status"},
		{header: "Kind"},
		{header: "Result Name"},
		{header: "Result"},
		{header: "Refs", align: alignRight},
		{header: "Prompt", maxWidth: promptWidth},
	}, rows))
}

func summaryLine(s api.Summary) string {
	parts := []string{
		fmt.Sprintf("%d jobs", s.Total),
		fmt.Sprintf("%d completed", s.Completed),
		fmt.Sprintf("%d in progress", s.InProgress),
		fmt.Sprintf("%d failed", s.Failed),
	}
	return strings.Join(parts, ", ")
}

func resultCell(job api.Job) string {
	switch {
	case job.ResultPath != "":
		return filepath.Base(job.ResultPath)
	case job.ResultMissing:
		return "(missing)"
	default:
		return "-"
	}
}
