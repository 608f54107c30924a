package ipc

import "vmanga/internal/api"

// StopRequest asks the daemon process to shut down.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse mirrors the HTTP status payload.
type StatusResponse = api.DaemonStatus

// FileRequest addresses one tracked spreadsheet. An empty path means the
// active spreadsheet where the operation allows it.
type FileRequest struct {
	Path string `json:"path"`
}

// FileResponse carries one spreadsheet snapshot.
type FileResponse struct {
	File api.FileSnapshot `json:"file"`
}

// FileListRequest lists tracked spreadsheets.
type FileListRequest struct{}

// FileListResponse contains tracked spreadsheets in open order.
type FileListResponse = api.FileListResponse

// AckResponse acknowledges a mutation without a payload.
type AckResponse struct {
	OK bool `json:"ok"`
}

// JobRequest addresses one job in a spreadsheet.
type JobRequest struct {
	Path  string `json:"path"`
	JobID string `json:"job_id"`
}

// JobResetIncompleteResponse reports how many rows were cleared.
type JobResetIncompleteResponse struct {
	Reset int `json:"reset"`
}

// JobDeleteResultRequest deletes a job's result file and clears its status.
type JobDeleteResultRequest struct {
	Path       string `json:"path"`
	JobID      string `json:"job_id"`
	ResultPath string `json:"result_path"`
}

// JobLinkRequest records an existing file as a job's result.
type JobLinkRequest struct {
	Path  string `json:"path"`
	JobID string `json:"job_id"`
	File  string `json:"file"`
}

// WatchdogSweepRequest runs one stuck-job pass.
type WatchdogSweepRequest struct{}

// WatchdogSweepResponse reports the pass.
type WatchdogSweepResponse = api.SweepResponse

// StatsRequest fetches completion history.
type StatsRequest struct {
	Days int `json:"days"`
}

// StatsResponse reports completion totals.
type StatsResponse = api.StatsResponse

// StatsClearRequest drops completions for Day (YYYY-MM-DD), or all of them
// when Day is empty.
type StatsClearRequest struct {
	Day string `json:"day"`
}

// StatsClearResponse reports how many completions were removed.
type StatsClearResponse struct {
	Removed int `json:"removed"`
}

// LicenseStatusRequest fetches the activation gate.
type LicenseStatusRequest struct{}

// LicenseActivateRequest stores a license key.
type LicenseActivateRequest struct {
	Key string `json:"key"`
}

// LicenseResponse reports the activation gate.
type LicenseResponse = api.LicenseStatus

// TestNotificationRequest triggers a test notification.
type TestNotificationRequest struct{}

// TestNotificationResponse reports whether a notification was sent.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
