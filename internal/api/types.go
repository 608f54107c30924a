package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes one spreadsheet row.
type Job struct {
	ID            string   `json:"id"`
	Prompt        string   `json:"prompt"`
	References    []string `json:"references"`
	Status        string   `json:"status"`
	StatusLabel   string   `json:"statusLabel"`
	ResultName    string   `json:"resultName"`
	Kind          string   `json:"kind"`
	ResultPath    string   `json:"resultPath,omitempty"`
	ResultMissing bool     `json:"resultMissing"`
	LastUpdatedAt string   `json:"lastUpdatedAt,omitempty"`
}

// Summary aggregates job counts for one spreadsheet.
type Summary struct {
	Total      int            `json:"total"`
	Completed  int            `json:"completed"`
	InProgress int            `json:"inProgress"`
	Failed     int            `json:"failed"`
	Counts     map[string]int `json:"counts"`
}

// FileSnapshot describes an open spreadsheet.
type FileSnapshot struct {
	Path        string  `json:"path"`
	DisplayName string  `json:"displayName"`
	Active      bool    `json:"active"`
	UpdatedAt   string  `json:"updatedAt,omitempty"`
	Summary     Summary `json:"summary"`
	Jobs        []Job   `json:"jobs,omitempty"`
}

// FileListResponse wraps the open spreadsheets in open order.
type FileListResponse struct {
	Active string         `json:"active"`
	Files  []FileSnapshot `json:"files"`
}

// LicenseStatus reports the activation gate.
type LicenseStatus struct {
	MachineID   string `json:"machineId"`
	Activated   bool   `json:"activated"`
	Required    bool   `json:"required"`
	ActivatedAt string `json:"activatedAt,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running         bool          `json:"running"`
	PID             int           `json:"pid"`
	StartedAt       string        `json:"startedAt,omitempty"`
	Files           int           `json:"files"`
	ActivePath      string        `json:"activePath,omitempty"`
	StorePath       string        `json:"storePath"`
	LockFilePath    string        `json:"lockFilePath"`
	APIBind         string        `json:"apiBind,omitempty"`
	WatchdogEnabled bool          `json:"watchdogEnabled"`
	License         LicenseStatus `json:"license"`
}

// DayCount is one day of completion history.
type DayCount struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

// StatsResponse reports completion totals.
type StatsResponse struct {
	Total   int        `json:"total"`
	History []DayCount `json:"history"`
}

// SweepResponse reports one watchdog pass.
type SweepResponse struct {
	Files  int      `json:"files"`
	Jobs   int      `json:"jobs"`
	Failed []string `json:"failed,omitempty"`
}

// Event is a registry change.
type Event struct {
	Kind   string       `json:"kind"`
	Active string       `json:"active"`
	At     string       `json:"at"`
	File   FileSnapshot `json:"file"`
}
