package client

import "time"

// Status mirrors the host's /state response.
type Status struct {
	State         string     `json:"state"`
	Error         string     `json:"error,omitempty"`
	PID           int        `json:"pid,omitempty"`
	Address       string     `json:"address"`
	StartedAt     time.Time  `json:"started_at,omitzero"`
	ReadyAt       time.Time  `json:"ready_at,omitzero"`
	StoppedAt     time.Time  `json:"stopped_at,omitzero"`
	ExitCode      *int       `json:"exit_code,omitempty"`
	ProbeAttempts int        `json:"probe_attempts"`
	DetectedBy    string     `json:"detected_by,omitempty"`
	Usage         *UsageInfo `json:"usage,omitempty"`
}

// UsageInfo is one resource sample of the backend.
type UsageInfo struct {
	PID        int       `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	RSSBytes   uint64    `json:"rss_bytes"`
	VMSBytes   uint64    `json:"vms_bytes"`
	NumThreads int32     `json:"num_threads"`
	Timestamp  time.Time `json:"timestamp"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error  string `json:"error"`
	State  string `json:"state,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type urlResponse struct {
	URL string `json:"url"`
}
