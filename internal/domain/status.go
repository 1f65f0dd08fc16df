package domain

import "time"

// WatchStatus is the cumulative state of a watch-mode process, served on
// the status endpoint.
type WatchStatus struct {
	RunID       string    `json:"run_id"`
	Runs        int       `json:"runs"`
	TotalEvents int       `json:"total_events"`
	LastRunAt   time.Time `json:"last_run_at"`
	LastEvents  int       `json:"last_events"`
	LastError   string    `json:"last_error,omitempty"`
}
