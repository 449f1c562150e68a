package models

import "time"

type MJobStatus struct {
	Name     string     `json:"name"`
	NextRun  time.Time  `json:"next_run"`
	LastRun  *time.Time `json:"last_run"`
	Runs     int64      `json:"runs"`
	Skipped  int64      `json:"skipped"`
	Running  bool       `json:"running"`
	LastNote string     `json:"last_report,omitempty"`
}

type MSchedulerStatus struct {
	Running bool         `json:"running"`
	Jobs    []MJobStatus `json:"jobs"`
}

// MUpstreamStats is what /api/stats reports about upstream usage.
type MUpstreamStats struct {
	APICalls        int64     `json:"api_calls"`
	ServerStartTime time.Time `json:"server_start_time"`
	UptimeSeconds   float64   `json:"uptime_seconds"`
	RecentRequests  []string  `json:"recent_requests"`
}
