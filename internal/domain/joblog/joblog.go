// Package joblog defines the audit record written for every deals job run.
package joblog

import "time"

// JobTypeDailyDeals identifies the scheduled deal search job.
const JobTypeDailyDeals = "daily_deals_search"

// Status represents the lifecycle state of a job run.
type Status string

const (
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// DefaultListLimit is used when a caller does not ask for a page size.
const DefaultListLimit = 20

// JobLog is one execution of a scheduled job.
type JobLog struct {
	ID                int64      `json:"id"`
	JobType           string     `json:"job_type"`
	Status            Status     `json:"status"`
	RulesProcessed    int        `json:"rules_processed"`
	DealsFound        int        `json:"deals_found"`
	NotificationsSent int        `json:"notifications_sent"`
	ErrorMessage      string     `json:"error_message,omitempty"`
	ExecutionTimeMS   *int64     `json:"execution_time_ms,omitempty"`
	StartedAt         time.Time  `json:"started_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

// Completion carries the final state written when a run ends.
type Completion struct {
	Status            Status
	RulesProcessed    int
	DealsFound        int
	NotificationsSent int
	ErrorMessage      string
	ExecutionTime     time.Duration
	CompletedAt       time.Time
}

// Result summarises a run for callers (CLI, HTTP, queue subscribers).
type Result struct {
	JobID             int64  `json:"job_id,omitempty"`
	RunID             string `json:"run_id"`
	Success           bool   `json:"success"`
	RulesProcessed    int    `json:"rules_processed"`
	DealsFound        int    `json:"deals_found"`
	NotificationsSent int    `json:"notifications_sent"`
	AlertsTriggered   int    `json:"alerts_triggered"`
	PushSent          int    `json:"push_sent"`
	Error             string `json:"error,omitempty"`
}
