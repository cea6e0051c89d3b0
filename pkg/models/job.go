package models

import "time"

// JobStatus is the state of a deferred run.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// DefaultMaxRetries applies when a job is scheduled without an explicit bound.
const DefaultMaxRetries = 3

// WorkflowJob is a run deferred until ScheduledFor.
type WorkflowJob struct {
	JobID           string         `json:"job_id"`
	WorkflowID      string         `json:"workflow_id"`
	WorkflowSlug    string         `json:"workflow_slug"`
	Status          JobStatus      `json:"status"`
	ScheduledFor    time.Time      `json:"scheduled_for"`
	Input           map[string]any `json:"input"`
	RetryCount      int            `json:"retry_count"`
	MaxRetries      int            `json:"max_retries"`
	LastError       string         `json:"last_error,omitempty"`
	LastExecutionID string         `json:"last_execution_id,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// IsDue reports whether a pending job may be claimed at now.
func (j *WorkflowJob) IsDue(now time.Time) bool {
	return j.Status == JobStatusPending && !j.ScheduledFor.After(now)
}

// RecordFailure applies the linear retry rule. It returns true when the job was rescheduled.
func (j *WorkflowJob) RecordFailure(now time.Time, interval time.Duration, message string) bool {
	j.LastError = message
	j.UpdatedAt = now

	if j.RetryCount >= j.MaxRetries {
		j.Status = JobStatusFailed

		return false
	}

	j.RetryCount++
	j.Status = JobStatusPending
	j.ScheduledFor = now.Add(time.Duration(j.RetryCount) * interval)

	return true
}

// Release hands a claimed job back to the queue untouched, for runs that
// were interrupted rather than failed. Retry bookkeeping is left as is.
func (j *WorkflowJob) Release(now time.Time) {
	j.Status = JobStatusPending
	j.UpdatedAt = now
}
