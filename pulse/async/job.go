// Package async runs long jobs on a bounded worker pool and keeps their
// state in an in-memory registry that readers query by id.
package async

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/PTX/errors"
)

// JobStatus represents the current state of a job
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IsValidStatus returns true if the status string is a valid JobStatus
func IsValidStatus(s string) bool {
	switch JobStatus(s) {
	case JobStatusRunning, JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether a job in this status will never change again
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Progress represents job progress information
type Progress struct {
	Current int `json:"current"` // Items processed
	Total   int `json:"total"`   // Items in the job
}

// Percentage calculates progress as a percentage (0-100)
func (p Progress) Percentage() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Current) / float64(p.Total) * 100
}

// Job is one unit of asynchronous work.
//
// Results only grow, and only through Record, which advances
// Progress.Current in the same step. Handlers receive a *Job through Queue
// updates and never hold it outside the update callback.
type Job struct {
	ID          string          `json:"id"`
	HandlerName string          `json:"handler_name"`
	Payload     json.RawMessage `json:"-"`
	Status      JobStatus       `json:"status"`
	Progress    Progress        `json:"progress"`
	Results     []any           `json:"results,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewJobWithPayload creates a running job for handlerName. Jobs start in
// the running state so a submitter can poll immediately.
func NewJobWithPayload(handlerName string, payload json.RawMessage, total int) (*Job, error) {
	if handlerName == "" {
		return nil, errors.New("handlerName cannot be empty")
	}

	now := time.Now()
	return &Job{
		ID:          uuid.NewString(),
		HandlerName: handlerName,
		Payload:     payload,
		Status:      JobStatusRunning,
		Progress:    Progress{Total: total},
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// SetTotal fixes the number of items once the handler knows it
func (j *Job) SetTotal(total int) {
	j.Progress.Total = total
	j.UpdatedAt = time.Now()
}

// Record appends one result and advances progress with it
func (j *Job) Record(result any) {
	j.Results = append(j.Results, result)
	j.Progress.Current = len(j.Results)
	j.UpdatedAt = time.Now()
}

// Complete marks the job as completed
func (j *Job) Complete() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// Fail marks the job as failed with an error message
func (j *Job) Fail(err error) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.Error = err.Error()
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// Snapshot returns a copy that is safe to read while the job keeps running.
// withResults=false leaves Results nil for cheap status reads.
func (j *Job) Snapshot(withResults bool) *Job {
	cp := *j
	cp.Results = nil
	if withResults {
		cp.Results = slices.Clone(j.Results)
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
