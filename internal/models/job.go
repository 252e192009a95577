package models

import (
	"fmt"
	"time"
)

// JobStatus represents the state of a scrape job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job represents one tracked execution of an extraction pipeline against
// one source. The ID and Options snapshot are immutable after creation;
// runtime state is mutated exclusively by the runner that owns the
// execution, through the registry's update contract. Once a job reaches
// completed or failed, no field changes again.
type Job struct {
	ID      string                 `json:"job_id"`
	Source  SourceType             `json:"source"`
	Status  JobStatus              `json:"status"`
	Message string                 `json:"message"`
	Options map[string]interface{} `json:"options"`

	// Progress is 0-100, monotonically non-decreasing within a run.
	// Meaningful only while running; forced to 100 on success.
	Progress int `json:"progress"`

	TotalRecords int      `json:"total_records"`
	Preview      []Record `json:"results"`            // bounded-size sample of accepted records
	OutputFile   string   `json:"csv_file,omitempty"` // opaque handle to the full result set

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsTerminal returns true if the job is in a terminal (frozen) state
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// EnsureCompleted returns ErrNotCompleted unless the job finished successfully
func (j *Job) EnsureCompleted() error {
	if j.Status != JobStatusCompleted {
		return fmt.Errorf("%w: status is %s", ErrNotCompleted, j.Status)
	}
	return nil
}

// Clone returns a deep copy so registry readers never alias live state
func (j *Job) Clone() *Job {
	clone := *j

	if j.Options != nil {
		clone.Options = make(map[string]interface{}, len(j.Options))
		for k, v := range j.Options {
			clone.Options[k] = v
		}
	}
	if j.Preview != nil {
		clone.Preview = make([]Record, len(j.Preview))
		copy(clone.Preview, j.Preview)
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		clone.CompletedAt = &t
	}

	return &clone
}

// MarkStarted transitions the job to running
func (j *Job) MarkStarted() {
	j.Status = JobStatusRunning
}

// MarkCompleted transitions the job to completed, forcing progress to 100
func (j *Job) MarkCompleted(message string) {
	j.Status = JobStatusCompleted
	j.Message = message
	j.Progress = 100
	now := time.Now()
	j.CompletedAt = &now
}

// MarkFailed transitions the job to failed, retaining the last progress value
func (j *Job) MarkFailed(message string) {
	j.Status = JobStatusFailed
	j.Message = message
	now := time.Now()
	j.CompletedAt = &now
}
