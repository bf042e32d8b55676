package domain

import "time"

type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobInProgress JobStatus = "in_progress"
	JobComplete   JobStatus = "complete"
	JobFailed     JobStatus = "failed"
	JobNotFound   JobStatus = "not_found"
)

// Terminal reports whether no further transitions are expected.
func (s JobStatus) Terminal() bool {
	return s == JobComplete || s == JobFailed
}

type SearchJob struct {
	ID        string    `json:"id"`
	Query     string    `json:"query"`
	Status    JobStatus `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
