package models

// JobStatus is the runner-reported lifecycle label of a background job.
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusStarted JobStatus = "STARTED"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailure JobStatus = "FAILURE"
)

// Terminal reports whether the status is an end state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSuccess || s == JobStatusFailure
}

// Job is the read-side view of a background job. Its lifecycle is owned
// entirely by the job runner; the API only reads it. State and Status carry
// the same label, matching the runner's status wire contract. Result is
// non-nil only once the job has reached a terminal state.
type Job struct {
	JobID  string    `json:"job_id"`
	State  JobStatus `json:"state"`
	Status JobStatus `json:"status"`
	Result any       `json:"result"`
}
