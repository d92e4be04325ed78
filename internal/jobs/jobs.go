// Package jobs is the background-job runner: a Redis-backed work queue
// with per-job state hashes, mirroring the semantics of a broker+backend
// task queue. The API side enqueues through Client; worker processes drain
// the queue through Worker.
package jobs

import (
	"errors"
	"time"
)

// ErrJobNotFound is returned for a job id the runner has never seen, or
// whose record has passed its result expiry.
var ErrJobNotFound = errors.New("job not found")

const (
	queueKey   = "tasks:queue"
	metaPrefix = "tasks:job-meta:"

	// resultExpiry bounds how long a terminal job's state and result stay
	// readable. It is the only expiry policy at this layer.
	resultExpiry = time.Hour
)

// TriggerExchange is the fanout exchange job starts are broadcast on.
const TriggerExchange = "trigger_workflow"

func metaKey(jobID string) string {
	return metaPrefix + jobID
}

// task is the queue wire format for one execution request.
type task struct {
	JobID      string `json:"job_id"`
	WorkflowID string `json:"workflow_id"`
}

// Logger is the logging surface the package needs, compatible with the
// application logger.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}
