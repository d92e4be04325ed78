package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"taskflow/backend/internal/rabbit"
	"taskflow/backend/pkg/models"
)

// Client enqueues workflow executions and reads job state. The job
// lifecycle itself is owned by the worker; the client only writes the
// initial PENDING record and reads thereafter.
type Client struct {
	rdb      *redis.Client
	provider rabbit.ChannelProvider
	logger   Logger
}

// NewClient creates a Client. provider may be nil, in which case trigger
// events are not broadcast.
func NewClient(rdb *redis.Client, provider rabbit.ChannelProvider, logger Logger) *Client {
	return &Client{rdb: rdb, provider: provider, logger: logger}
}

// Trigger enqueues an execution request for workflowID and returns the
// assigned job id immediately.
//
// The job-start event on the trigger exchange is best-effort: a broadcast
// failure is logged and never fails a trigger whose job is already
// enqueued. An enqueue failure fails the trigger regardless of the
// broadcast.
func (c *Client) Trigger(ctx context.Context, workflowID string) (string, error) {
	jobID := uuid.NewString()

	if err := c.rdb.HSet(ctx, metaKey(jobID),
		"state", string(models.JobStatusPending),
		"workflow_id", workflowID,
	).Err(); err != nil {
		return "", fmt.Errorf("record job state: %w", err)
	}

	payload, err := json.Marshal(task{JobID: jobID, WorkflowID: workflowID})
	if err != nil {
		return "", fmt.Errorf("encode task: %w", err)
	}
	if err := c.rdb.LPush(ctx, queueKey, payload).Err(); err != nil {
		return "", fmt.Errorf("enqueue task: %w", err)
	}

	c.broadcastTrigger(ctx, workflowID, jobID)
	return jobID, nil
}

func (c *Client) broadcastTrigger(ctx context.Context, workflowID, jobID string) {
	if c.provider == nil {
		return
	}
	ch, err := c.provider.Channel()
	if err != nil {
		c.logger.Error("trigger broadcast skipped", "error", err)
		return
	}
	err = rabbit.Broadcast(ctx, ch, map[string]any{
		"workflow_id": workflowID,
		"job_id":      jobID,
	}, TriggerExchange)
	if err != nil {
		c.logger.Error("trigger broadcast failed", "job_id", jobID, "error", err)
	}
}

// Status reports the current state of a job. Result is populated only once
// the job has reached SUCCESS. Every triggered job has a state record from
// the moment Trigger returns, so an id without one is unknown (or expired)
// and reports ErrJobNotFound.
func (c *Client) Status(ctx context.Context, jobID string) (*models.Job, error) {
	meta, err := c.rdb.HGetAll(ctx, metaKey(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read job state: %w", err)
	}
	if len(meta) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	job := &models.Job{JobID: jobID, State: models.JobStatusPending, Status: models.JobStatusPending}
	if state, ok := meta["state"]; ok && state != "" {
		job.State = models.JobStatus(state)
		job.Status = job.State
	}

	if job.State == models.JobStatusSuccess {
		if raw, ok := meta["result"]; ok && raw != "" {
			var result any
			if err := json.Unmarshal([]byte(raw), &result); err != nil {
				return nil, fmt.Errorf("decode job result: %w", err)
			}
			job.Result = result
		}
	}
	if job.State == models.JobStatusFailure {
		if detail, ok := meta["error"]; ok {
			job.Result = map[string]any{"error": detail}
		}
	}
	return job, nil
}

// List enumerates every known job id from the state store's key namespace
// and resolves each one's current state. O(n) over historical jobs; the
// only bound is the store's own result expiry.
func (c *Client) List(ctx context.Context) ([]*models.Job, error) {
	jobs := []*models.Job{}

	iter := c.rdb.Scan(ctx, 0, metaPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		jobID := iter.Val()[len(metaPrefix):]
		job, err := c.Status(ctx, jobID)
		if errors.Is(err, ErrJobNotFound) {
			// record expired between scan and read
			continue
		}
		if err != nil {
			return nil, err
		}
		// the listing carries identity and state only
		jobs = append(jobs, &models.Job{JobID: job.JobID, State: job.State, Status: job.Status})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan job keys: %w", err)
	}
	return jobs, nil
}
