package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"taskflow/backend/pkg/models"
)

// Executor runs one workflow to completion and returns its result payload.
type Executor interface {
	Execute(ctx context.Context, workflowID string) (map[string]any, error)
}

// Worker drains the task queue and records each job's lifecycle in the
// state store. Jobs run to completion or failure; there is no cancellation
// of an in-flight job.
type Worker struct {
	rdb      *redis.Client
	executor Executor
	logger   Logger
}

// NewWorker creates a Worker.
func NewWorker(rdb *redis.Client, executor Executor, logger Logger) *Worker {
	return &Worker{rdb: rdb, executor: executor, logger: logger}
}

// Run blocks on the queue until ctx is cancelled. Each dequeued task is
// processed synchronously; execution errors are recorded as the job's
// terminal failure payload, never dropped.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started", "queue", queueKey)
	for {
		res, err := w.rdb.BRPop(ctx, time.Second, queueKey).Result()
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("worker stopping")
				return nil
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return err
		}
		if len(res) != 2 {
			continue
		}

		var t task
		if err := json.Unmarshal([]byte(res[1]), &t); err != nil {
			w.logger.Error("discarding malformed task", "error", err)
			continue
		}
		w.process(ctx, t)
	}
}

func (w *Worker) process(ctx context.Context, t task) {
	key := metaKey(t.JobID)

	if err := w.rdb.HSet(ctx, key, "state", string(models.JobStatusStarted)).Err(); err != nil {
		w.logger.Error("mark started failed", "job_id", t.JobID, "error", err)
	}

	result, execErr := w.executor.Execute(ctx, t.WorkflowID)
	if execErr != nil {
		w.logger.Error("workflow execution failed",
			"job_id", t.JobID, "workflow_id", t.WorkflowID, "error", execErr)
		w.finish(ctx, key, models.JobStatusFailure, "error", execErr.Error())
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		w.logger.Error("encode result failed", "job_id", t.JobID, "error", err)
		w.finish(ctx, key, models.JobStatusFailure, "error", err.Error())
		return
	}

	w.logger.Info("workflow executed", "job_id", t.JobID, "workflow_id", t.WorkflowID)
	w.finish(ctx, key, models.JobStatusSuccess, "result", string(payload))
}

// finish writes the terminal state and arms the result expiry.
func (w *Worker) finish(ctx context.Context, key string, state models.JobStatus, field, value string) {
	if err := w.rdb.HSet(ctx, key, "state", string(state), field, value).Err(); err != nil {
		w.logger.Error("record terminal state failed", "key", key, "error", err)
		return
	}
	if err := w.rdb.Expire(ctx, key, resultExpiry).Err(); err != nil {
		w.logger.Error("set result expiry failed", "key", key, "error", err)
	}
}
