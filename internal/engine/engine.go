// Package engine executes workflow definitions: it loads a definition by
// id, runs its steps in declared order against the action registry, and
// persists the accumulated result.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"taskflow/backend/internal/repository"
	"taskflow/backend/internal/services"
	"taskflow/backend/pkg/models"
)

// ErrWorkflowNotFound marks an execution request for a definition that
// does not exist. It is a defined failure, surfaced through the job's
// failure payload, never a silent empty success.
var ErrWorkflowNotFound = errors.New("workflow not found")

// stepTimeout bounds each http_request step.
const stepTimeout = 10 * time.Second

// Logger is the logging surface the package needs, compatible with the
// application logger.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Executor runs workflows against the fixed action registry. Executions
// are read-only against the definition, so multiple executions of the same
// workflow id may run concurrently.
type Executor struct {
	store  repository.WorkflowStore
	text   services.TextClient
	client *http.Client
	logger Logger
}

// New creates an Executor.
func New(store repository.WorkflowStore, text services.TextClient, logger Logger) *Executor {
	return &Executor{
		store: store,
		text:  text,
		// redirects are followed by default; only the timeout is bounded
		client: &http.Client{Timeout: stepTimeout},
		logger: logger,
	}
}

// Execute loads the definition, runs each step in declared order, persists
// a WorkflowResult carrying one record per executed step, and returns the
// result payload recorded on the job.
//
// Any handler or storage error aborts the run and propagates to the job
// runner, which records it as the job's terminal failure payload.
func (e *Executor) Execute(ctx context.Context, workflowID string) (map[string]any, error) {
	wf, err := e.store.GetWorkflow(ctx, workflowID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, workflowID)
	}
	if err != nil {
		return nil, fmt.Errorf("load workflow %s: %w", workflowID, err)
	}

	results := make([]map[string]any, 0, len(wf.Steps))
	for i, step := range wf.Steps {
		output, err := e.runStep(ctx, wf, step)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Action, err)
		}
		results = append(results, map[string]any{
			"action": string(step.Action),
			"output": output,
		})
	}

	record := &models.WorkflowResult{
		ID:         uuid.NewString(),
		WorkflowID: wf.ID,
		Results:    results,
	}
	if err := e.store.CreateWorkflowResult(ctx, record); err != nil {
		return nil, fmt.Errorf("persist workflow result: %w", err)
	}

	e.logger.Info("workflow executed",
		"workflow_id", wf.ID, "steps", len(wf.Steps), "result_id", record.ID)

	return map[string]any{
		"ok":              true,
		"workflow_id":     wf.ID,
		"result_id":       record.ID,
		"workflow_result": results,
	}, nil
}

// runStep dispatches one step. The switch is exhaustive over the closed
// action set; the default branch only fires for definitions persisted
// before an action was removed from the registry.
func (e *Executor) runStep(ctx context.Context, wf *models.Workflow, step models.WorkflowStep) (any, error) {
	switch step.Action {
	case models.ActionHTTPRequest:
		return e.httpRequest(ctx, step.Params)
	case models.ActionSummarizeText:
		return e.summarizeText(ctx, step.Params)
	case models.ActionSaveToDatabase:
		return e.saveToDatabase(ctx, wf, step.Params)
	default:
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownAction, step.Action)
	}
}

func stringParam(params map[string]any, key string) (string, error) {
	value, ok := params[key].(string)
	if !ok || value == "" {
		return "", fmt.Errorf("params.%s is required", key)
	}
	return value, nil
}
