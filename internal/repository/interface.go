package repository

import (
	"context"
	"errors"

	"taskflow/backend/pkg/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// WorkflowStore is the durable store for workflow definitions and workflow
// results. Definitions are write-once: there is no update or delete.
type WorkflowStore interface {
	// CreateWorkflow persists a new workflow definition.
	CreateWorkflow(ctx context.Context, wf *models.Workflow) error
	// GetWorkflow retrieves a definition by its id.
	GetWorkflow(ctx context.Context, id string) (*models.Workflow, error)
	// ListWorkflows returns definitions with offset/limit pagination.
	ListWorkflows(ctx context.Context, skip, limit int) ([]*models.Workflow, error)
	// CreateWorkflowResult persists the outcome of one execution.
	CreateWorkflowResult(ctx context.Context, res *models.WorkflowResult) error
	// ListWorkflowResults returns all workflow results.
	ListWorkflowResults(ctx context.Context) ([]*models.WorkflowResult, error)
	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
}
