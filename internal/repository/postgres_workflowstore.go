package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taskflow/backend/pkg/models"
)

// PostgresWorkflowStore is a PostgreSQL implementation of the WorkflowStore
// interface. Step lists and result lists are stored as JSONB.
type PostgresWorkflowStore struct {
	db *pgxpool.Pool
}

// NewPostgresWorkflowStore creates a new PostgresWorkflowStore.
func NewPostgresWorkflowStore(db *pgxpool.Pool) *PostgresWorkflowStore {
	return &PostgresWorkflowStore{db: db}
}

// CreateTables bootstraps the two workflow tables.
func (s *PostgresWorkflowStore) CreateTables(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS workflow (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			workflow JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_workflow_tenant_id ON workflow (tenant_id);
		CREATE TABLE IF NOT EXISTS workflow_result (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			workflow_result JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_workflow_result_workflow_id ON workflow_result (workflow_id);
	`)
	if err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// CreateWorkflow persists a new workflow definition inside a transaction.
func (s *PostgresWorkflowStore) CreateWorkflow(ctx context.Context, wf *models.Workflow) error {
	steps, err := json.Marshal(wf.Steps)
	if err != nil {
		return fmt.Errorf("encode steps: %w", err)
	}
	return WithTx(ctx, s.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			"INSERT INTO workflow (id, tenant_id, workflow) VALUES ($1, $2, $3)",
			wf.ID, wf.TenantID, steps)
		return err
	})
}

// GetWorkflow retrieves a definition by its id.
func (s *PostgresWorkflowStore) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	var wf models.Workflow
	var steps []byte
	err := s.db.QueryRow(ctx,
		"SELECT id, tenant_id, workflow FROM workflow WHERE id = $1", id).
		Scan(&wf.ID, &wf.TenantID, &steps)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(steps, &wf.Steps); err != nil {
		return nil, fmt.Errorf("decode steps: %w", err)
	}
	return &wf, nil
}

// ListWorkflows returns definitions ordered by id with offset/limit
// pagination.
func (s *PostgresWorkflowStore) ListWorkflows(ctx context.Context, skip, limit int) ([]*models.Workflow, error) {
	rows, err := s.db.Query(ctx,
		"SELECT id, tenant_id, workflow FROM workflow ORDER BY id OFFSET $1 LIMIT $2",
		skip, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workflows []*models.Workflow
	for rows.Next() {
		var wf models.Workflow
		var steps []byte
		if err := rows.Scan(&wf.ID, &wf.TenantID, &steps); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(steps, &wf.Steps); err != nil {
			return nil, fmt.Errorf("decode steps: %w", err)
		}
		workflows = append(workflows, &wf)
	}
	return workflows, rows.Err()
}

// CreateWorkflowResult persists the outcome of one execution inside a
// transaction.
func (s *PostgresWorkflowStore) CreateWorkflowResult(ctx context.Context, res *models.WorkflowResult) error {
	results, err := json.Marshal(res.Results)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	return WithTx(ctx, s.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			"INSERT INTO workflow_result (id, workflow_id, workflow_result) VALUES ($1, $2, $3)",
			res.ID, res.WorkflowID, results)
		return err
	})
}

// ListWorkflowResults returns all workflow results.
func (s *PostgresWorkflowStore) ListWorkflowResults(ctx context.Context) ([]*models.WorkflowResult, error) {
	rows, err := s.db.Query(ctx,
		"SELECT id, workflow_id, workflow_result FROM workflow_result ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*models.WorkflowResult
	for rows.Next() {
		var res models.WorkflowResult
		var payload []byte
		if err := rows.Scan(&res.ID, &res.WorkflowID, &payload); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &res.Results); err != nil {
			return nil, fmt.Errorf("decode results: %w", err)
		}
		results = append(results, &res)
	}
	return results, rows.Err()
}

// Ping verifies the store is reachable.
func (s *PostgresWorkflowStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
