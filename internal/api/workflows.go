package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"taskflow/backend/internal/jobs"
	"taskflow/backend/internal/rabbit"
	"taskflow/backend/internal/repository"
	"taskflow/backend/pkg/models"
)

// CreateWorkflow validates and persists a workflow definition, then
// broadcasts the creation event.
// (POST /workflow-create)
func (s *Server) CreateWorkflow(c echo.Context) error {
	ctx := c.Request().Context()

	var wf models.Workflow
	if err := json.NewDecoder(c.Request().Body).Decode(&wf); err != nil {
		if errors.Is(err, models.ErrUnknownAction) {
			return errorJSON(c, http.StatusUnprocessableEntity, "workflow contains an unknown action", err)
		}
		return errorJSON(c, http.StatusUnprocessableEntity, "invalid workflow payload", err)
	}
	if err := wf.Validate(); err != nil {
		return errorJSON(c, http.StatusUnprocessableEntity, "invalid workflow payload", err)
	}

	wf.ID = uuid.NewString()

	if err := s.store.CreateWorkflow(ctx, &wf); err != nil {
		return errorJSON(c, http.StatusInternalServerError, "failed to save workflow", err)
	}

	s.broadcast(c, CreateWorkflowExchange, map[string]any{
		"id":        wf.ID,
		"tenant_id": wf.TenantID,
		"workflow":  wf.Steps,
	})

	return c.JSON(http.StatusOK, wf)
}

// ListWorkflows returns workflow definitions with skip/limit pagination.
// (GET /workflow-list)
func (s *Server) ListWorkflows(c echo.Context) error {
	skip := queryInt(c, "skip", 0)
	limit := queryInt(c, "limit", defaultListLimit)
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	workflows, err := s.store.ListWorkflows(c.Request().Context(), skip, limit)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, "failed to list workflows", err)
	}
	if workflows == nil {
		workflows = []*models.Workflow{}
	}
	return c.JSON(http.StatusOK, workflows)
}

// ListWorkflowResults returns all persisted execution results.
// (GET /workflow-result-list)
func (s *Server) ListWorkflowResults(c echo.Context) error {
	results, err := s.store.ListWorkflowResults(c.Request().Context())
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, "failed to list workflow results", err)
	}
	if results == nil {
		results = []*models.WorkflowResult{}
	}
	return c.JSON(http.StatusOK, results)
}

// TriggerWorkflow enqueues an asynchronous execution of a stored workflow
// and broadcasts the trigger event.
// (POST /job/workflow-trigger/:workflow_id)
func (s *Server) TriggerWorkflow(c echo.Context) error {
	ctx := c.Request().Context()
	workflowID := c.Param("workflow_id")

	if _, err := s.store.GetWorkflow(ctx, workflowID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return errorJSON(c, http.StatusNotFound, "workflow not found", err)
		}
		return errorJSON(c, http.StatusInternalServerError, "failed to load workflow", err)
	}

	jobID, err := s.jobs.Trigger(ctx, workflowID)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, "failed to enqueue job", err)
	}

	return c.JSON(http.StatusOK, map[string]string{
		"job_id":      jobID,
		"workflow_id": workflowID,
	})
}

// JobStatus returns the current state of a job.
// (GET /job/status/:job_id)
func (s *Server) JobStatus(c echo.Context) error {
	job, err := s.jobs.Status(c.Request().Context(), c.Param("job_id"))
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			return errorJSON(c, http.StatusNotFound, "job not found", err)
		}
		return errorJSON(c, http.StatusInternalServerError, "failed to read job status", err)
	}
	return c.JSON(http.StatusOK, job)
}

// ListJobs returns identity and state for all tracked jobs.
// (GET /job/list)
func (s *Server) ListJobs(c echo.Context) error {
	jobs, err := s.jobs.List(c.Request().Context())
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, "failed to list jobs", err)
	}
	if jobs == nil {
		jobs = []*models.Job{}
	}
	return c.JSON(http.StatusOK, jobs)
}

// broadcast publishes an event on the given exchange. Broadcast failures
// are logged and never fail the request.
func (s *Server) broadcast(c echo.Context, exchange string, payload map[string]any) {
	if s.provider == nil {
		return
	}
	ch, err := s.provider.Channel()
	if err != nil {
		s.logger.Error("broadcast channel unavailable", "exchange", exchange, "error", err)
		return
	}
	if err := rabbit.Broadcast(c.Request().Context(), ch, payload, exchange); err != nil {
		s.logger.Error("broadcast failed", "exchange", exchange, "error", err)
	}
}

func queryInt(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
