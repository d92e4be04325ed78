// Package api contains the HTTP handlers for the workflow service.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"taskflow/backend/internal/rabbit"
	"taskflow/backend/internal/repository"
	"taskflow/backend/pkg/models"
)

// CreateWorkflowExchange is the fanout exchange that announces newly
// created workflow definitions.
const CreateWorkflowExchange = "create_workflow"

const (
	defaultListLimit = 100
	maxListLimit     = 200
)

// JobService is the job runner surface the API depends on.
type JobService interface {
	// Trigger enqueues an execution of the workflow and returns the job id.
	Trigger(ctx context.Context, workflowID string) (string, error)
	// Status returns the current view of a job.
	Status(ctx context.Context, jobID string) (*models.Job, error)
	// List returns all jobs with unexpired bookkeeping.
	List(ctx context.Context) ([]*models.Job, error)
}

// Logger is the logging surface the package needs, compatible with the
// application logger.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Server holds the dependencies for the API server. The channel provider
// may be nil, in which case creation events are not broadcast.
type Server struct {
	store    repository.WorkflowStore
	jobs     JobService
	provider rabbit.ChannelProvider
	logger   Logger
}

// NewServer creates a new Server.
func NewServer(store repository.WorkflowStore, jobs JobService, provider rabbit.ChannelProvider, logger Logger) *Server {
	return &Server{store: store, jobs: jobs, provider: provider, logger: logger}
}

// Register mounts all routes on the echo instance.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/health", s.HandleHealth)
	e.POST("/workflow-create", s.CreateWorkflow)
	e.GET("/workflow-list", s.ListWorkflows)
	e.GET("/workflow-result-list", s.ListWorkflowResults)
	e.POST("/job/workflow-trigger/:workflow_id", s.TriggerWorkflow)
	e.GET("/job/status/:job_id", s.JobStatus)
	e.GET("/job/list", s.ListJobs)
}

// HealthStatus represents the health check response.
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
}

// HandleHealth reports service and store health.
// (GET /health)
func (s *Server) HandleHealth(c echo.Context) error {
	status := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Service:   "taskflow",
	}
	if err := s.store.Ping(c.Request().Context()); err != nil {
		status.Status = "degraded"
		return c.JSON(http.StatusServiceUnavailable, status)
	}
	return c.JSON(http.StatusOK, status)
}
