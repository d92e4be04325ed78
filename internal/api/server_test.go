package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskflow/backend/internal/jobs"
	"taskflow/backend/internal/rabbit"
	"taskflow/backend/internal/repository"
	"taskflow/backend/pkg/models"
)

type stubStore struct {
	workflows map[string]*models.Workflow
	results   []*models.WorkflowResult
	created   []*models.Workflow
	createErr error
	pingErr   error
}

func newStubStore() *stubStore {
	return &stubStore{workflows: map[string]*models.Workflow{}}
}

func (s *stubStore) CreateWorkflow(_ context.Context, wf *models.Workflow) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.workflows[wf.ID] = wf
	s.created = append(s.created, wf)
	return nil
}

func (s *stubStore) GetWorkflow(_ context.Context, id string) (*models.Workflow, error) {
	wf, ok := s.workflows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return wf, nil
}

func (s *stubStore) ListWorkflows(_ context.Context, skip, limit int) ([]*models.Workflow, error) {
	all := make([]*models.Workflow, 0, len(s.workflows))
	for _, wf := range s.workflows {
		all = append(all, wf)
	}
	if skip >= len(all) {
		return nil, nil
	}
	all = all[skip:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (s *stubStore) CreateWorkflowResult(_ context.Context, res *models.WorkflowResult) error {
	s.results = append(s.results, res)
	return nil
}

func (s *stubStore) ListWorkflowResults(_ context.Context) ([]*models.WorkflowResult, error) {
	return s.results, nil
}

func (s *stubStore) Ping(_ context.Context) error { return s.pingErr }

type stubJobs struct {
	triggered  []string
	jobs       map[string]*models.Job
	triggerErr error
}

func newStubJobs() *stubJobs {
	return &stubJobs{jobs: map[string]*models.Job{}}
}

func (s *stubJobs) Trigger(_ context.Context, workflowID string) (string, error) {
	if s.triggerErr != nil {
		return "", s.triggerErr
	}
	id := fmt.Sprintf("job-%d", len(s.triggered)+1)
	s.triggered = append(s.triggered, workflowID)
	s.jobs[id] = &models.Job{JobID: id, State: models.JobStatusPending, Status: models.JobStatusPending}
	return id, nil
}

func (s *stubJobs) Status(_ context.Context, jobID string) (*models.Job, error) {
	if job, ok := s.jobs[jobID]; ok {
		return job, nil
	}
	return nil, fmt.Errorf("%w: %s", jobs.ErrJobNotFound, jobID)
}

func (s *stubJobs) List(_ context.Context) ([]*models.Job, error) {
	out := make([]*models.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job)
	}
	return out, nil
}

// recordChannel captures publishes so tests can inspect broadcast events.
type recordChannel struct {
	exchanges []string
	published []amqp.Publishing
}

func (r *recordChannel) ExchangeDeclare(name, _ string, _, _, _, _ bool, _ amqp.Table) error {
	r.exchanges = append(r.exchanges, name)
	return nil
}

func (r *recordChannel) QueueDeclare(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	return amqp.Queue{Name: name}, nil
}

func (r *recordChannel) QueueBind(string, string, string, bool, amqp.Table) error { return nil }

func (r *recordChannel) Qos(int, int, bool) error { return nil }

func (r *recordChannel) PublishWithContext(_ context.Context, exchange, _ string, _, _ bool, msg amqp.Publishing) error {
	r.exchanges = append(r.exchanges, exchange)
	r.published = append(r.published, msg)
	return nil
}

func (r *recordChannel) Consume(string, string, bool, bool, bool, bool, amqp.Table) (<-chan amqp.Delivery, error) {
	return nil, errors.New("not implemented")
}

func (r *recordChannel) IsClosed() bool { return false }

type failingProvider struct{}

func (failingProvider) Channel() (rabbit.Channel, error) {
	return nil, errors.New("broker unavailable")
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

func newTestServer(store *stubStore, jobs *stubJobs, provider rabbit.ChannelProvider) (*echo.Echo, *Server) {
	e := echo.New()
	s := NewServer(store, jobs, provider, noopLogger{})
	s.Register(e)
	return e, s
}

func doRequest(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCreateWorkflow(t *testing.T) {
	store := newStubStore()
	ch := &recordChannel{}
	e, _ := newTestServer(store, newStubJobs(), rabbit.NewStaticChannelProvider(ch))

	body := `{
		"tenant_id": "tenant-a",
		"workflow": [
			{"action": "http_request", "params": {"url": "https://example.com"}},
			{"action": "summarize_text", "params": {"text": "doc"}}
		]
	}`
	rec := doRequest(e, http.MethodPost, "/workflow-create", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var wf models.Workflow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &wf))
	assert.Len(t, wf.ID, 36, "id should be a generated uuid")
	assert.Equal(t, "tenant-a", wf.TenantID)
	assert.Len(t, wf.Steps, 2)

	require.Len(t, store.created, 1)
	assert.Equal(t, wf.ID, store.created[0].ID)

	// one create_workflow event wrapped in the broadcast envelope
	require.Len(t, ch.published, 1)
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(ch.published[0].Body, &envelope))
	assert.Equal(t, wf.ID, envelope.Data["id"])
	assert.Equal(t, "tenant-a", envelope.Data["tenant_id"])
	assert.Contains(t, ch.exchanges, CreateWorkflowExchange)
}

func TestCreateWorkflowUnknownAction(t *testing.T) {
	store := newStubStore()
	e, _ := newTestServer(store, newStubJobs(), nil)

	body := `{"tenant_id": "tenant-a", "workflow": [{"action": "delete_everything"}]}`
	rec := doRequest(e, http.MethodPost, "/workflow-create", body)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var schema ErrorSchema
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &schema))
	assert.Contains(t, schema.Error, "delete_everything")
	assert.Equal(t, "red", schema.Color)

	assert.Empty(t, store.created, "rejected workflow must not be persisted")
}

func TestCreateWorkflowMissingTenant(t *testing.T) {
	e, _ := newTestServer(newStubStore(), newStubJobs(), nil)

	rec := doRequest(e, http.MethodPost, "/workflow-create", `{"workflow": []}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCreateWorkflowStoreError(t *testing.T) {
	store := newStubStore()
	store.createErr = errors.New("db down")
	e, _ := newTestServer(store, newStubJobs(), nil)

	rec := doRequest(e, http.MethodPost, "/workflow-create", `{"tenant_id": "t", "workflow": []}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCreateWorkflowBrokerDownStillSucceeds(t *testing.T) {
	store := newStubStore()
	e, _ := newTestServer(store, newStubJobs(), failingProvider{})

	rec := doRequest(e, http.MethodPost, "/workflow-create", `{"tenant_id": "t", "workflow": []}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, store.created, 1)
}

func TestListWorkflowsPagination(t *testing.T) {
	store := newStubStore()
	for i := 0; i < 5; i++ {
		wf := &models.Workflow{ID: fmt.Sprintf("wf-%d", i), TenantID: "t"}
		store.workflows[wf.ID] = wf
	}
	e, _ := newTestServer(store, newStubJobs(), nil)

	rec := doRequest(e, http.MethodGet, "/workflow-list?skip=2&limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var listed []*models.Workflow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Len(t, listed, 2)

	// limit above the cap falls back to the cap instead of erroring
	rec = doRequest(e, http.MethodGet, "/workflow-list?limit=5000", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Len(t, listed, 5)
}

func TestListWorkflowsEmpty(t *testing.T) {
	e, _ := newTestServer(newStubStore(), newStubJobs(), nil)

	rec := doRequest(e, http.MethodGet, "/workflow-list", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestTriggerWorkflow(t *testing.T) {
	store := newStubStore()
	store.workflows["wf-1"] = &models.Workflow{ID: "wf-1", TenantID: "t"}
	jobs := newStubJobs()
	e, _ := newTestServer(store, jobs, nil)

	rec := doRequest(e, http.MethodPost, "/job/workflow-trigger/wf-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "wf-1", resp["workflow_id"])
	assert.NotEmpty(t, resp["job_id"])
	assert.Equal(t, []string{"wf-1"}, jobs.triggered)
}

func TestTriggerWorkflowNotFound(t *testing.T) {
	jobs := newStubJobs()
	e, _ := newTestServer(newStubStore(), jobs, nil)

	rec := doRequest(e, http.MethodPost, "/job/workflow-trigger/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, jobs.triggered)
}

func TestJobStatus(t *testing.T) {
	store := newStubStore()
	store.workflows["wf-1"] = &models.Workflow{ID: "wf-1", TenantID: "t"}
	jobsStub := newStubJobs()
	e, _ := newTestServer(store, jobsStub, nil)

	doRequest(e, http.MethodPost, "/job/workflow-trigger/wf-1", "")
	rec := doRequest(e, http.MethodGet, "/job/status/job-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var job models.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, models.JobStatusPending, job.Status)
}

func TestJobStatusUnknownID(t *testing.T) {
	e, _ := newTestServer(newStubStore(), newStubJobs(), nil)

	rec := doRequest(e, http.MethodGet, "/job/status/no-such-job", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var schema ErrorSchema
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &schema))
	assert.Equal(t, "job not found", schema.Message)
}

func TestListJobs(t *testing.T) {
	store := newStubStore()
	store.workflows["wf-1"] = &models.Workflow{ID: "wf-1", TenantID: "t"}
	jobs := newStubJobs()
	e, _ := newTestServer(store, jobs, nil)

	doRequest(e, http.MethodPost, "/job/workflow-trigger/wf-1", "")
	rec := doRequest(e, http.MethodGet, "/job/list", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var listed []*models.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Len(t, listed, 1)
}

func TestHealth(t *testing.T) {
	store := newStubStore()
	e, _ := newTestServer(store, newStubJobs(), nil)

	rec := doRequest(e, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	store.pingErr = errors.New("db unreachable")
	rec = doRequest(e, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
