package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"taskflow/backend/pkg/models"
)

// maxResponseBody caps how much of an http_request response is read into
// the step output.
const maxResponseBody = 1 << 20

// httpRequest fetches params.url with a GET and returns the decoded body.
// JSON responses are decoded into a map or array; anything else is
// returned as text.
func (e *Executor) httpRequest(ctx context.Context, params map[string]any) (any, error) {
	url, err := stringParam(params, "url")
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("request %s: status %d", url, resp.StatusCode)
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var decoded any
		if err := json.Unmarshal(body, &decoded); err != nil {
			return nil, fmt.Errorf("decode json response from %s: %w", url, err)
		}
		return decoded, nil
	}
	return string(body), nil
}

// summarizeText sends params.text to the text sidecar and returns its
// response verbatim.
func (e *Executor) summarizeText(ctx context.Context, params map[string]any) (any, error) {
	text, err := stringParam(params, "text")
	if err != nil {
		return nil, err
	}
	return e.text.Summarize(ctx, text)
}

// saveToDatabase persists the step params as a standalone workflow_result
// row tied to the running workflow.
func (e *Executor) saveToDatabase(ctx context.Context, wf *models.Workflow, params map[string]any) (any, error) {
	record := &models.WorkflowResult{
		ID:         uuid.NewString(),
		WorkflowID: wf.ID,
		Results:    []map[string]any{params},
	}
	if err := e.store.CreateWorkflowResult(ctx, record); err != nil {
		return nil, fmt.Errorf("save to database: %w", err)
	}
	return map[string]any{"saved": true, "result_id": record.ID}, nil
}
