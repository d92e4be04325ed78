// Package models defines the domain models for the workflow tasks service.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// StepAction identifies the handler a workflow step is executed with. The
// set is closed: anything outside it is rejected at the JSON-decoding edge,
// before a workflow can be persisted.
type StepAction string

const (
	ActionHTTPRequest    StepAction = "http_request"
	ActionSummarizeText  StepAction = "summarize_text"
	ActionSaveToDatabase StepAction = "save_to_database"
)

// ErrUnknownAction is returned when a step names an action outside the
// registry.
var ErrUnknownAction = errors.New("unknown workflow action")

// ErrMissingTenant is returned when a workflow has no tenant scoping id.
var ErrMissingTenant = errors.New("tenant_id is required")

// Valid reports whether the action is one of the registered step actions.
func (a StepAction) Valid() bool {
	switch a {
	case ActionHTTPRequest, ActionSummarizeText, ActionSaveToDatabase:
		return true
	}
	return false
}

// UnmarshalJSON decodes and validates a step action in one pass so that an
// unknown action never survives request binding.
func (a *StepAction) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	action := StepAction(s)
	if !action.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
	*a = action
	return nil
}

// WorkflowStep is one entry of a workflow definition. Params is an
// action-specific payload and is opaque to the core.
type WorkflowStep struct {
	Action StepAction     `json:"action"`
	Params map[string]any `json:"params,omitempty"`
}

// Workflow is a declarative workflow definition. Steps order is execution
// order. Definitions are immutable once created; there is no update or
// delete operation. An empty step list is accepted and executes to an empty
// result sequence.
type Workflow struct {
	ID       string         `json:"id"`
	TenantID string         `json:"tenant_id"`
	Steps    []WorkflowStep `json:"workflow"`
}

// Validate checks the definition before persistence. Step actions are
// re-checked here so workflows constructed in code get the same guarantee
// as JSON-decoded ones.
func (w *Workflow) Validate() error {
	if w.TenantID == "" {
		return ErrMissingTenant
	}
	for i, step := range w.Steps {
		if !step.Action.Valid() {
			return fmt.Errorf("step %d: %w: %q", i, ErrUnknownAction, step.Action)
		}
	}
	return nil
}

// WorkflowResult holds the outcome of one workflow execution: one record
// per executed step, in declared order. Results are written once at the end
// of an execution and never mutated.
type WorkflowResult struct {
	ID         string           `json:"id"`
	WorkflowID string           `json:"workflow_id"`
	Results    []map[string]any `json:"workflow_result"`
}
