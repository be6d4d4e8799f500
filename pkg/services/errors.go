// Package services implements the API-facing business operations over
// persistence: workflow CRUD and publishing, run requests and resumes.
package services

import (
	"errors"

	"github.com/vesselhq/vessel/pkg/models"
	"github.com/vesselhq/vessel/pkg/registry"
)

// Validation errors: the client can fix the request (HTTP 400).
var (
	ErrInvalidRequest  = errors.New("invalid request")
	ErrInvalidStatus   = errors.New("invalid workflow status")
	ErrWorkflowNil     = errors.New("workflow cannot be nil")
	ErrNodesRequired   = errors.New("workflow must have at least one node")
	ErrTriggerDisabled = errors.New("trigger node must be enabled")
)

// Lifecycle conflicts: the operation is legal, the workflow state is not
// (HTTP 409).
var (
	ErrWorkflowNotDraft     = errors.New("workflow is not a draft")
	ErrWorkflowNotPublished = errors.New("workflow is not published")
)

// IsValidationError reports whether err is a client-fixable validation
// failure. Registry schema violations and unknown node types count: they
// surface on workflow writes, where the node config is the client's input.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrWorkflowNil) ||
		errors.Is(err, ErrNodesRequired) ||
		errors.Is(err, ErrTriggerDisabled) ||
		errors.Is(err, models.ErrInvalidWorkflow) ||
		errors.Is(err, registry.ErrInvalidNodeConfig) ||
		errors.Is(err, registry.ErrNodeTypeNotRegistered)
}

// IsConflictError reports whether err is a workflow lifecycle conflict.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrWorkflowNotDraft) ||
		errors.Is(err, ErrWorkflowNotPublished)
}
