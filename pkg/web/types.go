package web

import "github.com/vesselhq/vessel/pkg/models"

// CreateWorkflowRequest carries a full workflow definition. The graph may be
// incomplete on create; publishing is what demands a valid one.
type CreateWorkflowRequest struct {
	Name          string                 `json:"name"                      validate:"required,min=3"`
	Description   string                 `json:"description"`
	Owner         string                 `json:"owner"                     validate:"required"`
	TriggerNodeID string                 `json:"trigger_node_id,omitempty"`
	Variables     map[string]any         `json:"variables,omitempty"`
	Nodes         []*models.WorkflowNode `json:"nodes,omitempty"`
	Edges         []*models.Edge         `json:"edges,omitempty"`
}

// ToWorkflow builds the model the service persists. Status, id and
// timestamps are owned by the service layer.
func (r CreateWorkflowRequest) ToWorkflow() *models.Workflow {
	return &models.Workflow{
		Name:          r.Name,
		Description:   r.Description,
		Owner:         r.Owner,
		TriggerNodeID: r.TriggerNodeID,
		Variables:     r.Variables,
		Nodes:         r.Nodes,
		Edges:         r.Edges,
	}
}

// UpdateWorkflowRequest supports partial updates: nil fields keep their
// stored values. There is no per-node endpoint, so nodes and edges replace
// the whole graph when present.
type UpdateWorkflowRequest struct {
	Name          *string                `json:"name,omitempty"            validate:"omitempty,min=3"`
	Description   *string                `json:"description,omitempty"`
	TriggerNodeID *string                `json:"trigger_node_id,omitempty"`
	Variables     map[string]any         `json:"variables,omitempty"`
	Nodes         []*models.WorkflowNode `json:"nodes,omitempty"`
	Edges         []*models.Edge         `json:"edges,omitempty"`
}

// Apply merges the partial update onto a stored workflow.
func (r UpdateWorkflowRequest) Apply(wf *models.Workflow) {
	if r.Name != nil {
		wf.Name = *r.Name
	}

	if r.Description != nil {
		wf.Description = *r.Description
	}

	if r.TriggerNodeID != nil {
		wf.TriggerNodeID = *r.TriggerNodeID
	}

	if r.Variables != nil {
		wf.Variables = r.Variables
	}

	if r.Nodes != nil {
		wf.Nodes = r.Nodes
	}

	if r.Edges != nil {
		wf.Edges = r.Edges
	}
}

// StartExecutionRequest starts a run of a published workflow. ExecutionID is
// optional: clients supply one to make retried requests idempotent.
type StartExecutionRequest struct {
	ExecutionID string         `json:"execution_id,omitempty"`
	UserID      string         `json:"user_id,omitempty"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
}

// ResumeExecutionRequest carries the wallet signature a suspended run is
// waiting for.
type ResumeExecutionRequest struct {
	Signature string `json:"signature" validate:"required"`
}

// ListWorkflowsResponse is one page of workflows with the requested paging.
type ListWorkflowsResponse struct {
	Workflows []*models.Workflow `json:"workflows"`
	Count     int                `json:"count"`
	Limit     int                `json:"limit"`
	Offset    int                `json:"offset"`
}

// ListExecutionsResponse lists the runs of one workflow.
type ListExecutionsResponse struct {
	Executions []*models.ExecutionContext `json:"executions"`
	Count      int                        `json:"count"`
}

// ExecutionResponse is a run together with its node attempt records.
type ExecutionResponse struct {
	Execution *models.ExecutionContext      `json:"execution"`
	Records   []*models.NodeExecutionRecord `json:"records"`
}

// ResumeExecutionResponse acknowledges a resume with the run's new status.
type ResumeExecutionResponse struct {
	ID     string                 `json:"id"`
	Status models.ExecutionStatus `json:"status"`
}
