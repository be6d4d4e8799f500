package models

import (
	"errors"
	"time"
)

// ErrInvalidWorkflow is returned when a workflow graph fails validation.
var ErrInvalidWorkflow = errors.New("invalid workflow")

// CategoryType represents the category of node.
type CategoryType string

const (
	CategoryTypeAction  CategoryType = "action"  // Executable nodes (transform, safe tx, log, ...)
	CategoryTypeTrigger CategoryType = "trigger" // Entry points (webhook, schedule); never executed by the engine
)

// Built-in trigger node types.
const (
	NodeTypeTriggerWebhook  = "trigger:webhook"
	NodeTypeTriggerSchedule = "trigger:schedule"
)

// WorkflowNode is a node instance in a workflow graph.
type WorkflowNode struct {
	ID       string       `json:"id"       validate:"required"`
	Type     string       `json:"type"     validate:"required"`
	Category CategoryType `json:"category" validate:"required"`
	Name     string       `json:"name"     validate:"required,min=1"`
	Config   map[string]any `json:"config"`
	// ContinueOnError keeps the run going when this node fails; the error
	// output is recorded and traversal proceeds along the normal edge.
	ContinueOnError bool `json:"continue_on_error"`
	Enabled         bool `json:"enabled"`
	PositionX       int  `json:"position_x"`
	PositionY       int  `json:"position_y"`
}

func (n *WorkflowNode) IsActionNode() bool {
	return n.Category == CategoryTypeAction
}

func (n *WorkflowNode) IsTriggerNode() bool {
	return n.Category == CategoryTypeTrigger
}

// NodeResult is what a node processor hands back to the engine.
type NodeResult struct {
	NodeID  string         `json:"node_id"`
	Success bool           `json:"success"`
	Output  map[string]any `json:"output"`
	Error   string         `json:"error,omitempty"`

	// BranchToFollow names the outgoing edge handle to follow. Only honored
	// for processors that declare the branch-selector capability.
	BranchToFollow string `json:"branch_to_follow,omitempty"`

	// RequiresSignature suspends the run until an owner signature for
	// SafeTxHash arrives. SafeTxData is the full transaction document the
	// node needs to finish the job on resume.
	RequiresSignature bool           `json:"requires_signature,omitempty"`
	SafeTxHash        string         `json:"safe_tx_hash,omitempty"`
	SafeTxData        map[string]any `json:"safe_tx_data,omitempty"`
}

// NodeStatus defines the possible states of a node execution.
type NodeStatus string

const (
	NodeStatusPending NodeStatus = "pending"
	NodeStatusRunning NodeStatus = "running"
	NodeStatusSuccess NodeStatus = "success"
	NodeStatusError   NodeStatus = "error"
)

// NodeExecutionRecord is the write-once audit row for a single node attempt.
// A node re-executed after resume gets a new record; records are never
// updated in place.
type NodeExecutionRecord struct {
	ID          string         `json:"id"`
	ExecutionID string         `json:"execution_id"`
	NodeID      string         `json:"node_id"`
	Status      NodeStatus     `json:"status"`
	Input       map[string]any `json:"input,omitempty"`
	Output      map[string]any `json:"output,omitempty"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	DurationMS  int64          `json:"duration_ms"`
}
