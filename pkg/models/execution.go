package models

import (
	"time"
)

// ExecutionStatus is the run-level state machine:
//
//	pending -> running -> success
//	                   -> failed
//	                   -> waiting_for_signature -> running -> ...
type ExecutionStatus string

const (
	ExecutionStatusPending             ExecutionStatus = "pending"
	ExecutionStatusRunning             ExecutionStatus = "running"
	ExecutionStatusSuccess             ExecutionStatus = "success"
	ExecutionStatusFailed              ExecutionStatus = "failed"
	ExecutionStatusWaitingForSignature ExecutionStatus = "waiting_for_signature"
)

// IsTerminal reports whether no further transitions are possible.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusSuccess || s == ExecutionStatusFailed
}

// ExecutionContext is the durable record of a single workflow run. Everything
// the engine needs to continue a run lives here, never in process memory: a
// paused run can be resumed by any worker that can reach the store.
//
// Invariant: Status == waiting_for_signature exactly when PausedSnapshot,
// PausedNodeID and SafeTxHash are set. Resume clears all of them in the same
// store operation that flips the status back to running.
type ExecutionContext struct {
	ID          string          `json:"id"`
	WorkflowID  string          `json:"workflow_id"`
	UserID      string          `json:"user_id"`
	Status      ExecutionStatus `json:"status"`
	TriggerData map[string]any  `json:"trigger_data,omitempty"`

	// NodeOutputs accumulates each executed node's output keyed by node id.
	NodeOutputs map[string]map[string]any `json:"node_outputs"`

	CurrentNodeID string `json:"current_node_id,omitempty"`
	Steps         int    `json:"steps"`

	// Pause state, set while waiting for a signature.
	PausedNodeID   string          `json:"paused_node_id,omitempty"`
	PausedSnapshot *PausedSnapshot `json:"paused_snapshot,omitempty"`
	SafeTxHash     string          `json:"safe_tx_hash,omitempty"`
	SafeTxData     map[string]any  `json:"safe_tx_data,omitempty"`

	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// NewExecutionContext builds a fresh running context for a workflow run.
func NewExecutionContext(id, workflowID, userID string, triggerData map[string]any) *ExecutionContext {
	return &ExecutionContext{
		ID:          id,
		WorkflowID:  workflowID,
		UserID:      userID,
		Status:      ExecutionStatusRunning,
		TriggerData: triggerData,
		NodeOutputs: make(map[string]map[string]any),
		CreatedAt:   time.Now().UTC(),
	}
}

// NewPendingExecutionContext builds a context waiting to be claimed by a
// worker. The record is persisted before the start request is published so
// a consumer that wins the claim always finds it.
func NewPendingExecutionContext(id, workflowID, userID string, triggerData map[string]any) *ExecutionContext {
	ec := NewExecutionContext(id, workflowID, userID, triggerData)
	ec.Status = ExecutionStatusPending

	return ec
}

// MarkRunning flips a pending run to running once a worker claims it.
func (ec *ExecutionContext) MarkRunning() {
	ec.Status = ExecutionStatusRunning
}

// MarkCompleted transitions the run to success and stamps completion.
func (ec *ExecutionContext) MarkCompleted() {
	now := time.Now().UTC()
	ec.Status = ExecutionStatusSuccess
	ec.CompletedAt = &now
	ec.CurrentNodeID = ""
}

// MarkFailed transitions the run to failed with the error recorded.
func (ec *ExecutionContext) MarkFailed(message string) {
	now := time.Now().UTC()
	ec.Status = ExecutionStatusFailed
	ec.ErrorMessage = message
	ec.CompletedAt = &now
}

// MarkWaitingForSignature suspends the run at nodeID with the frozen
// traversal state and the pending transaction attached.
func (ec *ExecutionContext) MarkWaitingForSignature(nodeID string, snapshot *PausedSnapshot, safeTxHash string, safeTxData map[string]any) {
	ec.Status = ExecutionStatusWaitingForSignature
	ec.PausedNodeID = nodeID
	ec.PausedSnapshot = snapshot
	ec.SafeTxHash = safeTxHash
	ec.SafeTxData = safeTxData
}

// ClearPauseState removes pause fields after a successful resume claim.
func (ec *ExecutionContext) ClearPauseState() {
	ec.Status = ExecutionStatusRunning
	ec.PausedNodeID = ""
	ec.PausedSnapshot = nil
	ec.SafeTxHash = ""
	ec.SafeTxData = nil
}
