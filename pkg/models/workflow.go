// Package models defines the core domain models for graph-based workflow
// execution: workflows, nodes, edges, runs and their paused snapshots.
package models

import (
	"fmt"
	"time"
)

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusDraft     WorkflowStatus = "draft"     // Editable, not executable
	WorkflowStatusPublished WorkflowStatus = "published" // Executable
	WorkflowStatusArchived  WorkflowStatus = "archived"  // Historical, not executable
)

// Workflow is a user-authored directed graph of nodes and edges. Execution
// starts at the trigger node and follows edges until a path ends, a node
// fails, or a node suspends the run waiting for a wallet signature.
type Workflow struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"        validate:"required,min=3"`
	Description   string          `json:"description"`
	Status        WorkflowStatus  `json:"status"      validate:"required"`
	Nodes         []*WorkflowNode `json:"nodes"`
	Edges         []*Edge         `json:"edges"`
	TriggerNodeID string          `json:"trigger_node_id"`
	Variables     map[string]any  `json:"variables,omitempty"`
	Owner         string          `json:"owner"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	PublishedAt   *time.Time      `json:"published_at,omitempty"`
	DeletedAt     *time.Time      `json:"deleted_at,omitempty"`
}

// Node returns the node with the given id, or nil.
func (w *Workflow) Node(nodeID string) *WorkflowNode {
	for _, n := range w.Nodes {
		if n.ID == nodeID {
			return n
		}
	}

	return nil
}

// OutgoingEdges returns the edges leaving the given node, in definition order.
func (w *Workflow) OutgoingEdges(nodeID string) []*Edge {
	var out []*Edge

	for _, e := range w.Edges {
		if e.SourceNodeID == nodeID {
			out = append(out, e)
		}
	}

	return out
}

// IncomingEdges returns the edges arriving at the given node, in definition
// order.
func (w *Workflow) IncomingEdges(nodeID string) []*Edge {
	var in []*Edge

	for _, e := range w.Edges {
		if e.TargetNodeID == nodeID {
			in = append(in, e)
		}
	}

	return in
}

// Validate checks graph-level integrity: a trigger node must exist and every
// edge must reference known nodes. Node config validation happens in the
// registry, not here.
func (w *Workflow) Validate() error {
	if w.TriggerNodeID == "" {
		return fmt.Errorf("%w: trigger node id is empty", ErrInvalidWorkflow)
	}

	trigger := w.Node(w.TriggerNodeID)
	if trigger == nil {
		return fmt.Errorf("%w: trigger node %q not found", ErrInvalidWorkflow, w.TriggerNodeID)
	}

	if !trigger.IsTriggerNode() {
		return fmt.Errorf("%w: node %q is not a trigger", ErrInvalidWorkflow, w.TriggerNodeID)
	}

	ids := make(map[string]bool, len(w.Nodes))

	for _, n := range w.Nodes {
		if ids[n.ID] {
			return fmt.Errorf("%w: duplicate node id %q", ErrInvalidWorkflow, n.ID)
		}

		ids[n.ID] = true
	}

	for _, e := range w.Edges {
		if !ids[e.SourceNodeID] {
			return fmt.Errorf("%w: edge %q references unknown source node %q", ErrInvalidWorkflow, e.ID, e.SourceNodeID)
		}

		if !ids[e.TargetNodeID] {
			return fmt.Errorf("%w: edge %q references unknown target node %q", ErrInvalidWorkflow, e.ID, e.TargetNodeID)
		}
	}

	return nil
}
