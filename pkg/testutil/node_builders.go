// Package testutil provides test data builders for workflow graphs.
package testutil

import (
	"github.com/google/uuid"

	"github.com/vesselhq/vessel/pkg/models"
)

// CreateTestNode creates a WorkflowNode with sane defaults that can be
// overridden per test.
func CreateTestNode(overrides ...func(*models.WorkflowNode)) *models.WorkflowNode {
	node := &models.WorkflowNode{
		ID:        uuid.New().String(),
		Type:      "log",
		Category:  models.CategoryTypeAction,
		Name:      "Test Node",
		Config:    map[string]any{"message": "test", "level": "info"},
		Enabled:   true,
		PositionX: 100,
		PositionY: 200,
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithNodeID sets the node id.
func WithNodeID(id string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.ID = id
	}
}

// WithNodeType sets the node type tag.
func WithNodeType(nodeType string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Type = nodeType
	}
}

// WithNodeConfig replaces the node config.
func WithNodeConfig(config map[string]any) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Config = config
	}
}

// WithTriggerNode configures the node as a webhook trigger.
func WithTriggerNode() func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Type = models.NodeTypeTriggerWebhook
		n.Category = models.CategoryTypeTrigger
		n.Config = map[string]any{"path": "/hooks/test", "method": "POST"}
	}
}

// WithContinueOnError opts the node into continue-on-error.
func WithContinueOnError() func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.ContinueOnError = true
	}
}

// WithDisabled marks the node disabled.
func WithDisabled() func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Enabled = false
	}
}

// CreateTestEdge connects two nodes.
func CreateTestEdge(sourceID, targetID string, overrides ...func(*models.Edge)) *models.Edge {
	edge := &models.Edge{
		ID:           uuid.New().String(),
		SourceNodeID: sourceID,
		TargetNodeID: targetID,
	}

	for _, override := range overrides {
		override(edge)
	}

	return edge
}

// WithSourceHandle names the output port the edge leaves from.
func WithSourceHandle(handle string) func(*models.Edge) {
	return func(e *models.Edge) {
		e.SourceHandle = handle
	}
}

// WithTargetHandle nests the edge data under a key in the target input.
func WithTargetHandle(handle string) func(*models.Edge) {
	return func(e *models.Edge) {
		e.TargetHandle = handle
	}
}

// WithMappings sets field-level mappings on the edge.
func WithMappings(mappings ...models.FieldMapping) func(*models.Edge) {
	return func(e *models.Edge) {
		e.Mappings = mappings
	}
}

// CreateTestWorkflow builds a published workflow around the given nodes and
// edges. The first trigger-category node becomes the trigger node.
func CreateTestWorkflow(nodes []*models.WorkflowNode, edges []*models.Edge, overrides ...func(*models.Workflow)) *models.Workflow {
	wf := &models.Workflow{
		ID:     uuid.New().String(),
		Name:   "Test Workflow",
		Status: models.WorkflowStatusPublished,
		Owner:  "test-user",
		Nodes:  nodes,
		Edges:  edges,
	}

	for _, node := range nodes {
		if node.IsTriggerNode() {
			wf.TriggerNodeID = node.ID

			break
		}
	}

	for _, override := range overrides {
		override(wf)
	}

	return wf
}

// WithWorkflowStatus sets the workflow status.
func WithWorkflowStatus(status models.WorkflowStatus) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Status = status
	}
}

// LinearWorkflow builds trigger -> n1 -> n2 -> ... from the given action
// nodes, in order.
func LinearWorkflow(actions ...*models.WorkflowNode) *models.Workflow {
	trigger := CreateTestNode(WithTriggerNode())

	nodes := append([]*models.WorkflowNode{trigger}, actions...)
	edges := make([]*models.Edge, 0, len(actions))

	previous := trigger
	for _, action := range actions {
		edges = append(edges, CreateTestEdge(previous.ID, action.ID))
		previous = action
	}

	return CreateTestWorkflow(nodes, edges)
}
