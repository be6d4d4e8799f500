// Package transform implements template-driven reshaping of node input into
// a new output document.
package transform

import (
	"context"
	"errors"
	"fmt"

	"github.com/vesselhq/vessel/pkg/models"
	"github.com/vesselhq/vessel/pkg/protocol"
	"github.com/vesselhq/vessel/pkg/template"
)

// TransformNode renders an expression against the node input. Expressions
// rendering to JSON objects or arrays decode into structured values.
type TransformNode struct {
	id         string
	expression string
}

// NewTransformNode builds a transform node from its config.
func NewTransformNode(id string, config map[string]any) (*TransformNode, error) {
	expression, ok := config["expression"].(string)
	if !ok || expression == "" {
		return nil, errors.New("missing required field 'expression'")
	}

	return &TransformNode{id: id, expression: expression}, nil
}

// Execute renders the expression and returns the result.
func (n *TransformNode) Execute(_ context.Context, in protocol.Input) (*models.NodeResult, error) {
	scope := template.Scope(in.ExecutionID, in.WorkflowID, in.NodeID, in.Data, in.Secrets)

	result, err := template.Render(n.expression, scope)
	if err != nil {
		return &models.NodeResult{
			NodeID: n.id,
			Error:  fmt.Sprintf("transformation failed: %v", err),
		}, nil
	}

	// Object results become the output document directly so downstream
	// nodes can address fields without an extra hop.
	if doc, ok := result.(map[string]any); ok {
		return &models.NodeResult{NodeID: n.id, Success: true, Output: doc}, nil
	}

	return &models.NodeResult{
		NodeID:  n.id,
		Success: true,
		Output:  map[string]any{"result": result},
	}, nil
}
