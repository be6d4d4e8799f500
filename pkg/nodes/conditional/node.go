// Package conditional implements the IF node: it renders a templated
// expression against the node input and routes the run down the "true" or
// "false" edge handle.
package conditional

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/vesselhq/vessel/pkg/models"
	"github.com/vesselhq/vessel/pkg/protocol"
	"github.com/vesselhq/vessel/pkg/template"
)

// Branch handles the node routes to.
const (
	BranchTrue  = "true"
	BranchFalse = "false"
)

// ConditionalNode evaluates a templated condition and branches on the result.
type ConditionalNode struct {
	id        string
	condition string
}

// NewConditionalNode builds a conditional node from its config.
func NewConditionalNode(id string, config map[string]any) (*ConditionalNode, error) {
	condition, ok := config["condition"].(string)
	if !ok || condition == "" {
		return nil, errors.New("missing required field 'condition'")
	}

	return &ConditionalNode{id: id, condition: condition}, nil
}

// Execute renders the condition against the input and picks a branch.
func (n *ConditionalNode) Execute(_ context.Context, in protocol.Input) (*models.NodeResult, error) {
	scope := template.Scope(in.ExecutionID, in.WorkflowID, in.NodeID, in.Data, in.Secrets)

	value, err := template.Render(n.condition, scope)
	if err != nil {
		return &models.NodeResult{
			NodeID: n.id,
			Error:  fmt.Sprintf("condition evaluation failed: %v", err),
		}, nil
	}

	branch := BranchFalse
	if truthy(value) {
		branch = BranchTrue
	}

	return &models.NodeResult{
		NodeID:         n.id,
		Success:        true,
		BranchToFollow: branch,
		Output: map[string]any{
			"condition_result": branch == BranchTrue,
			"evaluated_value":  value,
		},
	}, nil
}

// IsBranchSelector marks the node as routing by branch handle.
func (n *ConditionalNode) IsBranchSelector() bool {
	return true
}

// truthy coerces a rendered value to a boolean. Boolean text parses as a
// boolean, other strings are true when non-empty, numbers when non-zero,
// collections when non-empty.
func truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}

		return v != ""
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		return false
	}
}
