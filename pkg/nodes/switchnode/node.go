// Package switchnode implements the SWITCH node: it renders a value
// expression and routes the run down the branch of the first case whose
// value matches, or down an optional default branch.
package switchnode

import (
	"context"
	"errors"
	"fmt"

	"github.com/vesselhq/vessel/pkg/models"
	"github.com/vesselhq/vessel/pkg/protocol"
	"github.com/vesselhq/vessel/pkg/template"
)

// BranchDefault is the branch taken when no case matches and the config
// names no other default.
const BranchDefault = "default"

type switchCase struct {
	value  string
	branch string
}

// SwitchNode routes execution by comparing a rendered value against its
// cases in declaration order.
type SwitchNode struct {
	id            string
	value         string
	cases         []switchCase
	defaultBranch string
}

// NewSwitchNode builds a switch node from its config.
func NewSwitchNode(id string, config map[string]any) (*SwitchNode, error) {
	value, ok := config["value"].(string)
	if !ok || value == "" {
		return nil, errors.New("missing required field 'value'")
	}

	node := &SwitchNode{id: id, value: value, defaultBranch: BranchDefault}

	if defaultBranch, ok := config["default"].(string); ok && defaultBranch != "" {
		node.defaultBranch = defaultBranch
	}

	casesConfig, ok := config["cases"].([]any)
	if !ok {
		return nil, errors.New("missing required field 'cases'")
	}

	for i, raw := range casesConfig {
		caseMap, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("case %d must be an object", i)
		}

		caseValue, ok := caseMap["value"].(string)
		if !ok {
			return nil, fmt.Errorf("case %d missing 'value'", i)
		}

		branch, ok := caseMap["branch"].(string)
		if !ok {
			return nil, fmt.Errorf("case %d missing 'branch'", i)
		}

		node.cases = append(node.cases, switchCase{value: caseValue, branch: branch})
	}

	return node, nil
}

// Execute renders the value and picks the first matching case's branch.
func (n *SwitchNode) Execute(_ context.Context, in protocol.Input) (*models.NodeResult, error) {
	scope := template.Scope(in.ExecutionID, in.WorkflowID, in.NodeID, in.Data, in.Secrets)

	rendered, err := template.Render(n.value, scope)
	if err != nil {
		return &models.NodeResult{
			NodeID: n.id,
			Error:  fmt.Sprintf("value evaluation failed: %v", err),
		}, nil
	}

	value := fmt.Sprintf("%v", rendered)

	for _, c := range n.cases {
		if c.value == value {
			return &models.NodeResult{
				NodeID:         n.id,
				Success:        true,
				BranchToFollow: c.branch,
				Output: map[string]any{
					"matched_value": value,
					"branch":        c.branch,
					"matched":       true,
				},
			}, nil
		}
	}

	return &models.NodeResult{
		NodeID:         n.id,
		Success:        true,
		BranchToFollow: n.defaultBranch,
		Output: map[string]any{
			"matched_value": value,
			"branch":        n.defaultBranch,
			"matched":       false,
		},
	}, nil
}

// IsBranchSelector marks the node as routing by branch handle.
func (n *SwitchNode) IsBranchSelector() bool {
	return true
}
