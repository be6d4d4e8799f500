package switchnode

import (
	"context"
	"testing"

	"github.com/vesselhq/vessel/pkg/protocol"
)

func testConfig() map[string]any {
	return map[string]any{
		"value": "{{.network}}",
		"cases": []any{
			map[string]any{"value": "polygon", "branch": "polygon"},
			map[string]any{"value": "base", "branch": "base"},
		},
	}
}

func testInput(data map[string]any) protocol.Input {
	return protocol.Input{
		ExecutionID: "exec-1",
		WorkflowID:  "wf-1",
		NodeID:      "test-switch",
		Data:        data,
	}
}

func TestSwitchNode_Execute_Match(t *testing.T) {
	node, err := NewSwitchNode("test-switch", testConfig())
	if err != nil {
		t.Fatalf("failed to create node: %v", err)
	}

	result, err := node.Execute(context.Background(), testInput(map[string]any{"network": "base"}))
	if err != nil {
		t.Fatalf("node execution failed: %v", err)
	}

	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}

	if result.BranchToFollow != "base" {
		t.Errorf("expected branch %q, got %q", "base", result.BranchToFollow)
	}

	if result.Output["matched"] != true {
		t.Errorf("expected matched true, got %v", result.Output["matched"])
	}
}

func TestSwitchNode_Execute_FirstMatchWins(t *testing.T) {
	config := map[string]any{
		"value": "{{.network}}",
		"cases": []any{
			map[string]any{"value": "polygon", "branch": "first"},
			map[string]any{"value": "polygon", "branch": "second"},
		},
	}

	node, err := NewSwitchNode("test-switch", config)
	if err != nil {
		t.Fatalf("failed to create node: %v", err)
	}

	result, err := node.Execute(context.Background(), testInput(map[string]any{"network": "polygon"}))
	if err != nil {
		t.Fatalf("node execution failed: %v", err)
	}

	if result.BranchToFollow != "first" {
		t.Errorf("expected the first declared case to win, got %q", result.BranchToFollow)
	}
}

func TestSwitchNode_Execute_NoMatchUsesDefault(t *testing.T) {
	node, err := NewSwitchNode("test-switch", testConfig())
	if err != nil {
		t.Fatalf("failed to create node: %v", err)
	}

	result, err := node.Execute(context.Background(), testInput(map[string]any{"network": "solana"}))
	if err != nil {
		t.Fatalf("node execution failed: %v", err)
	}

	if result.BranchToFollow != BranchDefault {
		t.Errorf("expected branch %q, got %q", BranchDefault, result.BranchToFollow)
	}

	if result.Output["matched"] != false {
		t.Errorf("expected matched false, got %v", result.Output["matched"])
	}
}

func TestSwitchNode_Execute_ConfiguredDefault(t *testing.T) {
	config := testConfig()
	config["default"] = "unsupported"

	node, err := NewSwitchNode("test-switch", config)
	if err != nil {
		t.Fatalf("failed to create node: %v", err)
	}

	result, err := node.Execute(context.Background(), testInput(map[string]any{"network": "solana"}))
	if err != nil {
		t.Fatalf("node execution failed: %v", err)
	}

	if result.BranchToFollow != "unsupported" {
		t.Errorf("expected branch %q, got %q", "unsupported", result.BranchToFollow)
	}
}

func TestSwitchNode_Execute_NumericValue(t *testing.T) {
	config := map[string]any{
		"value": "{{.tier}}",
		"cases": []any{
			map[string]any{"value": "3", "branch": "vip"},
		},
	}

	node, err := NewSwitchNode("test-switch", config)
	if err != nil {
		t.Fatalf("failed to create node: %v", err)
	}

	result, err := node.Execute(context.Background(), testInput(map[string]any{"tier": 3}))
	if err != nil {
		t.Fatalf("node execution failed: %v", err)
	}

	if result.BranchToFollow != "vip" {
		t.Errorf("expected numeric input to match its text form, got %q", result.BranchToFollow)
	}
}

func TestSwitchNode_ConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		config map[string]any
	}{
		{name: "missing value", config: map[string]any{"cases": []any{}}},
		{name: "missing cases", config: map[string]any{"value": "{{.x}}"}},
		{
			name: "case without branch",
			config: map[string]any{
				"value": "{{.x}}",
				"cases": []any{map[string]any{"value": "a"}},
			},
		},
		{
			name: "case is not an object",
			config: map[string]any{
				"value": "{{.x}}",
				"cases": []any{"a"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSwitchNode("test-switch", tt.config); err == nil {
				t.Error("expected a config error")
			}
		})
	}
}

func TestSwitchNode_IsBranchSelector(t *testing.T) {
	node, err := NewSwitchNode("test-switch", testConfig())
	if err != nil {
		t.Fatalf("failed to create node: %v", err)
	}

	if !node.IsBranchSelector() {
		t.Error("switch nodes must declare the branch selector capability")
	}
}
