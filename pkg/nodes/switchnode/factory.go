package switchnode

import (
	"context"

	"github.com/vesselhq/vessel/pkg/protocol"
)

// Factory creates SwitchNode processors.
type Factory struct{}

// NewFactory creates a switch node factory.
func NewFactory() protocol.NodeFactory {
	return &Factory{}
}

// Create builds a processor for one node instance.
func (f *Factory) Create(_ context.Context, id string, config map[string]any) (protocol.NodeProcessor, error) {
	return NewSwitchNode(id, config)
}

// ID returns the node type tag.
func (f *Factory) ID() string {
	return "switch"
}

// Name returns the human-readable node name.
func (f *Factory) Name() string {
	return "Switch"
}

// Description returns what this node does.
func (f *Factory) Description() string {
	return "Routes execution to the branch of the first case matching a rendered value, with an optional default branch."
}

// Schema returns the JSON schema for the node configuration.
func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"value": map[string]any{
				"type":        "string",
				"description": "Expression rendered against the node input and compared to each case value.",
				"examples":    []string{"{{.trigger.network}}", "{{.risk.tier}}"},
			},
			"cases": map[string]any{
				"type":        "array",
				"description": "Cases checked in order; the first match wins.",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"value":  map[string]any{"type": "string", "description": "Literal the rendered value must equal."},
						"branch": map[string]any{"type": "string", "description": "Edge handle to follow on match."},
					},
					"required": []string{"value", "branch"},
				},
				"minItems": 1,
			},
			"default": map[string]any{
				"type":        "string",
				"description": "Edge handle to follow when no case matches. Defaults to \"default\".",
			},
		},
		"required": []string{"value", "cases"},
		"examples": []map[string]any{
			{
				"value": "{{.trigger.network}}",
				"cases": []map[string]any{
					{"value": "polygon", "branch": "polygon"},
					{"value": "base", "branch": "base"},
				},
				"default": "unsupported",
			},
		},
	}
}
