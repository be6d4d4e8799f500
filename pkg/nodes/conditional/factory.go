package conditional

import (
	"context"

	"github.com/vesselhq/vessel/pkg/protocol"
)

// Factory creates ConditionalNode processors.
type Factory struct{}

// NewFactory creates a conditional node factory.
func NewFactory() protocol.NodeFactory {
	return &Factory{}
}

// Create builds a processor for one node instance.
func (f *Factory) Create(_ context.Context, id string, config map[string]any) (protocol.NodeProcessor, error) {
	return NewConditionalNode(id, config)
}

// ID returns the node type tag.
func (f *Factory) ID() string {
	return "conditional"
}

// Name returns the human-readable node name.
func (f *Factory) Name() string {
	return "Conditional"
}

// Description returns what this node does.
func (f *Factory) Description() string {
	return "Evaluates a condition and routes execution to the true or false branch."
}

// Schema returns the JSON schema for the node configuration.
func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"condition": map[string]any{
				"type":        "string",
				"description": "Condition expression to evaluate. Supports templating against the node input.",
				"examples": []string{
					`{{.trigger.action}} == "created"`,
					`{{gt .check.score 75.0}}`,
					`{{.verified}}`,
					`true`,
				},
			},
		},
		"required": []string{"condition"},
		"examples": []map[string]any{
			{"condition": `{{eq .trigger.environment "production"}}`},
			{"condition": `{{gt .price.amount 100.0}}`},
		},
	}
}
