package transform

import (
	"context"

	"github.com/vesselhq/vessel/pkg/protocol"
)

// Factory creates TransformNode processors.
type Factory struct{}

// NewFactory creates a transform node factory.
func NewFactory() protocol.NodeFactory {
	return &Factory{}
}

// Create builds a processor for one node instance.
func (f *Factory) Create(_ context.Context, id string, config map[string]any) (protocol.NodeProcessor, error) {
	return NewTransformNode(id, config)
}

// ID returns the node type tag.
func (f *Factory) ID() string {
	return "transform"
}

// Name returns the human-readable node name.
func (f *Factory) Name() string {
	return "Transform"
}

// Description returns what this node does.
func (f *Factory) Description() string {
	return "Reshapes input data with a template expression. JSON object output becomes the node output document."
}

// Schema returns the JSON schema for the node configuration.
func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"expression": map[string]any{
				"type":        "string",
				"description": "Template expression rendered against the node input.",
				"examples": []string{
					`{"recipient": "{{.trigger.address}}", "amount": "{{.quote.amount}}"}`,
					`{{.price.body}}`,
				},
			},
		},
		"required": []string{"expression"},
		"examples": []map[string]any{
			{"expression": `{"total": {{.order.subtotal}}, "currency": "USDC"}`},
		},
	}
}
