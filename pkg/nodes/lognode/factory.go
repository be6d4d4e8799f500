package lognode

import (
	"context"

	"github.com/vesselhq/vessel/pkg/protocol"
)

// Factory creates LogNode processors.
type Factory struct{}

// NewFactory creates a log node factory.
func NewFactory() protocol.NodeFactory {
	return &Factory{}
}

// Create builds a processor for one node instance.
func (f *Factory) Create(_ context.Context, id string, config map[string]any) (protocol.NodeProcessor, error) {
	return NewLogNode(id, config)
}

// ID returns the node type tag.
func (f *Factory) ID() string {
	return "log"
}

// Name returns the human-readable node name.
func (f *Factory) Name() string {
	return "Log"
}

// Description returns what this node does.
func (f *Factory) Description() string {
	return "Emits a templated message on the run's structured logger and passes input through unchanged."
}

// Schema returns the JSON schema for the node configuration.
func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "Message to log. Supports templating against the node input.",
				"examples": []string{
					"transfer of {{.quote.amount}} queued",
					"run {{.execution.id}} reached checkpoint",
				},
			},
			"level": map[string]any{
				"type":        "string",
				"description": "Log level. Defaults to info.",
				"enum":        []string{"debug", "info", "warn", "error"},
			},
		},
		"required": []string{"message"},
		"examples": []map[string]any{
			{"message": "balance check passed for {{.trigger.safe_address}}", "level": "debug"},
		},
	}
}
