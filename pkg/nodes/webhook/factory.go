package webhook

import (
	"context"

	"github.com/vesselhq/vessel/pkg/models"
	"github.com/vesselhq/vessel/pkg/protocol"
)

// Factory creates webhook trigger placeholders.
type Factory struct{}

// NewFactory creates a webhook trigger factory.
func NewFactory() protocol.NodeFactory {
	return &Factory{}
}

// Create builds a placeholder for one trigger instance.
func (f *Factory) Create(_ context.Context, id string, config map[string]any) (protocol.NodeProcessor, error) {
	return NewTriggerNode(id, config)
}

// ID returns the node type tag.
func (f *Factory) ID() string {
	return models.NodeTypeTriggerWebhook
}

// Name returns the human-readable node name.
func (f *Factory) Name() string {
	return "Webhook Trigger"
}

// Description returns what this node does.
func (f *Factory) Description() string {
	return "Starts a run when an HTTP delivery arrives on the configured path. The delivery payload becomes the run's trigger data."
}

// Schema returns the JSON schema for the node configuration.
func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Delivery path, must start with /.",
				"pattern":     "^/",
				"examples":    []string{"/hooks/deposit-created"},
			},
			"method": map[string]any{
				"type":        "string",
				"description": "Accepted HTTP method. Defaults to POST.",
				"enum":        []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
			},
		},
		"required": []string{"path"},
		"examples": []map[string]any{
			{"path": "/hooks/deposit-created", "method": "POST"},
		},
	}
}
