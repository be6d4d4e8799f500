package schedule

import (
	"context"

	"github.com/vesselhq/vessel/pkg/models"
	"github.com/vesselhq/vessel/pkg/protocol"
)

// Factory creates schedule trigger placeholders.
type Factory struct{}

// NewFactory creates a schedule trigger factory.
func NewFactory() protocol.NodeFactory {
	return &Factory{}
}

// Create builds a placeholder for one trigger instance.
func (f *Factory) Create(_ context.Context, id string, config map[string]any) (protocol.NodeProcessor, error) {
	return NewTriggerNode(id, config)
}

// ID returns the node type tag.
func (f *Factory) ID() string {
	return models.NodeTypeTriggerSchedule
}

// Name returns the human-readable node name.
func (f *Factory) Name() string {
	return "Schedule Trigger"
}

// Description returns what this node does.
func (f *Factory) Description() string {
	return "Starts a run on a cron schedule. The external scheduler enqueues runs; this node validates the expression."
}

// Schema returns the JSON schema for the node configuration.
func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"cron": map[string]any{
				"type":        "string",
				"description": "Standard five-field cron expression or a descriptor such as @hourly or @every 30m.",
				"examples":    []string{"0 9 * * MON-FRI", "@hourly", "@every 15m"},
			},
		},
		"required": []string{"cron"},
		"examples": []map[string]any{
			{"cron": "*/10 * * * *"},
		},
	}
}
