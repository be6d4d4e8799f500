package httprequest

import (
	"context"

	"github.com/vesselhq/vessel/pkg/protocol"
)

// Factory creates HTTPRequestNode processors.
type Factory struct{}

// NewFactory creates an HTTP request node factory.
func NewFactory() protocol.NodeFactory {
	return &Factory{}
}

// Create builds a processor for one node instance.
func (f *Factory) Create(_ context.Context, id string, config map[string]any) (protocol.NodeProcessor, error) {
	return NewHTTPRequestNode(id, config)
}

// ID returns the node type tag.
func (f *Factory) ID() string {
	return "httprequest"
}

// Name returns the human-readable node name.
func (f *Factory) Name() string {
	return "HTTP Request"
}

// Description returns what this node does.
func (f *Factory) Description() string {
	return "Calls an external HTTP endpoint with templated URL, headers and body. Retries transient failures."
}

// Schema returns the JSON schema for the node configuration.
func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Endpoint to call. Supports templating against the node input.",
				"examples":    []string{"https://api.example.com/v1/quote?asset={{.trigger.asset}}"},
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method. Defaults to GET.",
				"enum":        []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD"},
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "Request headers; values support templating.",
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Request body; supports templating. Content-Type defaults to application/json when set.",
			},
			"timeout": map[string]any{
				"type":        "number",
				"description": "Per-request timeout in seconds (1-300). Defaults to 30.",
				"minimum":     1,
				"maximum":     300,
			},
			"retries": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"attempts": map[string]any{"type": "number", "minimum": 1, "maximum": 10},
					"delay_ms": map[string]any{"type": "number", "minimum": 0, "maximum": 30000},
				},
			},
		},
		"required": []string{"url"},
		"examples": []map[string]any{
			{
				"url":     "https://api.example.com/v1/prices/{{.trigger.pair}}",
				"method":  "GET",
				"retries": map[string]any{"attempts": 3, "delay_ms": 500},
			},
		},
	}
}
