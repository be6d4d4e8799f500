// Package webhook implements the webhook trigger placeholder. The engine
// never executes trigger nodes; runs start from the trigger's outgoing edge
// with the delivery payload as trigger data. This package exists so webhook
// trigger configs are validated like any other node's.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vesselhq/vessel/pkg/models"
	"github.com/vesselhq/vessel/pkg/protocol"
)

var allowedMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true,
}

// TriggerNode is the graph placeholder for a webhook entry point.
type TriggerNode struct {
	id     string
	path   string
	method string
}

// NewTriggerNode builds a webhook trigger placeholder from its config.
func NewTriggerNode(id string, config map[string]any) (*TriggerNode, error) {
	path, ok := config["path"].(string)
	if !ok || path == "" {
		return nil, errors.New("missing required field 'path'")
	}

	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("path %q must start with /", path)
	}

	method := "POST"

	if raw, ok := config["method"].(string); ok {
		upper := strings.ToUpper(raw)
		if !allowedMethods[upper] {
			return nil, fmt.Errorf("method must be one of GET, POST, PUT, PATCH, DELETE; got %q", raw)
		}

		method = upper
	}

	return &TriggerNode{id: id, path: path, method: method}, nil
}

// Path returns the configured delivery path.
func (n *TriggerNode) Path() string {
	return n.path
}

// Method returns the configured delivery method.
func (n *TriggerNode) Method() string {
	return n.method
}

// Execute always fails: trigger nodes mark where a run starts, they do not
// run themselves.
func (n *TriggerNode) Execute(_ context.Context, _ protocol.Input) (*models.NodeResult, error) {
	return nil, fmt.Errorf("trigger node %q cannot execute; runs start from its outgoing edge", n.id)
}
