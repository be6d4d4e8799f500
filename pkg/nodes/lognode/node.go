// Package lognode implements the LOG node: it renders a message, emits it on
// the run's structured logger and passes its input through unchanged so the
// node is transparent in the data flow.
package lognode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vesselhq/vessel/pkg/models"
	"github.com/vesselhq/vessel/pkg/protocol"
	"github.com/vesselhq/vessel/pkg/template"
)

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// LogNode emits a templated message at a configured level.
type LogNode struct {
	id      string
	message string
	level   slog.Level
}

// NewLogNode builds a log node from its config.
func NewLogNode(id string, config map[string]any) (*LogNode, error) {
	message, ok := config["message"].(string)
	if !ok || message == "" {
		return nil, errors.New("missing required field 'message'")
	}

	level := slog.LevelInfo

	if name, ok := config["level"].(string); ok {
		parsed, ok := levels[name]
		if !ok {
			return nil, fmt.Errorf("invalid log level %q (must be debug, info, warn, or error)", name)
		}

		level = parsed
	}

	return &LogNode{id: id, message: message, level: level}, nil
}

// Execute logs the rendered message and passes the input through. The
// engine-provided "trigger" and "blocks" namespaces are stripped since the
// engine rebuilds them for every node.
func (n *LogNode) Execute(ctx context.Context, in protocol.Input) (*models.NodeResult, error) {
	scope := template.Scope(in.ExecutionID, in.WorkflowID, in.NodeID, in.Data, in.Secrets)

	message, err := template.RenderString(n.message, scope)
	if err != nil {
		return &models.NodeResult{
			NodeID: n.id,
			Error:  fmt.Sprintf("failed to render log message: %v", err),
		}, nil
	}

	logger := in.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger.Log(ctx, n.level, message, "node_id", n.id, "execution_id", in.ExecutionID)

	output := make(map[string]any, len(in.Data))

	for key, value := range in.Data {
		if key == "trigger" || key == "blocks" {
			continue
		}

		output[key] = value
	}

	return &models.NodeResult{NodeID: n.id, Success: true, Output: output}, nil
}
