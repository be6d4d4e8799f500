// Package schedule implements the schedule trigger placeholder. Recurring
// enqueueing lives in an external scheduler; this package validates the cron
// expression when the workflow is authored so bad schedules never publish.
package schedule

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/vesselhq/vessel/pkg/models"
	"github.com/vesselhq/vessel/pkg/protocol"
)

// TriggerNode is the graph placeholder for a scheduled entry point.
type TriggerNode struct {
	id   string
	spec string
}

// NewTriggerNode builds a schedule trigger placeholder from its config. The
// cron field accepts standard five-field specs and descriptors such as
// @hourly or @every 30m.
func NewTriggerNode(id string, config map[string]any) (*TriggerNode, error) {
	spec, ok := config["cron"].(string)
	if !ok || spec == "" {
		return nil, errors.New("missing required field 'cron'")
	}

	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}

	return &TriggerNode{id: id, spec: spec}, nil
}

// Spec returns the validated cron expression.
func (n *TriggerNode) Spec() string {
	return n.spec
}

// Execute always fails: trigger nodes mark where a run starts, they do not
// run themselves.
func (n *TriggerNode) Execute(_ context.Context, _ protocol.Input) (*models.NodeResult, error) {
	return nil, fmt.Errorf("trigger node %q cannot execute; runs start from its outgoing edge", n.id)
}
