package registry

import (
	"github.com/vesselhq/vessel/pkg/nodes/conditional"
	"github.com/vesselhq/vessel/pkg/nodes/httprequest"
	"github.com/vesselhq/vessel/pkg/nodes/lognode"
	"github.com/vesselhq/vessel/pkg/nodes/schedule"
	"github.com/vesselhq/vessel/pkg/nodes/switchnode"
	"github.com/vesselhq/vessel/pkg/nodes/transform"
	"github.com/vesselhq/vessel/pkg/nodes/webhook"
)

// RegisterDefaultNodes registers the built-in dependency-free node
// factories. Nodes that need live services behind them (safetx) are
// registered by the composition root instead.
func (r *Registry) RegisterDefaultNodes() {
	r.RegisterNode(conditional.NewFactory())
	r.RegisterNode(switchnode.NewFactory())
	r.RegisterNode(transform.NewFactory())
	r.RegisterNode(lognode.NewFactory())
	r.RegisterNode(httprequest.NewFactory())

	r.RegisterNode(webhook.NewFactory())
	r.RegisterNode(schedule.NewFactory())
}
