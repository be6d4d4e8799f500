// Package cmd provides shared initialization for the command-line entry
// points: storage backend selection, event bus construction, the node
// registry and the wallet execution stack.
package cmd

import (
	"log/slog"

	"github.com/vesselhq/vessel/pkg/protocol"
	"github.com/vesselhq/vessel/pkg/registry"
)

// NewRegistry builds a registry with the built-in nodes plus any extra
// factories the composition root carries dependencies for (safetx).
func NewRegistry(logger *slog.Logger, extras ...protocol.NodeFactory) *registry.Registry {
	reg := registry.NewRegistry(logger)
	reg.RegisterDefaultNodes()

	for _, factory := range extras {
		reg.RegisterNode(factory)
	}

	return reg
}
