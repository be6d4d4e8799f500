package main

import (
	"fmt"
	"io"

	"github.com/vesselhq/vessel/pkg/cmd"
	"github.com/vesselhq/vessel/pkg/log"
	"github.com/vesselhq/vessel/pkg/nodes/safetx"
)

// listNodes prints every registered node type with its description. The
// safetx factory is registered without live chain services: only its
// metadata is read here.
func listNodes(w io.Writer) error {
	logger := log.WithModule("vessel")
	registry := cmd.NewRegistry(logger, safetx.NewFactory(nil, nil))

	for _, nodeType := range registry.AvailableNodes() {
		factory, err := registry.GetNodeFactory(nodeType)
		if err != nil {
			return err
		}

		fmt.Fprintf(w, "%-16s %s: %s\n", factory.ID(), factory.Name(), factory.Description())
	}

	return nil
}
