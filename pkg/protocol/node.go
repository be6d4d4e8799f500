// Package protocol defines the interfaces and contracts for pluggable nodes.
package protocol

import (
	"context"
	"log/slog"

	"github.com/vesselhq/vessel/pkg/models"
)

// Input is everything a node processor sees for one execution. The merged
// Data map contains the direct predecessors' outputs (after edge field
// mappings), the trigger payload under "trigger" and every transitive
// ancestor's output under "blocks" keyed by node id. On resume, the engine
// additionally injects "signature", "safe_tx_hash" and "safe_tx_data".
//
// Secrets carries the engine's VESSEL_SECRET_* environment variables keyed
// by the name after the prefix, reachable in templates as {{ .secrets.X }}.
type Input struct {
	ExecutionID string
	WorkflowID  string
	UserID      string
	NodeID      string
	Data        map[string]any
	Secrets     map[string]string
	Logger      *slog.Logger
}

// NodeProcessor executes one node. Implementations must be stateless across
// calls: a run can pause after this node and resume on a different process.
//
// A returned error means the node itself misbehaved (infrastructure, bad
// config discovered late); a result with Success=false means the node ran
// and reported a domain failure. The engine treats both as run failure
// unless the node opted into continue-on-error.
type NodeProcessor interface {
	Execute(ctx context.Context, input Input) (*models.NodeResult, error)
}

// BranchSelector is an optional capability: processors that route the run by
// naming an outgoing edge handle implement it. The engine only honors
// NodeResult.BranchToFollow for processors that declare the capability; for
// everything else traversal follows the first outgoing edge.
type BranchSelector interface {
	IsBranchSelector() bool
}

// SignatureAware is an optional capability: processors that can suspend the
// run waiting for a wallet signature implement it. The engine only honors
// NodeResult.RequiresSignature for processors that declare the capability,
// and re-invokes the processor on resume with the signature injected into
// the input.
type SignatureAware interface {
	RequiresSignature() bool
}

// NodeFactory creates node processors and provides metadata about the type.
type NodeFactory interface {
	// Create builds a processor for one node instance with its config.
	Create(ctx context.Context, id string, config map[string]any) (NodeProcessor, error)

	// ID returns the unique type tag used in workflow definitions.
	ID() string

	// Name returns the human-readable name for this node type.
	Name() string

	// Description returns a description of what this node does.
	Description() string

	// Schema returns the JSON schema for configuring this node.
	Schema() map[string]any
}
