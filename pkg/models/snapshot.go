package models

import (
	"errors"
	"fmt"
	"time"
)

// SnapshotSchemaVersion is the version written into new snapshots. Bump it
// whenever the snapshot layout changes shape; the loader refuses versions it
// does not know.
const SnapshotSchemaVersion = 1

// ErrSnapshotVersion is returned when a stored snapshot was written by an
// incompatible engine version.
var ErrSnapshotVersion = errors.New("unsupported snapshot schema version")

// PausedSnapshot freezes everything the traversal loop needs to continue a
// suspended run: accumulated outputs, the trigger payload, cycle-protection
// counters and the set of nodes already visited.
type PausedSnapshot struct {
	SchemaVersion int                       `json:"schema_version"`
	TriggerData   map[string]any            `json:"trigger_data,omitempty"`
	NodeOutputs   map[string]map[string]any `json:"node_outputs"`
	VisitedNodes  []string                  `json:"visited_nodes,omitempty"`
	Steps         int                       `json:"steps"`
	PausedAt      time.Time                 `json:"paused_at"`
}

// NewPausedSnapshot captures the current traversal state of a run.
func NewPausedSnapshot(ec *ExecutionContext, visited []string) *PausedSnapshot {
	outputs := make(map[string]map[string]any, len(ec.NodeOutputs))
	for nodeID, out := range ec.NodeOutputs {
		outputs[nodeID] = out
	}

	return &PausedSnapshot{
		SchemaVersion: SnapshotSchemaVersion,
		TriggerData:   ec.TriggerData,
		NodeOutputs:   outputs,
		VisitedNodes:  visited,
		Steps:         ec.Steps,
		PausedAt:      time.Now().UTC(),
	}
}

// Validate rejects snapshots written by engine versions this build does not
// understand. The failure is fatal, not retryable.
func (s *PausedSnapshot) Validate() error {
	if s.SchemaVersion != SnapshotSchemaVersion {
		return fmt.Errorf("%w: got %d, want %d", ErrSnapshotVersion, s.SchemaVersion, SnapshotSchemaVersion)
	}

	return nil
}
