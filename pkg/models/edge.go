package models

// FieldMapping extracts a value from the source node's output and places it
// under a key in the target node's input. SourcePath is a gjson path
// evaluated against the source output document.
type FieldMapping struct {
	SourcePath string `json:"source_path" validate:"required"`
	TargetKey  string `json:"target_key"  validate:"required"`
}

// Edge is a directed connection between two nodes.
//
// SourceHandle names the output port on the source node; branch-selector
// nodes (IF, SWITCH) route by returning a branch identifier that is matched
// against it. TargetHandle optionally nests the mapped data under a key in
// the target input instead of merging it at the top level.
type Edge struct {
	ID           string         `json:"id"`
	SourceNodeID string         `json:"source_node_id" validate:"required"`
	TargetNodeID string         `json:"target_node_id" validate:"required"`
	SourceHandle string         `json:"source_handle,omitempty"`
	TargetHandle string         `json:"target_handle,omitempty"`
	Mappings     []FieldMapping `json:"mappings,omitempty"`
}
