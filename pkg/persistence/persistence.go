// Package persistence provides the data storage abstraction for workflows,
// runs and node execution records.
package persistence

import (
	"context"

	"github.com/vesselhq/vessel/pkg/models"
)

// Persistence aggregates the repositories of one storage backend.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionRepository() ExecutionRepository
	NodeExecutionRepository() NodeExecutionRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ListWorkflowsOptions filters and pages workflow listings.
type ListWorkflowsOptions struct {
	Limit  int
	Offset int
	Owner  string
	Status *models.WorkflowStatus
}

// WorkflowRepository stores workflow definitions.
type WorkflowRepository interface {
	Create(ctx context.Context, workflow *models.Workflow) error
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	List(ctx context.Context, opts ListWorkflowsOptions) ([]*models.Workflow, error)
	Update(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error
}

// ExecutionRepository stores run records. Create enforces id uniqueness
// (idempotent starts lean on ErrExecutionExists); ClaimResume is the single
// atomic operation behind resume.
type ExecutionRepository interface {
	// Create persists a new run. A run with the same id already existing
	// fails with ErrExecutionExists.
	Create(ctx context.Context, execution *models.ExecutionContext) error

	GetByID(ctx context.Context, id string) (*models.ExecutionContext, error)

	// Update overwrites the run's mutable state for normal progress writes.
	Update(ctx context.Context, execution *models.ExecutionContext) error

	// SavePause suspends a running run at nodeID in one store operation:
	// status flips to waiting_for_signature and the snapshot, pending hash
	// and transaction document land together. The run's outputs and step
	// count are synced from the snapshot so the record mirrors it.
	SavePause(ctx context.Context, id, nodeID string, snapshot *models.PausedSnapshot, safeTxHash string, safeTxData map[string]any) error

	// ClaimResume atomically flips waiting_for_signature -> running while
	// clearing the pause fields, and returns the run as it was BEFORE the
	// claim so the caller still sees the snapshot and the pending
	// transaction. A run in any other status fails with
	// ErrExecutionNotWaiting; an unknown id with ErrExecutionNotFound.
	// Concurrent claims on the same run: exactly one wins.
	ClaimResume(ctx context.Context, id string) (*models.ExecutionContext, error)

	// ClaimStart atomically flips pending -> running and returns the claimed
	// run. A run in any other status fails with ErrExecutionNotPending, so
	// at-least-once delivery of start requests stays single-execution.
	ClaimStart(ctx context.Context, id string) (*models.ExecutionContext, error)

	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.ExecutionContext, error)
}

// NodeExecutionRepository stores write-once node attempt records.
type NodeExecutionRepository interface {
	Create(ctx context.Context, record *models.NodeExecutionRecord) error
	ListByExecution(ctx context.Context, executionID string) ([]*models.NodeExecutionRecord, error)
}
