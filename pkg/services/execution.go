package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/vesselhq/vessel/pkg/eventbus"
	"github.com/vesselhq/vessel/pkg/events"
	"github.com/vesselhq/vessel/pkg/models"
	"github.com/vesselhq/vessel/pkg/persistence"
)

// Resumer continues runs suspended on a wallet signature. Satisfied by
// *workflow.Executor.
type Resumer interface {
	Resume(ctx context.Context, executionID, signature string) (*models.ExecutionContext, error)
}

// Execution coordinates run creation and resume. Starts are asynchronous: a
// pending record goes to the store, a start request goes to the bus and a
// worker claims the run. Resumes run in-process through the executor so the
// caller learns the signature verdict synchronously.
type Execution struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	resumer     Resumer
}

// NewExecution creates the execution service.
func NewExecution(p persistence.Persistence, publisher eventbus.EventPublisher, resumer Resumer) *Execution {
	return &Execution{
		persistence: p,
		publisher:   publisher,
		resumer:     resumer,
	}
}

// StartExecutionRequest describes a run to request. ExecutionID is optional;
// supplying one makes the request idempotent on it.
type StartExecutionRequest struct {
	ExecutionID string
	WorkflowID  string
	UserID      string
	TriggerData map[string]any
}

// Request records a pending run and publishes the start request a worker
// will claim. The record is written before the event so a consumer that wins
// the claim always finds it. A duplicate execution id returns the existing
// run; while it is still pending the start request is published again, which
// makes a request whose first publish failed safely retryable.
func (e *Execution) Request(ctx context.Context, req StartExecutionRequest) (*models.ExecutionContext, error) {
	wf, err := e.persistence.WorkflowRepository().GetByID(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}

	if wf.Status != models.WorkflowStatusPublished {
		return nil, fmt.Errorf("%w: workflow %s is %s", ErrWorkflowNotPublished, wf.ID, wf.Status)
	}

	executionID := req.ExecutionID
	if executionID == "" {
		executionID = uuid.New().String()
	}

	ec := models.NewPendingExecutionContext(executionID, wf.ID, req.UserID, req.TriggerData)

	err = e.persistence.ExecutionRepository().Create(ctx, ec)

	switch {
	case err == nil:
	case persistence.IsExecutionExists(err):
		existing, getErr := e.persistence.ExecutionRepository().GetByID(ctx, executionID)
		if getErr != nil {
			return nil, getErr
		}

		if existing.Status != models.ExecutionStatusPending {
			return existing, nil
		}

		ec = existing
	default:
		return nil, fmt.Errorf("failed to create execution %s: %w", executionID, err)
	}

	requested := events.ExecutionRequested{
		BaseEvent:   events.NewBaseEvent(events.ExecutionRequestedEvent, wf.ID),
		ExecutionID: ec.ID,
		UserID:      ec.UserID,
		TriggerData: ec.TriggerData,
	}

	if err := e.publisher.Publish(ctx, ec.ID, requested); err != nil {
		// The pending record stays; retrying the request publishes again.
		return nil, fmt.Errorf("failed to publish start request for %s: %w", ec.ID, err)
	}

	return ec, nil
}

// Get reads a run together with its node attempt records.
func (e *Execution) Get(ctx context.Context, executionID string) (*models.ExecutionContext, []*models.NodeExecutionRecord, error) {
	ec, err := e.persistence.ExecutionRepository().GetByID(ctx, executionID)
	if err != nil {
		return nil, nil, err
	}

	records, err := e.persistence.NodeExecutionRepository().ListByExecution(ctx, executionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list node executions for %s: %w", executionID, err)
	}

	return ec, records, nil
}

// ListByWorkflow returns every run of one workflow.
func (e *Execution) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.ExecutionContext, error) {
	if _, err := e.persistence.WorkflowRepository().GetByID(ctx, workflowID); err != nil {
		return nil, err
	}

	return e.persistence.ExecutionRepository().ListByWorkflow(ctx, workflowID)
}

// Resume hands the signature to the executor. Claim conflicts
// (persistence.ErrExecutionNotWaiting) and signature rejections
// (workflow.ErrSignatureRejected) pass through untouched so the transport
// can map them.
func (e *Execution) Resume(ctx context.Context, executionID, signature string) (*models.ExecutionContext, error) {
	if strings.TrimSpace(signature) == "" {
		return nil, fmt.Errorf("%w: signature is required", ErrInvalidRequest)
	}

	return e.resumer.Resume(ctx, executionID, signature)
}
