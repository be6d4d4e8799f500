// Package workflow runs workflow graphs. One resumable traversal routine
// serves every entry point: synchronous starts, worker-claimed starts and
// signature resumes all feed the same loop, with pause as an explicit
// suspension point rather than an error path.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/vesselhq/vessel/pkg/eventbus"
	"github.com/vesselhq/vessel/pkg/events"
	"github.com/vesselhq/vessel/pkg/models"
	"github.com/vesselhq/vessel/pkg/persistence"
	"github.com/vesselhq/vessel/pkg/registry"
)

// ErrWorkflowNotExecutable is returned when a run is requested for a
// workflow that is not published.
var ErrWorkflowNotExecutable = errors.New("workflow is not executable")

// ErrSignatureRejected is returned by Resume when the paused node rejected
// the supplied signature. The run is suspended again with the same pending
// transaction, so the caller can retry with a corrected signature.
var ErrSignatureRejected = errors.New("signature rejected")

// Executor drives runs. It holds no run state of its own: everything needed
// to continue a run lives in persistence, so any executor instance can pick
// up any run.
type Executor struct {
	workerID    string
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	publisher   eventbus.EventPublisher
	secrets     map[string]string
}

// StartRequest describes a run to start. ExecutionID is optional; when the
// caller supplies one, starts become idempotent on it.
type StartRequest struct {
	ExecutionID string
	WorkflowID  string
	UserID      string
	TriggerData map[string]any
}

func NewExecutor(workerID string, logger *slog.Logger, persistence persistence.Persistence, registry *registry.Registry, publisher eventbus.EventPublisher) *Executor {
	return &Executor{
		workerID:    workerID,
		logger:      logger.With("module", "workflow"),
		persistence: persistence,
		registry:    registry,
		publisher:   publisher,
		secrets:     secretsFromEnv(),
	}
}

// secretsFromEnv collects VESSEL_SECRET_* environment variables into the
// secrets map handed to every node, keyed by the name after the prefix.
// VESSEL_SECRET_API_TOKEN=abc becomes secrets["API_TOKEN"] = "abc".
func secretsFromEnv() map[string]string {
	const prefix = "VESSEL_SECRET_"

	secrets := make(map[string]string)

	for _, env := range os.Environ() {
		name, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(name, prefix) {
			continue
		}

		key := strings.TrimPrefix(name, prefix)
		if key != "" {
			secrets[key] = value
		}
	}

	return secrets
}

// Start begins a run for a published workflow and traverses it to
// completion, failure or suspension. Starts are idempotent on the supplied
// execution id: when a run with that id already exists it is returned
// unchanged, whatever its status.
func (e *Executor) Start(ctx context.Context, req StartRequest) (*models.ExecutionContext, error) {
	wf, err := e.loadWorkflow(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}

	executionID := req.ExecutionID
	if executionID == "" {
		executionID = uuid.New().String()
	}

	ec := models.NewExecutionContext(executionID, wf.ID, req.UserID, req.TriggerData)

	if err := e.persistence.ExecutionRepository().Create(ctx, ec); err != nil {
		if persistence.IsExecutionExists(err) {
			existing, getErr := e.persistence.ExecutionRepository().GetByID(ctx, executionID)
			if getErr != nil {
				return nil, getErr
			}

			e.logger.Info("execution already exists, returning it unchanged",
				"execution_id", executionID, "status", existing.Status)

			return existing, nil
		}

		return nil, err
	}

	e.publishStarted(ctx, ec)

	node, err := firstNode(wf)
	if err != nil {
		return e.failRun(ctx, ec, "", err.Error())
	}

	return e.run(ctx, wf, ec, node, make(map[string]bool), nil)
}

// StartPending claims a pending run created ahead of time (the event-driven
// path) and traverses it. Redelivered start requests lose the claim with
// persistence.ErrExecutionNotPending and must not be retried.
func (e *Executor) StartPending(ctx context.Context, executionID string) (*models.ExecutionContext, error) {
	ec, err := e.persistence.ExecutionRepository().ClaimStart(ctx, executionID)
	if err != nil {
		return nil, err
	}

	wf, err := e.loadWorkflow(ctx, ec.WorkflowID)
	if err != nil {
		return e.failRun(ctx, ec, "", err.Error())
	}

	e.publishStarted(ctx, ec)

	node, err := firstNode(wf)
	if err != nil {
		return e.failRun(ctx, ec, "", err.Error())
	}

	return e.run(ctx, wf, ec, node, make(map[string]bool), nil)
}

// Resume continues a run that is waiting for a wallet signature. The claim
// is a single atomic store operation, so concurrent resumes settle there:
// exactly one caller proceeds, the rest get persistence.ErrExecutionNotWaiting.
//
// The paused node is re-invoked with the signature, the pending hash and the
// stored transaction document injected into its input. On success traversal
// continues as if the node had returned synchronously; a rejected signature
// suspends the run again and surfaces ErrSignatureRejected.
func (e *Executor) Resume(ctx context.Context, executionID, signature string) (*models.ExecutionContext, error) {
	claimed, err := e.persistence.ExecutionRepository().ClaimResume(ctx, executionID)
	if err != nil {
		return nil, err
	}

	ec := claimed
	snapshot := ec.PausedSnapshot
	pausedNodeID := ec.PausedNodeID
	safeTxHash := ec.SafeTxHash
	safeTxData := ec.SafeTxData

	// Mirror what the claim wrote: the stored run is running again with the
	// pause fields cleared.
	ec.ClearPauseState()

	if snapshot == nil {
		return e.failRun(ctx, ec, pausedNodeID, "paused execution has no snapshot")
	}

	if err := snapshot.Validate(); err != nil {
		// Fatal, not retryable: this build cannot read the frozen state.
		return e.failRun(ctx, ec, pausedNodeID, err.Error())
	}

	wf, err := e.loadWorkflow(ctx, ec.WorkflowID)
	if err != nil {
		return e.failRun(ctx, ec, pausedNodeID, err.Error())
	}

	node := wf.Node(pausedNodeID)
	if node == nil {
		return e.failRun(ctx, ec, pausedNodeID, fmt.Sprintf("paused node %q is not in the workflow", pausedNodeID))
	}

	// Restore the traversal state the snapshot froze.
	ec.TriggerData = snapshot.TriggerData
	ec.NodeOutputs = snapshot.NodeOutputs
	ec.Steps = snapshot.Steps

	visited := make(map[string]bool, len(snapshot.VisitedNodes))
	for _, id := range snapshot.VisitedNodes {
		visited[id] = true
	}

	resumed := events.ExecutionResumed{
		BaseEvent:   e.baseEvent(events.ExecutionResumedEvent, ec.WorkflowID),
		ExecutionID: ec.ID,
		NodeID:      node.ID,
	}
	e.publish(ctx, ec.ID, resumed)

	inject := map[string]any{
		"signature":    signature,
		"safe_tx_hash": safeTxHash,
		"safe_tx_data": safeTxData,
	}

	return e.run(ctx, wf, ec, node, visited, inject)
}

// Get reads a run together with its node attempt records.
func (e *Executor) Get(ctx context.Context, executionID string) (*models.ExecutionContext, []*models.NodeExecutionRecord, error) {
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

func (e *Executor) loadWorkflow(ctx context.Context, workflowID string) (*models.Workflow, error) {
	wf, err := e.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if wf.Status != models.WorkflowStatusPublished {
		return nil, fmt.Errorf("%w: workflow %s is %s", ErrWorkflowNotExecutable, workflowID, wf.Status)
	}

	return wf, nil
}

// failRun marks the run failed, persists it and publishes the failure. The
// failed run is a normal outcome, not an error: callers inspect the status.
func (e *Executor) failRun(ctx context.Context, ec *models.ExecutionContext, nodeID, message string) (*models.ExecutionContext, error) {
	ec.MarkFailed(message)

	if err := e.persistence.ExecutionRepository().Update(ctx, ec); err != nil {
		return nil, fmt.Errorf("failed to persist failed execution %s: %w", ec.ID, err)
	}

	e.logger.Error("execution failed",
		"execution_id", ec.ID, "workflow_id", ec.WorkflowID, "node_id", nodeID, "error", message)

	failed := events.ExecutionFailed{
		BaseEvent:   e.baseEvent(events.ExecutionFailedEvent, ec.WorkflowID),
		ExecutionID: ec.ID,
		NodeID:      nodeID,
		Error:       message,
	}
	e.publish(ctx, ec.ID, failed)

	return ec, nil
}

func (e *Executor) publishStarted(ctx context.Context, ec *models.ExecutionContext) {
	started := events.ExecutionStarted{
		BaseEvent:   e.baseEvent(events.ExecutionStartedEvent, ec.WorkflowID),
		ExecutionID: ec.ID,
		UserID:      ec.UserID,
	}
	e.publish(ctx, ec.ID, started)
}

func (e *Executor) baseEvent(eventType events.EventType, workflowID string) events.BaseEvent {
	base := events.NewBaseEvent(eventType, workflowID)
	base.WorkerID = e.workerID

	return base
}

// publish is log-and-continue: event delivery is at-least-once and never
// blocks or fails a run.
func (e *Executor) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, key, event); err != nil {
		e.logger.Warn("failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
