package services

import (
	"context"
	"fmt"
	"time"

	"github.com/vesselhq/vessel/pkg/models"
)

// Publish flips a draft to published after validating the whole graph.
// Publishing an already-published workflow is idempotent; an archived one is
// a conflict.
func (w *Workflow) Publish(ctx context.Context, workflowID string) (*models.Workflow, error) {
	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow.Status == models.WorkflowStatusPublished {
		return workflow, nil
	}

	if workflow.Status != models.WorkflowStatusDraft {
		return nil, fmt.Errorf("%w: workflow %s is %s", ErrWorkflowNotDraft, workflowID, workflow.Status)
	}

	if err := w.validateForPublishing(workflow); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	workflow.Status = models.WorkflowStatusPublished
	workflow.PublishedAt = &now
	workflow.UpdatedAt = now

	if err := w.persistence.WorkflowRepository().Update(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to publish workflow %s: %w", workflowID, err)
	}

	return workflow, nil
}

// validateForPublishing is the full pre-flight a workflow passes before it
// becomes executable: entity fields, graph integrity (trigger exists, edges
// reference known nodes), an enabled trigger and every node config valid
// against its factory schema.
func (w *Workflow) validateForPublishing(workflow *models.Workflow) error {
	if err := w.validateEntity(workflow); err != nil {
		return err
	}

	if len(workflow.Nodes) == 0 {
		return ErrNodesRequired
	}

	if err := workflow.Validate(); err != nil {
		return err
	}

	if trigger := workflow.Node(workflow.TriggerNodeID); trigger != nil && !trigger.Enabled {
		return fmt.Errorf("%w: %q", ErrTriggerDisabled, trigger.ID)
	}

	return w.validateNodeConfigs(workflow)
}
