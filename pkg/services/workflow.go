package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/vesselhq/vessel/pkg/models"
	"github.com/vesselhq/vessel/pkg/persistence"
	"github.com/vesselhq/vessel/pkg/registry"
)

// List pagination bounds.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Workflow implements workflow CRUD over the persistence layer. Every node
// config is validated against its factory schema on write, so a config the
// registry would reject never reaches a run.
type Workflow struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	validate    *validator.Validate
}

// NewWorkflow creates the workflow service.
func NewWorkflow(p persistence.Persistence, r *registry.Registry) *Workflow {
	return &Workflow{
		persistence: p,
		registry:    r,
		validate:    validator.New(),
	}
}

// HealthCheck reports whether the persistence layer is reachable.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "persistence layer not initialized", false
	}

	if err := w.persistence.HealthCheck(ctx); err != nil {
		return "persistence layer is unhealthy: " + err.Error(), false
	}

	return "persistence layer is healthy", true
}

// ListWorkflowsRequest filters and pages workflow listings.
type ListWorkflowsRequest struct {
	Limit  int
	Offset int
	Owner  string
	Status *models.WorkflowStatus
}

// List retrieves workflows with filtering and pagination. Out-of-range
// pagination values are clamped, not rejected.
func (w *Workflow) List(ctx context.Context, req ListWorkflowsRequest) ([]*models.Workflow, error) {
	if req.Limit <= 0 {
		req.Limit = DefaultListLimit
	}

	if req.Limit > MaxListLimit {
		req.Limit = MaxListLimit
	}

	if req.Offset < 0 {
		req.Offset = 0
	}

	if req.Status != nil {
		switch *req.Status {
		case models.WorkflowStatusDraft, models.WorkflowStatusPublished, models.WorkflowStatusArchived:
		default:
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, *req.Status)
		}
	}

	workflows, err := w.persistence.WorkflowRepository().List(ctx, persistence.ListWorkflowsOptions{
		Limit:  req.Limit,
		Offset: req.Offset,
		Owner:  req.Owner,
		Status: req.Status,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return workflows, nil
}

// FetchByID retrieves a workflow by its id.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	return w.persistence.WorkflowRepository().GetByID(ctx, id)
}

// Create adds a new workflow. Every workflow starts life as a draft,
// whatever status the caller set.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	now := time.Now().UTC()
	workflow.ID = uuid.New().String()
	workflow.Status = models.WorkflowStatusDraft
	workflow.CreatedAt = now
	workflow.UpdatedAt = now
	workflow.PublishedAt = nil

	if err := w.validateEntity(workflow); err != nil {
		return nil, err
	}

	if err := w.validateNodeConfigs(workflow); err != nil {
		return nil, err
	}

	if err := w.persistence.WorkflowRepository().Create(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	return workflow, nil
}

// Update replaces a draft workflow's definition. Identity and lifecycle
// fields are preserved from the stored record; published and archived
// workflows are immutable.
func (w *Workflow) Update(ctx context.Context, workflowID string, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	existing, err := w.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if existing.Status != models.WorkflowStatusDraft {
		return nil, fmt.Errorf("%w: workflow %s is %s", ErrWorkflowNotDraft, workflowID, existing.Status)
	}

	workflow.ID = workflowID
	workflow.Status = existing.Status
	workflow.CreatedAt = existing.CreatedAt
	workflow.PublishedAt = existing.PublishedAt
	workflow.UpdatedAt = time.Now().UTC()

	if err := w.validateEntity(workflow); err != nil {
		return nil, err
	}

	if err := w.validateNodeConfigs(workflow); err != nil {
		return nil, err
	}

	if err := w.persistence.WorkflowRepository().Update(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to update workflow %s: %w", workflowID, err)
	}

	return workflow, nil
}

// Delete removes a workflow by its id.
func (w *Workflow) Delete(ctx context.Context, workflowID string) error {
	if _, err := w.persistence.WorkflowRepository().GetByID(ctx, workflowID); err != nil {
		return err
	}

	if err := w.persistence.WorkflowRepository().Delete(ctx, workflowID); err != nil {
		return fmt.Errorf("failed to delete workflow %s: %w", workflowID, err)
	}

	return nil
}

func (w *Workflow) validateEntity(workflow *models.Workflow) error {
	if err := w.validate.Struct(workflow); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, err)
	}

	return nil
}

// validateNodeConfigs checks every node against its factory schema. Disabled
// nodes are included: they are part of the graph and become executable the
// moment they are re-enabled.
func (w *Workflow) validateNodeConfigs(workflow *models.Workflow) error {
	for _, node := range workflow.Nodes {
		if err := w.registry.ValidateNodeConfig(node.Type, node.Config); err != nil {
			return fmt.Errorf("node %q: %w", node.ID, err)
		}
	}

	return nil
}
