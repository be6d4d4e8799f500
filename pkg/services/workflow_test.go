package services

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesselhq/vessel/pkg/models"
	"github.com/vesselhq/vessel/pkg/persistence"
	"github.com/vesselhq/vessel/pkg/persistence/file"
	"github.com/vesselhq/vessel/pkg/registry"
)

func newTestRegistry() *registry.Registry {
	r := registry.NewRegistry(slog.Default())
	r.RegisterDefaultNodes()

	return r
}

func newWorkflowService(t *testing.T) (*Workflow, persistence.Persistence) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())

	return NewWorkflow(p, newTestRegistry()), p
}

// draftWorkflow builds a minimal valid graph: webhook trigger into a log node.
func draftWorkflow() *models.Workflow {
	return &models.Workflow{
		Name:          "Treasury Sweep",
		Description:   "Moves idle balances into the vault",
		Status:        models.WorkflowStatusDraft,
		TriggerNodeID: "trigger",
		Owner:         "user-1",
		Nodes: []*models.WorkflowNode{
			{
				ID:       "trigger",
				Type:     models.NodeTypeTriggerWebhook,
				Category: models.CategoryTypeTrigger,
				Name:     "Deposit Webhook",
				Config:   map[string]any{"path": "/hooks/deposit"},
				Enabled:  true,
			},
			{
				ID:       "log",
				Type:     "log",
				Category: models.CategoryTypeAction,
				Name:     "Log Deposit",
				Config:   map[string]any{"message": "deposit of {{.trigger.amount}}"},
				Enabled:  true,
			},
		},
		Edges: []*models.Edge{
			{ID: "e1", SourceNodeID: "trigger", TargetNodeID: "log"},
		},
	}
}

func TestWorkflow_Create(t *testing.T) {
	service, _ := newWorkflowService(t)

	wf := draftWorkflow()
	wf.Status = models.WorkflowStatusPublished // callers cannot choose the status

	created, err := service.Create(t.Context(), wf)
	require.NoError(t, err)
	require.NotNil(t, created)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.WorkflowStatusDraft, created.Status)
	assert.Nil(t, created.PublishedAt)
	assert.False(t, created.CreatedAt.IsZero())
	assert.False(t, created.UpdatedAt.IsZero())
}

func TestWorkflow_Create_Nil(t *testing.T) {
	service, _ := newWorkflowService(t)

	_, err := service.Create(t.Context(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWorkflowNil)
	assert.True(t, IsValidationError(err))
}

func TestWorkflow_Create_NameTooShort(t *testing.T) {
	service, _ := newWorkflowService(t)

	wf := draftWorkflow()
	wf.Name = "ab"

	_, err := service.Create(t.Context(), wf)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.True(t, IsValidationError(err))
}

func TestWorkflow_Create_InvalidNodeConfig(t *testing.T) {
	service, _ := newWorkflowService(t)

	wf := draftWorkflow()
	wf.Nodes[1].Config = map[string]any{} // log requires a message

	_, err := service.Create(t.Context(), wf)
	require.Error(t, err)
	assert.ErrorIs(t, err, registry.ErrInvalidNodeConfig)
	assert.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), `node "log"`)
}

func TestWorkflow_Create_UnknownNodeType(t *testing.T) {
	service, _ := newWorkflowService(t)

	wf := draftWorkflow()
	wf.Nodes[1].Type = "teleport"

	_, err := service.Create(t.Context(), wf)
	require.Error(t, err)
	assert.ErrorIs(t, err, registry.ErrNodeTypeNotRegistered)
	assert.True(t, IsValidationError(err))
}

func TestWorkflow_FetchByID(t *testing.T) {
	service, _ := newWorkflowService(t)

	created, err := service.Create(t.Context(), draftWorkflow())
	require.NoError(t, err)

	fetched, err := service.FetchByID(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, fetched.ID)
	assert.Equal(t, "Treasury Sweep", fetched.Name)
}

func TestWorkflow_FetchByID_NotFound(t *testing.T) {
	service, _ := newWorkflowService(t)

	_, err := service.FetchByID(t.Context(), "missing")
	require.Error(t, err)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestWorkflow_Update(t *testing.T) {
	service, _ := newWorkflowService(t)

	created, err := service.Create(t.Context(), draftWorkflow())
	require.NoError(t, err)

	replacement := draftWorkflow()
	replacement.Name = "Treasury Sweep v2"

	updated, err := service.Update(t.Context(), created.ID, replacement)
	require.NoError(t, err)

	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "Treasury Sweep v2", updated.Name)
	assert.Equal(t, models.WorkflowStatusDraft, updated.Status)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.False(t, updated.UpdatedAt.Before(created.UpdatedAt))
}

func TestWorkflow_Update_PublishedIsImmutable(t *testing.T) {
	service, _ := newWorkflowService(t)

	created, err := service.Create(t.Context(), draftWorkflow())
	require.NoError(t, err)

	_, err = service.Publish(t.Context(), created.ID)
	require.NoError(t, err)

	_, err = service.Update(t.Context(), created.ID, draftWorkflow())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWorkflowNotDraft)
	assert.True(t, IsConflictError(err))
}

func TestWorkflow_Update_NotFound(t *testing.T) {
	service, _ := newWorkflowService(t)

	_, err := service.Update(t.Context(), "missing", draftWorkflow())
	require.Error(t, err)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestWorkflow_Delete(t *testing.T) {
	service, _ := newWorkflowService(t)

	created, err := service.Create(t.Context(), draftWorkflow())
	require.NoError(t, err)

	require.NoError(t, service.Delete(t.Context(), created.ID))

	_, err = service.FetchByID(t.Context(), created.ID)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestWorkflow_Delete_NotFound(t *testing.T) {
	service, _ := newWorkflowService(t)

	err := service.Delete(t.Context(), "missing")
	require.Error(t, err)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestWorkflow_List(t *testing.T) {
	service, _ := newWorkflowService(t)

	first, err := service.Create(t.Context(), draftWorkflow())
	require.NoError(t, err)

	second := draftWorkflow()
	second.Name = "Payout Batch"
	_, err = service.Create(t.Context(), second)
	require.NoError(t, err)

	_, err = service.Publish(t.Context(), first.ID)
	require.NoError(t, err)

	all, err := service.List(t.Context(), ListWorkflowsRequest{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	published := models.WorkflowStatusPublished
	onlyPublished, err := service.List(t.Context(), ListWorkflowsRequest{Status: &published})
	require.NoError(t, err)
	require.Len(t, onlyPublished, 1)
	assert.Equal(t, first.ID, onlyPublished[0].ID)
}

func TestWorkflow_List_InvalidStatus(t *testing.T) {
	service, _ := newWorkflowService(t)

	bogus := models.WorkflowStatus("parked")
	_, err := service.List(t.Context(), ListWorkflowsRequest{Status: &bogus})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.True(t, IsValidationError(err))
}

func TestWorkflow_List_ClampsPagination(t *testing.T) {
	service, _ := newWorkflowService(t)

	_, err := service.Create(t.Context(), draftWorkflow())
	require.NoError(t, err)

	// Out-of-range values are clamped, not rejected.
	got, err := service.List(t.Context(), ListWorkflowsRequest{Limit: -5, Offset: -1})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestWorkflow_HealthCheck(t *testing.T) {
	service, _ := newWorkflowService(t)

	message, healthy := service.HealthCheck(t.Context())
	assert.True(t, healthy)
	assert.NotEmpty(t, message)
}
