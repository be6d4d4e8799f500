package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesselhq/vessel/pkg/models"
	"github.com/vesselhq/vessel/pkg/persistence"
	"github.com/vesselhq/vessel/pkg/registry"
)

func TestPublish(t *testing.T) {
	service, _ := newWorkflowService(t)

	created, err := service.Create(t.Context(), draftWorkflow())
	require.NoError(t, err)

	published, err := service.Publish(t.Context(), created.ID)
	require.NoError(t, err)

	assert.Equal(t, models.WorkflowStatusPublished, published.Status)
	require.NotNil(t, published.PublishedAt)
	assert.WithinDuration(t, time.Now(), *published.PublishedAt, time.Minute)
}

func TestPublish_Idempotent(t *testing.T) {
	service, _ := newWorkflowService(t)

	created, err := service.Create(t.Context(), draftWorkflow())
	require.NoError(t, err)

	first, err := service.Publish(t.Context(), created.ID)
	require.NoError(t, err)

	second, err := service.Publish(t.Context(), created.ID)
	require.NoError(t, err)

	assert.Equal(t, models.WorkflowStatusPublished, second.Status)
	assert.Equal(t, first.PublishedAt, second.PublishedAt)
}

func TestPublish_NotFound(t *testing.T) {
	service, _ := newWorkflowService(t)

	_, err := service.Publish(t.Context(), "missing")
	require.Error(t, err)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestPublish_Archived(t *testing.T) {
	service, p := newWorkflowService(t)

	wf := draftWorkflow()
	wf.ID = "archived-wf"
	wf.Status = models.WorkflowStatusArchived
	require.NoError(t, p.WorkflowRepository().Create(t.Context(), wf))

	_, err := service.Publish(t.Context(), wf.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWorkflowNotDraft)
	assert.True(t, IsConflictError(err))
}

func TestPublish_GraphValidation(t *testing.T) {
	// Graph defects are caught at publish time, before the workflow can run.
	// The broken definitions are written straight to the repository because
	// the service would already reject some of them on create.
	tests := []struct {
		name    string
		mutate  func(wf *models.Workflow)
		wantErr error
	}{
		{
			name: "no nodes",
			mutate: func(wf *models.Workflow) {
				wf.Nodes = nil
				wf.Edges = nil
			},
			wantErr: ErrNodesRequired,
		},
		{
			name: "missing trigger id",
			mutate: func(wf *models.Workflow) {
				wf.TriggerNodeID = ""
			},
			wantErr: models.ErrInvalidWorkflow,
		},
		{
			name: "trigger not in graph",
			mutate: func(wf *models.Workflow) {
				wf.TriggerNodeID = "ghost"
			},
			wantErr: models.ErrInvalidWorkflow,
		},
		{
			name: "trigger is an action node",
			mutate: func(wf *models.Workflow) {
				wf.TriggerNodeID = "log"
			},
			wantErr: models.ErrInvalidWorkflow,
		},
		{
			name: "edge to unknown node",
			mutate: func(wf *models.Workflow) {
				wf.Edges = append(wf.Edges, &models.Edge{ID: "e2", SourceNodeID: "log", TargetNodeID: "ghost"})
			},
			wantErr: models.ErrInvalidWorkflow,
		},
		{
			name: "disabled trigger",
			mutate: func(wf *models.Workflow) {
				wf.Nodes[0].Enabled = false
			},
			wantErr: ErrTriggerDisabled,
		},
		{
			name: "invalid node config",
			mutate: func(wf *models.Workflow) {
				wf.Nodes[1].Config = map[string]any{}
			},
			wantErr: registry.ErrInvalidNodeConfig,
		},
		{
			name: "unknown node type",
			mutate: func(wf *models.Workflow) {
				wf.Nodes[1].Type = "teleport"
			},
			wantErr: registry.ErrNodeTypeNotRegistered,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, p := newWorkflowService(t)

			wf := draftWorkflow()
			wf.ID = "broken-wf"
			tt.mutate(wf)
			require.NoError(t, p.WorkflowRepository().Create(t.Context(), wf))

			_, err := service.Publish(t.Context(), wf.ID)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsValidationError(err), "publish defects must map to validation errors")

			// A failed publish must not change the status.
			stored, err := p.WorkflowRepository().GetByID(t.Context(), wf.ID)
			require.NoError(t, err)
			assert.Equal(t, models.WorkflowStatusDraft, stored.Status)
		})
	}
}
