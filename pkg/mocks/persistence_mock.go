package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/vesselhq/vessel/pkg/models"
	"github.com/vesselhq/vessel/pkg/persistence"
)

// MockPersistence is a mock implementation of persistence.Persistence that
// hands out the repository mocks it was built with.
type MockPersistence struct {
	mock.Mock

	Workflows      *MockWorkflowRepository
	Executions     *MockExecutionRepository
	NodeExecutions *MockNodeExecutionRepository
}

// NewMockPersistence builds a MockPersistence with fresh repository mocks.
func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		Workflows:      &MockWorkflowRepository{},
		Executions:     &MockExecutionRepository{},
		NodeExecutions: &MockNodeExecutionRepository{},
	}
}

func (m *MockPersistence) WorkflowRepository() persistence.WorkflowRepository {
	return m.Workflows
}

func (m *MockPersistence) ExecutionRepository() persistence.ExecutionRepository {
	return m.Executions
}

func (m *MockPersistence) NodeExecutionRepository() persistence.NodeExecutionRepository {
	return m.NodeExecutions
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

// MockWorkflowRepository is a mock implementation of
// persistence.WorkflowRepository.
type MockWorkflowRepository struct {
	mock.Mock
}

func (m *MockWorkflowRepository) Create(ctx context.Context, workflow *models.Workflow) error {
	args := m.Called(ctx, workflow)

	return args.Error(0)
}

func (m *MockWorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) List(ctx context.Context, opts persistence.ListWorkflowsOptions) ([]*models.Workflow, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) Update(ctx context.Context, workflow *models.Workflow) error {
	args := m.Called(ctx, workflow)

	return args.Error(0)
}

func (m *MockWorkflowRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockExecutionRepository is a mock implementation of
// persistence.ExecutionRepository.
type MockExecutionRepository struct {
	mock.Mock
}

func (m *MockExecutionRepository) Create(ctx context.Context, execution *models.ExecutionContext) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockExecutionRepository) GetByID(ctx context.Context, id string) (*models.ExecutionContext, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ExecutionContext), args.Error(1)
}

func (m *MockExecutionRepository) Update(ctx context.Context, execution *models.ExecutionContext) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockExecutionRepository) SavePause(ctx context.Context, id, nodeID string, snapshot *models.PausedSnapshot, safeTxHash string, safeTxData map[string]any) error {
	args := m.Called(ctx, id, nodeID, snapshot, safeTxHash, safeTxData)

	return args.Error(0)
}

func (m *MockExecutionRepository) ClaimResume(ctx context.Context, id string) (*models.ExecutionContext, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ExecutionContext), args.Error(1)
}

func (m *MockExecutionRepository) ClaimStart(ctx context.Context, id string) (*models.ExecutionContext, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ExecutionContext), args.Error(1)
}

func (m *MockExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.ExecutionContext, error) {
	args := m.Called(ctx, workflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ExecutionContext), args.Error(1)
}

// MockNodeExecutionRepository is a mock implementation of
// persistence.NodeExecutionRepository.
type MockNodeExecutionRepository struct {
	mock.Mock
}

func (m *MockNodeExecutionRepository) Create(ctx context.Context, record *models.NodeExecutionRecord) error {
	args := m.Called(ctx, record)

	return args.Error(0)
}

func (m *MockNodeExecutionRepository) ListByExecution(ctx context.Context, executionID string) ([]*models.NodeExecutionRecord, error) {
	args := m.Called(ctx, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.NodeExecutionRecord), args.Error(1)
}
