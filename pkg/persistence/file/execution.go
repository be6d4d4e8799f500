package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/vesselhq/vessel/pkg/models"
	"github.com/vesselhq/vessel/pkg/persistence"
)

// ExecutionRepository stores run records as JSON files. A process-local
// mutex serializes the resume claim; cross-process atomicity needs the
// postgresql backend.
type ExecutionRepository struct {
	root string
	mu   sync.Mutex
}

func NewExecutionRepository(root string) *ExecutionRepository {
	return &ExecutionRepository{root: root}
}

func (er *ExecutionRepository) dir() string {
	return filepath.Join(er.root, "executions")
}

func (er *ExecutionRepository) path(id string) string {
	return filepath.Join(er.dir(), id+".json")
}

func (er *ExecutionRepository) Create(ctx context.Context, execution *models.ExecutionContext) error {
	if err := validateID(execution.ID); err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	if err := os.MkdirAll(er.dir(), 0750); err != nil {
		return persistence.NewExecutionError("Create", execution.ID, fmt.Errorf("failed to create executions directory: %w", err))
	}

	data, err := json.Marshal(execution)
	if err != nil {
		return persistence.NewExecutionError("Create", execution.ID, fmt.Errorf("failed to marshal execution: %w", err))
	}

	// O_EXCL makes the duplicate-id check and the write one operation.
	file, err := os.OpenFile(er.path(execution.ID), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if os.IsExist(err) {
			return persistence.NewExecutionError("Create", execution.ID, persistence.ErrExecutionExists)
		}

		return persistence.NewExecutionError("Create", execution.ID, fmt.Errorf("failed to create execution file: %w", err))
	}
	defer file.Close()

	if _, err := file.Write(data); err != nil {
		return persistence.NewExecutionError("Create", execution.ID, fmt.Errorf("failed to write execution file: %w", err))
	}

	return nil
}

func (er *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.ExecutionContext, error) {
	if err := validateID(id); err != nil {
		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	return er.read(id)
}

func (er *ExecutionRepository) read(id string) (*models.ExecutionContext, error) {
	data, err := os.ReadFile(er.path(id)) // #nosec G304 -- id is validated against path traversal
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("GetByID", id, fmt.Errorf("failed to read execution file: %w", err))
	}

	var execution models.ExecutionContext
	if err := json.Unmarshal(data, &execution); err != nil {
		return nil, persistence.NewExecutionError("GetByID", id, fmt.Errorf("failed to unmarshal execution: %w", err))
	}

	return &execution, nil
}

func (er *ExecutionRepository) write(execution *models.ExecutionContext) error {
	data, err := json.Marshal(execution)
	if err != nil {
		return fmt.Errorf("failed to marshal execution: %w", err)
	}

	if err := os.WriteFile(er.path(execution.ID), data, 0600); err != nil {
		return fmt.Errorf("failed to write execution file: %w", err)
	}

	return nil
}

func (er *ExecutionRepository) Update(ctx context.Context, execution *models.ExecutionContext) error {
	if err := validateID(execution.ID); err != nil {
		return persistence.NewExecutionError("Update", execution.ID, err)
	}

	er.mu.Lock()
	defer er.mu.Unlock()

	if _, err := os.Stat(er.path(execution.ID)); os.IsNotExist(err) {
		return persistence.NewExecutionError("Update", execution.ID, persistence.ErrExecutionNotFound)
	}

	if err := er.write(execution); err != nil {
		return persistence.NewExecutionError("Update", execution.ID, err)
	}

	return nil
}

// SavePause writes the pause state and the waiting status in one locked
// read-modify-write. Outputs and steps come from the snapshot.
func (er *ExecutionRepository) SavePause(ctx context.Context, id, nodeID string, snapshot *models.PausedSnapshot, safeTxHash string, safeTxData map[string]any) error {
	if err := validateID(id); err != nil {
		return persistence.NewExecutionError("SavePause", id, err)
	}

	er.mu.Lock()
	defer er.mu.Unlock()

	execution, err := er.read(id)
	if err != nil {
		return err
	}

	if execution.Status != models.ExecutionStatusRunning {
		return persistence.NewExecutionError("SavePause", id, fmt.Errorf("execution is %s, only running runs can pause", execution.Status))
	}

	execution.NodeOutputs = snapshot.NodeOutputs
	execution.Steps = snapshot.Steps
	execution.CurrentNodeID = nodeID
	execution.MarkWaitingForSignature(nodeID, snapshot, safeTxHash, safeTxData)

	if err := er.write(execution); err != nil {
		return persistence.NewExecutionError("SavePause", id, err)
	}

	return nil
}

// ClaimResume flips waiting_for_signature -> running under the repository
// lock and returns the run as it was before the claim, pause fields intact.
func (er *ExecutionRepository) ClaimResume(ctx context.Context, id string) (*models.ExecutionContext, error) {
	if err := validateID(id); err != nil {
		return nil, persistence.NewExecutionError("ClaimResume", id, err)
	}

	er.mu.Lock()
	defer er.mu.Unlock()

	execution, err := er.read(id)
	if err != nil {
		return nil, err
	}

	if execution.Status != models.ExecutionStatusWaitingForSignature {
		return nil, persistence.NewExecutionError("ClaimResume", id, persistence.ErrExecutionNotWaiting)
	}

	claimed := *execution
	claimed.ClearPauseState()

	if err := er.write(&claimed); err != nil {
		return nil, persistence.NewExecutionError("ClaimResume", id, err)
	}

	return execution, nil
}

// ClaimStart flips pending -> running under the repository lock. Duplicate
// start requests lose the claim and get ErrExecutionNotPending.
func (er *ExecutionRepository) ClaimStart(ctx context.Context, id string) (*models.ExecutionContext, error) {
	if err := validateID(id); err != nil {
		return nil, persistence.NewExecutionError("ClaimStart", id, err)
	}

	er.mu.Lock()
	defer er.mu.Unlock()

	execution, err := er.read(id)
	if err != nil {
		return nil, err
	}

	if execution.Status != models.ExecutionStatusPending {
		return nil, persistence.NewExecutionError("ClaimStart", id, persistence.ErrExecutionNotPending)
	}

	execution.Status = models.ExecutionStatusRunning

	if err := er.write(execution); err != nil {
		return nil, persistence.NewExecutionError("ClaimStart", id, err)
	}

	return execution, nil
}

func (er *ExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.ExecutionContext, error) {
	entries, err := os.ReadDir(er.dir())
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.ExecutionContext{}, nil
		}

		return nil, fmt.Errorf("failed to read executions directory: %w", err)
	}

	executions := make([]*models.ExecutionContext, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		execution, err := er.read(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			return nil, err
		}

		if execution.WorkflowID == workflowID {
			executions = append(executions, execution)
		}
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].CreatedAt.After(executions[j].CreatedAt)
	})

	return executions, nil
}
