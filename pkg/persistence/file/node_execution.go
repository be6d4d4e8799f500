package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/vesselhq/vessel/pkg/models"
	"github.com/vesselhq/vessel/pkg/persistence"
)

// NodeExecutionRepository appends node attempt records to one JSON document
// per run. Records are write-once; the file is only ever appended to.
type NodeExecutionRepository struct {
	root string
	mu   sync.Mutex
}

func NewNodeExecutionRepository(root string) *NodeExecutionRepository {
	return &NodeExecutionRepository{root: root}
}

func (nr *NodeExecutionRepository) dir() string {
	return filepath.Join(nr.root, "node_executions")
}

func (nr *NodeExecutionRepository) path(executionID string) string {
	return filepath.Join(nr.dir(), executionID+".json")
}

func (nr *NodeExecutionRepository) Create(ctx context.Context, record *models.NodeExecutionRecord) error {
	if err := validateID(record.ExecutionID); err != nil {
		return persistence.NewExecutionError("CreateNodeRecord", record.ExecutionID, err)
	}

	nr.mu.Lock()
	defer nr.mu.Unlock()

	if err := os.MkdirAll(nr.dir(), 0750); err != nil {
		return persistence.NewExecutionError("CreateNodeRecord", record.ExecutionID, fmt.Errorf("failed to create node executions directory: %w", err))
	}

	records, err := nr.readAll(record.ExecutionID)
	if err != nil {
		return err
	}

	records = append(records, record)

	data, err := json.Marshal(records)
	if err != nil {
		return persistence.NewExecutionError("CreateNodeRecord", record.ExecutionID, fmt.Errorf("failed to marshal node records: %w", err))
	}

	if err := os.WriteFile(nr.path(record.ExecutionID), data, 0600); err != nil {
		return persistence.NewExecutionError("CreateNodeRecord", record.ExecutionID, fmt.Errorf("failed to write node records file: %w", err))
	}

	return nil
}

func (nr *NodeExecutionRepository) readAll(executionID string) ([]*models.NodeExecutionRecord, error) {
	data, err := os.ReadFile(nr.path(executionID)) // #nosec G304 -- id is validated against path traversal
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.NodeExecutionRecord{}, nil
		}

		return nil, persistence.NewExecutionError("ListNodeRecords", executionID, fmt.Errorf("failed to read node records file: %w", err))
	}

	var records []*models.NodeExecutionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, persistence.NewExecutionError("ListNodeRecords", executionID, fmt.Errorf("failed to unmarshal node records: %w", err))
	}

	return records, nil
}

func (nr *NodeExecutionRepository) ListByExecution(ctx context.Context, executionID string) ([]*models.NodeExecutionRecord, error) {
	if err := validateID(executionID); err != nil {
		return nil, persistence.NewExecutionError("ListNodeRecords", executionID, err)
	}

	nr.mu.Lock()
	defer nr.mu.Unlock()

	records, err := nr.readAll(executionID)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].StartedAt.Before(records[j].StartedAt)
	})

	return records, nil
}
