package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/vesselhq/vessel/pkg/models"
	"github.com/vesselhq/vessel/pkg/persistence"
)

// NodeExecutionRepository stores per-attempt node records. Rows are
// insert-only.
type NodeExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewNodeExecutionRepository(db *sql.DB, logger *slog.Logger) *NodeExecutionRepository {
	return &NodeExecutionRepository{db: db, logger: logger}
}

func (nr *NodeExecutionRepository) Create(ctx context.Context, record *models.NodeExecutionRecord) error {
	var (
		inputJSON  []byte
		outputJSON []byte
		err        error
	)

	if record.Input != nil {
		inputJSON, err = json.Marshal(record.Input)
		if err != nil {
			return persistence.NewExecutionError("CreateNodeRecord", record.ExecutionID, fmt.Errorf("failed to marshal input: %w", err))
		}
	}

	if record.Output != nil {
		outputJSON, err = json.Marshal(record.Output)
		if err != nil {
			return persistence.NewExecutionError("CreateNodeRecord", record.ExecutionID, fmt.Errorf("failed to marshal output: %w", err))
		}
	}

	query := `
		INSERT INTO node_executions (
			id, execution_id, node_id, status, input, output, error,
			started_at, finished_at, duration_ms
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = nr.db.ExecContext(ctx, query,
		record.ID,
		record.ExecutionID,
		record.NodeID,
		record.Status,
		inputJSON,
		outputJSON,
		record.Error,
		record.StartedAt,
		record.FinishedAt,
		record.DurationMS,
	)
	if err != nil {
		return persistence.NewExecutionError("CreateNodeRecord", record.ExecutionID, fmt.Errorf("failed to insert node record: %w", err))
	}

	return nil
}

func (nr *NodeExecutionRepository) ListByExecution(ctx context.Context, executionID string) ([]*models.NodeExecutionRecord, error) {
	query := `
		SELECT id, execution_id, node_id, status, input, output, error,
		       started_at, finished_at, duration_ms
		FROM node_executions
		WHERE execution_id = $1
		ORDER BY started_at ASC
	`

	rows, err := nr.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query node records: %w", err)
	}
	defer rows.Close()

	records := make([]*models.NodeExecutionRecord, 0)

	for rows.Next() {
		record, err := scanNodeRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node record row: %w", err)
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate node record rows: %w", err)
	}

	return records, nil
}

func scanNodeRecord(row scanner) (*models.NodeExecutionRecord, error) {
	var (
		record models.NodeExecutionRecord
		input  []byte
		output []byte
	)

	err := row.Scan(
		&record.ID,
		&record.ExecutionID,
		&record.NodeID,
		&record.Status,
		&input,
		&output,
		&record.Error,
		&record.StartedAt,
		&record.FinishedAt,
		&record.DurationMS,
	)
	if err != nil {
		return nil, err
	}

	if len(input) > 0 {
		if err := json.Unmarshal(input, &record.Input); err != nil {
			return nil, fmt.Errorf("failed to unmarshal input: %w", err)
		}
	}

	if len(output) > 0 {
		if err := json.Unmarshal(output, &record.Output); err != nil {
			return nil, fmt.Errorf("failed to unmarshal output: %w", err)
		}
	}

	return &record, nil
}
