package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vesselhq/vessel/pkg/models"
	"github.com/vesselhq/vessel/pkg/persistence"
)

// ExecutionRepository handles run records. ClaimResume is implemented as a
// SELECT ... FOR UPDATE + UPDATE inside one transaction so concurrent resume
// attempts serialize on the row and exactly one wins.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

const executionColumns = `
	id, workflow_id, user_id, status, trigger_data, node_outputs,
	current_node_id, steps, paused_node_id, paused_snapshot, safe_tx_hash,
	safe_tx_data, error_message, created_at, completed_at
`

func (er *ExecutionRepository) Create(ctx context.Context, execution *models.ExecutionContext) error {
	fields, err := marshalExecutionFields(execution)
	if err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	query := `
		INSERT INTO executions (` + executionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO NOTHING
	`

	result, err := er.db.ExecContext(ctx, query,
		execution.ID,
		execution.WorkflowID,
		execution.UserID,
		execution.Status,
		fields.triggerData,
		fields.nodeOutputs,
		execution.CurrentNodeID,
		execution.Steps,
		execution.PausedNodeID,
		fields.pausedSnapshot,
		execution.SafeTxHash,
		fields.safeTxData,
		execution.ErrorMessage,
		execution.CreatedAt,
		execution.CompletedAt,
	)
	if err != nil {
		return persistence.NewExecutionError("Create", execution.ID, fmt.Errorf("failed to insert execution: %w", err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewExecutionError("Create", execution.ID, fmt.Errorf("failed to read rows affected: %w", err))
	}

	if affected == 0 {
		return persistence.NewExecutionError("Create", execution.ID, persistence.ErrExecutionExists)
	}

	return nil
}

func (er *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.ExecutionContext, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE id = $1`

	execution, err := scanExecution(er.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	return execution, nil
}

func (er *ExecutionRepository) Update(ctx context.Context, execution *models.ExecutionContext) error {
	fields, err := marshalExecutionFields(execution)
	if err != nil {
		return persistence.NewExecutionError("Update", execution.ID, err)
	}

	query := `
		UPDATE executions SET
			status = $2, trigger_data = $3, node_outputs = $4,
			current_node_id = $5, steps = $6, paused_node_id = $7,
			paused_snapshot = $8, safe_tx_hash = $9, safe_tx_data = $10,
			error_message = $11, completed_at = $12
		WHERE id = $1
	`

	result, err := er.db.ExecContext(ctx, query,
		execution.ID,
		execution.Status,
		fields.triggerData,
		fields.nodeOutputs,
		execution.CurrentNodeID,
		execution.Steps,
		execution.PausedNodeID,
		fields.pausedSnapshot,
		execution.SafeTxHash,
		fields.safeTxData,
		execution.ErrorMessage,
		execution.CompletedAt,
	)
	if err != nil {
		return persistence.NewExecutionError("Update", execution.ID, fmt.Errorf("failed to update execution: %w", err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewExecutionError("Update", execution.ID, fmt.Errorf("failed to read rows affected: %w", err))
	}

	if affected == 0 {
		return persistence.NewExecutionError("Update", execution.ID, persistence.ErrExecutionNotFound)
	}

	return nil
}

// SavePause writes the waiting status and the pause fields in a single
// UPDATE guarded on status = running. Outputs and steps are synced from the
// snapshot so readers of the row see the same state the snapshot froze.
func (er *ExecutionRepository) SavePause(ctx context.Context, id, nodeID string, snapshot *models.PausedSnapshot, safeTxHash string, safeTxData map[string]any) error {
	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return persistence.NewExecutionError("SavePause", id, fmt.Errorf("failed to marshal paused snapshot: %w", err))
	}

	outputsJSON, err := json.Marshal(snapshot.NodeOutputs)
	if err != nil {
		return persistence.NewExecutionError("SavePause", id, fmt.Errorf("failed to marshal node outputs: %w", err))
	}

	var dataJSON []byte
	if safeTxData != nil {
		dataJSON, err = json.Marshal(safeTxData)
		if err != nil {
			return persistence.NewExecutionError("SavePause", id, fmt.Errorf("failed to marshal safe tx data: %w", err))
		}
	}

	query := `
		UPDATE executions SET
			status = $2, paused_node_id = $3, paused_snapshot = $4,
			safe_tx_hash = $5, safe_tx_data = $6, node_outputs = $7,
			steps = $8, current_node_id = $3
		WHERE id = $1 AND status = $9
	`

	result, err := er.db.ExecContext(ctx, query,
		id,
		models.ExecutionStatusWaitingForSignature,
		nodeID,
		snapshotJSON,
		safeTxHash,
		dataJSON,
		outputsJSON,
		snapshot.Steps,
		models.ExecutionStatusRunning,
	)
	if err != nil {
		return persistence.NewExecutionError("SavePause", id, fmt.Errorf("failed to write pause state: %w", err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewExecutionError("SavePause", id, fmt.Errorf("failed to read rows affected: %w", err))
	}

	if affected == 0 {
		current, getErr := er.GetByID(ctx, id)
		if getErr != nil {
			return getErr
		}

		return persistence.NewExecutionError("SavePause", id, fmt.Errorf("execution is %s, only running runs can pause", current.Status))
	}

	return nil
}

// ClaimResume locks the row, verifies the run is waiting for a signature,
// clears the pause state and flips the status back to running in one
// transaction, so concurrent claims settle on the row lock.
func (er *ExecutionRepository) ClaimResume(ctx context.Context, id string) (*models.ExecutionContext, error) {
	tx, err := er.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, persistence.NewExecutionError("ClaimResume", id, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT ` + executionColumns + ` FROM executions WHERE id = $1 FOR UPDATE`

	execution, err := scanExecution(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("ClaimResume", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("ClaimResume", id, err)
	}

	if execution.Status != models.ExecutionStatusWaitingForSignature {
		return nil, persistence.NewExecutionError("ClaimResume", id, persistence.ErrExecutionNotWaiting)
	}

	clearQuery := `
		UPDATE executions SET
			status = $2, paused_node_id = '', paused_snapshot = NULL,
			safe_tx_hash = '', safe_tx_data = NULL
		WHERE id = $1
	`

	if _, err := tx.ExecContext(ctx, clearQuery, id, models.ExecutionStatusRunning); err != nil {
		return nil, persistence.NewExecutionError("ClaimResume", id, fmt.Errorf("failed to clear pause state: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return nil, persistence.NewExecutionError("ClaimResume", id, fmt.Errorf("failed to commit claim: %w", err))
	}

	return execution, nil
}

// ClaimStart flips pending -> running in one statement; zero affected rows
// means another worker already took the run.
func (er *ExecutionRepository) ClaimStart(ctx context.Context, id string) (*models.ExecutionContext, error) {
	query := `
		UPDATE executions SET status = $2
		WHERE id = $1 AND status = $3
	`

	result, err := er.db.ExecContext(ctx, query, id, models.ExecutionStatusRunning, models.ExecutionStatusPending)
	if err != nil {
		return nil, persistence.NewExecutionError("ClaimStart", id, fmt.Errorf("failed to claim execution: %w", err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, persistence.NewExecutionError("ClaimStart", id, fmt.Errorf("failed to read rows affected: %w", err))
	}

	if affected == 0 {
		// distinguish missing from already-claimed; pending is never
		// re-entered so a found row means the claim was lost
		if _, getErr := er.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}

		return nil, persistence.NewExecutionError("ClaimStart", id, persistence.ErrExecutionNotPending)
	}

	return er.GetByID(ctx, id)
}

func (er *ExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.ExecutionContext, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE workflow_id = $1 ORDER BY created_at DESC`

	rows, err := er.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	executions := make([]*models.ExecutionContext, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution row: %w", err)
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate execution rows: %w", err)
	}

	return executions, nil
}

type executionFields struct {
	triggerData    []byte
	nodeOutputs    []byte
	pausedSnapshot []byte
	safeTxData     []byte
}

func marshalExecutionFields(execution *models.ExecutionContext) (*executionFields, error) {
	fields := &executionFields{}

	var err error

	if execution.TriggerData != nil {
		fields.triggerData, err = json.Marshal(execution.TriggerData)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal trigger data: %w", err)
		}
	}

	outputs := execution.NodeOutputs
	if outputs == nil {
		outputs = map[string]map[string]any{}
	}

	fields.nodeOutputs, err = json.Marshal(outputs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal node outputs: %w", err)
	}

	if execution.PausedSnapshot != nil {
		fields.pausedSnapshot, err = json.Marshal(execution.PausedSnapshot)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal paused snapshot: %w", err)
		}
	}

	if execution.SafeTxData != nil {
		fields.safeTxData, err = json.Marshal(execution.SafeTxData)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal safe tx data: %w", err)
		}
	}

	return fields, nil
}

func scanExecution(row scanner) (*models.ExecutionContext, error) {
	var (
		execution      models.ExecutionContext
		triggerData    []byte
		nodeOutputs    []byte
		pausedSnapshot []byte
		safeTxData     []byte
		completedAt    sql.NullTime
	)

	err := row.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.UserID,
		&execution.Status,
		&triggerData,
		&nodeOutputs,
		&execution.CurrentNodeID,
		&execution.Steps,
		&execution.PausedNodeID,
		&pausedSnapshot,
		&execution.SafeTxHash,
		&safeTxData,
		&execution.ErrorMessage,
		&execution.CreatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(triggerData) > 0 {
		if err := json.Unmarshal(triggerData, &execution.TriggerData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trigger data: %w", err)
		}
	}

	if err := json.Unmarshal(nodeOutputs, &execution.NodeOutputs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal node outputs: %w", err)
	}

	if len(pausedSnapshot) > 0 {
		if err := json.Unmarshal(pausedSnapshot, &execution.PausedSnapshot); err != nil {
			return nil, fmt.Errorf("failed to unmarshal paused snapshot: %w", err)
		}
	}

	if len(safeTxData) > 0 {
		if err := json.Unmarshal(safeTxData, &execution.SafeTxData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal safe tx data: %w", err)
		}
	}

	if completedAt.Valid {
		execution.CompletedAt = &completedAt.Time
	}

	return &execution, nil
}
