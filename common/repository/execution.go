package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/flowgrid/flowgrid/common/db"
	"github.com/flowgrid/flowgrid/common/models"
)

// ExecutionRepository handles database operations for executions
type ExecutionRepository struct {
	db *db.DB
}

// NewExecutionRepository creates a new execution repository
func NewExecutionRepository(db *db.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

// Create inserts a new execution row
func (r *ExecutionRepository) Create(ctx context.Context, exec *models.Execution) error {
	data, err := marshalData(exec.Data)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO executions (id, workflow_id, status, started_at, finished_at, data, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.db.Exec(ctx, query,
		exec.ID,
		exec.WorkflowID,
		exec.Status,
		exec.StartedAt,
		exec.FinishedAt,
		data,
		exec.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}

	return nil
}

// GetByID retrieves an execution by its ID
func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	query := `
		SELECT id, workflow_id, status, started_at, finished_at, data, error
		FROM executions
		WHERE id = $1
	`

	exec, err := scanExecution(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}

	return exec, nil
}

// ListByWorkflow retrieves executions for one workflow, newest first
func (r *ExecutionRepository) ListByWorkflow(ctx context.Context, workflowID int64, limit int) ([]*models.Execution, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, workflow_id, status, started_at, finished_at, data, error
		FROM executions
		WHERE workflow_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, workflowID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	executions := make([]*models.Execution, 0)
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		executions = append(executions, exec)
	}

	return executions, rows.Err()
}

// Update applies a partial update to an execution row
func (r *ExecutionRepository) Update(ctx context.Context, id string, update models.ExecutionUpdate) error {
	query := `
		UPDATE executions
		SET status      = COALESCE($2, status),
		    finished_at = COALESCE($3, finished_at),
		    data        = COALESCE($4, data),
		    error       = COALESCE($5, error)
		WHERE id = $1
	`

	var data []byte
	if update.Data != nil {
		encoded, err := marshalData(update.Data)
		if err != nil {
			return err
		}
		data = encoded
	}

	tag, err := r.db.Exec(ctx, query, id, update.Status, update.FinishedAt, data, update.Error)
	if err != nil {
		return fmt.Errorf("failed to update execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func scanExecution(row rowScanner) (*models.Execution, error) {
	exec := &models.Execution{}
	var data []byte

	err := row.Scan(
		&exec.ID,
		&exec.WorkflowID,
		&exec.Status,
		&exec.StartedAt,
		&exec.FinishedAt,
		&data,
		&exec.Error,
	)
	if err != nil {
		return nil, err
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &exec.Data); err != nil {
			return nil, fmt.Errorf("decode execution data: %w", err)
		}
	}

	return exec, nil
}

func marshalData(data map[string]any) ([]byte, error) {
	if data == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode execution data: %w", err)
	}
	return encoded, nil
}
