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

// ErrNotFound indicates the requested row does not exist
var ErrNotFound = errors.New("not found")

// WorkflowRepository handles database operations for workflows
type WorkflowRepository struct {
	db *db.DB
}

// NewWorkflowRepository creates a new workflow repository
func NewWorkflowRepository(db *db.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

// Create inserts a new workflow and fills in its generated ID
func (r *WorkflowRepository) Create(ctx context.Context, wf *models.Workflow) error {
	nodes, edges, err := marshalGraph(wf)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO workflows (name, description, is_active, nodes, edges)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`

	err = r.db.QueryRow(ctx, query,
		wf.Name,
		wf.Description,
		wf.IsActive,
		nodes,
		edges,
	).Scan(&wf.ID, &wf.CreatedAt, &wf.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create workflow: %w", err)
	}

	return nil
}

// GetByID retrieves a workflow by its ID
func (r *WorkflowRepository) GetByID(ctx context.Context, id int64) (*models.Workflow, error) {
	query := `
		SELECT id, name, description, is_active, nodes, edges, created_at, updated_at
		FROM workflows
		WHERE id = $1
	`

	wf, err := scanWorkflow(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	return wf, nil
}

// List retrieves all workflows, newest first
func (r *WorkflowRepository) List(ctx context.Context) ([]*models.Workflow, error) {
	query := `
		SELECT id, name, description, is_active, nodes, edges, created_at, updated_at
		FROM workflows
		ORDER BY updated_at DESC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	workflows := make([]*models.Workflow, 0)
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		workflows = append(workflows, wf)
	}

	return workflows, rows.Err()
}

// Update replaces a workflow's mutable fields
func (r *WorkflowRepository) Update(ctx context.Context, wf *models.Workflow) error {
	nodes, edges, err := marshalGraph(wf)
	if err != nil {
		return err
	}

	query := `
		UPDATE workflows
		SET name = $2, description = $3, is_active = $4, nodes = $5, edges = $6, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`

	err = r.db.QueryRow(ctx, query,
		wf.ID,
		wf.Name,
		wf.Description,
		wf.IsActive,
		nodes,
		edges,
	).Scan(&wf.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update workflow: %w", err)
	}

	return nil
}

// Delete removes a workflow. Executions cascade at the schema level.
func (r *WorkflowRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*models.Workflow, error) {
	wf := &models.Workflow{}
	var nodes, edges []byte

	err := row.Scan(
		&wf.ID,
		&wf.Name,
		&wf.Description,
		&wf.IsActive,
		&nodes,
		&edges,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(nodes, &wf.Nodes); err != nil {
		return nil, fmt.Errorf("decode workflow nodes: %w", err)
	}
	if err := json.Unmarshal(edges, &wf.Edges); err != nil {
		return nil, fmt.Errorf("decode workflow edges: %w", err)
	}

	return wf, nil
}

func marshalGraph(wf *models.Workflow) ([]byte, []byte, error) {
	if wf.Nodes == nil {
		wf.Nodes = []models.Node{}
	}
	if wf.Edges == nil {
		wf.Edges = []models.Edge{}
	}

	nodes, err := json.Marshal(wf.Nodes)
	if err != nil {
		return nil, nil, fmt.Errorf("encode workflow nodes: %w", err)
	}
	edges, err := json.Marshal(wf.Edges)
	if err != nil {
		return nil, nil, fmt.Errorf("encode workflow edges: %w", err)
	}

	return nodes, edges, nil
}
