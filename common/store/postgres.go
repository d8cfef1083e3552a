package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/flowgrid/flowgrid/common/cache"
	"github.com/flowgrid/flowgrid/common/db"
	"github.com/flowgrid/flowgrid/common/logger"
	"github.com/flowgrid/flowgrid/common/models"
	"github.com/flowgrid/flowgrid/common/repository"
)

// PostgresStore implements Store on the repository layer with an
// optional read cache in front of workflow lookups. Executions run a
// workflow fetch per run request, so that path is the one worth caching.
type PostgresStore struct {
	workflows   *repository.WorkflowRepository
	executions  *repository.ExecutionRepository
	credentials *repository.CredentialRepository

	cache    cache.Cache
	cacheTTL time.Duration
	log      *logger.Logger
}

// NewPostgresStore creates a Postgres-backed store. cache may be nil.
func NewPostgresStore(database *db.DB, c cache.Cache, cacheTTL time.Duration, log *logger.Logger) *PostgresStore {
	return &PostgresStore{
		workflows:   repository.NewWorkflowRepository(database),
		executions:  repository.NewExecutionRepository(database),
		credentials: repository.NewCredentialRepository(database),
		cache:       c,
		cacheTTL:    cacheTTL,
		log:         log,
	}
}

func workflowCacheKey(id int64) string {
	return fmt.Sprintf("workflow:%d", id)
}

// CreateWorkflow inserts a new workflow
func (s *PostgresStore) CreateWorkflow(ctx context.Context, wf *models.Workflow) error {
	return s.workflows.Create(ctx, wf)
}

// GetWorkflow retrieves a workflow, preferring the read cache
func (s *PostgresStore) GetWorkflow(ctx context.Context, id int64) (*models.Workflow, error) {
	if s.cache != nil {
		if raw, ok, _ := s.cache.Get(ctx, workflowCacheKey(id)); ok {
			wf := &models.Workflow{}
			if err := json.Unmarshal(raw, wf); err == nil {
				return wf, nil
			}
			s.log.Warn("discarding undecodable cache entry", "workflow_id", id)
		}
	}

	wf, err := s.workflows.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheWorkflow(ctx, wf)
	return wf, nil
}

// ListWorkflows retrieves all workflows
func (s *PostgresStore) ListWorkflows(ctx context.Context) ([]*models.Workflow, error) {
	return s.workflows.List(ctx)
}

// UpdateWorkflow replaces a workflow and invalidates its cache entry
func (s *PostgresStore) UpdateWorkflow(ctx context.Context, wf *models.Workflow) error {
	if err := s.workflows.Update(ctx, wf); err != nil {
		return err
	}
	s.invalidateWorkflow(ctx, wf.ID)
	return nil
}

// DeleteWorkflow removes a workflow and invalidates its cache entry
func (s *PostgresStore) DeleteWorkflow(ctx context.Context, id int64) error {
	if err := s.workflows.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidateWorkflow(ctx, id)
	return nil
}

// CreateExecution inserts a new execution
func (s *PostgresStore) CreateExecution(ctx context.Context, exec *models.Execution) error {
	return s.executions.Create(ctx, exec)
}

// GetExecution retrieves an execution
func (s *PostgresStore) GetExecution(ctx context.Context, id string) (*models.Execution, error) {
	return s.executions.GetByID(ctx, id)
}

// ListExecutions retrieves executions for a workflow
func (s *PostgresStore) ListExecutions(ctx context.Context, workflowID int64, limit int) ([]*models.Execution, error) {
	return s.executions.ListByWorkflow(ctx, workflowID, limit)
}

// UpdateExecution applies a partial update
func (s *PostgresStore) UpdateExecution(ctx context.Context, id string, update models.ExecutionUpdate) error {
	return s.executions.Update(ctx, id, update)
}

// CreateCredential inserts a new credential
func (s *PostgresStore) CreateCredential(ctx context.Context, cred *models.Credential) error {
	return s.credentials.Create(ctx, cred)
}

// GetCredential retrieves a credential
func (s *PostgresStore) GetCredential(ctx context.Context, id string) (*models.Credential, error) {
	return s.credentials.GetByID(ctx, id)
}

// ListCredentials retrieves credentials, optionally filtered by type
func (s *PostgresStore) ListCredentials(ctx context.Context, credType string) ([]*models.Credential, error) {
	return s.credentials.ListByType(ctx, credType)
}

// UpdateCredentialData replaces a credential's encrypted payload
func (s *PostgresStore) UpdateCredentialData(ctx context.Context, id string, data string) error {
	return s.credentials.UpdateData(ctx, id, data)
}

// DeleteCredential removes a credential
func (s *PostgresStore) DeleteCredential(ctx context.Context, id string) error {
	return s.credentials.Delete(ctx, id)
}

func (s *PostgresStore) cacheWorkflow(ctx context.Context, wf *models.Workflow) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(wf)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, workflowCacheKey(wf.ID), raw, s.cacheTTL); err != nil {
		s.log.Warn("workflow cache write failed", "workflow_id", wf.ID, "error", err)
	}
}

func (s *PostgresStore) invalidateWorkflow(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, workflowCacheKey(id)); err != nil {
		s.log.Warn("workflow cache invalidation failed", "workflow_id", id, "error", err)
	}
}
