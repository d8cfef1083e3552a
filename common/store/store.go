package store

import (
	"context"

	"github.com/flowgrid/flowgrid/common/models"
	"github.com/flowgrid/flowgrid/common/repository"
)

// ErrNotFound indicates the requested record does not exist
var ErrNotFound = repository.ErrNotFound

// Store is the persistence boundary for the engine. The scheduler and
// handlers only see this interface; tests use the memory implementation.
type Store interface {
	CreateWorkflow(ctx context.Context, wf *models.Workflow) error
	GetWorkflow(ctx context.Context, id int64) (*models.Workflow, error)
	ListWorkflows(ctx context.Context) ([]*models.Workflow, error)
	UpdateWorkflow(ctx context.Context, wf *models.Workflow) error
	DeleteWorkflow(ctx context.Context, id int64) error

	CreateExecution(ctx context.Context, exec *models.Execution) error
	GetExecution(ctx context.Context, id string) (*models.Execution, error)
	ListExecutions(ctx context.Context, workflowID int64, limit int) ([]*models.Execution, error)
	UpdateExecution(ctx context.Context, id string, update models.ExecutionUpdate) error

	CreateCredential(ctx context.Context, cred *models.Credential) error
	GetCredential(ctx context.Context, id string) (*models.Credential, error)
	ListCredentials(ctx context.Context, credType string) ([]*models.Credential, error)
	UpdateCredentialData(ctx context.Context, id string, data string) error
	DeleteCredential(ctx context.Context, id string) error
}
