package store

import (
	"context"
	"sort"
	"sync"

	"github.com/flowgrid/flowgrid/common/models"
)

// MemoryStore is an in-memory Store used by tests
type MemoryStore struct {
	mu          sync.RWMutex
	workflows   map[int64]*models.Workflow
	executions  map[string]*models.Execution
	credentials map[string]*models.Credential
	nextID      int64
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows:   make(map[int64]*models.Workflow),
		executions:  make(map[string]*models.Execution),
		credentials: make(map[string]*models.Credential),
		nextID:      1,
	}
}

// CreateWorkflow inserts a workflow and assigns an ID
func (s *MemoryStore) CreateWorkflow(ctx context.Context, wf *models.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wf.ID = s.nextID
	s.nextID++
	copied := *wf
	s.workflows[wf.ID] = &copied
	return nil
}

// GetWorkflow retrieves a workflow
func (s *MemoryStore) GetWorkflow(ctx context.Context, id int64) (*models.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wf, ok := s.workflows[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *wf
	return &copied, nil
}

// ListWorkflows retrieves all workflows ordered by ID
func (s *MemoryStore) ListWorkflows(ctx context.Context) ([]*models.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Workflow, 0, len(s.workflows))
	for _, wf := range s.workflows {
		copied := *wf
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateWorkflow replaces a workflow
func (s *MemoryStore) UpdateWorkflow(ctx context.Context, wf *models.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workflows[wf.ID]; !ok {
		return ErrNotFound
	}
	copied := *wf
	s.workflows[wf.ID] = &copied
	return nil
}

// DeleteWorkflow removes a workflow and its executions
func (s *MemoryStore) DeleteWorkflow(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workflows[id]; !ok {
		return ErrNotFound
	}
	delete(s.workflows, id)
	for execID, exec := range s.executions {
		if exec.WorkflowID == id {
			delete(s.executions, execID)
		}
	}
	return nil
}

// CreateExecution inserts an execution
func (s *MemoryStore) CreateExecution(ctx context.Context, exec *models.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *exec
	s.executions[exec.ID] = &copied
	return nil
}

// GetExecution retrieves an execution
func (s *MemoryStore) GetExecution(ctx context.Context, id string) (*models.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exec, ok := s.executions[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *exec
	return &copied, nil
}

// ListExecutions retrieves executions for a workflow, newest first
func (s *MemoryStore) ListExecutions(ctx context.Context, workflowID int64, limit int) ([]*models.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Execution, 0)
	for _, exec := range s.executions {
		if exec.WorkflowID == workflowID {
			copied := *exec
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpdateExecution applies a partial update
func (s *MemoryStore) UpdateExecution(ctx context.Context, id string, update models.ExecutionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exec, ok := s.executions[id]
	if !ok {
		return ErrNotFound
	}
	if update.Status != nil {
		exec.Status = *update.Status
	}
	if update.FinishedAt != nil {
		exec.FinishedAt = update.FinishedAt
	}
	if update.Data != nil {
		exec.Data = update.Data
	}
	if update.Error != nil {
		exec.Error = update.Error
	}
	return nil
}

// CreateCredential inserts a credential
func (s *MemoryStore) CreateCredential(ctx context.Context, cred *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *cred
	s.credentials[cred.ID] = &copied
	return nil
}

// GetCredential retrieves a credential
func (s *MemoryStore) GetCredential(ctx context.Context, id string) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.credentials[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *cred
	return &copied, nil
}

// ListCredentials retrieves credentials, optionally filtered by type
func (s *MemoryStore) ListCredentials(ctx context.Context, credType string) ([]*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Credential, 0)
	for _, cred := range s.credentials {
		if credType == "" || cred.Type == credType {
			copied := *cred
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateCredentialData replaces a credential's encrypted payload
func (s *MemoryStore) UpdateCredentialData(ctx context.Context, id string, data string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.credentials[id]
	if !ok {
		return ErrNotFound
	}
	cred.Data = data
	return nil
}

// DeleteCredential removes a credential
func (s *MemoryStore) DeleteCredential(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.credentials[id]; !ok {
		return ErrNotFound
	}
	delete(s.credentials, id)
	return nil
}
