package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/flowgrid/flowgrid/cmd/engine/executor"
	"github.com/flowgrid/flowgrid/common/logger"
	"github.com/flowgrid/flowgrid/common/models"
	"github.com/flowgrid/flowgrid/common/queue"
	"github.com/flowgrid/flowgrid/common/store"
)

// WorkflowHandler handles workflow CRUD and execution requests
type WorkflowHandler struct {
	store store.Store
	queue queue.Queue
	log   *logger.Logger
}

// NewWorkflowHandler creates a new workflow handler
func NewWorkflowHandler(st store.Store, q queue.Queue, log *logger.Logger) *WorkflowHandler {
	return &WorkflowHandler{
		store: st,
		queue: q,
		log:   log,
	}
}

// ListWorkflows lists all workflows
// GET /api/workflows
func (h *WorkflowHandler) ListWorkflows(c echo.Context) error {
	workflows, err := h.store.ListWorkflows(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, workflows)
}

// GetWorkflow retrieves a workflow by id
// GET /api/workflows/:id
func (h *WorkflowHandler) GetWorkflow(c echo.Context) error {
	id, err := workflowID(c)
	if err != nil {
		return err
	}

	wf, err := h.store.GetWorkflow(c.Request().Context(), id)
	if err != nil {
		return notFoundOr500(err, "workflow not found")
	}
	return c.JSON(http.StatusOK, wf)
}

// CreateWorkflow creates a new workflow
// POST /api/workflows
func (h *WorkflowHandler) CreateWorkflow(c echo.Context) error {
	var wf models.Workflow
	if err := c.Bind(&wf); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid workflow payload")
	}
	if wf.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}

	if err := h.store.CreateWorkflow(c.Request().Context(), &wf); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	h.log.Info("workflow created", "workflow_id", wf.ID, "name", wf.Name)
	return c.JSON(http.StatusCreated, wf)
}

// UpdateWorkflow replaces a workflow
// PUT /api/workflows/:id
func (h *WorkflowHandler) UpdateWorkflow(c echo.Context) error {
	id, err := workflowID(c)
	if err != nil {
		return err
	}

	var wf models.Workflow
	if err := c.Bind(&wf); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid workflow payload")
	}
	wf.ID = id

	if err := h.store.UpdateWorkflow(c.Request().Context(), &wf); err != nil {
		return notFoundOr500(err, "workflow not found")
	}
	return c.JSON(http.StatusOK, wf)
}

// PatchWorkflow applies an RFC 7386 merge patch to a workflow
// PATCH /api/workflows/:id
func (h *WorkflowHandler) PatchWorkflow(c echo.Context) error {
	id, err := workflowID(c)
	if err != nil {
		return err
	}

	patch, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable patch body")
	}

	ctx := c.Request().Context()
	current, err := h.store.GetWorkflow(ctx, id)
	if err != nil {
		return notFoundOr500(err, "workflow not found")
	}

	original, err := json.Marshal(current)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	merged, err := jsonpatch.MergePatch(original, patch)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid merge patch")
	}

	var updated models.Workflow
	if err := json.Unmarshal(merged, &updated); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "patch produced an invalid workflow")
	}
	updated.ID = id

	if err := h.store.UpdateWorkflow(ctx, &updated); err != nil {
		return notFoundOr500(err, "workflow not found")
	}
	return c.JSON(http.StatusOK, updated)
}

// DeleteWorkflow removes a workflow and its executions
// DELETE /api/workflows/:id
func (h *WorkflowHandler) DeleteWorkflow(c echo.Context) error {
	id, err := workflowID(c)
	if err != nil {
		return err
	}

	if err := h.store.DeleteWorkflow(c.Request().Context(), id); err != nil {
		return notFoundOr500(err, "workflow not found")
	}
	return c.NoContent(http.StatusNoContent)
}

type executeRequest struct {
	TriggerData any `json:"triggerData,omitempty"`
}

// ExecuteWorkflow creates a pending execution and enqueues a run request
// POST /api/workflows/:id/execute
func (h *WorkflowHandler) ExecuteWorkflow(c echo.Context) error {
	id, err := workflowID(c)
	if err != nil {
		return err
	}

	var req executeRequest
	if err := c.Bind(&req); err != nil && !errors.Is(err, io.EOF) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	if _, err := h.store.GetWorkflow(ctx, id); err != nil {
		return notFoundOr500(err, "workflow not found")
	}

	exec := &models.Execution{
		ID:         uuid.New().String(),
		WorkflowID: id,
		Status:     models.ExecutionPending,
		StartedAt:  time.Now(),
	}
	if err := h.store.CreateExecution(ctx, exec); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if err := executor.Enqueue(ctx, h.queue, executor.RunRequest{
		ExecutionID: exec.ID,
		WorkflowID:  id,
		TriggerData: req.TriggerData,
	}); err != nil {
		// The row must not stay pending for a request that never ran
		h.failExecution(ctx, exec.ID, err.Error())
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	h.log.Info("execution enqueued", "execution_id", exec.ID, "workflow_id", id)
	return c.JSON(http.StatusCreated, map[string]any{"executionId": exec.ID})
}

func (h *WorkflowHandler) failExecution(ctx context.Context, executionID, message string) {
	status := models.ExecutionFailed
	now := time.Now()
	if err := h.store.UpdateExecution(ctx, executionID, models.ExecutionUpdate{
		Status:     &status,
		FinishedAt: &now,
		Error:      &message,
	}); err != nil {
		h.log.Error("failed to mark execution failed",
			"execution_id", executionID, "error", err)
	}
}

func workflowID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid workflow id")
	}
	return id, nil
}

func notFoundOr500(err error, message string) error {
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, message)
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
