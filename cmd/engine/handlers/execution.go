package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/flowgrid/flowgrid/common/logger"
	"github.com/flowgrid/flowgrid/common/models"
	"github.com/flowgrid/flowgrid/common/progress"
	"github.com/flowgrid/flowgrid/common/store"
)

// ExecutionHandler handles execution reads and live progress streaming
type ExecutionHandler struct {
	store store.Store
	bus   *progress.Bus
	log   *logger.Logger
}

// NewExecutionHandler creates a new execution handler
func NewExecutionHandler(st store.Store, bus *progress.Bus, log *logger.Logger) *ExecutionHandler {
	return &ExecutionHandler{
		store: st,
		bus:   bus,
		log:   log,
	}
}

// GetExecution retrieves an execution by id
// GET /api/executions/:id
func (h *ExecutionHandler) GetExecution(c echo.Context) error {
	exec, err := h.store.GetExecution(c.Request().Context(), c.Param("id"))
	if err != nil {
		return notFoundOr500(err, "execution not found")
	}
	return c.JSON(http.StatusOK, exec)
}

// ListExecutions lists executions for a workflow, newest first
// GET /api/executions?workflowId=N&limit=N
func (h *ExecutionHandler) ListExecutions(c echo.Context) error {
	workflowID, err := strconv.ParseInt(c.QueryParam("workflowId"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "workflowId is required")
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
	}

	executions, err := h.store.ListExecutions(c.Request().Context(), workflowID, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, executions)
}

// StreamExecution streams progress snapshots for an execution as
// server-sent events. The subscription is registered before the initial
// state is replayed so no snapshot emitted in between is lost. The
// stream closes after the first terminal snapshot or when the client
// disconnects.
// GET /api/executions/:id/stream
func (h *ExecutionHandler) StreamExecution(c echo.Context) error {
	id := c.Param("id")
	ctx := c.Request().Context()

	sub := h.bus.Subscribe(id)
	defer h.bus.Unsubscribe(sub)

	exec, err := h.store.GetExecution(ctx, id)
	if err != nil {
		return notFoundOr500(err, "execution not found")
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	// Replay current state so late subscribers see where the run stands
	initial := snapshotFromExecution(exec)
	if err := writeEvent(resp, initial); err != nil {
		return nil
	}
	if exec.Status.IsTerminal() {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			h.log.Debug("progress stream client disconnected", "execution_id", id)
			return nil
		case snapshot, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if err := writeEvent(resp, snapshot); err != nil {
				return nil
			}
			if snapshot.Status.IsTerminal() {
				return nil
			}
		}
	}
}

// writeEvent writes one SSE frame and flushes it
func writeEvent(resp *echo.Response, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(resp, "data: %s\n\n", data); err != nil {
		return err
	}
	resp.Flush()
	return nil
}

// snapshotFromExecution reconstructs a progress snapshot from a stored
// execution row, for replay to subscribers that joined after emits
// stopped. Node-level detail is only available while the scheduler is
// live; the reconstructed snapshot carries status and outputs.
func snapshotFromExecution(exec *models.Execution) *models.ExecutionProgress {
	snapshot := &models.ExecutionProgress{
		ExecutionID: exec.ID,
		WorkflowID:  exec.WorkflowID,
		Status:      exec.Status,
	}
	if exec.Error != nil {
		snapshot.Error = *exec.Error
	}
	for nodeID, output := range exec.Data {
		snapshot.Nodes = append(snapshot.Nodes, models.NodeProgress{
			NodeID: nodeID,
			Status: models.NodeSuccess,
			Output: output,
		})
	}
	return snapshot
}
