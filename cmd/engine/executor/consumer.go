package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/flowgrid/flowgrid/cmd/engine/scheduler"
	"github.com/flowgrid/flowgrid/common/logger"
	"github.com/flowgrid/flowgrid/common/models"
	"github.com/flowgrid/flowgrid/common/queue"
	"github.com/flowgrid/flowgrid/common/store"
)

// RunRequestTopic carries run requests from the CRUD surface to the
// execution consumer.
const RunRequestTopic = "workflow.run.requests"

// RunRequest is the queue payload for one execution
type RunRequest struct {
	ExecutionID string `json:"executionId"`
	WorkflowID  int64  `json:"workflowId"`
	TriggerData any    `json:"triggerData,omitempty"`
}

// Consumer picks run requests off the queue and drives the scheduler.
// Each execution runs in its own goroutine so concurrent runs do not
// serialize behind one another.
type Consumer struct {
	queue     queue.Queue
	store     store.Store
	scheduler *scheduler.Scheduler
	log       *logger.Logger
}

// NewConsumer creates a run-request consumer
func NewConsumer(q queue.Queue, st store.Store, sched *scheduler.Scheduler, log *logger.Logger) *Consumer {
	return &Consumer{
		queue:     q,
		store:     st,
		scheduler: sched,
		log:       log,
	}
}

// Start subscribes to the run-request topic until ctx ends
func (c *Consumer) Start(ctx context.Context) error {
	return c.queue.Subscribe(ctx, RunRequestTopic, c.handle)
}

func (c *Consumer) handle(ctx context.Context, key string, value []byte) error {
	var req RunRequest
	if err := json.Unmarshal(value, &req); err != nil {
		return fmt.Errorf("decode run request: %w", err)
	}

	wf, err := c.store.GetWorkflow(ctx, req.WorkflowID)
	if err != nil {
		c.log.Error("run request for missing workflow",
			"workflow_id", req.WorkflowID,
			"execution_id", req.ExecutionID,
			"error", err)
		c.failExecution(ctx, req.ExecutionID, fmt.Sprintf("workflow %d not found", req.WorkflowID))
		return err
	}

	c.log.Info("starting execution",
		"execution_id", req.ExecutionID,
		"workflow_id", req.WorkflowID)

	go c.scheduler.Execute(ctx, wf, req.ExecutionID, req.TriggerData)
	return nil
}

// failExecution drives an execution whose run request cannot be served
// to the failed terminal state
func (c *Consumer) failExecution(ctx context.Context, executionID, message string) {
	status := models.ExecutionFailed
	now := time.Now()
	if err := c.store.UpdateExecution(ctx, executionID, models.ExecutionUpdate{
		Status:     &status,
		FinishedAt: &now,
		Error:      &message,
	}); err != nil {
		c.log.Error("failed to mark execution failed",
			"execution_id", executionID, "error", err)
	}
}

// Enqueue publishes a run request
func Enqueue(ctx context.Context, q queue.Queue, req RunRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode run request: %w", err)
	}
	return q.Publish(ctx, RunRequestTopic, req.ExecutionID, payload)
}
