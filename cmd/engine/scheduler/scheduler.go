package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/flowgrid/flowgrid/cmd/engine/condition"
	"github.com/flowgrid/flowgrid/cmd/engine/nodes"
	"github.com/flowgrid/flowgrid/common/logger"
	"github.com/flowgrid/flowgrid/common/models"
	"github.com/flowgrid/flowgrid/common/progress"
	"github.com/flowgrid/flowgrid/common/store"
)

// Scheduler runs one workflow execution at a time: validate, build the
// graph, then BFS with parent-completion gating. Nodes within an
// execution run sequentially; executions run concurrently in separate
// goroutines.
type Scheduler struct {
	registry   *nodes.Registry
	store      store.Store
	bus        *progress.Bus
	conditions *condition.Evaluator
	strict     bool
	log        *logger.Logger
}

// New creates a scheduler
func New(registry *nodes.Registry, st store.Store, bus *progress.Bus, strict bool, log *logger.Logger) *Scheduler {
	return &Scheduler{
		registry:   registry,
		store:      st,
		bus:        bus,
		conditions: condition.NewEvaluator(),
		strict:     strict,
		log:        log,
	}
}

// run is the per-execution mutable state
type run struct {
	wf          *models.Workflow
	executionID string
	graph       *graph
	context     map[string]any
	snapshot    *models.ExecutionProgress
	nodeIndex   map[string]int
}

// Execute drives a workflow to a terminal state. It never returns an
// error: every failure mode ends as a failed execution row plus a
// terminal progress snapshot.
func (s *Scheduler) Execute(ctx context.Context, wf *models.Workflow, executionID string, triggerData any) {
	log := s.log.WithExecutionID(executionID)

	r := &run{
		wf:          wf,
		executionID: executionID,
		context:     make(map[string]any),
		nodeIndex:   make(map[string]int, len(wf.Nodes)),
	}
	r.snapshot = &models.ExecutionProgress{
		ExecutionID: executionID,
		WorkflowID:  wf.ID,
		Status:      models.ExecutionPending,
		Nodes:       make([]models.NodeProgress, len(wf.Nodes)),
	}
	for i, node := range wf.Nodes {
		r.snapshot.Nodes[i] = models.NodeProgress{NodeID: node.ID, Status: models.NodePending}
		r.nodeIndex[node.ID] = i
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("scheduler panic", "panic", rec)
			s.fail(ctx, r, fmt.Sprintf("Unexpected error: %v", rec))
		}
	}()

	// Phase 1: static validation. All nodes stay pending.
	if err := validateWorkflow(wf); err != nil {
		log.Warn("workflow rejected", "error", err.Error())
		s.fail(ctx, r, err.Error())
		return
	}

	// Phase 2: graph construction
	g, err := buildGraph(wf, s.strict, log)
	if err != nil {
		s.fail(ctx, r, fmt.Sprintf("Validation error: %s", err))
		return
	}
	r.graph = g

	// Phase 3: seed trigger data into webhook start nodes
	starts := g.startNodes(wf)
	if triggerData != nil {
		for _, id := range starts {
			if g.nodeMap[id].Type == models.NodeTypeWebhook {
				r.context[id] = triggerData
			}
		}
	}

	r.snapshot.Status = models.ExecutionRunning
	s.persist(ctx, r, models.ExecutionUpdate{Status: statusPtr(models.ExecutionRunning)})
	s.emit(ctx, r)

	// Phase 4: BFS with parent-completion gating
	queue := append([]string(nil), starts...)
	visited := make(map[string]bool)

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			log.Warn("execution interrupted", "error", err)
			s.fail(ctx, r, fmt.Sprintf("Unexpected error: %v", err))
			return
		}

		currentID := queue[0]
		queue = queue[1:]
		if visited[currentID] {
			continue
		}
		current := g.nodeMap[currentID]

		s.setNodeRunning(r, currentID)
		s.emit(ctx, r)

		log.Info("executing node", "node_id", currentID, "node_type", current.Type)
		output, err := s.registry.Handle(ctx, *current, r.context)
		if err != nil {
			log.Warn("node failed", "node_id", currentID, "error", err.Error())
			s.setNodeError(r, currentID, err.Error())
			s.skipDescendants(r, currentID)
			s.fail(ctx, r, err.Error())
			return
		}

		r.context[currentID] = output
		s.setNodeSuccess(r, currentID, output)
		s.emit(ctx, r)
		visited[currentID] = true

		// Phase 4b: enqueue children whose parents are all complete,
		// pruning subtrees behind a false edge condition
		for _, edge := range g.edgesFrom[currentID] {
			if edge.Condition != "" {
				pass, condErr := s.conditions.Evaluate(edge.Condition, output, r.context)
				if condErr != nil {
					// The source handler succeeded; its status stays success.
					// The failure belongs to the edge and the execution.
					msg := fmt.Sprintf("condition on edge %s: %s", edge.ID, condErr)
					log.Warn("edge condition failed", "edge_id", edge.ID, "error", condErr.Error())
					s.skipDescendants(r, currentID)
					s.fail(ctx, r, msg)
					return
				}
				if !pass {
					log.Info("edge condition false, pruning subtree",
						"edge_id", edge.ID, "target", edge.Target)
					s.skipSubtree(r, edge.Target)
					continue
				}
			}

			if s.allParentsVisited(r, edge.Target, visited) {
				queue = append(queue, edge.Target)
			}
		}
	}

	// Phase 5: completion
	r.snapshot.Status = models.ExecutionCompleted
	now := time.Now()
	s.persist(ctx, r, models.ExecutionUpdate{
		Status:     statusPtr(models.ExecutionCompleted),
		FinishedAt: &now,
		Data:       r.context,
	})
	s.emit(ctx, r)
	log.Info("execution completed", "nodes", len(wf.Nodes))
}

// allParentsVisited reports whether every parent of id has completed.
// A node with several parents waits for the last of them.
func (s *Scheduler) allParentsVisited(r *run, id string, visited map[string]bool) bool {
	for _, parent := range r.graph.parents[id] {
		if !visited[parent] {
			return false
		}
	}
	return true
}

// skipDescendants marks everything reachable from id as skipped,
// without overwriting terminal node statuses.
func (s *Scheduler) skipDescendants(r *run, id string) {
	r.graph.descendants(id, func(descendant string) {
		s.setNodeSkipped(r, descendant)
	})
}

// skipSubtree marks id and its descendants skipped (condition pruning)
func (s *Scheduler) skipSubtree(r *run, id string) {
	s.setNodeSkipped(r, id)
	s.skipDescendants(r, id)
}

// fail drives the execution to the failed terminal state
func (s *Scheduler) fail(ctx context.Context, r *run, message string) {
	r.snapshot.Status = models.ExecutionFailed
	r.snapshot.Error = message

	now := time.Now()
	s.persist(ctx, r, models.ExecutionUpdate{
		Status:     statusPtr(models.ExecutionFailed),
		FinishedAt: &now,
		Data:       r.context,
		Error:      &message,
	})
	s.emit(ctx, r)
}

func (s *Scheduler) setNodeRunning(r *run, id string) {
	now := time.Now()
	node := &r.snapshot.Nodes[r.nodeIndex[id]]
	node.Status = models.NodeRunning
	node.StartedAt = &now
}

func (s *Scheduler) setNodeSuccess(r *run, id string, output any) {
	now := time.Now()
	node := &r.snapshot.Nodes[r.nodeIndex[id]]
	node.Status = models.NodeSuccess
	node.Output = output
	node.FinishedAt = &now
}

func (s *Scheduler) setNodeError(r *run, id string, message string) {
	now := time.Now()
	node := &r.snapshot.Nodes[r.nodeIndex[id]]
	node.Status = models.NodeError
	node.Error = message
	node.FinishedAt = &now
}

func (s *Scheduler) setNodeSkipped(r *run, id string) {
	node := &r.snapshot.Nodes[r.nodeIndex[id]]
	if node.Status != models.NodePending {
		// Never overwrite a terminal node status
		return
	}
	node.Status = models.NodeSkipped
}

// persist applies an execution row update. Store refusals are logged
// and swallowed: a failing store must not mask the execution outcome.
func (s *Scheduler) persist(ctx context.Context, r *run, update models.ExecutionUpdate) {
	if err := s.store.UpdateExecution(ctx, r.executionID, update); err != nil {
		s.log.Error("execution update failed",
			"execution_id", r.executionID,
			"error", err)
	}
}

func (s *Scheduler) emit(ctx context.Context, r *run) {
	s.bus.Emit(ctx, r.snapshot)
}

func statusPtr(status models.ExecutionStatus) *models.ExecutionStatus {
	return &status
}
