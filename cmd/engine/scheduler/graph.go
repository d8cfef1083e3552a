package scheduler

import (
	"fmt"

	"github.com/flowgrid/flowgrid/common/logger"
	"github.com/flowgrid/flowgrid/common/models"
)

// graph is the adjacency view of a workflow built once per execution
type graph struct {
	adj      map[string][]string
	parents  map[string][]string
	nodeMap  map[string]*models.Node
	inDegree map[string]int

	// edgesFrom keeps the full edge records per source so conditional
	// edges can be evaluated during traversal
	edgesFrom map[string][]models.Edge
}

// buildGraph constructs the adjacency structures. Edges referencing
// unknown node ids are dropped with a warning; strict mode rejects the
// workflow instead.
func buildGraph(wf *models.Workflow, strict bool, log *logger.Logger) (*graph, error) {
	g := &graph{
		adj:       make(map[string][]string),
		parents:   make(map[string][]string),
		nodeMap:   make(map[string]*models.Node),
		inDegree:  make(map[string]int),
		edgesFrom: make(map[string][]models.Edge),
	}

	for i := range wf.Nodes {
		node := &wf.Nodes[i]
		if _, dup := g.nodeMap[node.ID]; dup {
			return nil, fmt.Errorf("duplicate node id: %s", node.ID)
		}
		g.nodeMap[node.ID] = node
		g.inDegree[node.ID] = 0
	}

	for _, edge := range wf.Edges {
		_, sourceOK := g.nodeMap[edge.Source]
		_, targetOK := g.nodeMap[edge.Target]
		if !sourceOK || !targetOK {
			if strict {
				return nil, fmt.Errorf("edge %s references unknown node (%s -> %s)",
					edge.ID, edge.Source, edge.Target)
			}
			log.Warn("ignoring edge with unknown node reference",
				"edge_id", edge.ID,
				"source", edge.Source,
				"target", edge.Target)
			continue
		}

		g.adj[edge.Source] = append(g.adj[edge.Source], edge.Target)
		g.parents[edge.Target] = append(g.parents[edge.Target], edge.Source)
		g.edgesFrom[edge.Source] = append(g.edgesFrom[edge.Source], edge)
		g.inDegree[edge.Target]++
	}

	return g, nil
}

// startNodes returns the ids of nodes with no incoming edges, in the
// workflow's node enumeration order.
func (g *graph) startNodes(wf *models.Workflow) []string {
	starts := make([]string, 0)
	for _, node := range wf.Nodes {
		if g.inDegree[node.ID] == 0 {
			starts = append(starts, node.ID)
		}
	}
	return starts
}

// descendants walks every node reachable from id through adj,
// excluding id itself, calling visit once per node.
func (g *graph) descendants(id string, visit func(string)) {
	seen := map[string]bool{id: true}
	stack := append([]string(nil), g.adj[id]...)
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[current] {
			continue
		}
		seen[current] = true
		visit(current)
		stack = append(stack, g.adj[current]...)
	}
}
