package bookline

import (
	"errors"
	"fmt"
	"log/slog"
)

// CompiledGraph is an immutable, executable workflow graph created by
// Compile(). It is thread-safe and can serve concurrent Run() calls; the
// structure cannot be modified after compilation.
type CompiledGraph struct {
	nodes            map[string]NodeFunc
	edges            map[string][]string
	conditionalEdges map[string]RouterFunc
	entryPoint       string
}

// Compile validates the graph and creates an executable CompiledGraph.
// Returns an error if validation fails. Multiple errors are joined.
//
// Validation checks (in order):
//  1. Entry point must be set
//  2. Entry point must reference an existing node
//  3. All edge sources must reference existing nodes
//  4. All edge targets must reference existing nodes or END
//  5. All nodes must have a path to END
//
// Unreachable nodes are logged as warnings but do not fail compilation.
func (g *Graph) Compile() (*CompiledGraph, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var errs []error

	if g.entryPoint == "" {
		errs = append(errs, ErrNoEntryPoint)
	} else if _, exists := g.nodes[g.entryPoint]; !exists {
		errs = append(errs, fmt.Errorf("%w: %s", ErrEntryNotFound, g.entryPoint))
	}

	for from, targets := range g.edges {
		if from != END {
			if _, exists := g.nodes[from]; !exists {
				if _, hasConditional := g.conditionalEdges[from]; !hasConditional {
					errs = append(errs, fmt.Errorf("%w: edge source '%s' does not exist", ErrNodeNotFound, from))
				}
			}
		}

		for _, to := range targets {
			if to != END {
				if _, exists := g.nodes[to]; !exists {
					errs = append(errs, fmt.Errorf("%w: edge target '%s' does not exist", ErrNodeNotFound, to))
				}
			}
		}
	}

	for from := range g.conditionalEdges {
		if _, exists := g.nodes[from]; !exists {
			errs = append(errs, fmt.Errorf("%w: conditional edge source '%s' does not exist", ErrNodeNotFound, from))
		}
	}

	if g.entryPoint != "" {
		if _, exists := g.nodes[g.entryPoint]; exists {
			if !g.hasPathToEnd() {
				errs = append(errs, ErrNoPathToEnd)
			}
		}
	}

	g.warnUnreachableNodes()

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return g.buildCompiledGraph(), nil
}

// hasPathToEnd checks if there's a path from entry to END using reverse
// reachability. Nodes with conditional edges are assumed to potentially
// reach END, since the router might return it.
func (g *Graph) hasPathToEnd() bool {
	canReachEnd := make(map[string]bool)
	canReachEnd[END] = true

	changed := true
	for changed {
		changed = false

		for from, targets := range g.edges {
			if canReachEnd[from] {
				continue
			}
			for _, to := range targets {
				if canReachEnd[to] {
					canReachEnd[from] = true
					changed = true
					break
				}
			}
		}

		for from := range g.conditionalEdges {
			if !canReachEnd[from] {
				canReachEnd[from] = true
				changed = true
			}
		}
	}

	return canReachEnd[g.entryPoint]
}

// warnUnreachableNodes logs warnings for nodes not reachable from entry.
func (g *Graph) warnUnreachableNodes() {
	if g.entryPoint == "" {
		return
	}

	reachable := g.findReachableNodes()

	for nodeID := range g.nodes {
		if !reachable[nodeID] {
			slog.Warn("node is unreachable from entry", "node_id", nodeID)
		}
	}
}

// findReachableNodes returns the set of nodes reachable from the entry point.
// A conditional edge's targets depend on runtime state, so every node is
// considered reachable from a node with one.
func (g *Graph) findReachableNodes() map[string]bool {
	reachable := make(map[string]bool)

	if g.entryPoint == "" {
		return reachable
	}

	queue := []string{g.entryPoint}
	reachable[g.entryPoint] = true

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, target := range g.edges[current] {
			if target != END && !reachable[target] {
				reachable[target] = true
				queue = append(queue, target)
			}
		}

		if _, hasConditional := g.conditionalEdges[current]; hasConditional {
			for nodeID := range g.nodes {
				if !reachable[nodeID] {
					reachable[nodeID] = true
					queue = append(queue, nodeID)
				}
			}
		}
	}

	return reachable
}

// buildCompiledGraph creates the immutable CompiledGraph from the builder state.
func (g *Graph) buildCompiledGraph() *CompiledGraph {
	nodes := make(map[string]NodeFunc, len(g.nodes))
	for id, fn := range g.nodes {
		nodes[id] = fn
	}

	edges := make(map[string][]string, len(g.edges))
	for from, targets := range g.edges {
		edges[from] = make([]string, len(targets))
		copy(edges[from], targets)
	}

	conditionalEdges := make(map[string]RouterFunc, len(g.conditionalEdges))
	for from, router := range g.conditionalEdges {
		conditionalEdges[from] = router
	}

	return &CompiledGraph{
		nodes:            nodes,
		edges:            edges,
		conditionalEdges: conditionalEdges,
		entryPoint:       g.entryPoint,
	}
}

// EntryPoint returns the entry node ID.
func (cg *CompiledGraph) EntryPoint() string {
	return cg.entryPoint
}

// NodeIDs returns all node identifiers in the graph.
// The order is not guaranteed.
func (cg *CompiledGraph) NodeIDs() []string {
	ids := make([]string, 0, len(cg.nodes))
	for id := range cg.nodes {
		ids = append(ids, id)
	}
	return ids
}

// HasNode checks if a node exists in the graph.
func (cg *CompiledGraph) HasNode(id string) bool {
	_, exists := cg.nodes[id]
	return exists
}

// IsConditional returns true if the node has a conditional edge.
func (cg *CompiledGraph) IsConditional(id string) bool {
	_, exists := cg.conditionalEdges[id]
	return exists
}

// getNode returns the node function for the given ID.
func (cg *CompiledGraph) getNode(id string) (NodeFunc, bool) {
	fn, exists := cg.nodes[id]
	return fn, exists
}

// getRouter returns the router function for the given node.
func (cg *CompiledGraph) getRouter(id string) (RouterFunc, bool) {
	router, exists := cg.conditionalEdges[id]
	return router, exists
}

// getEdges returns the simple edge targets for the given node.
func (cg *CompiledGraph) getEdges(id string) []string {
	return cg.edges[id]
}
