package bookline

import (
	"fmt"
	"strings"
	"sync"
)

// Graph is a mutable builder for the workflow graph.
// Use NewGraph to create one, then chain AddNode, AddEdge, and SetEntry
// calls to define the workflow.
//
// Graph is NOT thread-safe during building. Construct it from a single
// goroutine, then call Compile() to create an immutable CompiledGraph that
// can be shared safely.
type Graph struct {
	mu               sync.RWMutex
	nodes            map[string]NodeFunc
	edges            map[string][]string
	conditionalEdges map[string]RouterFunc
	entryPoint       string
}

// NewGraph creates a new workflow graph builder.
func NewGraph() *Graph {
	return &Graph{
		nodes:            make(map[string]NodeFunc),
		edges:            make(map[string][]string),
		conditionalEdges: make(map[string]RouterFunc),
	}
}

// AddNode adds a named node to the graph.
// Returns the graph for method chaining.
//
// Panics if:
//   - id is empty
//   - id is the reserved word "END" or "__end__" (case-insensitive)
//   - id contains whitespace
//   - fn is nil
//   - id already exists in the graph
func (g *Graph) AddNode(id string, fn NodeFunc) *Graph {
	if id == "" {
		panic("bookline: node ID cannot be empty")
	}

	idLower := strings.ToLower(id)
	if idLower == "end" || idLower == "__end__" {
		panic("bookline: node ID cannot be reserved word 'END'")
	}

	if strings.ContainsAny(id, " \t\n\r") {
		panic("bookline: node ID cannot contain whitespace")
	}

	if fn == nil {
		panic("bookline: node function cannot be nil")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[id]; exists {
		panic(fmt.Sprintf("bookline: duplicate node ID: %s", id))
	}

	g.nodes[id] = fn
	return g
}

// AddEdge adds an unconditional edge from one node to another.
// The target can be a node ID or END.
// Returns the graph for method chaining.
//
// Edge validation happens at Compile() time, not here, so edges can be
// added in any order.
func (g *Graph) AddEdge(from, to string) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.edges[from] = append(g.edges[from], to)
	return g
}

// AddConditionalEdge adds a conditional edge where a RouterFunc determines
// the next node at runtime based on state.
// Returns the graph for method chaining.
//
// The router must return a valid node ID or END. A node can have either
// simple edges or a conditional edge, not both; if both are present the
// conditional edge wins.
func (g *Graph) AddConditionalEdge(from string, router RouterFunc) *Graph {
	if router == nil {
		panic("bookline: router function cannot be nil")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.conditionalEdges[from] = router
	return g
}

// SetEntry designates the entry point node.
// This must be called before Compile().
// Returns the graph for method chaining.
func (g *Graph) SetEntry(id string) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.entryPoint = id
	return g
}
