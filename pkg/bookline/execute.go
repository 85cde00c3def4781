package bookline

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/bookline/bookline/pkg/bookline/observability"
	"go.opentelemetry.io/otel/trace"
)

// Run executes the graph with the given session state.
// Returns the final state and any error encountered.
//
// On success, returns the state after the last node executed before END.
// On error, returns the state at the point of failure.
//
// Execution flow:
//  1. Start at the entry point node
//  2. Check for cancellation
//  3. Execute the current node
//  4. Determine the next node (via simple or conditional edge)
//  5. Repeat until END is reached or an error occurs
func (cg *CompiledGraph) Run(ctx Context, state State, opts ...RunOption) (State, error) {
	if ctx == nil {
		return state, ErrNilContext
	}

	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	current := cg.entryPoint
	iterations := 0

	var tracingCtx context.Context = ctx

	for current != END {
		iterations++
		if iterations > cfg.maxIterations {
			return state, &MaxIterationsError{
				Max:        cfg.maxIterations,
				LastNodeID: current,
				State:      state,
			}
		}

		// Check for cancellation before executing the node
		select {
		case <-ctx.Done():
			return state, &CancellationError{
				NodeID: current,
				State:  state,
				Cause:  ctx.Err(),
			}
		default:
		}

		observability.LogNodeStart(cfg.logger, current)

		nodeTracingCtx := tracingCtx
		var nodeSpan trace.Span
		if cfg.tracing {
			nodeTracingCtx, nodeSpan = cfg.spans.StartNodeSpan(tracingCtx, current)
		}

		nodeStart := time.Now()

		var nodeErr error
		state, nodeErr = cg.executeNode(ctx, current, state)

		nodeDuration := time.Since(nodeStart)
		cfg.metrics.RecordNodeExecution(nodeTracingCtx, current, nodeDuration, nodeErr)

		if cfg.tracing {
			cfg.spans.EndSpanWithError(nodeSpan, nodeErr)
		}

		if nodeErr != nil {
			observability.LogNodeError(cfg.logger, current, nodeErr)
			return state, nodeErr
		}
		observability.LogNodeComplete(cfg.logger, current, float64(nodeDuration.Milliseconds()))
		if cfg.nodeCounter != nil {
			*cfg.nodeCounter++
		}

		next, err := cg.nextNode(ctx, state, current)
		if err != nil {
			return state, err
		}

		current = next
	}

	return state, nil
}

// executeNode executes a single node with panic recovery.
// Returns the new state and any error (including wrapped panics).
func (cg *CompiledGraph) executeNode(ctx Context, nodeID string, state State) (result State, err error) {
	fn, exists := cg.getNode(nodeID)
	if !exists {
		// Shouldn't happen if compilation was successful
		return state, &NodeError{
			NodeID: nodeID,
			Op:     "lookup",
			Err:    fmt.Errorf("node not found: %s", nodeID),
		}
	}

	// Derive a node-specific context with enriched logger
	nodeCtx := ctx
	if ec, ok := ctx.(*executionContext); ok {
		nodeCtx = ec.withNodeID(nodeID)
	}

	defer func() {
		if r := recover(); r != nil {
			result = state
			err = &PanicError{
				NodeID: nodeID,
				Value:  r,
				Stack:  string(debug.Stack()),
			}
		}
	}()

	result, err = fn(nodeCtx, state)
	if err != nil {
		return result, &NodeError{
			NodeID: nodeID,
			Op:     "execute",
			Err:    err,
		}
	}

	return result, nil
}

// nextNode determines the next node to execute.
// Checks conditional edges first, then simple edges.
func (cg *CompiledGraph) nextNode(ctx Context, state State, current string) (string, error) {
	if router, exists := cg.getRouter(current); exists {
		routerCtx := ctx
		if ec, ok := ctx.(*executionContext); ok {
			routerCtx = ec.withNodeID(current)
		}

		next := router(routerCtx, state)

		if next == "" {
			return "", &RouterError{
				FromNode: current,
				Returned: next,
				Err:      ErrInvalidRouterResult,
			}
		}

		if next != END {
			if _, exists := cg.getNode(next); !exists {
				return "", &RouterError{
					FromNode: current,
					Returned: next,
					Err:      ErrRouterTargetNotFound,
				}
			}
		}

		return next, nil
	}

	edges := cg.getEdges(current)
	if len(edges) == 0 {
		// Shouldn't happen if compilation was successful
		return "", &NodeError{
			NodeID: current,
			Op:     "routing",
			Err:    fmt.Errorf("no outgoing edge from node %s", current),
		}
	}

	// Multiple simple edges from one node aren't supported; take the first.
	return edges[0], nil
}
