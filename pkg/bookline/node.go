package bookline

// END is the terminal node identifier.
// Use this as an edge target to indicate the turn is over.
const END = "__end__"

// NodeFunc is the signature for all workflow nodes. Nodes receive the
// execution context and the current session state, and return the updated
// state and any error.
//
// State is passed by value. Nodes build and return an updated copy, never
// relying on pointer mutation.
type NodeFunc func(ctx Context, state State) (State, error)

// RouterFunc determines the next node based on state. It is used for
// conditional edges where the next node depends on runtime state.
//
// The router should return a valid node ID or END. Returning an empty
// string or an unknown node ID causes a runtime error.
type RouterFunc func(ctx Context, state State) string
