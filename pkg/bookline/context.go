package bookline

import (
	"context"
	"log/slog"

	"github.com/bookline/bookline/pkg/bookline/compensate"
	"github.com/bookline/bookline/pkg/bookline/infer"
	"github.com/bookline/bookline/pkg/bookline/repo"
)

// Context provides execution context to nodes. It extends context.Context
// with the services a node needs and per-execution metadata.
//
// Context is immutable after creation. The executor derives a context for
// each node with the node ID set and the logger enriched.
type Context interface {
	context.Context

	// Logger returns the configured logger, enriched with session and
	// node context. Never returns nil; defaults to slog.Default().
	Logger() *slog.Logger

	// Repo returns the booking repository, or nil if not configured.
	// Nodes should check for nil before using.
	Repo() repo.Repository

	// Infer returns the language inference client, or nil if not
	// configured. Nodes should check for nil before using.
	Infer() infer.Client

	// Journal returns the compensation journal, or nil if not configured.
	Journal() compensate.Store

	// SessionID returns the session this execution belongs to.
	SessionID() string

	// NodeID returns the node currently executing.
	// Empty string before execution starts.
	NodeID() string
}

// executionContext is the internal implementation of Context.
type executionContext struct {
	context.Context

	logger      *slog.Logger
	repository  repo.Repository
	inferClient infer.Client
	journal     compensate.Store
	sessionID   string
	nodeID      string
}

func (c *executionContext) Logger() *slog.Logger      { return c.logger }
func (c *executionContext) Repo() repo.Repository     { return c.repository }
func (c *executionContext) Infer() infer.Client       { return c.inferClient }
func (c *executionContext) Journal() compensate.Store { return c.journal }
func (c *executionContext) SessionID() string         { return c.sessionID }
func (c *executionContext) NodeID() string            { return c.nodeID }

// ContextOption configures a Context.
type ContextOption func(*executionContext)

// WithLogger sets the logger for the context.
// The logger is enriched with session_id and node_id during execution.
func WithLogger(logger *slog.Logger) ContextOption {
	return func(c *executionContext) {
		c.logger = logger
	}
}

// WithRepo sets the booking repository for the context.
func WithRepo(r repo.Repository) ContextOption {
	return func(c *executionContext) {
		c.repository = r
	}
}

// WithInfer sets the language inference client for the context.
func WithInfer(client infer.Client) ContextOption {
	return func(c *executionContext) {
		c.inferClient = client
	}
}

// WithJournal sets the compensation journal for the context.
func WithJournal(store compensate.Store) ContextOption {
	return func(c *executionContext) {
		c.journal = store
	}
}

// WithSessionID sets the session identifier for the context.
func WithSessionID(id string) ContextOption {
	return func(c *executionContext) {
		c.sessionID = id
	}
}

// NewContext creates an execution context from a standard context.
// The returned Context wraps the provided context.Context and adds the
// workflow services and metadata.
func NewContext(ctx context.Context, opts ...ContextOption) Context {
	ec := &executionContext{
		Context: ctx,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(ec)
	}

	return ec
}

// withNodeID returns a new context with the given node ID set.
// Used internally by the executor to enrich the context per-node.
func (c *executionContext) withNodeID(nodeID string) *executionContext {
	return &executionContext{
		Context:     c.Context,
		logger:      c.logger.With("session_id", c.sessionID, "node_id", nodeID),
		repository:  c.repository,
		inferClient: c.inferClient,
		journal:     c.journal,
		sessionID:   c.sessionID,
		nodeID:      nodeID,
	}
}
