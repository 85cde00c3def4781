package bookline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bookline/bookline/pkg/bookline/checkpoint"
	"github.com/bookline/bookline/pkg/bookline/compensate"
	"github.com/bookline/bookline/pkg/bookline/infer"
	"github.com/bookline/bookline/pkg/bookline/observability"
	"github.com/bookline/bookline/pkg/bookline/repo"
)

// StepResult is what one conversation turn returns to the caller.
type StepResult struct {
	SessionID string `json:"session_id"`
	Stage     Stage  `json:"stage"`

	// Reply is the latest assistant message of this turn.
	Reply string `json:"reply"`

	// DisplayLog holds the transcript entries appended during this turn.
	DisplayLog []DisplayEntry `json:"display_log,omitempty"`

	// AvailableSlots is set when the turn ended awaiting a slot choice.
	AvailableSlots []repo.Slot `json:"available_slots,omitempty"`

	// Confirmation is set when the turn completed a booking or cancellation.
	Confirmation string `json:"confirmation,omitempty"`
}

// Engine drives the booking conversation: it loads the session checkpoint,
// runs one turn through the workflow graph, and persists the result. All
// collaborators are injected; the engine holds no global state.
//
// Independent sessions run concurrently. Turns of the same session are
// serialized by a per-session lock, so checkpoints are loaded-then-saved
// atomically per session id.
type Engine struct {
	repository  repo.Repository
	inferClient infer.Client
	checkpoints checkpoint.Store
	journal     compensate.Store
	logger      *slog.Logger
	metrics     observability.MetricsRecorder
	spans       observability.SpanManager
	tracing     bool

	graph *CompiledGraph

	mu       sync.Mutex
	sessions map[string]*sessionSlot
}

type sessionSlot struct {
	sync.Mutex
	sequence int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineLogger sets the engine logger. Defaults to slog.Default().
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithCompensationJournal wires a journal for failed best-effort side
// effects. Without one, failures are only logged.
func WithCompensationJournal(store compensate.Store) EngineOption {
	return func(e *Engine) {
		e.journal = store
	}
}

// WithEngineMetrics sets the metrics recorder. Defaults to no-op.
func WithEngineMetrics(m observability.MetricsRecorder) EngineOption {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithEngineTracing enables turn and node spans.
func WithEngineTracing(spans observability.SpanManager) EngineOption {
	return func(e *Engine) {
		if spans != nil {
			e.spans = spans
			e.tracing = true
		}
	}
}

// NewEngine creates a workflow engine over the given collaborators.
func NewEngine(repository repo.Repository, client infer.Client, checkpoints checkpoint.Store, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		repository:  repository,
		inferClient: client,
		checkpoints: checkpoints,
		logger:      slog.Default(),
		metrics:     observability.NoopMetrics{},
		spans:       observability.NoopSpanManager{},
		sessions:    make(map[string]*sessionSlot),
	}
	for _, opt := range opts {
		opt(e)
	}

	graph, err := buildGraph()
	if err != nil {
		return nil, err
	}
	e.graph = graph
	return e, nil
}

// buildGraph wires the workflow: gathering always runs first, the stage
// router hangs off it as a conditional edge, and matching and booking loop
// back so slot enumeration and final confirmations land in the same turn.
func buildGraph() (*CompiledGraph, error) {
	return NewGraph().
		AddNode(NodeGather, gatherNode).
		AddNode(NodeMatch, matchNode).
		AddNode(NodeBook, bookNode).
		AddConditionalEdge(NodeGather, routeNext).
		AddEdge(NodeMatch, NodeGather).
		AddEdge(NodeBook, NodeGather).
		SetEntry(NodeGather).
		Compile()
}

// routeNext adapts Route to the graph: a StopTurn outcome ends the turn,
// and so does routing back to the gathering node once it has already run.
func routeNext(_ Context, s State) string {
	switch next := Route(s.Stage, s.MissingFields); next {
	case StopTurn, NodeGather:
		return END
	default:
		return next
	}
}

// Step runs one conversation turn: load (or initialize) the session, feed
// it the user message, execute the graph until the turn ends, persist the
// checkpoint, and return the outward-facing result.
func (e *Engine) Step(ctx context.Context, sessionID, message string) (StepResult, error) {
	slot := e.sessionSlot(sessionID)
	slot.Lock()
	defer slot.Unlock()

	start := time.Now()
	observability.LogTurnStart(e.logger, sessionID, "")

	var tctx context.Context = ctx
	turnSpan := func(err error) {}
	if e.tracing {
		newCtx, span := e.spans.StartTurnSpan(ctx, sessionID, "")
		tctx = newCtx
		turnSpan = func(err error) { e.spans.EndSpanWithError(span, err) }
	}

	state, err := e.loadState(tctx, sessionID, slot)
	if err != nil {
		e.metrics.RecordTurn(tctx, false, time.Since(start))
		turnSpan(err)
		return StepResult{}, err
	}

	state = state.WithUserMessage(message)
	transcriptMark := len(state.DisplayLog) - 1

	execCtx := NewContext(tctx,
		WithLogger(e.logger),
		WithRepo(e.repository),
		WithInfer(e.inferClient),
		WithJournal(e.journal),
		WithSessionID(sessionID),
	)

	var nodeCount int
	runOpts := []RunOption{
		WithRunLogger(e.logger),
		WithRunMetrics(e.metrics),
		func(c *runConfig) { c.nodeCounter = &nodeCount },
	}
	if e.tracing {
		runOpts = append(runOpts, WithRunTracing(e.spans))
	}

	final, runErr := e.graph.Run(execCtx, state, runOpts...)
	if runErr != nil {
		observability.LogTurnError(e.logger, sessionID, runErr,
			float64(time.Since(start).Milliseconds()), "")
		e.metrics.RecordTurn(tctx, false, time.Since(start))
		turnSpan(runErr)
		return StepResult{}, runErr
	}

	if err := e.saveState(tctx, final, slot); err != nil {
		e.metrics.RecordTurn(tctx, false, time.Since(start))
		turnSpan(err)
		return StepResult{}, err
	}

	duration := time.Since(start)
	observability.LogTurnComplete(e.logger, sessionID, string(final.Stage),
		float64(duration.Milliseconds()), nodeCount)
	e.metrics.RecordTurn(tctx, true, duration)
	if final.Stage == StageBookingComplete && final.AppointmentID != 0 {
		e.metrics.RecordBooking(tctx, true)
	}
	turnSpan(nil)

	return buildResult(final, transcriptMark), nil
}

// RequestReschedule flags a session with a booked appointment for
// rescheduling. The next Step drives the reschedule flow.
func (e *Engine) RequestReschedule(ctx context.Context, sessionID string) error {
	return e.setFlowStage(ctx, sessionID, StageRescheduling)
}

// RequestCancel flags a session with a booked appointment for cancellation.
// The next Step drives the cancellation flow.
func (e *Engine) RequestCancel(ctx context.Context, sessionID string) error {
	return e.setFlowStage(ctx, sessionID, StageCancelling)
}

func (e *Engine) setFlowStage(ctx context.Context, sessionID string, stage Stage) error {
	slot := e.sessionSlot(sessionID)
	slot.Lock()
	defer slot.Unlock()

	state, err := e.loadState(ctx, sessionID, slot)
	if err != nil {
		return err
	}
	if state.Stage == StageInitialRequest && state.AppointmentID == 0 {
		return ErrSessionNotFound
	}
	if state.AppointmentID == 0 {
		return ErrNoAppointment
	}

	state.Stage = stage
	state.MissingFields = nil
	return e.saveState(ctx, state, slot)
}

// loadState fetches the session state, or initializes a fresh one when no
// checkpoint exists yet.
func (e *Engine) loadState(ctx context.Context, sessionID string, slot *sessionSlot) (State, error) {
	data, err := e.checkpoints.Load(ctx, sessionID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return NewState(sessionID), nil
	}
	if err != nil {
		return State{}, &CheckpointError{SessionID: sessionID, Op: "load", Err: err}
	}

	cp, err := checkpoint.Unmarshal(data)
	if err != nil {
		return State{}, &CheckpointError{SessionID: sessionID, Op: "load", Err: err}
	}

	var state State
	if err := json.Unmarshal(cp.State, &state); err != nil {
		return State{}, &CheckpointError{SessionID: sessionID, Op: "load", Err: err}
	}
	slot.sequence = cp.Sequence
	return state, nil
}

// saveState persists the session state as the next checkpoint.
func (e *Engine) saveState(ctx context.Context, state State, slot *sessionSlot) error {
	payload, err := json.Marshal(state)
	if err != nil {
		observability.LogCheckpointError(e.logger, state.SessionID, "serialize", err)
		return &CheckpointError{SessionID: state.SessionID, Op: "serialize", Err: err}
	}

	slot.sequence++
	cp := checkpoint.New(state.SessionID, string(state.Stage), slot.sequence, payload)
	data, err := cp.Marshal()
	if err != nil {
		return &CheckpointError{SessionID: state.SessionID, Op: "serialize", Err: err}
	}

	if err := e.checkpoints.Save(ctx, state.SessionID, data); err != nil {
		observability.LogCheckpointError(e.logger, state.SessionID, "save", err)
		return &CheckpointError{SessionID: state.SessionID, Op: "save", Err: err}
	}

	observability.LogCheckpoint(e.logger, state.SessionID, len(data))
	e.metrics.RecordCheckpoint(ctx, state.SessionID, int64(len(data)))
	return nil
}

// sessionSlot returns the lock-and-sequence slot for a session, creating it
// on first use.
func (e *Engine) sessionSlot(sessionID string) *sessionSlot {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[sessionID]
	if !ok {
		s = &sessionSlot{}
		e.sessions[sessionID] = s
	}
	return s
}

func buildResult(final State, transcriptMark int) StepResult {
	res := StepResult{
		SessionID: final.SessionID,
		Stage:     final.Stage,
		Reply:     final.LastReply(),
	}

	if transcriptMark >= 0 && transcriptMark <= len(final.DisplayLog) {
		tail := final.DisplayLog[transcriptMark:]
		res.DisplayLog = make([]DisplayEntry, len(tail))
		copy(res.DisplayLog, tail)
	}

	if final.Stage == StageConfirmingSlots {
		res.AvailableSlots = append([]repo.Slot(nil), final.AvailableSlots...)
	}
	if final.Stage == StageBookingComplete || final.Stage == StageCancellationComplete {
		res.Confirmation = final.ConfirmationText
	}
	return res
}
