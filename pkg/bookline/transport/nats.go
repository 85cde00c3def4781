// Package transport exposes the workflow engine over NATS request/reply.
// Three subjects are served under a configurable prefix: <prefix>.turn for
// conversation turns, and <prefix>.reschedule / <prefix>.cancel for flow
// triggers. Payloads are JSON both ways.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/bookline/bookline/pkg/bookline"
	"github.com/nats-io/nats.go"
)

// TurnRequest is the payload of a turn subject message.
type TurnRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// FlowRequest is the payload of a reschedule or cancel subject message.
type FlowRequest struct {
	SessionID string `json:"session_id"`
}

// TurnResponse wraps the engine's step result for the wire. Error is set
// instead of Result when the turn failed.
type TurnResponse struct {
	Result *bookline.StepResult `json:"result,omitempty"`
	Error  string               `json:"error,omitempty"`
}

// FlowResponse acknowledges a reschedule or cancel request.
type FlowResponse struct {
	SessionID string `json:"session_id"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
}

// Options configures the NATS transport.
type Options struct {
	// URL of the NATS server.
	URL string

	// ServiceName is the connection name, visible in server monitoring.
	ServiceName string

	// SubjectPrefix prefixes all served subjects. Defaults to "bookline".
	SubjectPrefix string

	// TurnTimeout bounds one turn end to end. Defaults to 60s.
	TurnTimeout time.Duration

	// Logger for transport events. Defaults to slog.Default().
	Logger *slog.Logger
}

// NATSTransport serves the engine over NATS.
type NATSTransport struct {
	conn    *nats.Conn
	engine  *bookline.Engine
	prefix  string
	timeout time.Duration
	logger  *slog.Logger
	subs    []*nats.Subscription
}

// NewNATSTransport connects to the NATS server and prepares the transport.
// Call Start to begin serving.
func NewNATSTransport(engine *bookline.Engine, opts Options) (*NATSTransport, error) {
	if opts.SubjectPrefix == "" {
		opts.SubjectPrefix = "bookline"
	}
	if opts.TurnTimeout <= 0 {
		opts.TurnTimeout = 60 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	conn, err := nats.Connect(opts.URL,
		nats.Name(opts.ServiceName),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	opts.Logger.Info("connected to nats", "url", opts.URL)

	return &NATSTransport{
		conn:    conn,
		engine:  engine,
		prefix:  opts.SubjectPrefix,
		timeout: opts.TurnTimeout,
		logger:  opts.Logger,
	}, nil
}

// Start subscribes to the turn, reschedule, and cancel subjects.
func (t *NATSTransport) Start() error {
	subjects := map[string]nats.MsgHandler{
		t.prefix + ".turn":       t.handleTurn,
		t.prefix + ".reschedule": t.flowHandler(t.engine.RequestReschedule),
		t.prefix + ".cancel":     t.flowHandler(t.engine.RequestCancel),
	}

	for subject, handler := range subjects {
		sub, err := t.conn.Subscribe(subject, handler)
		if err != nil {
			return fmt.Errorf("subscribe to %s: %w", subject, err)
		}
		t.subs = append(t.subs, sub)
		t.logger.Info("subscribed", "subject", subject)
	}
	return nil
}

func (t *NATSTransport) handleTurn(msg *nats.Msg) {
	var req TurnRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		t.respond(msg, TurnResponse{Error: "invalid request payload"})
		return
	}
	if req.SessionID == "" {
		t.respond(msg, TurnResponse{Error: "session_id is required"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	result, err := t.engine.Step(ctx, req.SessionID, req.Message)
	if err != nil {
		t.logger.Error("turn failed", "session_id", req.SessionID, "error", err.Error())
		t.respond(msg, TurnResponse{Error: "could not process the turn"})
		return
	}

	t.respond(msg, TurnResponse{Result: &result})
}

func (t *NATSTransport) flowHandler(trigger func(context.Context, string) error) nats.MsgHandler {
	return func(msg *nats.Msg) {
		var req FlowRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			t.respond(msg, FlowResponse{OK: false, Error: "invalid request payload"})
			return
		}
		if req.SessionID == "" {
			t.respond(msg, FlowResponse{OK: false, Error: "session_id is required"})
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()

		if err := trigger(ctx, req.SessionID); err != nil {
			t.respond(msg, FlowResponse{SessionID: req.SessionID, OK: false, Error: err.Error()})
			return
		}
		t.respond(msg, FlowResponse{SessionID: req.SessionID, OK: true})
	}
}

func (t *NATSTransport) respond(msg *nats.Msg, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		t.logger.Error("marshal response failed", "error", err.Error())
		return
	}
	if err := msg.Respond(data); err != nil {
		t.logger.Error("send response failed", "error", err.Error())
	}
}

// Close drains the subscriptions and closes the connection.
func (t *NATSTransport) Close() error {
	for _, sub := range t.subs {
		if err := sub.Drain(); err != nil {
			t.logger.Warn("drain subscription failed", "error", err.Error())
		}
	}
	if t.conn != nil {
		t.conn.Close()
		t.logger.Info("nats connection closed")
	}
	return nil
}
