// Package infer defines the language inference contract used by the workflow
// nodes: structured field extraction, free-text generation, and the bounded
// tool-call protocol. Implementations wrap a concrete model provider; nodes
// only ever see the Client interface.
package infer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Profile selects which extraction schema is sent to the model.
type Profile string

// Extraction profiles. Full is used while gathering service information and
// carries the service catalog so the model can map the request onto a known
// service; Reduced nulls the service fields and only extracts date, time,
// name, and contact.
const (
	ProfileFull    Profile = "full"
	ProfileReduced Profile = "reduced"
)

// ExtractRequest asks for structured booking fields from one user message.
type ExtractRequest struct {
	Message string
	Profile Profile

	// Services is the catalog of valid service names. Only consulted by
	// the full profile.
	Services []string

	// Today anchors relative dates ("tomorrow") in YYYY-MM-DD form.
	Today string
}

// Fields is the structured result of an extraction. Absent values are empty
// strings; callers must treat empty as "not extracted" and never clear an
// already-known value with it.
type Fields struct {
	ServiceType   string `json:"service_type"`
	PreferredDate string `json:"preferred_date"`
	PreferredTime string `json:"preferred_time"`
	SeekerName    string `json:"name"`
	SeekerContact string `json:"contact"`
}

// normalize maps the literal "null" strings some models emit onto absence.
func (f Fields) normalize() Fields {
	clean := func(s string) string {
		s = strings.TrimSpace(s)
		if strings.EqualFold(s, "null") {
			return ""
		}
		return s
	}
	f.ServiceType = clean(f.ServiceType)
	f.PreferredDate = clean(f.PreferredDate)
	f.PreferredTime = clean(f.PreferredTime)
	f.SeekerName = clean(f.SeekerName)
	f.SeekerContact = clean(f.SeekerContact)
	return f
}

// ToolSpec describes one callable tool offered to the model.
type ToolSpec struct {
	Name        string
	Description string

	// Parameters is a JSON Schema object describing the arguments.
	Parameters map[string]any
}

// ToolRequest asks the model to either answer directly or request a tool
// invocation.
type ToolRequest struct {
	Prompt string
	Tools  []ToolSpec
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	Name      string
	Arguments json.RawMessage
}

// Decision is the two-outcome result of DecideTool. Exactly one of Reply and
// Call is meaningful: Call non-nil means the model requested a tool
// invocation, otherwise Reply holds its direct answer.
type Decision struct {
	Reply string
	Call  *ToolCall
}

// IsToolCall reports whether the model requested a tool invocation.
func (d Decision) IsToolCall() bool { return d.Call != nil }

// Client is the language inference contract consumed by the workflow nodes.
// All calls block until the model responds or the context is done. Callers
// must treat any error as a transient failure and degrade rather than abort
// the conversation turn.
type Client interface {
	// Extract pulls structured booking fields out of a user message.
	Extract(ctx context.Context, req ExtractRequest) (Fields, error)

	// Generate produces free text from a prompt.
	Generate(ctx context.Context, prompt string) (string, error)

	// DecideTool presents a prompt plus tool specs and returns the model's
	// choice. Callers must handle both outcomes; the model may decline to
	// call any tool.
	DecideTool(ctx context.Context, req ToolRequest) (Decision, error)
}

// Error wraps a failure from an inference call.
type Error struct {
	Op        string
	Err       error
	Retryable bool
}

// NewError creates an inference error for the given operation.
func NewError(op string, err error, retryable bool) *Error {
	return &Error{Op: op, Err: err, Retryable: retryable}
}

func (e *Error) Error() string {
	return fmt.Sprintf("infer %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
