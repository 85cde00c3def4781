package infer

import (
	"context"
	"errors"
	"sync"
)

// ErrScriptExhausted is returned by a Script whose queue for the called
// operation is empty. Nodes treat it like any other transient inference
// failure, which makes an exhausted script a convenient way to exercise the
// degraded paths.
var ErrScriptExhausted = errors.New("infer: script exhausted")

// Script is a canned Client for tests and examples. Responses are consumed
// in FIFO order per operation.
type Script struct {
	mu        sync.Mutex
	extracts  []Fields
	replies   []string
	decisions []Decision
}

// NewScript creates an empty scripted client.
func NewScript() *Script {
	return &Script{}
}

// QueueExtract appends a canned extraction result.
func (s *Script) QueueExtract(f Fields) *Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extracts = append(s.extracts, f)
	return s
}

// QueueReply appends a canned generation result.
func (s *Script) QueueReply(text string) *Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, text)
	return s
}

// QueueDecision appends a canned tool decision.
func (s *Script) QueueDecision(d Decision) *Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions = append(s.decisions, d)
	return s
}

// Extract implements Client.
func (s *Script) Extract(_ context.Context, _ ExtractRequest) (Fields, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.extracts) == 0 {
		return Fields{}, ErrScriptExhausted
	}
	f := s.extracts[0]
	s.extracts = s.extracts[1:]
	return f.normalize(), nil
}

// Generate implements Client.
func (s *Script) Generate(_ context.Context, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.replies) == 0 {
		return "", ErrScriptExhausted
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r, nil
}

// DecideTool implements Client.
func (s *Script) DecideTool(_ context.Context, _ ToolRequest) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.decisions) == 0 {
		return Decision{}, ErrScriptExhausted
	}
	d := s.decisions[0]
	s.decisions = s.decisions[1:]
	return d, nil
}
