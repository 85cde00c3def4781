// Package checkpoint persists session state between conversation turns.
// The store is a key-value mapping from session id to the latest state
// snapshot; everything beyond that contract is opaque to callers.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Version is the current checkpoint format version.
// Increment when making breaking changes to checkpoint structure.
const Version = 1

// Checkpoint is the persisted snapshot of one session.
type Checkpoint struct {
	// Metadata
	Version   int       `json:"version"`
	SessionID string    `json:"session_id"`
	Stage     string    `json:"stage"`
	Sequence  int       `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`

	// Session state
	State json.RawMessage `json:"state"`
}

// Marshal serializes a checkpoint to JSON.
func (c *Checkpoint) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// Unmarshal deserializes a checkpoint from JSON.
func Unmarshal(data []byte) (*Checkpoint, error) {
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// New creates a checkpoint for a session. State must already be
// JSON-serialized.
func New(sessionID, stage string, sequence int, state []byte) *Checkpoint {
	return &Checkpoint{
		Version:   Version,
		SessionID: sessionID,
		Stage:     stage,
		Sequence:  sequence,
		Timestamp: time.Now().UTC(),
		State:     state,
	}
}

// Store persists session checkpoints. One checkpoint per session id; Save
// overwrites. Implementations must be safe for concurrent use, but callers
// own load-then-save atomicity per session id.
type Store interface {
	// Save stores the checkpoint for a session, replacing any previous one.
	Save(ctx context.Context, sessionID string, data []byte) error

	// Load retrieves the checkpoint for a session.
	// Returns ErrNotFound if the session has none.
	Load(ctx context.Context, sessionID string) ([]byte, error)

	// Delete removes a session's checkpoint.
	// Returns nil if the session has none.
	Delete(ctx context.Context, sessionID string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Sentinel errors for checkpoint operations.
var (
	// ErrNotFound indicates a checkpoint doesn't exist.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("checkpoint store closed")
)
