// Package compensate implements a two-phase compensation journal for booking
// side effects. When a best-effort repository action fails mid-flow (cancel an
// old appointment, release a slot, void a half-committed booking), the booking
// node appends a pending entry instead of silently dropping the failure; a
// Runner retries pending entries until they succeed or exhaust their attempts,
// so partial failure is retried and reported distinctly from full success.
package compensate

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the repository action an entry must replay.
type Kind string

// Journal entry kinds.
const (
	// KindCancelAppointment marks an appointment cancelled.
	KindCancelAppointment Kind = "cancel_appointment"

	// KindReleaseSlot returns a slot to available.
	KindReleaseSlot Kind = "release_slot"

	// KindVoidAppointment cancels an appointment whose slot claim failed,
	// reconciling the half-committed booking.
	KindVoidAppointment Kind = "void_appointment"
)

// Status is the lifecycle state of a journal entry.
type Status string

// Journal entry statuses.
const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Entry is one compensating action awaiting execution.
type Entry struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Kind      Kind      `json:"kind"`
	TargetID  int64     `json:"target_id"`
	Status    Status    `json:"status"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntry creates a pending journal entry.
func NewEntry(sessionID string, kind Kind, targetID int64) *Entry {
	now := time.Now().UTC()
	return &Entry{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Kind:      kind,
		TargetID:  targetID,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Store persists journal entries.
// Implementations must be safe for concurrent use.
type Store interface {
	// Append persists a new entry.
	Append(ctx context.Context, e *Entry) error

	// Pending returns all pending entries, oldest first.
	Pending(ctx context.Context) ([]*Entry, error)

	// Update persists changes to an existing entry.
	Update(ctx context.Context, e *Entry) error

	// Close releases any resources.
	Close() error
}

// Sentinel errors for journal operations.
var (
	// ErrEntryNotFound indicates the entry does not exist.
	ErrEntryNotFound = errors.New("journal entry not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("journal store closed")
)

// MemoryStore is an in-memory Store for tests and examples.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	order   []string
	closed  bool
}

// NewMemoryStore creates an empty in-memory journal store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*Entry),
	}
}

// Append implements Store.
func (m *MemoryStore) Append(_ context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	clone := *e
	m.entries[e.ID] = &clone
	m.order = append(m.order, e.ID)
	return nil
}

// Pending implements Store.
func (m *MemoryStore) Pending(_ context.Context) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	var out []*Entry
	for _, id := range m.order {
		e := m.entries[id]
		if e.Status != StatusPending {
			continue
		}
		clone := *e
		out = append(out, &clone)
	}
	return out, nil
}

// Update implements Store.
func (m *MemoryStore) Update(_ context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	if _, ok := m.entries[e.ID]; !ok {
		return ErrEntryNotFound
	}
	clone := *e
	m.entries[e.ID] = &clone
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
