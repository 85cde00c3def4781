package compensate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bookline/bookline/pkg/bookline/repo"
)

// DefaultMaxAttempts is how many times an entry is retried before it is
// marked failed and left for operator attention.
const DefaultMaxAttempts = 3

// Runner replays pending journal entries against the repository.
type Runner struct {
	store       Store
	repo        repo.Repository
	logger      *slog.Logger
	maxAttempts int
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the runner's logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// WithMaxAttempts sets the per-entry retry limit.
func WithMaxAttempts(n int) RunnerOption {
	return func(r *Runner) { r.maxAttempts = n }
}

// NewRunner creates a journal runner.
func NewRunner(store Store, repository repo.Repository, opts ...RunnerOption) *Runner {
	r := &Runner{
		store:       store,
		repo:        repository,
		logger:      slog.Default(),
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Flush attempts every pending entry once. Entries that succeed are marked
// done; entries that fail keep their pending status until the attempt limit
// is reached, then flip to failed. Returns the first store error; individual
// entry failures are recorded on the entries, not returned.
func (r *Runner) Flush(ctx context.Context) error {
	pending, err := r.store.Pending(ctx)
	if err != nil {
		return err
	}

	for _, e := range pending {
		execErr := r.apply(ctx, e)

		e.Attempts++
		e.UpdatedAt = time.Now().UTC()
		if execErr != nil {
			e.LastError = execErr.Error()
			if e.Attempts >= r.maxAttempts {
				e.Status = StatusFailed
			}
			r.logger.Error("compensation attempt failed",
				"entry_id", e.ID,
				"session_id", e.SessionID,
				"kind", e.Kind,
				"target_id", e.TargetID,
				"attempts", e.Attempts,
				"error", execErr,
			)
		} else {
			e.Status = StatusDone
			e.LastError = ""
			r.logger.Info("compensation applied",
				"entry_id", e.ID,
				"session_id", e.SessionID,
				"kind", e.Kind,
				"target_id", e.TargetID,
			)
		}

		if err := r.store.Update(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// Run flushes on the given interval until the context is done.
func (r *Runner) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Flush(ctx); err != nil {
				r.logger.Error("journal flush failed", "error", err)
			}
		}
	}
}

func (r *Runner) apply(ctx context.Context, e *Entry) error {
	switch e.Kind {
	case KindCancelAppointment, KindVoidAppointment:
		ok, err := r.repo.UpdateAppointmentStatus(ctx, e.TargetID, repo.AppointmentCancelled)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("appointment %d not found", e.TargetID)
		}
		return nil
	case KindReleaseSlot:
		ok, err := r.repo.UpdateSlotStatus(ctx, e.TargetID, repo.SlotAvailable)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("slot %d not found", e.TargetID)
		}
		return nil
	default:
		return fmt.Errorf("unknown entry kind %q", e.Kind)
	}
}
