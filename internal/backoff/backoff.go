// Package backoff drives a retryable attempt function with exponential
// delay, classifying each failure as transient or terminal via a
// caller-supplied predicate.
package backoff

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sevenDatabase/bucketinit/internal/clock"
	"github.com/sevenDatabase/bucketinit/internal/storeapi"
)

const (
	initialDelay = 10 * time.Millisecond
	maxDelay     = 5 * time.Second
)

// AttemptFn is the operation the Runner retries. A nil error means success.
type AttemptFn func(ctx context.Context) error

// IsTransientFn classifies an attempt's error.
type IsTransientFn func(err error) bool

// AttemptRecorder receives a count of one attempt per phase. Implemented by
// internal/observability.Collector; kept as a narrow interface here so this
// package does not depend on the metrics package.
type AttemptRecorder interface {
	IncAttempt(phase string)
}

// Runner repeats AttemptFn with exponential backoff until it succeeds,
// returns a terminal error, is canceled, or exhausts maxAttempts. A single
// Runner manages at most one in-flight attempt: within a Run call attempt
// k+1 starts only after attempt k has returned, and concurrent Run calls on
// the same Runner are serialized.
type Runner struct {
	Clock   clock.Clock
	Metrics AttemptRecorder

	mu sync.Mutex
}

// New returns a Runner backed by the real wall clock.
func New() *Runner {
	return &Runner{Clock: clock.RealClock{}}
}

// maxAttemptsUnbounded signals "no cap" to Run.
const maxAttemptsUnbounded = 0

// Run executes attemptFn, retrying on transient errors per isTransient.
// maxAttempts <= 0 means unbounded. phaseName is used only for logging and
// for the error returned when attempts are exhausted.
func (r *Runner) Run(ctx context.Context, phaseName string, attemptFn AttemptFn, isTransient IsTransientFn, maxAttempts int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delay := initialDelay
	attempt := 0
	for {
		attempt++
		runID := uuid.New().String()
		select {
		case <-ctx.Done():
			return &storeapi.CanceledError{Phase: phaseName}
		default:
		}

		if r.Metrics != nil {
			r.Metrics.IncAttempt(phaseName)
		}

		err := attemptFn(ctx)
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return err
		}

		slog.Warn("backoff attempt failed, will retry",
			slog.String("phase", phaseName),
			slog.String("attempt_id", runID),
			slog.Int("attempt", attempt),
			slog.Any("error", err),
			slog.Duration("next_delay", delay),
		)

		if maxAttempts > maxAttemptsUnbounded && attempt >= maxAttempts {
			return &storeapi.MaxAttemptsReachedError{Phase: phaseName}
		}

		if err := r.Clock.Sleep(ctx, delay); err != nil {
			return &storeapi.CanceledError{Phase: phaseName}
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}
