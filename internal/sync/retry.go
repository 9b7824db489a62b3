package sync

import (
	"time"

	"caminhocerto/syncserver/internal/domain"
)

// State is the explicit lifecycle of a pending sale:
// queued → retry-scheduled → delivered | failed. Delivered and failed are
// terminal; the row is removed and only the audit record remains.
type State string

const (
	StateQueued         State = "queued"
	StateRetryScheduled State = "retry-scheduled"
	StateDelivered      State = "delivered"
	StateFailed         State = "failed"
)

// StateOf derives the persisted item's current state from its attempt
// counter. Terminal states never appear here because terminal items are
// deleted.
func StateOf(item domain.PendingSale) State {
	if item.Attempts == 0 {
		return StateQueued
	}
	return StateRetryScheduled
}

type StepKind int

const (
	// StepRetry reschedules the item with an incremented attempt counter.
	StepRetry StepKind = iota
	// StepFail drops the item terminally after the audit record is written.
	StepFail
)

type Step struct {
	Kind        StepKind
	Attempts    int
	NextRetryAt time.Time
}

// RetryPolicy decides what happens to a pending sale after a failed
// delivery attempt, independent of persistence so the transition logic is
// testable on its own.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseBackoff: 5 * time.Minute,
	}
}

// Advance computes the transition after one more failed attempt. The delay
// grows linearly with the attempt count (attempts × base), not
// exponentially.
func (p RetryPolicy) Advance(priorAttempts int, now time.Time) Step {
	attempts := priorAttempts + 1
	if attempts >= p.MaxAttempts {
		return Step{Kind: StepFail, Attempts: attempts}
	}
	return Step{
		Kind:        StepRetry,
		Attempts:    attempts,
		NextRetryAt: now.Add(time.Duration(attempts) * p.BaseBackoff),
	}
}
