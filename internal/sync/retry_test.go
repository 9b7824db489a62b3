package sync

import (
	"testing"
	"time"

	"caminhocerto/syncserver/internal/domain"
)

func TestRetryPolicyAdvance_LinearBackoff(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, BaseBackoff: 5 * time.Minute}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		prior     int
		wantDelay time.Duration
	}{
		{0, 5 * time.Minute},
		{1, 10 * time.Minute},
		{2, 15 * time.Minute},
		{3, 20 * time.Minute},
	}
	for _, tc := range cases {
		step := policy.Advance(tc.prior, now)
		if step.Kind != StepRetry {
			t.Fatalf("prior=%d: expected retry, got %v", tc.prior, step.Kind)
		}
		if step.Attempts != tc.prior+1 {
			t.Fatalf("prior=%d: expected attempts %d, got %d", tc.prior, tc.prior+1, step.Attempts)
		}
		if got := step.NextRetryAt.Sub(now); got != tc.wantDelay {
			t.Fatalf("prior=%d: expected delay %v, got %v", tc.prior, tc.wantDelay, got)
		}
	}
}

func TestRetryPolicyAdvance_TerminalOnMaxAttempts(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, BaseBackoff: 5 * time.Minute}
	now := time.Now().UTC()

	step := policy.Advance(4, now)
	if step.Kind != StepFail {
		t.Fatalf("expected terminal failure on fifth attempt, got %v", step.Kind)
	}
	if step.Attempts != 5 {
		t.Fatalf("expected attempts 5, got %d", step.Attempts)
	}
}

func TestRetryPolicyAdvance_AttemptsMonotonic(t *testing.T) {
	policy := DefaultRetryPolicy()
	now := time.Now().UTC()

	prior := 0
	for i := 0; i < policy.MaxAttempts; i++ {
		step := policy.Advance(prior, now)
		if step.Attempts <= prior {
			t.Fatalf("attempts must only grow: prior=%d got=%d", prior, step.Attempts)
		}
		prior = step.Attempts
	}
}

func TestStateOf(t *testing.T) {
	if got := StateOf(domain.PendingSale{Attempts: 0}); got != StateQueued {
		t.Fatalf("expected queued, got %v", got)
	}
	if got := StateOf(domain.PendingSale{Attempts: 2}); got != StateRetryScheduled {
		t.Fatalf("expected retry-scheduled, got %v", got)
	}
}
