package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

func alwaysTransient() Classifier {
	return ClassifierFunc(func(error) bool { return true })
}

func neverTransient() Classifier {
	return ClassifierFunc(func(error) bool { return false })
}

func TestExponentialBackoff_DoublesPerAttempt(t *testing.T) {
	backoff := ExponentialBackoff{Base: time.Second}
	expected := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i, want := range expected {
		if got := backoff.NextDelay(i + 1); got != want {
			t.Fatalf("expected delay %s for retry %d, got %s", want, i+1, got)
		}
	}
}

func TestExponentialBackoff_RespectsCap(t *testing.T) {
	backoff := ExponentialBackoff{Base: time.Second, Max: 5 * time.Second}
	if got := backoff.NextDelay(1); got != 2*time.Second {
		t.Fatalf("expected uncapped first delay, got %s", got)
	}
	if got := backoff.NextDelay(3); got != 5*time.Second {
		t.Fatalf("expected capped delay, got %s", got)
	}
}

func TestPolicyRun_RetriesTransientWithExponentialDelays(t *testing.T) {
	policy := NewPolicy(alwaysTransient())
	var delays []time.Duration
	policy.wait = func(_ context.Context, delay time.Duration) error {
		delays = append(delays, delay)
		return nil
	}

	boom := errors.New("connection reset by peer")
	attempts := 0
	err := policy.Run(context.Background(), "save_changes", func(context.Context) error {
		attempts++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected original error after exhaustion, got %v", err)
	}
	if attempts != 4 {
		t.Fatalf("expected 4 attempts, got %d", attempts)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("expected %d backoff waits, got %v", len(want), delays)
	}
	for i, delay := range delays {
		if delay != want[i] {
			t.Fatalf("expected delay %s before retry %d, got %s", want[i], i+1, delay)
		}
	}
}

func TestPolicyRun_NonTransientFailsImmediately(t *testing.T) {
	policy := NewPolicy(neverTransient())
	policy.wait = func(context.Context, time.Duration) error {
		t.Fatalf("expected no backoff wait")
		return nil
	}

	boom := errors.New("constraint violated")
	attempts := 0
	err := policy.Run(context.Background(), "save_changes", func(context.Context) error {
		attempts++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected original error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected single attempt, got %d", attempts)
	}
}

func TestPolicyRun_RecoversMidBudget(t *testing.T) {
	policy := NewPolicy(alwaysTransient())
	var delays []time.Duration
	policy.wait = func(_ context.Context, delay time.Duration) error {
		delays = append(delays, delay)
		return nil
	}

	attempts := 0
	err := policy.Run(context.Background(), "save_changes", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("timeout")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if len(delays) != 2 || delays[0] != 2*time.Second || delays[1] != 4*time.Second {
		t.Fatalf("expected delays [2s 4s], got %v", delays)
	}
}

func TestPolicyRun_ConflictIsNeverRetried(t *testing.T) {
	policy := NewPolicy(alwaysTransient())
	policy.wait = func(context.Context, time.Duration) error {
		t.Fatalf("expected no backoff wait for conflict")
		return nil
	}

	conflict := goerrors.New("concurrency conflict on User[42]", goerrors.CategoryConflict)
	attempts := 0
	err := policy.Run(context.Background(), "save_changes", func(context.Context) error {
		attempts++
		return conflict
	})
	if attempts != 1 {
		t.Fatalf("expected single attempt, got %d", attempts)
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.Category != goerrors.CategoryConflict {
		t.Fatalf("expected conflict error passthrough, got %v", err)
	}
}

func TestPolicyRun_CancellationAbortsBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	policy := NewPolicy(alwaysTransient())
	policy.wait = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	err := policy.Run(ctx, "save_changes", func(context.Context) error {
		return errors.New("timeout")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}

func TestPolicyRun_CancelledContextShortCircuits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	policy := NewPolicy(alwaysTransient())
	attempts := 0
	err := policy.Run(ctx, "save_changes", func(context.Context) error {
		attempts++
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
	if attempts != 0 {
		t.Fatalf("expected no attempts, got %d", attempts)
	}
}

func TestPolicyRun_ZeroRetryBudgetRunsOnce(t *testing.T) {
	policy := NewPolicy(alwaysTransient())
	policy.MaxRetries = 0
	policy.wait = func(context.Context, time.Duration) error {
		t.Fatalf("expected no backoff wait")
		return nil
	}

	attempts := 0
	err := policy.Run(context.Background(), "save_changes", func(context.Context) error {
		attempts++
		return errors.New("timeout")
	})
	if err == nil {
		t.Fatalf("expected failure with empty budget")
	}
	if attempts != 1 {
		t.Fatalf("expected single attempt, got %d", attempts)
	}
}
