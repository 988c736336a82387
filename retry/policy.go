// Package retry wraps persistence flushes against transient store failures
// with exponential backoff. Classification is store-dialect-specific and
// pluggable; conflicts and cancellations are never retried.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-unitofwork/core"
)

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = time.Second
)

// Backoff computes the delay before retry number attempt (1-based).
type Backoff interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff doubles the base delay per attempt: Base 2^attempt.
// A Max of zero leaves the delay uncapped.
type ExponentialBackoff struct {
	Base time.Duration
	Max  time.Duration
}

func (b ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := b.Base
	if base <= 0 {
		base = defaultBaseDelay
	}
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if b.Max > 0 && delay >= b.Max {
			return b.Max
		}
	}
	return delay
}

// Policy retries an operation on transient failures. The zero MaxRetries
// disables retrying; a negative value restores the default budget of 3.
type Policy struct {
	MaxRetries int
	Backoff    Backoff
	Classifier Classifier
	Logger     core.Logger

	wait func(ctx context.Context, delay time.Duration) error
}

func NewPolicy(classifier Classifier) *Policy {
	return &Policy{
		MaxRetries: defaultMaxRetries,
		Backoff:    ExponentialBackoff{Base: defaultBaseDelay},
		Classifier: classifier,
	}
}

// Run executes fn, retrying on errors the classifier marks transient. The
// whole operation is retried as a unit; the caller's error surfaces
// unchanged on the first non-transient failure or once the budget is spent.
// Cancellation during a backoff wait aborts the loop with the context error.
func (p *Policy) Run(ctx context.Context, operation string, fn func(context.Context) error) error {
	if fn == nil {
		return fmt.Errorf("retry: operation is required")
	}
	if p == nil {
		return fn(ctx)
	}

	maxRetries := p.MaxRetries
	if maxRetries < 0 {
		maxRetries = defaultMaxRetries
	}
	attempts := maxRetries + 1

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == attempts || !p.transient(err) {
			return err
		}

		delay := p.nextDelay(attempt)
		p.logRetry(ctx, operation, attempt, delay, err)
		if waitErr := p.waitFor(ctx, delay); waitErr != nil {
			return waitErr
		}
	}
	return lastErr
}

func (p *Policy) transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Category == goerrors.CategoryConflict {
		return false
	}
	if p.Classifier == nil {
		return false
	}
	return p.Classifier.Transient(err)
}

func (p *Policy) nextDelay(attempt int) time.Duration {
	backoff := p.Backoff
	if backoff == nil {
		backoff = ExponentialBackoff{Base: defaultBaseDelay}
	}
	return backoff.NextDelay(attempt)
}

func (p *Policy) waitFor(ctx context.Context, delay time.Duration) error {
	if p.wait != nil {
		return p.wait(ctx, delay)
	}
	return waitWithContext(ctx, delay)
}

func (p *Policy) logRetry(ctx context.Context, operation string, attempt int, delay time.Duration, err error) {
	if p.Logger == nil {
		return
	}
	logger := p.Logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	logger.Warn("transient failure, retrying",
		"operation", operation,
		"retry_count", attempt,
		"delay_ms", delay.Milliseconds(),
		"error", err.Error(),
	)
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
