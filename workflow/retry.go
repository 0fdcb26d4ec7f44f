package workflow

import (
	"context"
	"fmt"
	"time"
)

// BackoffStrategy selects how the delay between attempts grows.
type BackoffStrategy string

const (
	// BackoffConstant waits Delay between every attempt. The zero value means constant.
	BackoffConstant BackoffStrategy = "constant"
	// BackoffLinear waits Delay, 2*Delay, 3*Delay, ...
	BackoffLinear BackoffStrategy = "linear"
	// BackoffExponential waits Delay, 2*Delay, 4*Delay, ...
	BackoffExponential BackoffStrategy = "exponential"
)

// ParseBackoff parses a backoff strategy name. The empty string means constant.
func ParseBackoff(s string) (BackoffStrategy, error) {
	b := BackoffStrategy(s)
	if err := b.validate(); err != nil {
		return "", err
	}
	if b == "" {
		b = BackoffConstant
	}
	return b, nil
}

func (b BackoffStrategy) validate() error {
	switch b {
	case "", BackoffConstant, BackoffLinear, BackoffExponential:
		return nil
	default:
		return fmt.Errorf("unknown backoff strategy %q", string(b))
	}
}

// RetryPolicy bounds how often a failing action is attempted.
type RetryPolicy struct {
	// Count is the number of retries after the first attempt.
	Count int
	// Delay is the base wait between attempts.
	Delay time.Duration
	// Backoff controls delay growth; empty means constant.
	Backoff BackoffStrategy
	// MaxDelay caps the computed delay when > 0.
	MaxDelay time.Duration
}

// Attempts returns the total number of permitted attempts.
func (p RetryPolicy) Attempts() int {
	return p.Count + 1
}

// DelayFor returns the wait before the given retry (1 for the first retry).
func (p RetryPolicy) DelayFor(retry int) time.Duration {
	if retry < 1 || p.Delay <= 0 {
		return 0
	}

	delay := p.Delay
	switch p.Backoff {
	case BackoffLinear:
		delay = p.Delay * time.Duration(retry)
	case BackoffExponential:
		for i := 1; i < retry; i++ {
			delay *= 2
			if p.MaxDelay > 0 && delay >= p.MaxDelay {
				break
			}
			if delay <= 0 {
				// overflow
				delay = p.MaxDelay
				break
			}
		}
	}

	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// retrier runs a single task's action under its retry policy.
type retrier struct {
	task Task

	// onAttempt is called before each attempt with the attempt number (1-based).
	onAttempt func(attempt int)
	// onRetry is called when an attempt failed and another will follow.
	onRetry func(attempt int, err error, delay time.Duration)
}

// run invokes the action until it succeeds, the attempts are exhausted, the
// error is permanent or ctx is done. It returns the output, the number of
// attempts made and the last error.
func (r *retrier) run(ctx context.Context, params map[string]any) (any, int, error) {
	policy := r.task.Retry
	var lastErr error

	for attempt := 1; attempt <= policy.Attempts(); attempt++ {
		if r.onAttempt != nil {
			r.onAttempt(attempt)
		}

		output, err := r.invoke(ctx, params)
		if err == nil {
			return output, attempt, nil
		}
		lastErr = err

		if IsPermanent(err) || ctx.Err() != nil || attempt == policy.Attempts() {
			return nil, attempt, lastErr
		}

		delay := policy.DelayFor(attempt)
		if r.onRetry != nil {
			r.onRetry(attempt, err, delay)
		}
		if err := sleep(ctx, delay); err != nil {
			return nil, attempt, lastErr
		}
	}

	return nil, policy.Attempts(), lastErr
}

// invoke makes one attempt, applying the per-attempt timeout and turning a
// panic into an error.
func (r *retrier) invoke(ctx context.Context, params map[string]any) (output any, err error) {
	if r.task.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.task.Timeout)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			output = nil
			err = fmt.Errorf("action panicked: %v", p)
		}
	}()

	return r.task.Action.Invoke(ctx, params)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
