package retry

import (
	"context"
	"time"
)

// Policy bounds the retry loop. Delay for retry n (0-based) is
// Base * 2^n. Sleep is injectable for deterministic tests; nil means a
// context-aware timer sleep.
type Policy struct {
	MaxRetries int
	Base       time.Duration
	Sleep      func(ctx context.Context, d time.Duration) error
}

// Interactive is the user-facing policy: a generous base keeps retry
// notifications readable while the browser session stays open.
var Interactive = Policy{MaxRetries: 3, Base: 2 * time.Second}

// Client is the server-side API-client policy with a tighter latency budget.
var Client = Policy{MaxRetries: 3, Base: 500 * time.Millisecond}

// Classifier decides whether an error is transient. The taxonomy in this
// package is the single source of truth; the executor only consumes it.
type Classifier func(error) Class

// OnRetry observes an upcoming retry. It must not affect control flow; it
// exists for user-facing progress messages ("attempt 2/3, retrying in 4s").
type OnRetry func(attempt, maxAttempts int, delay time.Duration, err error)

// Do runs op, retrying transient failures with exponential backoff until the
// ceiling is reached. The op is invoked at most MaxRetries+1 times; on
// exhaustion the original error propagates unchanged. A non-transient error
// propagates after the first invocation.
func Do[T any](ctx context.Context, p Policy, classify Classifier, onRetry OnRetry, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if classify == nil {
		classify = Classify
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	maxAttempts := p.MaxRetries + 1
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !classify(err).Transient() || attempt == maxAttempts-1 {
			break
		}

		delay := p.Base << uint(attempt)
		if onRetry != nil {
			onRetry(attempt+1, maxAttempts, delay, err)
		}
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return zero, sleepErr
		}
	}

	return zero, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
