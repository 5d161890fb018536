package llm

import (
	"context"
	"log"
	"math"
	"time"
)

// Caller retries a remote operation with exponential backoff. It is
// backend-agnostic: the same instance serves chat completions and embedding
// requests alike. Retry state lives only for the duration of one Invoke.
type Caller struct {
	// MaxAttempts bounds the total number of attempts, first one included.
	MaxAttempts int

	// BackoffBase is the base of the exponential backoff: attempt n sleeps
	// BackoffBase^(n+2) seconds before attempt n+1.
	BackoffBase float64

	// Classify maps an operation error to a FaultKind.
	Classify Classifier

	// Warn receives the one-time rate-limit warning. Defaults to log output.
	Warn func(msg string)

	// Sleep suspends between attempts. Defaults to a context-aware sleep.
	// Overridable for tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewCaller returns a Caller with the default policy: 10 attempts, base-2
// exponential backoff.
func NewCaller(classify Classifier) *Caller {
	return &Caller{
		MaxAttempts: 10,
		BackoffBase: 2,
		Classify:    classify,
	}
}

// Invoke runs op, retrying rate-limited and transient faults with backoff.
// Permanent and unknown faults fail immediately; exhausting MaxAttempts
// re-raises the last fault. Both terminal paths return *TerminalError.
func Invoke[T any](ctx context.Context, c *Caller, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	classify := c.Classify
	if classify == nil {
		classify = func(error) FaultKind { return FaultUnknown }
	}
	warn := c.Warn
	if warn == nil {
		warn = func(msg string) { log.Printf("[LLM] %s", msg) }
	}
	sleep := c.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	maxAttempts := c.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	warned := false
	var lastErr error
	var lastKind FaultKind

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		lastKind = classify(err)

		switch lastKind {
		case FaultRateLimited:
			if !warned {
				warn("Reached the backend rate limit. Check that your API plan " +
					"supports this request volume; backing off and retrying.")
				warned = true
			}
		case FaultTransient:
			// retried below
		default:
			// Permanent and unknown faults are not retryable.
			return zero, &TerminalError{Op: op, Kind: lastKind, Attempts: attempt, Err: err}
		}

		if attempt == maxAttempts {
			break
		}

		backoff := time.Duration(math.Pow(c.BackoffBase, float64(attempt+2)) * float64(time.Second))
		log.Printf("[LLM] %s attempt %d/%d failed (%s), waiting %s", op, attempt, maxAttempts, lastKind, backoff)
		if err := sleep(ctx, backoff); err != nil {
			return zero, &TerminalError{Op: op, Kind: lastKind, Attempts: attempt, Err: err}
		}
	}

	return zero, &TerminalError{Op: op, Kind: lastKind, Attempts: maxAttempts, Err: lastErr}
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
