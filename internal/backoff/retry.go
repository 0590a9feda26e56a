package backoff

import (
	"context"
	"errors"
)

// ErrMaxAttemptsExhausted is returned when all retry attempts have failed.
var ErrMaxAttemptsExhausted = errors.New("max retry attempts exhausted")

// Retry executes fn up to maxAttempts times, sleeping between attempts
// according to the policy. fn receives the zero-based attempt number.
// Context cancellation is checked before each attempt and during sleeps.
// Returns nil as soon as fn succeeds; after exhaustion, returns the last
// error joined with ErrMaxAttemptsExhausted.
func Retry(ctx context.Context, policy Policy, maxAttempts int, fn func(attempt int) error) error {
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}

		if attempt < maxAttempts-1 {
			if err := Sleep(ctx, policy, attempt); err != nil {
				return err
			}
		}
	}

	return errors.Join(ErrMaxAttemptsExhausted, lastErr)
}
