package recon

import (
	"context"
	"time"
)

// withRetry runs fn, retrying transient failures with exponential backoff per
// the tenant policy. Validation and configuration errors are returned
// immediately; retrying them blindly cannot succeed. The last transient error
// is returned once attempts are exhausted.
func withRetry(ctx context.Context, policy TolerancePolicy, fn func(ctx context.Context) error) error {
	backoff := policy.RetryBackoff
	var err error

	for attempt := 1; attempt <= policy.RetryAttempts; attempt++ {
		err = fn(ctx)
		if err == nil || !IsTransient(err) {
			return err
		}
		if attempt == policy.RetryAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > policy.RetryBackoffMax {
			backoff = policy.RetryBackoffMax
		}
	}

	return err
}
