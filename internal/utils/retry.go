// internal/utils/retry.go
package utils

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retry runs op up to attempts times with a fixed delay between attempts.
// Errors wrapped with Permanent stop the loop immediately.
func Retry(ctx context.Context, attempts int, delay time.Duration, op func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(attempts-1)),
		ctx,
	)
	return backoff.Retry(op, policy)
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
