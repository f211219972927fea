// internal/utils/retry_test.go
package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetry(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	calls := 0
	err := Retry(ctx, 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return boom
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = Retry(ctx, 3, time.Millisecond, func() error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)

	calls = 0
	err = Retry(ctx, 3, time.Millisecond, func() error {
		calls++
		return Permanent(boom)
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRetryStopsWhenContextIsDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, 5, time.Millisecond, func() error {
		calls++
		return errors.New("unavailable")
	})
	assert.Error(t, err)
	assert.LessOrEqual(t, calls, 1)
}
