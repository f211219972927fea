// internal/events/events_test.go
package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/idlabstudio/idlab-backend/internal/models"
)

func TestBusDeliversInOrderToMatchingTopic(t *testing.T) {
	bus := NewBus()
	var calls []string

	bus.Subscribe(TopicPaymentUpdated, "first", func(ctx context.Context, e Event) error {
		calls = append(calls, "first")
		return errors.New("ignored")
	})
	bus.Subscribe(TopicPaymentUpdated, "second", func(ctx context.Context, e Event) error {
		change, ok := e.(PaymentUpdated)
		assert.True(t, ok)
		assert.Equal(t, models.PaymentStatusApproved, change.After.Status)
		calls = append(calls, "second")
		return nil
	})
	bus.Subscribe(TopicApprovalUpdated, "other", func(ctx context.Context, e Event) error {
		calls = append(calls, "other")
		return nil
	})

	bus.Publish(context.Background(), PaymentUpdated{
		Before: models.Payment{Status: models.PaymentStatusPending},
		After:  models.Payment{Status: models.PaymentStatusApproved},
	})

	assert.Equal(t, []string{"first", "second"}, calls)
}
