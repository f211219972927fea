// internal/events/events.go
package events

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/idlabstudio/idlab-backend/internal/models"
)

const (
	TopicPaymentUpdated  = "payments.updated"
	TopicApprovalUpdated = "approvals.updated"
)

type Event interface {
	Topic() string
}

// PaymentUpdated carries the record before and after a committed change.
type PaymentUpdated struct {
	Before models.Payment
	After  models.Payment
}

func (PaymentUpdated) Topic() string { return TopicPaymentUpdated }

type ApprovalUpdated struct {
	Before models.Approval
	After  models.Approval
}

func (ApprovalUpdated) Topic() string { return TopicApprovalUpdated }

type Handler func(ctx context.Context, event Event) error

// Bus delivers events synchronously, in subscription order, on the
// publisher's goroutine. Handler errors are logged and do not stop delivery.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
}

type namedHandler struct {
	name string
	fn   Handler
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]namedHandler)}
}

func (b *Bus) Subscribe(topic, name string, fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], namedHandler{name: name, fn: fn})
}

func (b *Bus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := append([]namedHandler(nil), b.handlers[event.Topic()]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h.fn(ctx, event); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"topic":   event.Topic(),
				"handler": h.name,
			}).Error("Event handler failed")
		}
	}
}
