// internal/services/payment_verifier.go
package services

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
)

// PaymentVerifier confirms with the payment provider that a reference was
// actually paid.
type PaymentVerifier interface {
	VerifyPayment(ctx context.Context, reference string) error
}

type StripeVerifier struct{}

func NewStripeVerifier(secretKey string) *StripeVerifier {
	stripe.Key = secretKey
	return &StripeVerifier{}
}

// VerifyPayment requires the PaymentIntent to have succeeded.
func (v *StripeVerifier) VerifyPayment(ctx context.Context, reference string) error {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := paymentintent.Get(reference, params)
	if err != nil {
		return fmt.Errorf("failed to get payment intent: %w", err)
	}

	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return newError(CodeFailedPrecondition, fmt.Sprintf("payment %s has status %s", reference, pi.Status))
	}
	return nil
}
