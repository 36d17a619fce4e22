// Package payment completes the third-party confirmation step for
// payment methods that require one. The backend creates the payment
// intent during order submission and hands back its client secret;
// this package drives the intent to completion.
package payment

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/paymentintent"

	"shopgate/internal/model"
)

// Confirmer finalizes a payment using the client secret returned by
// order submission.
type Confirmer interface {
	Confirm(ctx context.Context, clientSecret, paymentMethodID string) error
}

// StripeConfirmer confirms Stripe payment intents.
type StripeConfirmer struct {
	logger *slog.Logger
}

// NewStripeConfirmer configures the Stripe client with the account
// key and returns a confirmer.
func NewStripeConfirmer(secretKey string, logger *slog.Logger) *StripeConfirmer {
	stripe.Key = secretKey
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeConfirmer{logger: logger}
}

// Confirm drives the payment intent behind clientSecret to
// completion with the given payment method.
func (c *StripeConfirmer) Confirm(ctx context.Context, clientSecret, paymentMethodID string) error {
	intentID, err := IntentIDFromSecret(clientSecret)
	if err != nil {
		return model.NewValidationError("client_secret", err.Error())
	}

	params := &stripe.PaymentIntentConfirmParams{}
	if paymentMethodID != "" {
		params.PaymentMethod = stripe.String(paymentMethodID)
	}
	params.Context = ctx

	pi, err := paymentintent.Confirm(intentID, params)
	if err != nil {
		return stripeError(err)
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded,
		stripe.PaymentIntentStatusRequiresCapture,
		stripe.PaymentIntentStatusProcessing:
		c.logger.Info("payment confirmed",
			slog.String("intent", intentID),
			slog.String("status", string(pi.Status)))
		return nil
	default:
		return model.NewDomainError(402,
			"payment not completed: "+string(pi.Status))
	}
}

// IntentIDFromSecret extracts the payment intent ID from its client
// secret ("pi_123_secret_456" → "pi_123").
func IntentIDFromSecret(clientSecret string) (string, error) {
	id, _, found := strings.Cut(clientSecret, "_secret")
	if !found || id == "" {
		return "", errors.New("malformed client secret")
	}
	return id, nil
}

// stripeError maps Stripe API failures onto the client error
// taxonomy.
func stripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		msg := stripeErr.Msg
		if msg == "" {
			msg = "payment confirmation failed"
		}
		if stripeErr.HTTPStatusCode >= 500 {
			return model.NewServerError(stripeErr.HTTPStatusCode, msg)
		}
		return model.NewDomainError(stripeErr.HTTPStatusCode, msg)
	}
	return model.NewNetworkError(err)
}

// DeferredConfirmer is the no-op confirmer for payment methods that
// settle outside the order flow (pay on delivery).
type DeferredConfirmer struct{}

func (DeferredConfirmer) Confirm(ctx context.Context, clientSecret, paymentMethodID string) error {
	return nil
}
