// Package gateway integrates external card payment providers.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/paymentintent"
	stripewebhook "github.com/stripe/stripe-go/v83/webhook"

	"github.com/flashbill/flashbill/internal/telemetry"
)

// StripeProcessor charges cards through Stripe Payment Intents.
type StripeProcessor struct {
	logger *slog.Logger
}

// NewStripeProcessor configures the Stripe client with the secret key and
// returns the processor. The stripe-go client is package-global, so this
// should be called once at startup.
func NewStripeProcessor(secretKey string, logger *slog.Logger) *StripeProcessor {
	stripe.Key = secretKey
	return &StripeProcessor{logger: logger}
}

// Charge creates and confirms a payment intent for the amount. The amount
// is a decimal monetary value; Stripe wants minor units. Metadata is
// attached to the intent so webhook events can be routed back to the
// invoice they belong to.
func (p *StripeProcessor) Charge(ctx context.Context, amount float64, currency, description string, metadata map[string]string) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("charge amount must be positive, got %f", amount)
	}
	if currency == "" {
		currency = "USD"
	}

	params := &stripe.PaymentIntentParams{
		Params:      stripe.Params{Context: ctx},
		Amount:      stripe.Int64(toMinorUnits(amount)),
		Currency:    stripe.String(strings.ToLower(currency)),
		Description: stripe.String(description),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	start := time.Now()
	pi, err := paymentintent.New(params)
	if m := telemetry.Business; m != nil {
		m.StripeAPILatency.WithLabelValues("payment_intent_create").Observe(time.Since(start).Seconds())
	}
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) {
			p.logger.Error("stripe charge failed",
				"code", stripeErr.Code,
				"type", stripeErr.Type,
				"message", stripeErr.Msg,
			)
			return "", fmt.Errorf("stripe: %s", stripeErr.Msg)
		}
		return "", fmt.Errorf("stripe charge failed: %w", err)
	}

	p.logger.Info("stripe payment intent created",
		"payment_intent_id", pi.ID,
		"amount", pi.Amount,
		"currency", pi.Currency,
	)
	return pi.ID, nil
}

// VerifyWebhookSignature checks the Stripe-Signature header against the
// endpoint's signing secret.
func (p *StripeProcessor) VerifyWebhookSignature(payload []byte, signature, secret string) error {
	if err := stripewebhook.ValidatePayload(payload, signature, secret); err != nil {
		return fmt.Errorf("webhook signature verification failed: %w", err)
	}
	return nil
}

// toMinorUnits converts a decimal amount to cents, rounding half away
// from zero to match the ledger's rounding.
func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
