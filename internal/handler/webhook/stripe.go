// Package webhook handles inbound gateway notifications.
package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v83"

	"github.com/flashbill/flashbill/internal/domain"
	"github.com/flashbill/flashbill/internal/handler"
	"github.com/flashbill/flashbill/internal/telemetry"
)

// SignatureVerifier verifies that a webhook payload came from the gateway.
// Satisfied by gateway.StripeProcessor.
type SignatureVerifier interface {
	VerifyWebhookSignature(payload []byte, signature, secret string) error
}

// PaymentRecorder is the slice of the invoice service the webhook needs.
type PaymentRecorder interface {
	RecordPayment(ctx context.Context, orgID uuid.UUID, params domain.RecordPaymentParams) (*domain.Payment, error)
}

// StripeConfig configures the Stripe webhook endpoint.
type StripeConfig struct {
	// WebhookSecret is the endpoint signing secret from the Stripe dashboard.
	WebhookSecret string
}

// StripeHandler records payments reported by Stripe webhook events.
// Payment intents created by the guest payment flow carry org_id and
// invoice_id metadata; anything without them is acknowledged and dropped.
type StripeHandler struct {
	verifier SignatureVerifier
	invoices PaymentRecorder
	config   StripeConfig
	logger   *slog.Logger
}

// NewStripeHandler creates the webhook handler.
func NewStripeHandler(verifier SignatureVerifier, invoices PaymentRecorder, config StripeConfig, logger *slog.Logger) *StripeHandler {
	return &StripeHandler{
		verifier: verifier,
		invoices: invoices,
		config:   config,
		logger:   logger,
	}
}

// HandleWebhook processes an incoming Stripe event. Stripe retries on any
// non-2xx response, so processing failures that will not resolve on retry
// are acknowledged with a 200 after logging.
//
// Local testing:
//
//	stripe listen --forward-to localhost:3000/webhooks/stripe
//	stripe trigger payment_intent.succeeded
func (h *StripeHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		handler.ErrorResponse(w, r, domain.Invalid("webhook.stripe", "failed to read request body"))
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		handler.ErrorResponse(w, r, domain.Invalid("webhook.stripe", "missing Stripe-Signature header"))
		return
	}
	if err := h.verifier.VerifyWebhookSignature(payload, signature, h.config.WebhookSecret); err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		handler.ErrorResponse(w, r, domain.Unauthorized("webhook.stripe", "invalid signature"))
		return
	}

	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		handler.ErrorResponse(w, r, domain.Invalid("webhook.stripe", "invalid event JSON"))
		return
	}

	if m := telemetry.Business; m != nil {
		m.WebhookReceived.WithLabelValues(string(event.Type)).Inc()
		defer func() {
			m.WebhookLatency.WithLabelValues(string(event.Type)).Observe(time.Since(start).Seconds())
		}()
	}

	h.logger.Info("stripe webhook received", "event_type", event.Type, "event_id", event.ID)

	switch event.Type {
	case "payment_intent.succeeded":
		h.handlePaymentSucceeded(r, event)
	case "payment_intent.payment_failed":
		h.handlePaymentFailed(event)
	case "payment_intent.created", "payment_intent.canceled":
		// Monitoring only.
	default:
		h.logger.Debug("unhandled webhook event type", "event_type", event.Type)
	}

	// Acknowledge receipt; Stripe retries anything else.
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"received": true}`))
}

// handlePaymentSucceeded records the payment against its invoice. The
// synchronous guest flow usually records it first; the unique gateway
// payment index turns the second insert into a conflict, which is the
// idempotent retry case.
func (h *StripeHandler) handlePaymentSucceeded(r *http.Request, event stripe.Event) {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		h.logger.Error("failed to parse payment intent from webhook", "event_id", event.ID, "error", err)
		h.countFailure(event, "parse_failed")
		return
	}

	orgID, invoiceID, ok := h.invoiceRef(pi)
	if !ok {
		h.logger.Warn("payment intent missing invoice metadata, skipping",
			"payment_intent_id", pi.ID,
		)
		return
	}

	amount := float64(pi.Amount) / 100
	_, err := h.invoices.RecordPayment(r.Context(), orgID, domain.RecordPaymentParams{
		InvoiceID:        invoiceID,
		Amount:           amount,
		Method:           domain.PaymentMethodStripe,
		Gateway:          "stripe",
		GatewayPaymentID: pi.ID,
	})
	if err != nil {
		if domain.ErrorCode(err) == domain.ECONFLICT {
			h.logger.Info("payment already recorded, acknowledging retry",
				"payment_intent_id", pi.ID,
				"invoice_id", invoiceID,
			)
			return
		}
		h.logger.Error("failed to record webhook payment",
			"payment_intent_id", pi.ID,
			"invoice_id", invoiceID,
			"error", err,
		)
		h.countFailure(event, "record_failed")
		telemetry.CaptureError(err, map[string]interface{}{
			"payment_intent_id": pi.ID,
			"invoice_id":        invoiceID.String(),
			"amount":            amount,
		})
		return
	}

	h.logger.Info("webhook payment recorded",
		"payment_intent_id", pi.ID,
		"invoice_id", invoiceID,
		"amount", amount,
	)
}

func (h *StripeHandler) handlePaymentFailed(event stripe.Event) {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		h.logger.Error("failed to parse payment intent from webhook", "event_id", event.ID, "error", err)
		h.countFailure(event, "parse_failed")
		return
	}

	reason := ""
	if pi.LastPaymentError != nil {
		reason = pi.LastPaymentError.Msg
	}
	h.logger.Warn("payment intent failed",
		"payment_intent_id", pi.ID,
		"invoice_id", pi.Metadata["invoice_id"],
		"reason", reason,
	)
	h.countFailure(event, "payment_failed")
}

// invoiceRef extracts the org and invoice the intent was created for.
func (h *StripeHandler) invoiceRef(pi stripe.PaymentIntent) (orgID, invoiceID uuid.UUID, ok bool) {
	orgID, err := uuid.Parse(pi.Metadata["org_id"])
	if err != nil {
		return uuid.Nil, uuid.Nil, false
	}
	invoiceID, err = uuid.Parse(pi.Metadata["invoice_id"])
	if err != nil {
		return uuid.Nil, uuid.Nil, false
	}
	return orgID, invoiceID, true
}

func (h *StripeHandler) countFailure(event stripe.Event, reason string) {
	if m := telemetry.Business; m != nil {
		m.WebhookFailed.WithLabelValues(string(event.Type), reason).Inc()
	}
}
