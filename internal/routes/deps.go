// Package routes wires handlers onto the router.
package routes

import (
	"github.com/flashbill/flashbill/internal/handler"
	"github.com/flashbill/flashbill/internal/handler/webhook"
)

// APIDeps contains the handlers behind the org-scoped JSON API.
type APIDeps struct {
	Invoices *handler.InvoiceHandler
	Payments *handler.PaymentHandler
	Taxes    *handler.TaxHandler
	Clients  *handler.ClientHandler
}

// GuestDeps contains the handlers behind the public guest payment link.
type GuestDeps struct {
	Guest *handler.GuestHandler
}

// WebhookDeps contains the inbound gateway notification handlers.
type WebhookDeps struct {
	Stripe *webhook.StripeHandler
}
