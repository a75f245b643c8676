package routes

import (
	"github.com/flashbill/flashbill/internal/middleware"
	"github.com/flashbill/flashbill/internal/router"
)

// RegisterAPIRoutes registers the org-scoped JSON API. Every route
// requires a resolved org, either from the X-Org-ID header or the
// configured default.
func RegisterAPIRoutes(r *router.Router, deps APIDeps) {
	api := r.Group(middleware.RequireOrg)

	// Invoices
	api.Post("/api/v1/invoices", deps.Invoices.Create)
	api.Get("/api/v1/invoices", deps.Invoices.List)
	api.Get("/api/v1/invoices/{id}", deps.Invoices.Get)
	api.Put("/api/v1/invoices/{id}", deps.Invoices.Update)
	api.Delete("/api/v1/invoices/{id}", deps.Invoices.Delete)
	api.Post("/api/v1/invoices/{id}/send", deps.Invoices.Send)
	api.Post("/api/v1/invoices/{id}/mark-sent", deps.Invoices.MarkSent)
	api.Post("/api/v1/invoices/{id}/mark-viewed", deps.Invoices.MarkViewed)
	api.Post("/api/v1/invoices/{id}/payments", deps.Invoices.RecordPayment)
	api.Post("/api/v1/invoices/{id}/reminders", deps.Invoices.SendReminder)
	api.Post("/api/v1/invoices/{id}/cancel", deps.Invoices.Cancel)
	api.Get("/api/v1/invoices/{id}/pdf", deps.Invoices.PDF)

	// Payments ledger
	api.Get("/api/v1/payments", deps.Payments.List)
	api.Get("/api/v1/payments/stats", deps.Payments.Stats)
	api.Get("/api/v1/payments/{id}", deps.Payments.Get)
	api.Post("/api/v1/payments/{id}/refund", deps.Payments.Refund)

	// Tax settings
	api.Post("/api/v1/tax-settings", deps.Taxes.Create)
	api.Get("/api/v1/tax-settings", deps.Taxes.List)
	api.Get("/api/v1/tax-settings/summary", deps.Taxes.Summary)
	api.Post("/api/v1/tax-settings/calculate", deps.Taxes.Calculate)
	api.Get("/api/v1/tax-settings/{id}", deps.Taxes.Get)
	api.Put("/api/v1/tax-settings/{id}", deps.Taxes.Update)
	api.Delete("/api/v1/tax-settings/{id}", deps.Taxes.Delete)

	// Clients
	api.Post("/api/v1/clients", deps.Clients.Create)
	api.Get("/api/v1/clients", deps.Clients.List)
	api.Get("/api/v1/clients/{id}", deps.Clients.Get)
	api.Put("/api/v1/clients/{id}", deps.Clients.Update)
	api.Delete("/api/v1/clients/{id}", deps.Clients.Delete)
}

// RegisterGuestRoutes registers the public guest payment link. The token
// in the URL is the credential; no org scope applies, so the page carries
// its own tighter per-IP rate limit on top of the global one.
func RegisterGuestRoutes(r *router.Router, deps GuestDeps) {
	strict := middleware.NewRateLimiter(middleware.StrictRateLimiterConfig())
	guest := r.Group(strict.Middleware)
	guest.Get("/pay/{token}", deps.Guest.View)
	guest.Post("/pay/{token}", deps.Guest.Pay)
}

// RegisterWebhookRoutes registers the gateway notification endpoints.
// Authentication is the payload signature, not an org scope.
func RegisterWebhookRoutes(r *router.Router, deps WebhookDeps) {
	r.Post("/webhooks/stripe", deps.Stripe.HandleWebhook)
}
