package handler

import (
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/flashbill/flashbill/internal/domain"
)

// GuestHandler serves the unauthenticated guest payment link. The token
// in the URL is the only credential; there is no org scope on these
// routes.
type GuestHandler struct {
	invoices domain.InvoiceService
	validate *validator.Validate
}

// NewGuestHandler creates a guest payment handler.
func NewGuestHandler(invoices domain.InvoiceService, validate *validator.Validate) *GuestHandler {
	return &GuestHandler{invoices: invoices, validate: validate}
}

// View handles GET /pay/{token}. Opening the link records the first view
// of the invoice.
func (h *GuestHandler) View(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	if token == "" {
		NotFoundResponse(w, r)
		return
	}

	detail, err := h.invoices.GetInvoiceByGuestToken(r.Context(), token)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceResponse(detail))
}

type guestPaymentRequest struct {
	Amount float64 `json:"amount" validate:"gt=0"`
}

// Pay handles POST /pay/{token}. The card is charged through the
// configured processor before the payment is applied; partial amounts
// are subject to the invoice's partial payment policy.
func (h *GuestHandler) Pay(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	if token == "" {
		NotFoundResponse(w, r)
		return
	}

	var req guestPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, err)
		return
	}
	if err := validateRequest(h.validate, "invoice.guest_payment", &req); err != nil {
		ValidationErrorResponse(w, r, err)
		return
	}

	payment, err := h.invoices.RecordGuestPayment(r.Context(), token, req.Amount)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentResponse(payment))
}
