package handler

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/flashbill/flashbill/internal/domain"
)

// PaymentHandler serves the payments ledger endpoints.
type PaymentHandler struct {
	payments domain.PaymentService
	validate *validator.Validate
}

// NewPaymentHandler creates a payment handler.
func NewPaymentHandler(payments domain.PaymentService, validate *validator.Validate) *PaymentHandler {
	return &PaymentHandler{payments: payments, validate: validate}
}

// Get handles GET /api/v1/payments/{id}.
func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}
	paymentID, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	payment, err := h.payments.GetPayment(r.Context(), orgID, paymentID)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(payment))
}

// List handles GET /api/v1/payments with optional invoice_id, status,
// method, and date range filters.
func (h *PaymentHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}

	filter := domain.PaymentFilter{
		Limit:  queryInt32(r, "limit", 50),
		Offset: queryInt32(r, "offset", 0),
	}

	if raw := r.URL.Query().Get("invoice_id"); raw != "" {
		invoiceID, err := uuid.Parse(raw)
		if err != nil {
			ErrorResponse(w, r, domain.Invalid("payment.list", "invoice_id must be a UUID"))
			return
		}
		filter.InvoiceID = &invoiceID
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := domain.PaymentStatus(raw)
		if !status.Valid() {
			ErrorResponse(w, r, domain.Invalid("payment.list", "Unknown payment status: "+raw))
			return
		}
		filter.Status = &status
	}
	if raw := r.URL.Query().Get("method"); raw != "" {
		method := domain.PaymentMethod(raw)
		if !method.Valid() {
			ErrorResponse(w, r, domain.ErrUnknownPaymentMethod)
			return
		}
		filter.Method = &method
	}
	var err error
	if filter.DateFrom, err = queryDate(r, "date_from"); err != nil {
		ErrorResponse(w, r, err)
		return
	}
	if filter.DateTo, err = queryDate(r, "date_to"); err != nil {
		ErrorResponse(w, r, err)
		return
	}

	payments, err := h.payments.ListPayments(r.Context(), orgID, filter)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": toPaymentResponses(payments)})
}

type refundRequest struct {
	Amount float64 `json:"amount" validate:"gt=0"`
	Reason string  `json:"reason"`
}

// Refund handles POST /api/v1/payments/{id}/refund. The refund is a new
// negative ledger row; the original payment row is never modified.
func (h *PaymentHandler) Refund(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}
	paymentID, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	var req refundRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, err)
		return
	}
	if err := validateRequest(h.validate, "payment.refund", &req); err != nil {
		ValidationErrorResponse(w, r, err)
		return
	}

	refund, err := h.payments.RefundPayment(r.Context(), orgID, domain.RefundParams{
		PaymentID: paymentID,
		Amount:    req.Amount,
		Reason:    req.Reason,
	})
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentResponse(refund))
}

// Stats handles GET /api/v1/payments/stats.
func (h *PaymentHandler) Stats(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}

	stats, err := h.payments.GetStats(r.Context(), orgID)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	byMethod := make(map[string]float64, len(stats.ByMethod))
	for method, total := range stats.ByMethod {
		byMethod[string(method)] = total
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":     stats.Count,
		"total":     stats.Total,
		"average":   stats.Average,
		"by_method": byMethod,
	})
}
