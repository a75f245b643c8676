package handler

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/flashbill/flashbill/internal/domain"
)

// InvoiceHandler serves the invoice lifecycle endpoints.
type InvoiceHandler struct {
	invoices domain.InvoiceService
	validate *validator.Validate
}

// NewInvoiceHandler creates an invoice handler.
func NewInvoiceHandler(invoices domain.InvoiceService, validate *validator.Validate) *InvoiceHandler {
	return &InvoiceHandler{invoices: invoices, validate: validate}
}

type invoiceItemRequest struct {
	Description string   `json:"description" validate:"required"`
	Quantity    float64  `json:"quantity" validate:"gt=0"`
	UnitPrice   float64  `json:"unit_price" validate:"gte=0"`
	TaxRate     *float64 `json:"tax_rate" validate:"omitempty,gte=0,lte=1"`
}

type createInvoiceRequest struct {
	ClientID            uuid.UUID            `json:"client_id" validate:"required"`
	IssueDate           string               `json:"issue_date" validate:"required,datetime=2006-01-02"`
	DueDate             string               `json:"due_date" validate:"required,datetime=2006-01-02"`
	Items               []invoiceItemRequest `json:"items" validate:"required,min=1,dive"`
	Notes               string               `json:"notes"`
	Terms               string               `json:"terms"`
	DiscountAmount      float64              `json:"discount_amount" validate:"gte=0"`
	AllowPartialPayment bool                 `json:"allow_partial_payment"`
	MinPaymentAmount    float64              `json:"min_payment_amount" validate:"gte=0"`
	SendImmediately     bool                 `json:"send_immediately"`
}

func toItemParams(items []invoiceItemRequest) []domain.CreateInvoiceItemParams {
	out := make([]domain.CreateInvoiceItemParams, 0, len(items))
	for _, it := range items {
		out = append(out, domain.CreateInvoiceItemParams{
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			TaxRate:     it.TaxRate,
		})
	}
	return out
}

// Create handles POST /api/v1/invoices.
func (h *InvoiceHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}

	var req createInvoiceRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, err)
		return
	}
	if err := validateRequest(h.validate, "invoice.create", &req); err != nil {
		ValidationErrorResponse(w, r, err)
		return
	}

	issueDate, _ := time.Parse(dateLayout, req.IssueDate)
	dueDate, _ := time.Parse(dateLayout, req.DueDate)

	detail, err := h.invoices.CreateInvoice(r.Context(), orgID, domain.CreateInvoiceParams{
		ClientID:            req.ClientID,
		IssueDate:           issueDate,
		DueDate:             dueDate,
		Items:               toItemParams(req.Items),
		Notes:               req.Notes,
		Terms:               req.Terms,
		DiscountAmount:      req.DiscountAmount,
		AllowPartialPayment: req.AllowPartialPayment,
		MinPaymentAmount:    req.MinPaymentAmount,
		SendImmediately:     req.SendImmediately,
	})
	if err != nil {
		ValidationErrorResponse(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toInvoiceResponse(detail))
}

// Get handles GET /api/v1/invoices/{id}.
func (h *InvoiceHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}
	invoiceID, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	detail, err := h.invoices.GetInvoice(r.Context(), orgID, invoiceID)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceResponse(detail))
}

// List handles GET /api/v1/invoices with optional status, client_id,
// date range, and search filters.
func (h *InvoiceHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}

	filter := domain.InvoiceFilter{
		Search: r.URL.Query().Get("search"),
		Limit:  queryInt32(r, "limit", 50),
		Offset: queryInt32(r, "offset", 0),
	}

	if raw := r.URL.Query().Get("status"); raw != "" {
		status := domain.InvoiceStatus(raw)
		// Overdue is accepted as a filter even though it is never stored;
		// the store translates it into a due-date predicate.
		if !status.Valid() && status != domain.InvoiceStatusOverdue {
			ErrorResponse(w, r, domain.Invalid("invoice.list", "Unknown invoice status: "+raw))
			return
		}
		filter.Status = &status
	}
	if raw := r.URL.Query().Get("client_id"); raw != "" {
		clientID, err := uuid.Parse(raw)
		if err != nil {
			ErrorResponse(w, r, domain.Invalid("invoice.list", "client_id must be a UUID"))
			return
		}
		filter.ClientID = &clientID
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

	details, err := h.invoices.ListInvoices(r.Context(), orgID, filter)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invoices": toInvoiceResponses(details)})
}

type updateInvoiceRequest struct {
	ClientID       *uuid.UUID           `json:"client_id"`
	IssueDate      *string              `json:"issue_date" validate:"omitempty,datetime=2006-01-02"`
	DueDate        *string              `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Items          []invoiceItemRequest `json:"items" validate:"omitempty,min=1,dive"`
	Notes          *string              `json:"notes"`
	Terms          *string              `json:"terms"`
	DiscountAmount *float64             `json:"discount_amount" validate:"omitempty,gte=0"`
}

// Update handles PUT /api/v1/invoices/{id}. Monetary fields require the
// invoice to still be a draft; notes and terms may change at any time.
func (h *InvoiceHandler) Update(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}
	invoiceID, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	var req updateInvoiceRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, err)
		return
	}
	if err := validateRequest(h.validate, "invoice.update", &req); err != nil {
		ValidationErrorResponse(w, r, err)
		return
	}

	params := domain.UpdateInvoiceParams{
		ClientID:       req.ClientID,
		Notes:          req.Notes,
		Terms:          req.Terms,
		DiscountAmount: req.DiscountAmount,
	}
	if req.IssueDate != nil {
		t, _ := time.Parse(dateLayout, *req.IssueDate)
		params.IssueDate = &t
	}
	if req.DueDate != nil {
		t, _ := time.Parse(dateLayout, *req.DueDate)
		params.DueDate = &t
	}
	if req.Items != nil {
		params.Items = toItemParams(req.Items)
	}

	detail, err := h.invoices.UpdateInvoice(r.Context(), orgID, invoiceID, params)
	if err != nil {
		ValidationErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceResponse(detail))
}

// Delete handles DELETE /api/v1/invoices/{id}.
func (h *InvoiceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}
	invoiceID, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	if err := h.invoices.DeleteInvoice(r.Context(), orgID, invoiceID); err != nil {
		ErrorResponse(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sendInvoiceRequest struct {
	RecipientEmail string `json:"recipient_email" validate:"omitempty,email"`
}

// Send handles POST /api/v1/invoices/{id}/send. The body is optional; a
// recipient_email overrides the client's address. The invoice is marked
// sent even when email delivery fails; email_sent reports the outcome.
func (h *InvoiceHandler) Send(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}
	invoiceID, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	var req sendInvoiceRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			ErrorResponse(w, r, err)
			return
		}
		if err := validateRequest(h.validate, "invoice.send", &req); err != nil {
			ValidationErrorResponse(w, r, err)
			return
		}
	}

	result, err := h.invoices.SendInvoice(r.Context(), orgID, invoiceID, req.RecipientEmail)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"invoice":    toInvoiceResponse(result.Invoice),
		"email_sent": result.EmailSent,
	})
}

// MarkSent handles POST /api/v1/invoices/{id}/mark-sent for invoices
// delivered out of band.
func (h *InvoiceHandler) MarkSent(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}
	invoiceID, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	detail, err := h.invoices.MarkSent(r.Context(), orgID, invoiceID)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceResponse(detail))
}

// MarkViewed handles POST /api/v1/invoices/{id}/mark-viewed.
func (h *InvoiceHandler) MarkViewed(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}
	invoiceID, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	if err := h.invoices.MarkViewed(r.Context(), orgID, invoiceID); err != nil {
		ErrorResponse(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type recordPaymentRequest struct {
	Amount           float64 `json:"amount" validate:"gt=0"`
	Method           string  `json:"method" validate:"required"`
	Gateway          string  `json:"gateway"`
	GatewayPaymentID string  `json:"gateway_payment_id"`
	GatewayFee       float64 `json:"gateway_fee" validate:"gte=0"`
	PaidBy           string  `json:"paid_by"`
	Notes            string  `json:"notes"`
}

// RecordPayment handles POST /api/v1/invoices/{id}/payments.
func (h *InvoiceHandler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}
	invoiceID, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	var req recordPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, err)
		return
	}
	if err := validateRequest(h.validate, "invoice.record_payment", &req); err != nil {
		ValidationErrorResponse(w, r, err)
		return
	}

	payment, err := h.invoices.RecordPayment(r.Context(), orgID, domain.RecordPaymentParams{
		InvoiceID:        invoiceID,
		Amount:           req.Amount,
		Method:           domain.PaymentMethod(req.Method),
		Gateway:          req.Gateway,
		GatewayPaymentID: req.GatewayPaymentID,
		GatewayFee:       req.GatewayFee,
		PaidBy:           req.PaidBy,
		Notes:            req.Notes,
	})
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentResponse(payment))
}

// SendReminder handles POST /api/v1/invoices/{id}/reminders.
func (h *InvoiceHandler) SendReminder(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}
	invoiceID, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	tier, err := h.invoices.SendReminder(r.Context(), orgID, invoiceID)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tier": tier})
}

// Cancel handles POST /api/v1/invoices/{id}/cancel.
func (h *InvoiceHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}
	invoiceID, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	detail, err := h.invoices.CancelInvoice(r.Context(), orgID, invoiceID)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceResponse(detail))
}

// PDF handles GET /api/v1/invoices/{id}/pdf, returning the printable
// invoice document.
func (h *InvoiceHandler) PDF(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}
	invoiceID, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	doc, err := h.invoices.GetInvoicePDF(r.Context(), orgID, invoiceID)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(doc)
}
