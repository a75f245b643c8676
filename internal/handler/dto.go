package handler

import (
	"time"

	"github.com/google/uuid"

	"github.com/flashbill/flashbill/internal/domain"
)

const dateLayout = "2006-01-02"

// invoiceItemResponse is one invoice line on the wire.
type invoiceItemResponse struct {
	ID          uuid.UUID `json:"id"`
	Description string    `json:"description"`
	Quantity    float64   `json:"quantity"`
	UnitPrice   float64   `json:"unit_price"`
	TaxRate     float64   `json:"tax_rate"`
	Amount      float64   `json:"amount"`
	Position    int32     `json:"position"`
}

// invoiceResponse is the full invoice representation. Status carries the
// effective status, so overdue invoices read as overdue even though the
// stored state never is.
type invoiceResponse struct {
	ID                  uuid.UUID             `json:"id"`
	InvoiceNumber       string                `json:"invoice_number"`
	Status              domain.InvoiceStatus  `json:"status"`
	ClientID            uuid.UUID             `json:"client_id"`
	ClientName          string                `json:"client_name"`
	ClientEmail         string                `json:"client_email"`
	IssueDate           string                `json:"issue_date"`
	DueDate             string                `json:"due_date"`
	Subtotal            float64               `json:"subtotal"`
	TaxAmount           float64               `json:"tax_amount"`
	TaxLabel            string                `json:"tax_label,omitempty"`
	DiscountAmount      float64               `json:"discount_amount"`
	Total               float64               `json:"total"`
	AmountPaid          float64               `json:"amount_paid"`
	BalanceDue          float64               `json:"balance_due"`
	Currency            string                `json:"currency"`
	Notes               string                `json:"notes,omitempty"`
	Terms               string                `json:"terms,omitempty"`
	AllowPartialPayment bool                  `json:"allow_partial_payment"`
	MinPaymentAmount    float64               `json:"min_payment_amount,omitempty"`
	DaysUntilDue        int                   `json:"days_until_due"`
	IsOverdue           bool                  `json:"is_overdue"`
	ReminderSentCount   int32                 `json:"reminder_sent_count"`
	LastReminderAt      *time.Time            `json:"last_reminder_at,omitempty"`
	SentAt              *time.Time            `json:"sent_at,omitempty"`
	ViewedAt            *time.Time            `json:"viewed_at,omitempty"`
	PaidAt              *time.Time            `json:"paid_at,omitempty"`
	Items               []invoiceItemResponse `json:"items"`
	CreatedAt           time.Time             `json:"created_at"`
	UpdatedAt           time.Time             `json:"updated_at"`
}

func toInvoiceResponse(d *domain.InvoiceDetail) invoiceResponse {
	items := make([]invoiceItemResponse, 0, len(d.Items))
	for _, it := range d.Items {
		items = append(items, invoiceItemResponse{
			ID:          it.ID,
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			TaxRate:     it.TaxRate,
			Amount:      it.Amount,
			Position:    it.Position,
		})
	}

	status := d.EffectiveStatus
	if status == "" {
		status = d.Status
	}

	return invoiceResponse{
		ID:                  d.ID,
		InvoiceNumber:       d.InvoiceNumber,
		Status:              status,
		ClientID:            d.ClientID,
		ClientName:          d.ClientName,
		ClientEmail:         d.ClientEmail,
		IssueDate:           d.IssueDate.Format(dateLayout),
		DueDate:             d.DueDate.Format(dateLayout),
		Subtotal:            d.Subtotal,
		TaxAmount:           d.TaxAmount,
		TaxLabel:            d.TaxLabel,
		DiscountAmount:      d.DiscountAmount,
		Total:               d.Total,
		AmountPaid:          d.AmountPaid,
		BalanceDue:          d.BalanceDue,
		Currency:            d.Currency,
		Notes:               d.Notes,
		Terms:               d.Terms,
		AllowPartialPayment: d.AllowPartialPayment,
		MinPaymentAmount:    d.MinPaymentAmount,
		DaysUntilDue:        d.DaysUntilDue,
		IsOverdue:           d.IsOverdue,
		ReminderSentCount:   d.ReminderSentCount,
		LastReminderAt:      d.LastReminderAt,
		SentAt:              d.SentAt,
		ViewedAt:            d.ViewedAt,
		PaidAt:              d.PaidAt,
		Items:               items,
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
	}
}

func toInvoiceResponses(details []domain.InvoiceDetail) []invoiceResponse {
	out := make([]invoiceResponse, 0, len(details))
	for i := range details {
		out = append(out, toInvoiceResponse(&details[i]))
	}
	return out
}

// paymentResponse is a payment ledger row on the wire. Refund rows carry
// a negative amount and reference the original payment.
type paymentResponse struct {
	ID               uuid.UUID            `json:"id"`
	InvoiceID        uuid.UUID            `json:"invoice_id"`
	Amount           float64              `json:"amount"`
	Currency         string               `json:"currency"`
	Method           domain.PaymentMethod `json:"method"`
	MethodLabel      string               `json:"method_label"`
	Status           domain.PaymentStatus `json:"status"`
	Gateway          string               `json:"gateway,omitempty"`
	GatewayPaymentID string               `json:"gateway_payment_id,omitempty"`
	GatewayFee       float64              `json:"gateway_fee,omitempty"`
	PaidBy           string               `json:"paid_by,omitempty"`
	Notes            string               `json:"notes,omitempty"`
	RefundOfID       *uuid.UUID           `json:"refund_of_id,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
}

func toPaymentResponse(p *domain.Payment) paymentResponse {
	return paymentResponse{
		ID:               p.ID,
		InvoiceID:        p.InvoiceID,
		Amount:           p.Amount,
		Currency:         p.Currency,
		Method:           p.Method,
		MethodLabel:      p.Method.DisplayName(),
		Status:           p.Status,
		Gateway:          p.Gateway,
		GatewayPaymentID: p.GatewayPaymentID,
		GatewayFee:       p.GatewayFee,
		PaidBy:           p.PaidBy,
		Notes:            p.Notes,
		RefundOfID:       p.RefundOfID,
		CreatedAt:        p.CreatedAt,
	}
}

func toPaymentResponses(payments []domain.Payment) []paymentResponse {
	out := make([]paymentResponse, 0, len(payments))
	for i := range payments {
		out = append(out, toPaymentResponse(&payments[i]))
	}
	return out
}

// clientResponse is a client on the wire.
type clientResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Company   string    `json:"company,omitempty"`
	Address   string    `json:"address,omitempty"`
	TaxID     string    `json:"tax_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toClientResponse(c *domain.Client) clientResponse {
	return clientResponse{
		ID:        c.ID,
		Name:      c.Name,
		Email:     c.Email,
		Phone:     c.Phone,
		Company:   c.Company,
		Address:   c.Address,
		TaxID:     c.TaxID,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

// taxSettingResponse is a tax setting on the wire.
type taxSettingResponse struct {
	ID        uuid.UUID `json:"id"`
	Label     string    `json:"label"`
	Rate      float64   `json:"rate"`
	IsDefault bool      `json:"is_default"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toTaxSettingResponse(s *domain.TaxSetting) taxSettingResponse {
	return taxSettingResponse{
		ID:        s.ID,
		Label:     s.Label,
		Rate:      s.Rate,
		IsDefault: s.IsDefault,
		IsActive:  s.IsActive,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}
