// Package domain defines the core invoicing types, service interfaces,
// and error model shared across the application.
package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// InvoiceStatus is the stored lifecycle state of an invoice.
// Overdue is derived at read time and never persisted.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusSent      InvoiceStatus = "sent"
	InvoiceStatusViewed    InvoiceStatus = "viewed"
	InvoiceStatusPartial   InvoiceStatus = "partial"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// Valid reports whether s is a storable invoice status.
// Overdue is intentionally excluded: it is computed, never written.
func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusViewed,
		InvoiceStatusPartial, InvoiceStatusPaid, InvoiceStatusCancelled:
		return true
	}
	return false
}

// Invoice-related domain errors.
var (
	ErrInvoiceNotDraft         = &Error{Code: EINVALID, Message: "Invoice must be in draft status"}
	ErrInvoiceAlreadyPaid      = &Error{Code: ECONFLICT, Message: "Invoice already paid in full"}
	ErrInvoiceCancelled        = &Error{Code: ECONFLICT, Message: "Invoice has been cancelled"}
	ErrInvoiceHasPayments      = &Error{Code: ECONFLICT, Message: "Invoice has recorded payments and cannot be deleted"}
	ErrPaymentExceedsBalance   = &Error{Code: EINVALID, Message: "Payment amount exceeds invoice balance"}
	ErrPaymentNotPositive      = &Error{Code: EINVALID, Message: "Payment amount must be positive"}
	ErrInvoiceNotSendable      = &Error{Code: EINVALID, Message: "Invoice cannot be sent in its current status"}
	ErrInvoiceNotRemindable    = &Error{Code: EINVALID, Message: "Reminders can only be sent for outstanding invoices"}
	ErrInvoiceNumberGeneration = &Error{Code: EINTERNAL, Message: "Failed to allocate invoice number"}
	ErrNoInvoiceItems          = &Error{Code: EINVALID, Message: "Invoice must have at least one line item"}
	ErrInvalidDiscount         = &Error{Code: EINVALID, Message: "Discount must be non-negative and not exceed subtotal plus tax"}
	ErrClientNotFound          = &Error{Code: ENOTFOUND, Message: "Client not found"}
	ErrPartialNotAllowed       = &Error{Code: EINVALID, Message: "Invoice does not accept partial payments"}
	ErrBelowMinimumPayment     = &Error{Code: EINVALID, Message: "Payment is below the minimum partial payment amount"}
)

// Invoice is the persisted invoice row.
// Monetary amounts are USD values rounded to cents at the storage boundary.
type Invoice struct {
	ID                  uuid.UUID
	OrgID               uuid.UUID
	ClientID            uuid.UUID
	InvoiceNumber       string
	Status              InvoiceStatus
	IssueDate           time.Time
	DueDate             time.Time
	Subtotal            float64
	TaxAmount           float64
	TaxLabel            string
	TaxID               string
	DiscountAmount      float64
	Total               float64
	AmountPaid          float64
	Currency            string
	Notes               string
	Terms               string
	GuestPaymentToken   string
	AllowPartialPayment bool
	MinPaymentAmount    float64
	PartialPaymentCount int32
	ReminderSentCount   int32
	LastReminderAt      *time.Time
	SentAt              *time.Time
	ViewedAt            *time.Time
	PaidAt              *time.Time
	NotificationSentAt  *time.Time
	WhatsAppSentAt      *time.Time
	PDFURL              string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// InvoiceItem is a single invoice line.
// TaxRate is a fraction in [0, 1]; a nil rate means "use the org default".
type InvoiceItem struct {
	ID          uuid.UUID
	InvoiceID   uuid.UUID
	Description string
	Quantity    float64
	UnitPrice   float64
	TaxRate     float64
	Amount      float64
	Position    int32
}

// InvoiceDetail aggregates an invoice with its items and joined client fields,
// plus values derived at read time.
type InvoiceDetail struct {
	Invoice
	Items        []InvoiceItem
	ClientName   string
	ClientEmail  string
	BalanceDue   float64
	DaysUntilDue int
	IsOverdue    bool
	// EffectiveStatus is Status with Overdue applied when past due and unpaid.
	EffectiveStatus InvoiceStatus
}

// CreateInvoiceItemParams describes one line of a new invoice.
type CreateInvoiceItemParams struct {
	Description string
	Quantity    float64
	UnitPrice   float64
	// TaxRate overrides the org default when set. Fraction in [0, 1].
	TaxRate *float64
}

// CreateInvoiceParams contains parameters for creating an invoice.
type CreateInvoiceParams struct {
	ClientID            uuid.UUID
	IssueDate           time.Time
	DueDate             time.Time
	Items               []CreateInvoiceItemParams
	Notes               string
	Terms               string
	DiscountAmount      float64
	AllowPartialPayment bool
	MinPaymentAmount    float64
	SendImmediately     bool
}

// UpdateInvoiceParams contains optional fields for a partial invoice update.
// Monetary fields may only change while the invoice is a draft.
type UpdateInvoiceParams struct {
	ClientID       *uuid.UUID
	IssueDate      *time.Time
	DueDate        *time.Time
	Items          []CreateInvoiceItemParams // nil leaves items untouched
	Notes          *string
	Terms          *string
	DiscountAmount *float64
}

// InvoiceFilter narrows invoice listings.
type InvoiceFilter struct {
	Status   *InvoiceStatus
	ClientID *uuid.UUID
	DateFrom *time.Time
	DateTo   *time.Time
	Search   string // matches invoice number and client name
	Limit    int32
	Offset   int32
}

// RecordPaymentParams contains parameters for recording a payment against an invoice.
type RecordPaymentParams struct {
	InvoiceID        uuid.UUID
	Amount           float64
	Method           PaymentMethod
	Gateway          string
	GatewayPaymentID string
	GatewayFee       float64
	PaidBy           string
	Notes            string
}

// SendInvoiceResult reports the outcome of a send attempt.
// The invoice is marked sent even when email delivery fails; EmailSent
// tells the caller whether delivery actually happened.
type SendInvoiceResult struct {
	Invoice   *InvoiceDetail
	EmailSent bool
}

// ReminderTier is the escalation level of an overdue reminder.
type ReminderTier string

const (
	ReminderFriendly    ReminderTier = "friendly"
	ReminderStandard    ReminderTier = "reminder"
	ReminderUrgent      ReminderTier = "urgent"
	ReminderFinalNotice ReminderTier = "final_notice"
)

// InvoiceService manages the invoice lifecycle.
type InvoiceService interface {
	// CreateInvoice validates and persists a new draft invoice, allocating
	// its invoice number. With SendImmediately set it also attempts delivery.
	CreateInvoice(ctx context.Context, orgID uuid.UUID, params CreateInvoiceParams) (*InvoiceDetail, error)

	// GetInvoice retrieves an invoice with items, client fields, and
	// derived balance/overdue values.
	GetInvoice(ctx context.Context, orgID, invoiceID uuid.UUID) (*InvoiceDetail, error)

	// ListInvoices lists invoices matching the filter.
	ListInvoices(ctx context.Context, orgID uuid.UUID, filter InvoiceFilter) ([]InvoiceDetail, error)

	// UpdateInvoice applies a partial update. Monetary changes require draft status.
	UpdateInvoice(ctx context.Context, orgID, invoiceID uuid.UUID, params UpdateInvoiceParams) (*InvoiceDetail, error)

	// DeleteInvoice removes a draft or cancelled invoice with no payments.
	DeleteInvoice(ctx context.Context, orgID, invoiceID uuid.UUID) error

	// SendInvoice renders the invoice document, attempts email delivery,
	// and marks the invoice sent. A non-empty recipientEmail overrides the
	// client's address for this send.
	SendInvoice(ctx context.Context, orgID, invoiceID uuid.UUID, recipientEmail string) (*SendInvoiceResult, error)

	// MarkSent marks an invoice sent without attempting any delivery,
	// for invoices delivered out of band.
	MarkSent(ctx context.Context, orgID, invoiceID uuid.UUID) (*InvoiceDetail, error)

	// MarkViewed records that the recipient opened the invoice.
	// Transitions Sent to Viewed; later states are left untouched.
	MarkViewed(ctx context.Context, orgID, invoiceID uuid.UUID) error

	// RecordPayment applies a payment atomically and appends a payment row.
	RecordPayment(ctx context.Context, orgID uuid.UUID, params RecordPaymentParams) (*Payment, error)

	// SendReminder sends an escalating reminder based on days overdue
	// and increments the reminder counter. Invoices not yet due are
	// rejected with a validation error.
	SendReminder(ctx context.Context, orgID, invoiceID uuid.UUID) (ReminderTier, error)

	// CancelInvoice cancels an unpaid invoice.
	CancelInvoice(ctx context.Context, orgID, invoiceID uuid.UUID) (*InvoiceDetail, error)

	// GetInvoicePDF renders the printable invoice document.
	GetInvoicePDF(ctx context.Context, orgID, invoiceID uuid.UUID) ([]byte, error)

	// GetInvoiceByGuestToken resolves an invoice from its guest payment token.
	GetInvoiceByGuestToken(ctx context.Context, token string) (*InvoiceDetail, error)

	// RecordGuestPayment charges the configured card processor and applies
	// the payment, resolving the invoice from its guest token.
	RecordGuestPayment(ctx context.Context, token string, amount float64) (*Payment, error)
}
