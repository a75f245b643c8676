package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PaymentStatus is the state of a payment row.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

// PaymentMethod is the closed set of accepted payment methods.
type PaymentMethod string

const (
	PaymentMethodStripe       PaymentMethod = "stripe"
	PaymentMethodPayPal       PaymentMethod = "paypal"
	PaymentMethodCheck        PaymentMethod = "check"
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodStripe, PaymentMethodPayPal, PaymentMethodCheck,
		PaymentMethodCash, PaymentMethodBankTransfer:
		return true
	}
	return false
}

// DisplayName returns a human-readable label for the method.
func (m PaymentMethod) DisplayName() string {
	switch m {
	case PaymentMethodStripe:
		return "Stripe"
	case PaymentMethodPayPal:
		return "PayPal"
	case PaymentMethodCheck:
		return "Check"
	case PaymentMethodCash:
		return "Cash"
	case PaymentMethodBankTransfer:
		return "Bank Transfer"
	}
	return string(m)
}

// Payment-related domain errors.
var (
	ErrPaymentNotFound      = &Error{Code: ENOTFOUND, Message: "Payment not found"}
	ErrUnknownPaymentMethod = &Error{Code: EINVALID, Message: "Unknown payment method"}
	ErrRefundNotCompleted   = &Error{Code: ECONFLICT, Message: "Only completed payments can be refunded"}
	ErrRefundExceedsPayment = &Error{Code: EINVALID, Message: "Refund exceeds the refundable amount of the payment"}
	ErrRefundNotPositive    = &Error{Code: EINVALID, Message: "Refund amount must be positive"}
)

// Payment is an append-only ledger row. Refunds are separate rows with a
// negative amount referencing the original via RefundOfID; rows are never
// mutated after insert.
type Payment struct {
	ID               uuid.UUID
	OrgID            uuid.UUID
	InvoiceID        uuid.UUID
	Amount           float64
	Currency         string
	Method           PaymentMethod
	Status           PaymentStatus
	Gateway          string
	GatewayPaymentID string
	GatewayFee       float64
	PaidBy           string
	Notes            string
	FailureReason    string
	RefundOfID       *uuid.UUID
	CreatedAt        time.Time
}

// PaymentFilter narrows payment listings.
type PaymentFilter struct {
	InvoiceID *uuid.UUID
	Status    *PaymentStatus
	Method    *PaymentMethod
	DateFrom  *time.Time
	DateTo    *time.Time
	Limit     int32
	Offset    int32
}

// RefundParams describes a refund of an existing payment.
type RefundParams struct {
	PaymentID uuid.UUID
	Amount    float64
	Reason    string
}

// PaymentStats is an aggregate rollup over completed payments.
type PaymentStats struct {
	Count    int64
	Total    float64
	Average  float64
	ByMethod map[PaymentMethod]float64
}

// PaymentService exposes the payments ledger.
type PaymentService interface {
	// GetPayment retrieves a single payment.
	GetPayment(ctx context.Context, orgID, paymentID uuid.UUID) (*Payment, error)

	// ListPayments lists payments matching the filter, newest first.
	ListPayments(ctx context.Context, orgID uuid.UUID, filter PaymentFilter) ([]Payment, error)

	// RefundPayment appends a negative refund row referencing the original
	// payment and decrements the invoice's paid amount.
	RefundPayment(ctx context.Context, orgID uuid.UUID, params RefundParams) (*Payment, error)

	// GetStats returns aggregate payment statistics for the org.
	GetStats(ctx context.Context, orgID uuid.UUID) (*PaymentStats, error)
}
