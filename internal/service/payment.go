package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/flashbill/flashbill/internal/domain"
	"github.com/flashbill/flashbill/internal/telemetry"
)

// PaymentService exposes the payments ledger and refund flow.
type PaymentService struct {
	payments PaymentStore
	invoices InvoiceStore
	mailer   InvoiceMailer
	logger   *slog.Logger
}

var _ domain.PaymentService = (*PaymentService)(nil)

// NewPaymentService creates the payment service.
func NewPaymentService(payments PaymentStore, invoices InvoiceStore, mailer InvoiceMailer, logger *slog.Logger) *PaymentService {
	return &PaymentService{payments: payments, invoices: invoices, mailer: mailer, logger: logger}
}

// GetPayment retrieves a single payment.
func (s *PaymentService) GetPayment(ctx context.Context, orgID, paymentID uuid.UUID) (*domain.Payment, error) {
	return s.payments.GetByID(ctx, orgID, paymentID)
}

// ListPayments lists payments matching the filter.
func (s *PaymentService) ListPayments(ctx context.Context, orgID uuid.UUID, filter domain.PaymentFilter) ([]domain.Payment, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, domain.Invalid("payment.list", "unknown payment status")
	}
	if filter.Method != nil && !filter.Method.Valid() {
		return nil, domain.ErrUnknownPaymentMethod
	}
	return s.payments.List(ctx, orgID, filter)
}

// RefundPayment appends the refund row and rolls the amount back out of
// the invoice. The original payment row is never touched.
func (s *PaymentService) RefundPayment(ctx context.Context, orgID uuid.UUID, params domain.RefundParams) (*domain.Payment, error) {
	refund, err := s.payments.Refund(ctx, orgID, params)
	if err != nil {
		return nil, err
	}
	s.logger.Info("payment refunded",
		"payment_id", params.PaymentID,
		"refund_id", refund.ID,
		"amount", -refund.Amount,
	)
	if m := telemetry.Business; m != nil {
		m.RefundsIssued.WithLabelValues(orgID.String()).Inc()
		m.RefundAmount.WithLabelValues(orgID.String()).Add(-refund.Amount)
	}
	return refund, nil
}

// GetStats returns aggregate payment statistics.
func (s *PaymentService) GetStats(ctx context.Context, orgID uuid.UUID) (*domain.PaymentStats, error) {
	return s.payments.Stats(ctx, orgID)
}
