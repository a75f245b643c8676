package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/flashbill/flashbill/internal/domain"
)

// Store interfaces are defined here, on the consumer side, and implemented
// by the postgres package. Tests substitute hand-rolled fakes.

// InvoiceStore persists invoices and their items.
type InvoiceStore interface {
	Create(ctx context.Context, inv *domain.Invoice, items []domain.InvoiceItem) (*domain.Invoice, error)
	GetByID(ctx context.Context, orgID, invoiceID uuid.UUID) (*domain.InvoiceDetail, error)
	GetByGuestToken(ctx context.Context, token string) (*domain.InvoiceDetail, error)
	List(ctx context.Context, orgID uuid.UUID, filter domain.InvoiceFilter) ([]domain.InvoiceDetail, error)
	Update(ctx context.Context, inv *domain.Invoice, items []domain.InvoiceItem) error
	Delete(ctx context.Context, orgID, invoiceID uuid.UUID) error
	ApplyPayment(ctx context.Context, p *domain.Payment) (*domain.Payment, error)
	MarkSent(ctx context.Context, orgID, invoiceID uuid.UUID, delivered bool) error
	MarkViewed(ctx context.Context, orgID, invoiceID uuid.UUID) error
	IncrementReminder(ctx context.Context, orgID, invoiceID uuid.UUID) error
	Cancel(ctx context.Context, orgID, invoiceID uuid.UUID) error
}

// PaymentStore reads and appends to the payments ledger.
type PaymentStore interface {
	GetByID(ctx context.Context, orgID, paymentID uuid.UUID) (*domain.Payment, error)
	List(ctx context.Context, orgID uuid.UUID, filter domain.PaymentFilter) ([]domain.Payment, error)
	Refund(ctx context.Context, orgID uuid.UUID, params domain.RefundParams) (*domain.Payment, error)
	Stats(ctx context.Context, orgID uuid.UUID) (*domain.PaymentStats, error)
}

// TaxStore persists tax settings.
type TaxStore interface {
	Create(ctx context.Context, s *domain.TaxSetting) (*domain.TaxSetting, error)
	GetByID(ctx context.Context, orgID, settingID uuid.UUID) (*domain.TaxSetting, error)
	List(ctx context.Context, orgID uuid.UUID) ([]domain.TaxSetting, error)
	FindDefault(ctx context.Context, orgID uuid.UUID) (*domain.TaxSetting, error)
	Update(ctx context.Context, s *domain.TaxSetting) (*domain.TaxSetting, error)
	Delete(ctx context.Context, orgID, settingID uuid.UUID) error
	TaxSummary(ctx context.Context, orgID uuid.UUID) ([]domain.TaxSummaryRow, error)
}

// ClientStore persists clients.
type ClientStore interface {
	Create(ctx context.Context, c *domain.Client) (*domain.Client, error)
	GetByID(ctx context.Context, orgID, clientID uuid.UUID) (*domain.Client, error)
	List(ctx context.Context, orgID uuid.UUID, limit, offset int32) ([]domain.Client, error)
	Update(ctx context.Context, c *domain.Client) (*domain.Client, error)
	Delete(ctx context.Context, orgID, clientID uuid.UUID) error
}

// DocumentRenderer renders the printable invoice document.
type DocumentRenderer interface {
	RenderInvoice(ctx context.Context, d *domain.InvoiceDetail) ([]byte, error)
}

// InvoiceMailer sends invoice-related email. Implemented by the email
// service; delivery failures are surfaced, not retried here.
type InvoiceMailer interface {
	SendInvoice(ctx context.Context, d *domain.InvoiceDetail, pdf []byte) error
	SendPaymentConfirmation(ctx context.Context, d *domain.InvoiceDetail, p *domain.Payment) error
	SendReminder(ctx context.Context, d *domain.InvoiceDetail, tier domain.ReminderTier) error
}

// CardProcessor charges cards for guest payments. Implemented by the
// gateway package.
type CardProcessor interface {
	Charge(ctx context.Context, amount float64, currency, description string, metadata map[string]string) (gatewayPaymentID string, err error)
}
