package service

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flashbill/flashbill/internal/domain"
	"github.com/flashbill/flashbill/internal/ledger"
	"github.com/flashbill/flashbill/internal/tax"
	"github.com/flashbill/flashbill/internal/telemetry"
)

// InvoiceService orchestrates the invoice lifecycle over its stores.
type InvoiceService struct {
	invoices InvoiceStore
	clients  ClientStore
	taxes    TaxStore
	renderer DocumentRenderer
	mailer   InvoiceMailer
	cards    CardProcessor
	logger   *slog.Logger
	now      func() time.Time
}

// Compile-time check that InvoiceService implements domain.InvoiceService.
var _ domain.InvoiceService = (*InvoiceService)(nil)

// NewInvoiceService creates the invoice service.
func NewInvoiceService(invoices InvoiceStore, clients ClientStore, taxes TaxStore, renderer DocumentRenderer, mailer InvoiceMailer, cards CardProcessor, logger *slog.Logger) *InvoiceService {
	return &InvoiceService{
		invoices: invoices,
		clients:  clients,
		taxes:    taxes,
		renderer: renderer,
		mailer:   mailer,
		cards:    cards,
		logger:   logger,
		now:      time.Now,
	}
}

// decorate fills the derived read-time fields on a detail.
func (s *InvoiceService) decorate(d *domain.InvoiceDetail) *domain.InvoiceDetail {
	now := s.now()
	d.BalanceDue = ledger.BalanceDue(d.Total, d.AmountPaid)
	d.DaysUntilDue = ledger.DaysUntilDue(d.DueDate, now)
	d.EffectiveStatus = ledger.DeriveStatus(d.Status, d.Total, d.AmountPaid, d.DueDate, now)
	d.IsOverdue = d.EffectiveStatus == domain.InvoiceStatusOverdue
	return d
}

// computedTotals is the ledger output for a set of lines plus a discount.
type computedTotals struct {
	subtotal float64
	taxTotal float64
	total    float64
	taxLabel string
	items    []domain.InvoiceItem
}

// computeTotals resolves each line's tax rate (explicit rate wins, then the
// org default, then zero) and runs the ledger arithmetic.
func (s *InvoiceService) computeTotals(ctx context.Context, orgID uuid.UUID, itemParams []domain.CreateInvoiceItemParams, discount float64) (*computedTotals, error) {
	op := "invoice.compute_totals"

	if len(itemParams) == 0 {
		return nil, domain.ErrNoInvoiceItems
	}

	defaultRate := 0.0
	taxLabel := "No Tax"
	def, err := s.taxes.FindDefault(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if def != nil {
		defaultRate = def.Rate
		taxLabel = def.Label
	}

	lines := make([]ledger.Line, 0, len(itemParams))
	items := make([]domain.InvoiceItem, 0, len(itemParams))
	for i, p := range itemParams {
		if p.Description == "" {
			return nil, domain.NewValidationError(op, "items", "line description is required")
		}
		if p.Quantity <= 0 {
			return nil, domain.NewValidationError(op, "items", "line quantity must be positive")
		}
		if p.UnitPrice < 0 {
			return nil, domain.NewValidationError(op, "items", "line unit price cannot be negative")
		}

		rate := defaultRate
		if p.TaxRate != nil {
			rate = *p.TaxRate
			if rate < 0 || rate > 1 {
				return nil, domain.ErrInvalidTaxRate
			}
		}

		line := ledger.Line{Quantity: p.Quantity, UnitPrice: p.UnitPrice, TaxRate: rate}
		lines = append(lines, line)
		items = append(items, domain.InvoiceItem{
			Description: p.Description,
			Quantity:    p.Quantity,
			UnitPrice:   p.UnitPrice,
			TaxRate:     rate,
			Amount:      ledger.RoundMoney(ledger.LineSubtotal(line)),
			Position:    int32(i),
		})
	}

	sub := ledger.Subtotal(lines)
	taxTotal := ledger.TaxTotal(lines)
	total, err := ledger.Total(sub, taxTotal, decimal.NewFromFloat(discount))
	if err != nil {
		return nil, err
	}

	return &computedTotals{
		subtotal: ledger.RoundMoney(sub),
		taxTotal: ledger.RoundMoney(taxTotal),
		total:    ledger.RoundMoney(total),
		taxLabel: taxLabel,
		items:    items,
	}, nil
}

// CreateInvoice validates and persists a new draft invoice. With
// SendImmediately set, delivery is attempted best effort; a failed send
// leaves a created draft behind rather than failing the call.
func (s *InvoiceService) CreateInvoice(ctx context.Context, orgID uuid.UUID, params domain.CreateInvoiceParams) (*domain.InvoiceDetail, error) {
	op := "invoice.create"

	client, err := s.clients.GetByID(ctx, orgID, params.ClientID)
	if err != nil {
		return nil, err
	}
	if !tax.ValidTaxID(client.TaxID) {
		return nil, domain.ErrInvalidTaxIdentifier
	}
	if params.DueDate.Before(params.IssueDate) {
		return nil, domain.NewValidationError(op, "due_date", "due date cannot precede issue date")
	}
	if params.MinPaymentAmount < 0 {
		return nil, domain.NewValidationError(op, "min_payment_amount", "minimum payment cannot be negative")
	}

	totals, err := s.computeTotals(ctx, orgID, params.Items, params.DiscountAmount)
	if err != nil {
		return nil, err
	}

	inv := &domain.Invoice{
		OrgID:               orgID,
		ClientID:            client.ID,
		Status:              domain.InvoiceStatusDraft,
		IssueDate:           params.IssueDate,
		DueDate:             params.DueDate,
		Subtotal:            totals.subtotal,
		TaxAmount:           totals.taxTotal,
		TaxLabel:            totals.taxLabel,
		TaxID:               client.TaxID,
		DiscountAmount:      ledger.RoundFloat(params.DiscountAmount),
		Total:               totals.total,
		Notes:               params.Notes,
		Terms:               params.Terms,
		AllowPartialPayment: params.AllowPartialPayment,
		MinPaymentAmount:    ledger.RoundFloat(params.MinPaymentAmount),
	}

	created, err := s.invoices.Create(ctx, inv, totals.items)
	if err != nil {
		return nil, err
	}
	s.logger.Info("invoice created",
		"invoice_id", created.ID,
		"invoice_number", created.InvoiceNumber,
		"total", created.Total,
	)
	if m := telemetry.Business; m != nil {
		m.InvoicesCreated.WithLabelValues(orgID.String()).Inc()
		m.InvoiceValue.WithLabelValues(orgID.String()).Observe(created.Total)
	}

	if params.SendImmediately {
		if _, err := s.SendInvoice(ctx, orgID, created.ID, ""); err != nil {
			s.logger.Error("immediate send failed", "invoice_id", created.ID, "error", err)
		}
	}

	return s.GetInvoice(ctx, orgID, created.ID)
}

// GetInvoice loads an invoice with derived fields.
func (s *InvoiceService) GetInvoice(ctx context.Context, orgID, invoiceID uuid.UUID) (*domain.InvoiceDetail, error) {
	d, err := s.invoices.GetByID(ctx, orgID, invoiceID)
	if err != nil {
		return nil, err
	}
	return s.decorate(d), nil
}

// ListInvoices lists invoices matching the filter with derived fields.
func (s *InvoiceService) ListInvoices(ctx context.Context, orgID uuid.UUID, filter domain.InvoiceFilter) ([]domain.InvoiceDetail, error) {
	ds, err := s.invoices.List(ctx, orgID, filter)
	if err != nil {
		return nil, err
	}
	for i := range ds {
		s.decorate(&ds[i])
	}
	return ds, nil
}

// UpdateInvoice applies a partial update. Changes that move money (items,
// discount) are only allowed while the invoice is a draft.
func (s *InvoiceService) UpdateInvoice(ctx context.Context, orgID, invoiceID uuid.UUID, params domain.UpdateInvoiceParams) (*domain.InvoiceDetail, error) {
	d, err := s.invoices.GetByID(ctx, orgID, invoiceID)
	if err != nil {
		return nil, err
	}

	monetaryChange := params.Items != nil || params.DiscountAmount != nil
	if monetaryChange && d.Status != domain.InvoiceStatusDraft {
		return nil, domain.ErrInvoiceNotDraft
	}

	inv := d.Invoice
	if params.ClientID != nil {
		client, err := s.clients.GetByID(ctx, orgID, *params.ClientID)
		if err != nil {
			return nil, err
		}
		inv.ClientID = client.ID
		inv.TaxID = client.TaxID
	}
	if params.IssueDate != nil {
		inv.IssueDate = *params.IssueDate
	}
	if params.DueDate != nil {
		inv.DueDate = *params.DueDate
	}
	if params.Notes != nil {
		inv.Notes = *params.Notes
	}
	if params.Terms != nil {
		inv.Terms = *params.Terms
	}
	if inv.DueDate.Before(inv.IssueDate) {
		return nil, domain.NewValidationError("invoice.update", "due_date", "due date cannot precede issue date")
	}

	var newItems []domain.InvoiceItem
	if monetaryChange {
		discount := inv.DiscountAmount
		if params.DiscountAmount != nil {
			discount = *params.DiscountAmount
		}
		itemParams := params.Items
		if itemParams == nil {
			itemParams = itemsToParams(d.Items)
		}
		totals, err := s.computeTotals(ctx, orgID, itemParams, discount)
		if err != nil {
			return nil, err
		}
		inv.Subtotal = totals.subtotal
		inv.TaxAmount = totals.taxTotal
		inv.TaxLabel = totals.taxLabel
		inv.DiscountAmount = ledger.RoundFloat(discount)
		inv.Total = totals.total
		if params.Items != nil {
			newItems = totals.items
		}
	}

	if err := s.invoices.Update(ctx, &inv, newItems); err != nil {
		return nil, err
	}
	return s.GetInvoice(ctx, orgID, invoiceID)
}

func itemsToParams(items []domain.InvoiceItem) []domain.CreateInvoiceItemParams {
	out := make([]domain.CreateInvoiceItemParams, 0, len(items))
	for _, it := range items {
		rate := it.TaxRate
		out = append(out, domain.CreateInvoiceItemParams{
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			TaxRate:     &rate,
		})
	}
	return out
}

// DeleteInvoice removes a draft or cancelled invoice. The store refuses
// invoices with payment rows regardless of status.
func (s *InvoiceService) DeleteInvoice(ctx context.Context, orgID, invoiceID uuid.UUID) error {
	d, err := s.invoices.GetByID(ctx, orgID, invoiceID)
	if err != nil {
		return err
	}
	if d.Status != domain.InvoiceStatusDraft && d.Status != domain.InvoiceStatusCancelled {
		return domain.Conflict("invoice.delete", "only draft or cancelled invoices can be deleted")
	}
	return s.invoices.Delete(ctx, orgID, invoiceID)
}

// SendInvoice renders the document, attempts email delivery, and marks the
// invoice sent. A non-empty recipientEmail overrides the client's address
// for this send. A delivery failure does not undo the status change; the
// result carries EmailSent so callers can react.
func (s *InvoiceService) SendInvoice(ctx context.Context, orgID, invoiceID uuid.UUID, recipientEmail string) (*domain.SendInvoiceResult, error) {
	d, err := s.invoices.GetByID(ctx, orgID, invoiceID)
	if err != nil {
		return nil, err
	}
	switch d.Status {
	case domain.InvoiceStatusDraft, domain.InvoiceStatusSent, domain.InvoiceStatusViewed, domain.InvoiceStatusPartial:
	default:
		return nil, domain.ErrInvoiceNotSendable
	}

	var pdf []byte
	if s.renderer != nil {
		pdf, err = s.renderer.RenderInvoice(ctx, s.decorate(d))
		if err != nil {
			s.logger.Error("invoice document render failed", "invoice_id", invoiceID, "error", err)
			pdf = nil
		}
	}

	if recipientEmail != "" {
		d.ClientEmail = recipientEmail
	}

	emailSent := false
	if d.ClientEmail == "" {
		s.logger.Warn("client has no email, marking sent without delivery", "invoice_id", invoiceID)
	} else if err := s.mailer.SendInvoice(ctx, d, pdf); err != nil {
		s.logger.Error("invoice email delivery failed", "invoice_id", invoiceID, "error", err)
	} else {
		emailSent = true
	}

	if err := s.invoices.MarkSent(ctx, orgID, invoiceID, emailSent); err != nil {
		return nil, err
	}
	s.logger.Info("invoice sent", "invoice_id", invoiceID, "email_sent", emailSent)
	if m := telemetry.Business; m != nil {
		m.InvoicesSent.WithLabelValues(orgID.String(), strconv.FormatBool(emailSent)).Inc()
	}

	out, err := s.GetInvoice(ctx, orgID, invoiceID)
	if err != nil {
		return nil, err
	}
	return &domain.SendInvoiceResult{Invoice: out, EmailSent: emailSent}, nil
}

// MarkSent marks an invoice sent without attempting delivery, for invoices
// handed over out of band.
func (s *InvoiceService) MarkSent(ctx context.Context, orgID, invoiceID uuid.UUID) (*domain.InvoiceDetail, error) {
	if err := s.invoices.MarkSent(ctx, orgID, invoiceID, false); err != nil {
		return nil, err
	}
	return s.GetInvoice(ctx, orgID, invoiceID)
}

// MarkViewed records that the recipient opened the invoice.
func (s *InvoiceService) MarkViewed(ctx context.Context, orgID, invoiceID uuid.UUID) error {
	return s.invoices.MarkViewed(ctx, orgID, invoiceID)
}

// RecordPayment applies a payment atomically and appends the ledger row.
// A confirmation email is attempted best effort afterwards.
func (s *InvoiceService) RecordPayment(ctx context.Context, orgID uuid.UUID, params domain.RecordPaymentParams) (*domain.Payment, error) {
	op := "invoice.record_payment"

	if !params.Method.Valid() {
		return nil, domain.ErrUnknownPaymentMethod
	}

	d, err := s.invoices.GetByID(ctx, orgID, params.InvoiceID)
	if err != nil {
		return nil, err
	}
	switch d.Status {
	case domain.InvoiceStatusDraft:
		return nil, domain.Invalid(op, "invoice has not been sent")
	case domain.InvoiceStatusCancelled:
		return nil, domain.ErrInvoiceCancelled
	case domain.InvoiceStatusPaid:
		return nil, domain.ErrInvoiceAlreadyPaid
	}

	// Pure validation first for clean errors; the store's atomic guard is
	// the arbiter under concurrency.
	if _, _, err := ledger.ApplyPayment(d.Total, d.AmountPaid, params.Amount); err != nil {
		return nil, err
	}

	payment := &domain.Payment{
		OrgID:            orgID,
		InvoiceID:        params.InvoiceID,
		Amount:           ledger.RoundFloat(params.Amount),
		Method:           params.Method,
		Gateway:          params.Gateway,
		GatewayPaymentID: params.GatewayPaymentID,
		GatewayFee:       params.GatewayFee,
		PaidBy:           params.PaidBy,
		Notes:            params.Notes,
	}
	created, err := s.invoices.ApplyPayment(ctx, payment)
	if err != nil {
		return nil, err
	}
	s.logger.Info("payment recorded",
		"invoice_id", params.InvoiceID,
		"payment_id", created.ID,
		"amount", created.Amount,
		"method", created.Method,
	)
	if m := telemetry.Business; m != nil {
		m.PaymentsRecorded.WithLabelValues(orgID.String(), string(created.Method)).Inc()
		m.PaymentAmount.WithLabelValues(orgID.String(), string(created.Method)).Add(created.Amount)
		if ledger.BalanceDue(d.Total, d.AmountPaid+created.Amount) <= 0 {
			m.InvoicesPaid.WithLabelValues(orgID.String()).Inc()
		}
	}

	if d.ClientEmail != "" {
		if err := s.mailer.SendPaymentConfirmation(ctx, d, created); err != nil {
			s.logger.Error("payment confirmation email failed", "payment_id", created.ID, "error", err)
		}
	}

	return created, nil
}

// RecordGuestPayment charges a card through the processor and applies the
// payment, resolving the invoice from its guest token. Partial payments
// are gated by the invoice's partial payment policy.
func (s *InvoiceService) RecordGuestPayment(ctx context.Context, token string, amount float64) (*domain.Payment, error) {
	op := "invoice.guest_payment"

	d, err := s.invoices.GetByGuestToken(ctx, token)
	if err != nil {
		return nil, err
	}
	s.decorate(d)

	// The card must never be charged for an invoice that cannot accept
	// the payment; these are the same guards RecordPayment applies.
	switch d.Status {
	case domain.InvoiceStatusDraft:
		return nil, domain.Invalid(op, "invoice has not been sent")
	case domain.InvoiceStatusCancelled:
		return nil, domain.ErrInvoiceCancelled
	case domain.InvoiceStatusPaid:
		return nil, domain.ErrInvoiceAlreadyPaid
	}

	if amount <= 0 {
		return nil, domain.ErrPaymentNotPositive
	}
	partial := ledger.RoundFloat(amount) < d.BalanceDue
	if partial {
		if !d.AllowPartialPayment {
			return nil, domain.ErrPartialNotAllowed
		}
		if d.MinPaymentAmount > 0 && amount < d.MinPaymentAmount {
			return nil, domain.ErrBelowMinimumPayment
		}
	}
	if _, _, err := ledger.ApplyPayment(d.Total, d.AmountPaid, amount); err != nil {
		return nil, err
	}

	if s.cards == nil {
		return nil, domain.Errorf(domain.ENOTIMPL, op, "card payments are not configured")
	}
	gatewayID, err := s.cards.Charge(ctx, amount, d.Currency, "Invoice "+d.InvoiceNumber, map[string]string{
		"org_id":     d.OrgID.String(),
		"invoice_id": d.ID.String(),
	})
	if err != nil {
		return nil, domain.WrapError(err, domain.EPAYMENT, op, "card charge failed")
	}

	return s.RecordPayment(ctx, d.OrgID, domain.RecordPaymentParams{
		InvoiceID:        d.ID,
		Amount:           amount,
		Method:           domain.PaymentMethodStripe,
		Gateway:          "stripe",
		GatewayPaymentID: gatewayID,
		PaidBy:           d.ClientName,
	})
}

// SendReminder emails an escalating reminder for an outstanding invoice
// and increments the reminder counter. Unlike invoice delivery, the
// reminder is the whole point of the call, so a failed email fails it.
func (s *InvoiceService) SendReminder(ctx context.Context, orgID, invoiceID uuid.UUID) (domain.ReminderTier, error) {
	op := "invoice.send_reminder"

	d, err := s.invoices.GetByID(ctx, orgID, invoiceID)
	if err != nil {
		return "", err
	}
	switch d.Status {
	case domain.InvoiceStatusSent, domain.InvoiceStatusViewed, domain.InvoiceStatusPartial:
	default:
		return "", domain.ErrInvoiceNotRemindable
	}
	if d.ClientEmail == "" {
		return "", domain.Invalid(op, "client has no email address")
	}

	s.decorate(d)
	daysOverdue := ledger.DaysOverdue(d.DueDate, s.now())
	if daysOverdue < 0 {
		return "", domain.Invalid(op, "invoice is not yet due")
	}
	tier := ledger.ReminderTierFor(daysOverdue)

	if err := s.mailer.SendReminder(ctx, d, tier); err != nil {
		return "", domain.WrapError(err, domain.EINTERNAL, op, "failed to send reminder email")
	}
	if err := s.invoices.IncrementReminder(ctx, orgID, invoiceID); err != nil {
		return "", err
	}
	s.logger.Info("reminder sent", "invoice_id", invoiceID, "tier", tier, "reminder_count", d.ReminderSentCount+1)
	if m := telemetry.Business; m != nil {
		m.RemindersSent.WithLabelValues(orgID.String(), string(tier)).Inc()
	}
	return tier, nil
}

// CancelInvoice cancels an unpaid invoice.
func (s *InvoiceService) CancelInvoice(ctx context.Context, orgID, invoiceID uuid.UUID) (*domain.InvoiceDetail, error) {
	if err := s.invoices.Cancel(ctx, orgID, invoiceID); err != nil {
		return nil, err
	}
	return s.GetInvoice(ctx, orgID, invoiceID)
}

// GetInvoicePDF renders the printable invoice document.
func (s *InvoiceService) GetInvoicePDF(ctx context.Context, orgID, invoiceID uuid.UUID) ([]byte, error) {
	d, err := s.GetInvoice(ctx, orgID, invoiceID)
	if err != nil {
		return nil, err
	}
	return s.renderer.RenderInvoice(ctx, d)
}

// GetInvoiceByGuestToken resolves an invoice from its guest payment token
// and records the view.
func (s *InvoiceService) GetInvoiceByGuestToken(ctx context.Context, token string) (*domain.InvoiceDetail, error) {
	d, err := s.invoices.GetByGuestToken(ctx, token)
	if err != nil {
		return nil, err
	}
	// Opening the guest link is the strongest "viewed" signal we get.
	if d.Status == domain.InvoiceStatusSent {
		if err := s.invoices.MarkViewed(ctx, d.OrgID, d.ID); err != nil {
			s.logger.Warn("failed to mark invoice viewed", "invoice_id", d.ID, "error", err)
		} else {
			d.Status = domain.InvoiceStatusViewed
		}
	}
	return s.decorate(d), nil
}
