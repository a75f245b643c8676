package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flashbill/flashbill/internal/domain"
	"github.com/flashbill/flashbill/internal/ledger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeInvoiceStore is an in-memory InvoiceStore that mirrors the real
// store's guards, including the atomic balance check on ApplyPayment.
type fakeInvoiceStore struct {
	invoices map[uuid.UUID]*domain.InvoiceDetail
	payments []domain.Payment

	createErr error
	updateErr error
	markSent  []bool // delivered flags, in call order
}

func newFakeInvoiceStore() *fakeInvoiceStore {
	return &fakeInvoiceStore{invoices: make(map[uuid.UUID]*domain.InvoiceDetail)}
}

func (f *fakeInvoiceStore) add(d *domain.InvoiceDetail) *domain.InvoiceDetail {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	f.invoices[d.ID] = d
	return d
}

func (f *fakeInvoiceStore) Create(ctx context.Context, inv *domain.Invoice, items []domain.InvoiceItem) (*domain.Invoice, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	out := *inv
	out.ID = uuid.New()
	out.InvoiceNumber = "INV-2026-0001-001"
	out.Status = domain.InvoiceStatusDraft
	out.CreatedAt = time.Now()
	out.UpdatedAt = out.CreatedAt
	f.invoices[out.ID] = &domain.InvoiceDetail{Invoice: out, Items: items, ClientName: "Acme Corp", ClientEmail: "billing@acme.test"}
	return &out, nil
}

func (f *fakeInvoiceStore) get(orgID, id uuid.UUID) (*domain.InvoiceDetail, error) {
	d, ok := f.invoices[id]
	if !ok || d.OrgID != orgID {
		return nil, domain.NotFound("invoice.get", "invoice", id.String())
	}
	return d, nil
}

func (f *fakeInvoiceStore) GetByID(ctx context.Context, orgID, id uuid.UUID) (*domain.InvoiceDetail, error) {
	d, err := f.get(orgID, id)
	if err != nil {
		return nil, err
	}
	cp := *d
	return &cp, nil
}

func (f *fakeInvoiceStore) GetByGuestToken(ctx context.Context, token string) (*domain.InvoiceDetail, error) {
	for _, d := range f.invoices {
		if d.GuestPaymentToken == token {
			cp := *d
			return &cp, nil
		}
	}
	return nil, domain.NotFound("invoice.get_by_token", "invoice", "token")
}

func (f *fakeInvoiceStore) List(ctx context.Context, orgID uuid.UUID, filter domain.InvoiceFilter) ([]domain.InvoiceDetail, error) {
	var out []domain.InvoiceDetail
	for _, d := range f.invoices {
		if d.OrgID == orgID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeInvoiceStore) Update(ctx context.Context, inv *domain.Invoice, items []domain.InvoiceItem) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	d, err := f.get(inv.OrgID, inv.ID)
	if err != nil {
		return err
	}
	d.Invoice = *inv
	if items != nil {
		d.Items = items
	}
	return nil
}

func (f *fakeInvoiceStore) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	d, err := f.get(orgID, id)
	if err != nil {
		return err
	}
	for _, p := range f.payments {
		if p.InvoiceID == d.ID {
			return domain.ErrInvoiceHasPayments
		}
	}
	delete(f.invoices, id)
	return nil
}

func (f *fakeInvoiceStore) ApplyPayment(ctx context.Context, p *domain.Payment) (*domain.Payment, error) {
	d, err := f.get(p.OrgID, p.InvoiceID)
	if err != nil {
		return nil, err
	}
	if d.Status == domain.InvoiceStatusCancelled {
		return nil, domain.ErrInvoiceCancelled
	}
	if ledger.RoundFloat(d.AmountPaid+p.Amount) > ledger.RoundFloat(d.Total) {
		return nil, domain.ErrPaymentExceedsBalance
	}
	d.AmountPaid = ledger.RoundFloat(d.AmountPaid + p.Amount)
	d.PartialPaymentCount++
	if ledger.BalanceDue(d.Total, d.AmountPaid) <= 0 {
		d.Status = domain.InvoiceStatusPaid
		now := time.Now()
		d.PaidAt = &now
	} else {
		d.Status = domain.InvoiceStatusPartial
	}

	out := *p
	out.ID = uuid.New()
	out.Status = domain.PaymentStatusCompleted
	out.CreatedAt = time.Now()
	f.payments = append(f.payments, out)
	return &out, nil
}

func (f *fakeInvoiceStore) MarkSent(ctx context.Context, orgID, id uuid.UUID, delivered bool) error {
	d, err := f.get(orgID, id)
	if err != nil {
		return err
	}
	switch d.Status {
	case domain.InvoiceStatusDraft, domain.InvoiceStatusSent, domain.InvoiceStatusViewed, domain.InvoiceStatusPartial:
	default:
		return domain.ErrInvoiceNotSendable
	}
	if d.Status == domain.InvoiceStatusDraft {
		d.Status = domain.InvoiceStatusSent
	}
	if d.SentAt == nil {
		now := time.Now()
		d.SentAt = &now
	}
	f.markSent = append(f.markSent, delivered)
	return nil
}

func (f *fakeInvoiceStore) MarkViewed(ctx context.Context, orgID, id uuid.UUID) error {
	d, err := f.get(orgID, id)
	if err != nil {
		return err
	}
	if d.Status == domain.InvoiceStatusSent {
		d.Status = domain.InvoiceStatusViewed
	}
	if d.ViewedAt == nil {
		now := time.Now()
		d.ViewedAt = &now
	}
	return nil
}

func (f *fakeInvoiceStore) IncrementReminder(ctx context.Context, orgID, id uuid.UUID) error {
	d, err := f.get(orgID, id)
	if err != nil {
		return err
	}
	d.ReminderSentCount++
	now := time.Now()
	d.LastReminderAt = &now
	return nil
}

func (f *fakeInvoiceStore) Cancel(ctx context.Context, orgID, id uuid.UUID) error {
	d, err := f.get(orgID, id)
	if err != nil {
		return err
	}
	if d.Status == domain.InvoiceStatusPaid {
		return domain.ErrInvoiceAlreadyPaid
	}
	d.Status = domain.InvoiceStatusCancelled
	return nil
}

// fakeClientStore serves a fixed set of clients.
type fakeClientStore struct {
	clients map[uuid.UUID]*domain.Client
}

func newFakeClientStore() *fakeClientStore {
	return &fakeClientStore{clients: make(map[uuid.UUID]*domain.Client)}
}

func (f *fakeClientStore) add(c *domain.Client) *domain.Client {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	f.clients[c.ID] = c
	return c
}

func (f *fakeClientStore) Create(ctx context.Context, c *domain.Client) (*domain.Client, error) {
	cp := *c
	cp.ID = uuid.New()
	f.clients[cp.ID] = &cp
	return &cp, nil
}

func (f *fakeClientStore) GetByID(ctx context.Context, orgID, id uuid.UUID) (*domain.Client, error) {
	c, ok := f.clients[id]
	if !ok || c.OrgID != orgID {
		return nil, domain.ErrClientNotFound
	}
	return c, nil
}

func (f *fakeClientStore) List(ctx context.Context, orgID uuid.UUID, limit, offset int32) ([]domain.Client, error) {
	var out []domain.Client
	for _, c := range f.clients {
		if c.OrgID == orgID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeClientStore) Update(ctx context.Context, c *domain.Client) (*domain.Client, error) {
	f.clients[c.ID] = c
	return c, nil
}

func (f *fakeClientStore) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	delete(f.clients, id)
	return nil
}

// fakeTaxStore holds tax settings in memory.
type fakeTaxStore struct {
	settings map[uuid.UUID]*domain.TaxSetting
	summary  []domain.TaxSummaryRow
}

func newFakeTaxStore() *fakeTaxStore {
	return &fakeTaxStore{settings: make(map[uuid.UUID]*domain.TaxSetting)}
}

func (f *fakeTaxStore) add(s *domain.TaxSetting) *domain.TaxSetting {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	f.settings[s.ID] = s
	return s
}

func (f *fakeTaxStore) Create(ctx context.Context, s *domain.TaxSetting) (*domain.TaxSetting, error) {
	if s.IsDefault && s.IsActive {
		for _, other := range f.settings {
			if other.OrgID == s.OrgID && other.IsDefault && other.IsActive {
				return nil, domain.ErrDefaultTaxExists
			}
		}
	}
	cp := *s
	cp.ID = uuid.New()
	f.settings[cp.ID] = &cp
	return &cp, nil
}

func (f *fakeTaxStore) GetByID(ctx context.Context, orgID, id uuid.UUID) (*domain.TaxSetting, error) {
	s, ok := f.settings[id]
	if !ok || s.OrgID != orgID {
		return nil, domain.ErrTaxSettingNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeTaxStore) List(ctx context.Context, orgID uuid.UUID) ([]domain.TaxSetting, error) {
	var out []domain.TaxSetting
	for _, s := range f.settings {
		if s.OrgID == orgID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeTaxStore) FindDefault(ctx context.Context, orgID uuid.UUID) (*domain.TaxSetting, error) {
	for _, s := range f.settings {
		if s.OrgID == orgID && s.IsDefault && s.IsActive {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeTaxStore) Update(ctx context.Context, s *domain.TaxSetting) (*domain.TaxSetting, error) {
	if _, ok := f.settings[s.ID]; !ok {
		return nil, domain.ErrTaxSettingNotFound
	}
	// Mirror the transactional demote-then-promote swap.
	if s.IsDefault && s.IsActive {
		for _, other := range f.settings {
			if other.OrgID == s.OrgID && other.ID != s.ID && other.IsDefault {
				other.IsDefault = false
			}
		}
	}
	cp := *s
	f.settings[s.ID] = &cp
	return &cp, nil
}

func (f *fakeTaxStore) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	s, ok := f.settings[id]
	if !ok || s.OrgID != orgID {
		return domain.ErrTaxSettingNotFound
	}
	if s.IsDefault && s.IsActive {
		others := 0
		for _, other := range f.settings {
			if other.OrgID == orgID && other.ID != id && other.IsActive {
				others++
			}
		}
		if others == 0 {
			return domain.ErrCannotDeleteDefault
		}
	}
	delete(f.settings, id)
	return nil
}

func (f *fakeTaxStore) TaxSummary(ctx context.Context, orgID uuid.UUID) ([]domain.TaxSummaryRow, error) {
	return f.summary, nil
}

// fakePaymentStore mirrors the append-only payments table and the refund
// guards of the real repository.
type fakePaymentStore struct {
	payments map[uuid.UUID]*domain.Payment
	invoices *fakeInvoiceStore
	stats    *domain.PaymentStats
}

func newFakePaymentStore(invoices *fakeInvoiceStore) *fakePaymentStore {
	return &fakePaymentStore{payments: make(map[uuid.UUID]*domain.Payment), invoices: invoices}
}

func (f *fakePaymentStore) add(p *domain.Payment) *domain.Payment {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	f.payments[p.ID] = p
	return p
}

func (f *fakePaymentStore) GetByID(ctx context.Context, orgID, id uuid.UUID) (*domain.Payment, error) {
	p, ok := f.payments[id]
	if !ok || p.OrgID != orgID {
		return nil, domain.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakePaymentStore) List(ctx context.Context, orgID uuid.UUID, filter domain.PaymentFilter) ([]domain.Payment, error) {
	var out []domain.Payment
	for _, p := range f.payments {
		if p.OrgID != orgID {
			continue
		}
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		if filter.Method != nil && p.Method != *filter.Method {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakePaymentStore) Refund(ctx context.Context, orgID uuid.UUID, params domain.RefundParams) (*domain.Payment, error) {
	orig, ok := f.payments[params.PaymentID]
	if !ok || orig.OrgID != orgID {
		return nil, domain.ErrPaymentNotFound
	}
	if params.Amount <= 0 {
		return nil, domain.ErrRefundNotPositive
	}
	if orig.Status != domain.PaymentStatusCompleted {
		return nil, domain.ErrRefundNotCompleted
	}
	var refunded float64
	for _, p := range f.payments {
		if p.RefundOfID != nil && *p.RefundOfID == orig.ID {
			refunded += -p.Amount
		}
	}
	if refunded+params.Amount > orig.Amount {
		return nil, domain.ErrRefundExceedsPayment
	}

	refund := &domain.Payment{
		ID:         uuid.New(),
		OrgID:      orgID,
		InvoiceID:  orig.InvoiceID,
		Amount:     -params.Amount,
		Method:     orig.Method,
		Status:     domain.PaymentStatusRefunded,
		Notes:      "Refund: " + params.Reason,
		RefundOfID: &orig.ID,
		CreatedAt:  time.Now(),
	}
	f.payments[refund.ID] = refund

	if f.invoices != nil {
		if d, ok := f.invoices.invoices[orig.InvoiceID]; ok {
			d.AmountPaid = ledger.RoundFloat(d.AmountPaid - params.Amount)
			if d.Status == domain.InvoiceStatusPaid {
				d.Status = domain.InvoiceStatusPartial
				d.PaidAt = nil
			}
		}
	}
	return refund, nil
}

func (f *fakePaymentStore) Stats(ctx context.Context, orgID uuid.UUID) (*domain.PaymentStats, error) {
	return f.stats, nil
}

// fakeMailer records sends and can be told to fail.
type fakeMailer struct {
	invoiceSends      int
	confirmationSends int
	reminderSends     int
	lastRecipient     string
	lastTier          domain.ReminderTier
	err               error
}

func (f *fakeMailer) SendInvoice(ctx context.Context, d *domain.InvoiceDetail, pdf []byte) error {
	if f.err != nil {
		return f.err
	}
	f.invoiceSends++
	f.lastRecipient = d.ClientEmail
	return nil
}

func (f *fakeMailer) SendPaymentConfirmation(ctx context.Context, d *domain.InvoiceDetail, p *domain.Payment) error {
	if f.err != nil {
		return f.err
	}
	f.confirmationSends++
	return nil
}

func (f *fakeMailer) SendReminder(ctx context.Context, d *domain.InvoiceDetail, tier domain.ReminderTier) error {
	if f.err != nil {
		return f.err
	}
	f.reminderSends++
	f.lastTier = tier
	return nil
}

// fakeRenderer returns canned bytes.
type fakeRenderer struct {
	err error
}

func (f *fakeRenderer) RenderInvoice(ctx context.Context, d *domain.InvoiceDetail) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF " + d.InvoiceNumber), nil
}

// fakeCardProcessor approves every charge unless told otherwise.
type fakeCardProcessor struct {
	charges int
	err     error
}

func (f *fakeCardProcessor) Charge(ctx context.Context, amount float64, currency, description string, metadata map[string]string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.charges++
	return "pi_test_123", nil
}

var errSMTPDown = errors.New("smtp: connection refused")
