package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashbill/flashbill/internal/domain"
)

type invoiceFixture struct {
	svc      *InvoiceService
	invoices *fakeInvoiceStore
	clients  *fakeClientStore
	taxes    *fakeTaxStore
	mailer   *fakeMailer
	renderer *fakeRenderer
	cards    *fakeCardProcessor
	orgID    uuid.UUID
	client   *domain.Client
	now      time.Time
}

func newInvoiceFixture(t *testing.T) *invoiceFixture {
	t.Helper()

	f := &invoiceFixture{
		invoices: newFakeInvoiceStore(),
		clients:  newFakeClientStore(),
		taxes:    newFakeTaxStore(),
		mailer:   &fakeMailer{},
		renderer: &fakeRenderer{},
		cards:    &fakeCardProcessor{},
		orgID:    uuid.New(),
		now:      time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC),
	}
	f.client = f.clients.add(&domain.Client{
		OrgID: f.orgID,
		Name:  "Acme Corp",
		Email: "billing@acme.test",
	})
	f.svc = NewInvoiceService(f.invoices, f.clients, f.taxes, f.renderer, f.mailer, f.cards, testLogger())
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *invoiceFixture) createParams() domain.CreateInvoiceParams {
	return domain.CreateInvoiceParams{
		ClientID:  f.client.ID,
		IssueDate: f.now,
		DueDate:   f.now.AddDate(0, 0, 30),
		Items: []domain.CreateInvoiceItemParams{
			{Description: "Consulting", Quantity: 10, UnitPrice: 150},
			{Description: "Hosting", Quantity: 1, UnitPrice: 50},
		},
	}
}

// seedInvoice plants an invoice directly in the store, bypassing creation.
func (f *invoiceFixture) seedInvoice(status domain.InvoiceStatus, total, paid float64) *domain.InvoiceDetail {
	return f.invoices.add(&domain.InvoiceDetail{
		Invoice: domain.Invoice{
			OrgID:             f.orgID,
			ClientID:          f.client.ID,
			InvoiceNumber:     "INV-2026-0042-117",
			Status:            status,
			IssueDate:         f.now.AddDate(0, 0, -10),
			DueDate:           f.now.AddDate(0, 0, 20),
			Total:             total,
			AmountPaid:        paid,
			Currency:          "USD",
			GuestPaymentToken: "tok-" + uuid.NewString(),
		},
		ClientName:  f.client.Name,
		ClientEmail: f.client.Email,
	})
}

func TestCreateInvoice(t *testing.T) {
	ctx := context.Background()

	t.Run("computes totals with default tax", func(t *testing.T) {
		f := newInvoiceFixture(t)
		f.taxes.add(&domain.TaxSetting{OrgID: f.orgID, Label: "VAT", Rate: 0.1, IsDefault: true, IsActive: true})

		d, err := f.svc.CreateInvoice(ctx, f.orgID, f.createParams())
		require.NoError(t, err)

		assert.InDelta(t, 1550.0, d.Subtotal, 0.001)
		assert.InDelta(t, 155.0, d.TaxAmount, 0.001)
		assert.InDelta(t, 1705.0, d.Total, 0.001)
		assert.Equal(t, "VAT", d.TaxLabel)
		assert.Equal(t, domain.InvoiceStatusDraft, d.Status)
		assert.InDelta(t, 1705.0, d.BalanceDue, 0.001)
	})

	t.Run("explicit item rate overrides default", func(t *testing.T) {
		f := newInvoiceFixture(t)
		f.taxes.add(&domain.TaxSetting{OrgID: f.orgID, Label: "VAT", Rate: 0.1, IsDefault: true, IsActive: true})

		zero := 0.0
		params := f.createParams()
		params.Items = []domain.CreateInvoiceItemParams{
			{Description: "Exempt services", Quantity: 1, UnitPrice: 100, TaxRate: &zero},
		}

		d, err := f.svc.CreateInvoice(ctx, f.orgID, params)
		require.NoError(t, err)
		assert.InDelta(t, 0.0, d.TaxAmount, 0.001)
		assert.InDelta(t, 100.0, d.Total, 0.001)
	})

	t.Run("no default tax means zero tax", func(t *testing.T) {
		f := newInvoiceFixture(t)

		d, err := f.svc.CreateInvoice(ctx, f.orgID, f.createParams())
		require.NoError(t, err)
		assert.InDelta(t, 0.0, d.TaxAmount, 0.001)
		assert.Equal(t, "No Tax", d.TaxLabel)
	})

	t.Run("applies discount", func(t *testing.T) {
		f := newInvoiceFixture(t)

		params := f.createParams()
		params.DiscountAmount = 50
		d, err := f.svc.CreateInvoice(ctx, f.orgID, params)
		require.NoError(t, err)
		assert.InDelta(t, 1500.0, d.Total, 0.001)
	})

	t.Run("rejects excessive discount", func(t *testing.T) {
		f := newInvoiceFixture(t)

		params := f.createParams()
		params.DiscountAmount = 99999
		_, err := f.svc.CreateInvoice(ctx, f.orgID, params)
		assert.ErrorIs(t, err, domain.ErrInvalidDiscount)
	})

	t.Run("rejects empty items", func(t *testing.T) {
		f := newInvoiceFixture(t)

		params := f.createParams()
		params.Items = nil
		_, err := f.svc.CreateInvoice(ctx, f.orgID, params)
		assert.ErrorIs(t, err, domain.ErrNoInvoiceItems)
	})

	t.Run("rejects non-positive quantity", func(t *testing.T) {
		f := newInvoiceFixture(t)

		params := f.createParams()
		params.Items[0].Quantity = 0
		_, err := f.svc.CreateInvoice(ctx, f.orgID, params)
		assert.True(t, domain.IsValidationError(err))
	})

	t.Run("rejects unknown client", func(t *testing.T) {
		f := newInvoiceFixture(t)

		params := f.createParams()
		params.ClientID = uuid.New()
		_, err := f.svc.CreateInvoice(ctx, f.orgID, params)
		assert.ErrorIs(t, err, domain.ErrClientNotFound)
	})

	t.Run("rejects client from another org", func(t *testing.T) {
		f := newInvoiceFixture(t)
		other := f.clients.add(&domain.Client{OrgID: uuid.New(), Name: "Other"})

		params := f.createParams()
		params.ClientID = other.ID
		_, err := f.svc.CreateInvoice(ctx, f.orgID, params)
		assert.ErrorIs(t, err, domain.ErrClientNotFound)
	})

	t.Run("rejects due date before issue date", func(t *testing.T) {
		f := newInvoiceFixture(t)

		params := f.createParams()
		params.DueDate = params.IssueDate.AddDate(0, 0, -1)
		_, err := f.svc.CreateInvoice(ctx, f.orgID, params)
		assert.True(t, domain.IsValidationError(err))
	})

	t.Run("send immediately delivers and marks sent", func(t *testing.T) {
		f := newInvoiceFixture(t)

		params := f.createParams()
		params.SendImmediately = true
		d, err := f.svc.CreateInvoice(ctx, f.orgID, params)
		require.NoError(t, err)
		assert.Equal(t, domain.InvoiceStatusSent, d.Status)
		assert.Equal(t, 1, f.mailer.invoiceSends)
	})

	t.Run("send immediately failure still creates invoice", func(t *testing.T) {
		f := newInvoiceFixture(t)
		f.mailer.err = errSMTPDown

		params := f.createParams()
		params.SendImmediately = true
		d, err := f.svc.CreateInvoice(ctx, f.orgID, params)
		require.NoError(t, err)
		// Marked sent without delivery confirmation.
		assert.Equal(t, domain.InvoiceStatusSent, d.Status)
		assert.Equal(t, []bool{false}, f.invoices.markSent)
	})
}

func TestRecordPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("partial payment moves to partial", func(t *testing.T) {
		f := newInvoiceFixture(t)
		inv := f.seedInvoice(domain.InvoiceStatusSent, 100, 0)

		p, err := f.svc.RecordPayment(ctx, f.orgID, domain.RecordPaymentParams{
			InvoiceID: inv.ID, Amount: 40, Method: domain.PaymentMethodCheck,
		})
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusCompleted, p.Status)

		got, err := f.svc.GetInvoice(ctx, f.orgID, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.InvoiceStatusPartial, got.Status)
		assert.InDelta(t, 60.0, got.BalanceDue, 0.001)
	})

	t.Run("full payment moves to paid", func(t *testing.T) {
		f := newInvoiceFixture(t)
		inv := f.seedInvoice(domain.InvoiceStatusPartial, 100, 40)

		_, err := f.svc.RecordPayment(ctx, f.orgID, domain.RecordPaymentParams{
			InvoiceID: inv.ID, Amount: 60, Method: domain.PaymentMethodBankTransfer,
		})
		require.NoError(t, err)

		got, err := f.svc.GetInvoice(ctx, f.orgID, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.InvoiceStatusPaid, got.Status)
		assert.NotNil(t, got.PaidAt)
	})

	t.Run("sends confirmation email best effort", func(t *testing.T) {
		f := newInvoiceFixture(t)
		inv := f.seedInvoice(domain.InvoiceStatusSent, 100, 0)

		_, err := f.svc.RecordPayment(ctx, f.orgID, domain.RecordPaymentParams{
			InvoiceID: inv.ID, Amount: 100, Method: domain.PaymentMethodCash,
		})
		require.NoError(t, err)
		assert.Equal(t, 1, f.mailer.confirmationSends)
	})

	t.Run("email failure does not fail the payment", func(t *testing.T) {
		f := newInvoiceFixture(t)
		f.mailer.err = errSMTPDown
		inv := f.seedInvoice(domain.InvoiceStatusSent, 100, 0)

		_, err := f.svc.RecordPayment(ctx, f.orgID, domain.RecordPaymentParams{
			InvoiceID: inv.ID, Amount: 100, Method: domain.PaymentMethodCash,
		})
		assert.NoError(t, err)
	})

	t.Run("rejects zero amount", func(t *testing.T) {
		f := newInvoiceFixture(t)
		inv := f.seedInvoice(domain.InvoiceStatusSent, 100, 0)

		_, err := f.svc.RecordPayment(ctx, f.orgID, domain.RecordPaymentParams{
			InvoiceID: inv.ID, Amount: 0, Method: domain.PaymentMethodCash,
		})
		assert.ErrorIs(t, err, domain.ErrPaymentNotPositive)
	})

	t.Run("rejects overpayment", func(t *testing.T) {
		f := newInvoiceFixture(t)
		inv := f.seedInvoice(domain.InvoiceStatusPartial, 100, 40)

		_, err := f.svc.RecordPayment(ctx, f.orgID, domain.RecordPaymentParams{
			InvoiceID: inv.ID, Amount: 60.01, Method: domain.PaymentMethodCash,
		})
		assert.ErrorIs(t, err, domain.ErrPaymentExceedsBalance)
	})

	t.Run("rejects unknown method", func(t *testing.T) {
		f := newInvoiceFixture(t)
		inv := f.seedInvoice(domain.InvoiceStatusSent, 100, 0)

		_, err := f.svc.RecordPayment(ctx, f.orgID, domain.RecordPaymentParams{
			InvoiceID: inv.ID, Amount: 10, Method: "venmo",
		})
		assert.ErrorIs(t, err, domain.ErrUnknownPaymentMethod)
	})

	t.Run("rejects draft invoice", func(t *testing.T) {
		f := newInvoiceFixture(t)
		inv := f.seedInvoice(domain.InvoiceStatusDraft, 100, 0)

		_, err := f.svc.RecordPayment(ctx, f.orgID, domain.RecordPaymentParams{
			InvoiceID: inv.ID, Amount: 10, Method: domain.PaymentMethodCash,
		})
		assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
	})

	t.Run("rejects cancelled invoice", func(t *testing.T) {
		f := newInvoiceFixture(t)
		inv := f.seedInvoice(domain.InvoiceStatusCancelled, 100, 0)

		_, err := f.svc.RecordPayment(ctx, f.orgID, domain.RecordPaymentParams{
			InvoiceID: inv.ID, Amount: 10, Method: domain.PaymentMethodCash,
		})
		assert.ErrorIs(t, err, domain.ErrInvoiceCancelled)
	})

	t.Run("rejects paid invoice", func(t *testing.T) {
		f := newInvoiceFixture(t)
		inv := f.seedInvoice(domain.InvoiceStatusPaid, 100, 100)

		_, err := f.svc.RecordPayment(ctx, f.orgID, domain.RecordPaymentParams{
			InvoiceID: inv.ID, Amount: 10, Method: domain.PaymentMethodCash,
		})
		assert.ErrorIs(t, err, domain.ErrInvoiceAlreadyPaid)
	})

	t.Run("cross-org invoice is not found", func(t *testing.T) {
		f := newInvoiceFixture(t)
		inv := f.seedInvoice(domain.InvoiceStatusSent, 100, 0)

		_, err := f.svc.RecordPayment(ctx, uuid.New(), domain.RecordPaymentParams{
			InvoiceID: inv.ID, Amount: 10, Method: domain.PaymentMethodCash,
		})
		assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
	})
}

func TestSendInvoice(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers and marks sent", func(t *testing.T) {
		f := newInvoiceFixture(t)
		inv := f.seedInvoice(domain.InvoiceStatusDraft, 100, 0)

		res, err := f.svc.SendInvoice(ctx, f.orgID, inv.ID, "")
		require.NoError(t, err)
		assert.True(t, res.EmailSent)
		assert.Equal(t, domain.InvoiceStatusSent, res.Invoice.Status)
		assert.Equal(t, []bool{true}, f.invoices.markSent)
	})

	t.Run("email failure still marks sent", func(t *testing.T) {
		f := newInvoiceFixture(t)
		f.mailer.err = errSMTPDown
		inv := f.seedInvoice(domain.InvoiceStatusDraft, 100, 0)

		res, err := f.svc.SendInvoice(ctx, f.orgID, inv.ID, "")
		require.NoError(t, err)
		assert.False(t, res.EmailSent)
		assert.Equal(t, domain.InvoiceStatusSent, res.Invoice.Status)
		assert.Equal(t, []bool{false}, f.invoices.markSent)
	})

	t.Run("render failure still delivers without attachment", func(t *testing.T) {
		f := newInvoiceFixture(t)
		f.renderer.err = errSMTPDown
		inv := f.seedInvoice(domain.InvoiceStatusDraft, 100, 0)

		res, err := f.svc.SendInvoice(ctx, f.orgID, inv.ID, "")
		require.NoError(t, err)
		assert.True(t, res.EmailSent)
	})

	t.Run("explicit recipient overrides client email", func(t *testing.T) {
		f := newInvoiceFixture(t)
		inv := f.seedInvoice(domain.InvoiceStatusDraft, 100, 0)

		res, err := f.svc.SendInvoice(ctx, f.orgID, inv.ID, "accounts@acme.test")
		require.NoError(t, err)
		assert.True(t, res.EmailSent)
		assert.Equal(t, "accounts@acme.test", f.mailer.lastRecipient)
	})

	t.Run("rejects cancelled invoice", func(t *testing.T) {
		f := newInvoiceFixture(t)
		inv := f.seedInvoice(domain.InvoiceStatusCancelled, 100, 0)

		_, err := f.svc.SendInvoice(ctx, f.orgID, inv.ID, "")
		assert.ErrorIs(t, err, domain.ErrInvoiceNotSendable)
	})

	t.Run("rejects paid invoice", func(t *testing.T) {
		f := newInvoiceFixture(t)
		inv := f.seedInvoice(domain.InvoiceStatusPaid, 100, 100)

		_, err := f.svc.SendInvoice(ctx, f.orgID, inv.ID, "")
		assert.ErrorIs(t, err, domain.ErrInvoiceNotSendable)
	})
}

func TestMarkSent(t *testing.T) {
	ctx := context.Background()

	f := newInvoiceFixture(t)
	inv := f.seedInvoice(domain.InvoiceStatusDraft, 100, 0)

	d, err := f.svc.MarkSent(ctx, f.orgID, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusSent, d.Status)
	// No delivery was attempted.
	assert.Equal(t, 0, f.mailer.invoiceSends)
	assert.Equal(t, []bool{false}, f.invoices.markSent)
}

func TestMarkViewed(t *testing.T) {
	ctx := context.Background()

	t.Run("sent becomes viewed", func(t *testing.T) {
		f := newInvoiceFixture(t)
		inv := f.seedInvoice(domain.InvoiceStatusSent, 100, 0)

		require.NoError(t, f.svc.MarkViewed(ctx, f.orgID, inv.ID))
		got, err := f.svc.GetInvoice(ctx, f.orgID, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.InvoiceStatusViewed, got.Status)
		assert.NotNil(t, got.ViewedAt)
	})

	t.Run("partial keeps its status", func(t *testing.T) {
		f := newInvoiceFixture(t)
		inv := f.seedInvoice(domain.InvoiceStatusPartial, 100, 40)

		require.NoError(t, f.svc.MarkViewed(ctx, f.orgID, inv.ID))
		got, err := f.svc.GetInvoice(ctx, f.orgID, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.InvoiceStatusPartial, got.Status)
	})
}

func TestSendReminder(t *testing.T) {
	ctx := context.Background()

	t.Run("selects tier from days overdue", func(t *testing.T) {
		tests := []struct {
			name    string
			overdue int // days past due
			want    domain.ReminderTier
		}{
			{"on the due date", 0, domain.ReminderFriendly},
			{"a few days over", 3, domain.ReminderStandard},
			{"two weeks over", 14, domain.ReminderUrgent},
			{"long overdue", 45, domain.ReminderFinalNotice},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				f := newInvoiceFixture(t)
				inv := f.seedInvoice(domain.InvoiceStatusSent, 100, 0)
				inv.DueDate = f.now.AddDate(0, 0, -tt.overdue)

				tier, err := f.svc.SendReminder(ctx, f.orgID, inv.ID)
				require.NoError(t, err)
				assert.Equal(t, tt.want, tier)
				assert.Equal(t, tt.want, f.mailer.lastTier)
				assert.Equal(t, int32(1), f.invoices.invoices[inv.ID].ReminderSentCount)
			})
		}
	})

	t.Run("rejects invoice not yet due", func(t *testing.T) {
		f := newInvoiceFixture(t)
		inv := f.seedInvoice(domain.InvoiceStatusSent, 100, 0)
		inv.DueDate = f.now.AddDate(0, 0, 20)

		_, err := f.svc.SendReminder(ctx, f.orgID, inv.ID)
		assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
		assert.Equal(t, 0, f.mailer.reminderSends)
		assert.Equal(t, int32(0), f.invoices.invoices[inv.ID].ReminderSentCount)
	})

	t.Run("rejects draft", func(t *testing.T) {
		f := newInvoiceFixture(t)
		inv := f.seedInvoice(domain.InvoiceStatusDraft, 100, 0)

		_, err := f.svc.SendReminder(ctx, f.orgID, inv.ID)
		assert.ErrorIs(t, err, domain.ErrInvoiceNotRemindable)
	})

	t.Run("rejects paid", func(t *testing.T) {
		f := newInvoiceFixture(t)
		inv := f.seedInvoice(domain.InvoiceStatusPaid, 100, 100)

		_, err := f.svc.SendReminder(ctx, f.orgID, inv.ID)
		assert.ErrorIs(t, err, domain.ErrInvoiceNotRemindable)
	})

	t.Run("email failure fails the call and skips the counter", func(t *testing.T) {
		f := newInvoiceFixture(t)
		f.mailer.err = errSMTPDown
		inv := f.seedInvoice(domain.InvoiceStatusSent, 100, 0)
		inv.DueDate = f.now.AddDate(0, 0, -1)

		_, err := f.svc.SendReminder(ctx, f.orgID, inv.ID)
		require.Error(t, err)
		assert.Equal(t, int32(0), f.invoices.invoices[inv.ID].ReminderSentCount)
	})
}

func TestCancelAndDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("cancels unpaid invoice", func(t *testing.T) {
		f := newInvoiceFixture(t)
		inv := f.seedInvoice(domain.InvoiceStatusSent, 100, 0)

		d, err := f.svc.CancelInvoice(ctx, f.orgID, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.InvoiceStatusCancelled, d.Status)
	})

	t.Run("cannot cancel paid invoice", func(t *testing.T) {
		f := newInvoiceFixture(t)
		inv := f.seedInvoice(domain.InvoiceStatusPaid, 100, 100)

		_, err := f.svc.CancelInvoice(ctx, f.orgID, inv.ID)
		assert.ErrorIs(t, err, domain.ErrInvoiceAlreadyPaid)
	})

	t.Run("deletes draft", func(t *testing.T) {
		f := newInvoiceFixture(t)
		inv := f.seedInvoice(domain.InvoiceStatusDraft, 100, 0)

		require.NoError(t, f.svc.DeleteInvoice(ctx, f.orgID, inv.ID))
		_, err := f.svc.GetInvoice(ctx, f.orgID, inv.ID)
		assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
	})

	t.Run("refuses to delete sent invoice", func(t *testing.T) {
		f := newInvoiceFixture(t)
		inv := f.seedInvoice(domain.InvoiceStatusSent, 100, 0)

		err := f.svc.DeleteInvoice(ctx, f.orgID, inv.ID)
		assert.Equal(t, domain.ECONFLICT, domain.ErrorCode(err))
	})

	t.Run("refuses to delete cancelled invoice with payments", func(t *testing.T) {
		f := newInvoiceFixture(t)
		inv := f.seedInvoice(domain.InvoiceStatusSent, 100, 0)

		_, err := f.svc.RecordPayment(ctx, f.orgID, domain.RecordPaymentParams{
			InvoiceID: inv.ID, Amount: 40, Method: domain.PaymentMethodCash,
		})
		require.NoError(t, err)
		_, err = f.svc.CancelInvoice(ctx, f.orgID, inv.ID)
		require.NoError(t, err)

		err = f.svc.DeleteInvoice(ctx, f.orgID, inv.ID)
		assert.ErrorIs(t, err, domain.ErrInvoiceHasPayments)
	})
}

func TestUpdateInvoice(t *testing.T) {
	ctx := context.Background()

	t.Run("monetary update on sent invoice is rejected", func(t *testing.T) {
		f := newInvoiceFixture(t)
		inv := f.seedInvoice(domain.InvoiceStatusSent, 100, 0)

		discount := 10.0
		_, err := f.svc.UpdateInvoice(ctx, f.orgID, inv.ID, domain.UpdateInvoiceParams{DiscountAmount: &discount})
		assert.ErrorIs(t, err, domain.ErrInvoiceNotDraft)
	})

	t.Run("notes update allowed on sent invoice", func(t *testing.T) {
		f := newInvoiceFixture(t)
		inv := f.seedInvoice(domain.InvoiceStatusSent, 100, 0)

		notes := "Net 30, wire preferred"
		d, err := f.svc.UpdateInvoice(ctx, f.orgID, inv.ID, domain.UpdateInvoiceParams{Notes: &notes})
		require.NoError(t, err)
		assert.Equal(t, notes, d.Notes)
		assert.Equal(t, domain.InvoiceStatusSent, d.Status)
	})

	t.Run("item replacement recomputes totals on draft", func(t *testing.T) {
		f := newInvoiceFixture(t)
		d, err := f.svc.CreateInvoice(ctx, f.orgID, f.createParams())
		require.NoError(t, err)

		updated, err := f.svc.UpdateInvoice(ctx, f.orgID, d.ID, domain.UpdateInvoiceParams{
			Items: []domain.CreateInvoiceItemParams{
				{Description: "Retainer", Quantity: 1, UnitPrice: 500},
			},
		})
		require.NoError(t, err)
		assert.InDelta(t, 500.0, updated.Total, 0.001)
		assert.Len(t, updated.Items, 1)
	})
}

func TestOverdueDerivation(t *testing.T) {
	ctx := context.Background()

	f := newInvoiceFixture(t)
	inv := f.seedInvoice(domain.InvoiceStatusSent, 100, 0)
	inv.DueDate = f.now.AddDate(0, 0, -5)

	got, err := f.svc.GetInvoice(ctx, f.orgID, inv.ID)
	require.NoError(t, err)
	// Stored status is untouched; only the effective status flips.
	assert.Equal(t, domain.InvoiceStatusSent, got.Status)
	assert.Equal(t, domain.InvoiceStatusOverdue, got.EffectiveStatus)
	assert.True(t, got.IsOverdue)
	assert.Equal(t, -5, got.DaysUntilDue)
}

func TestGuestPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("charges card and settles invoice", func(t *testing.T) {
		f := newInvoiceFixture(t)
		inv := f.seedInvoice(domain.InvoiceStatusSent, 100, 0)

		p, err := f.svc.RecordGuestPayment(ctx, inv.GuestPaymentToken, 100)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentMethodStripe, p.Method)
		assert.Equal(t, "pi_test_123", p.GatewayPaymentID)
		assert.Equal(t, 1, f.cards.charges)

		got, err := f.svc.GetInvoice(ctx, f.orgID, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.InvoiceStatusPaid, got.Status)
	})

	t.Run("draft invoice is rejected before the card is charged", func(t *testing.T) {
		f := newInvoiceFixture(t)
		inv := f.seedInvoice(domain.InvoiceStatusDraft, 100, 0)

		_, err := f.svc.RecordGuestPayment(ctx, inv.GuestPaymentToken, 100)
		assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
		assert.Equal(t, 0, f.cards.charges)
	})

	t.Run("cancelled invoice is rejected before the card is charged", func(t *testing.T) {
		f := newInvoiceFixture(t)
		inv := f.seedInvoice(domain.InvoiceStatusCancelled, 100, 0)

		_, err := f.svc.RecordGuestPayment(ctx, inv.GuestPaymentToken, 100)
		assert.ErrorIs(t, err, domain.ErrInvoiceCancelled)
		assert.Equal(t, 0, f.cards.charges)
	})

	t.Run("paid invoice is rejected before the card is charged", func(t *testing.T) {
		f := newInvoiceFixture(t)
		inv := f.seedInvoice(domain.InvoiceStatusPaid, 100, 100)

		_, err := f.svc.RecordGuestPayment(ctx, inv.GuestPaymentToken, 100)
		assert.ErrorIs(t, err, domain.ErrInvoiceAlreadyPaid)
		assert.Equal(t, 0, f.cards.charges)
	})

	t.Run("rejects partial when not allowed", func(t *testing.T) {
		f := newInvoiceFixture(t)
		inv := f.seedInvoice(domain.InvoiceStatusSent, 100, 0)

		_, err := f.svc.RecordGuestPayment(ctx, inv.GuestPaymentToken, 40)
		assert.ErrorIs(t, err, domain.ErrPartialNotAllowed)
		assert.Equal(t, 0, f.cards.charges)
	})

	t.Run("enforces minimum partial amount", func(t *testing.T) {
		f := newInvoiceFixture(t)
		inv := f.seedInvoice(domain.InvoiceStatusSent, 100, 0)
		inv.AllowPartialPayment = true
		inv.MinPaymentAmount = 25

		_, err := f.svc.RecordGuestPayment(ctx, inv.GuestPaymentToken, 10)
		assert.ErrorIs(t, err, domain.ErrBelowMinimumPayment)

		p, err := f.svc.RecordGuestPayment(ctx, inv.GuestPaymentToken, 25)
		require.NoError(t, err)
		assert.InDelta(t, 25.0, p.Amount, 0.001)
	})

	t.Run("declined card surfaces payment error", func(t *testing.T) {
		f := newInvoiceFixture(t)
		f.cards.err = errSMTPDown
		inv := f.seedInvoice(domain.InvoiceStatusSent, 100, 0)

		_, err := f.svc.RecordGuestPayment(ctx, inv.GuestPaymentToken, 100)
		assert.Equal(t, domain.EPAYMENT, domain.ErrorCode(err))
	})

	t.Run("unknown token is not found", func(t *testing.T) {
		f := newInvoiceFixture(t)

		_, err := f.svc.RecordGuestPayment(ctx, "nope", 100)
		assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
	})
}

func TestGetInvoiceByGuestToken(t *testing.T) {
	ctx := context.Background()

	f := newInvoiceFixture(t)
	inv := f.seedInvoice(domain.InvoiceStatusSent, 100, 0)

	d, err := f.svc.GetInvoiceByGuestToken(ctx, inv.GuestPaymentToken)
	require.NoError(t, err)
	// Opening the link records the view.
	assert.Equal(t, domain.InvoiceStatusViewed, d.Status)
}
