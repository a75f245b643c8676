package email

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashbill/flashbill/internal/domain"
)

// recordingSender captures sent messages for inspection.
type recordingSender struct {
	mu   sync.Mutex
	sent []*Email
	err  error
}

func (r *recordingSender) Send(ctx context.Context, email *Email) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	r.sent = append(r.sent, email)
	return "msg-1", nil
}

func (r *recordingSender) last() *Email {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return nil
	}
	return r.sent[len(r.sent)-1]
}

func testMailer(t *testing.T, sender Sender) *Mailer {
	t.Helper()
	m, err := NewMailer(sender, Config{
		FromAddress: "billing@flashbill.test",
		FromName:    "FlashBill",
		CompanyName: "FlashBill",
		BaseURL:     "https://app.flashbill.test/",
	}, discardLogger())
	require.NoError(t, err)
	return m
}

func testDetail() *domain.InvoiceDetail {
	return &domain.InvoiceDetail{
		Invoice: domain.Invoice{
			InvoiceNumber:     "INV-2026-0042-117",
			IssueDate:         time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			DueDate:           time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
			Subtotal:          100,
			TaxLabel:          "VAT",
			TaxAmount:         10,
			Total:             110,
			Currency:          "USD",
			GuestPaymentToken: "tok-abc",
		},
		Items: []domain.InvoiceItem{
			{Description: "Consulting", Quantity: 2, UnitPrice: 50, Amount: 100},
		},
		ClientName:  "Acme Corp",
		ClientEmail: "billing@acme.test",
		BalanceDue:  110,
	}
}

func TestMailerSendInvoice(t *testing.T) {
	ctx := context.Background()
	sender := &recordingSender{}
	m := testMailer(t, sender)

	pdf := []byte("%PDF fake")
	require.NoError(t, m.SendInvoice(ctx, testDetail(), pdf))

	msg := sender.last()
	require.NotNil(t, msg)
	assert.Equal(t, []string{"billing@acme.test"}, msg.To)
	assert.Equal(t, "Invoice INV-2026-0042-117 from FlashBill", msg.Subject)
	assert.Contains(t, msg.From, "billing@flashbill.test")
	assert.Contains(t, msg.HTMLBody, "Consulting")
	assert.Contains(t, msg.HTMLBody, "https://app.flashbill.test/pay/tok-abc")
	assert.Contains(t, msg.TextBody, "Consulting")
	assert.NotContains(t, msg.TextBody, "<")
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "INV-2026-0042-117.pdf", msg.Attachments[0].Filename)
	assert.Equal(t, "application/pdf", msg.Attachments[0].ContentType)
}

func TestMailerSendInvoiceWithoutPDF(t *testing.T) {
	ctx := context.Background()
	sender := &recordingSender{}
	m := testMailer(t, sender)

	require.NoError(t, m.SendInvoice(ctx, testDetail(), nil))
	assert.Empty(t, sender.last().Attachments)
}

func TestMailerRequiresRecipient(t *testing.T) {
	ctx := context.Background()
	sender := &recordingSender{}
	m := testMailer(t, sender)

	d := testDetail()
	d.ClientEmail = ""
	assert.ErrorIs(t, m.SendInvoice(ctx, d, nil), ErrNoRecipient)
	assert.Empty(t, sender.sent)
}

func TestMailerSendPaymentConfirmation(t *testing.T) {
	ctx := context.Background()
	sender := &recordingSender{}
	m := testMailer(t, sender)

	d := testDetail()
	p := &domain.Payment{Amount: 110, Method: domain.PaymentMethodBankTransfer}
	require.NoError(t, m.SendPaymentConfirmation(ctx, d, p))

	msg := sender.last()
	assert.Equal(t, "Payment received for invoice INV-2026-0042-117", msg.Subject)
	assert.Contains(t, msg.HTMLBody, "paid in full")

	// A partial payment mentions the remaining balance instead.
	p.Amount = 50
	require.NoError(t, m.SendPaymentConfirmation(ctx, d, p))
	assert.Contains(t, sender.last().HTMLBody, "Remaining balance")
}

func TestMailerSendReminderTiers(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		tier        domain.ReminderTier
		wantSubject string
		wantBody    string
	}{
		{domain.ReminderFriendly, "Upcoming invoice", "friendly note"},
		{domain.ReminderStandard, "Reminder: invoice", "still outstanding"},
		{domain.ReminderUrgent, "Urgent: invoice", "as soon as possible"},
		{domain.ReminderFinalNotice, "Final notice", "final notice"},
	}
	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			sender := &recordingSender{}
			m := testMailer(t, sender)

			require.NoError(t, m.SendReminder(ctx, testDetail(), tt.tier))
			msg := sender.last()
			assert.Contains(t, msg.Subject, tt.wantSubject)
			assert.Contains(t, strings.ToLower(msg.HTMLBody), tt.wantBody)
		})
	}
}

func TestGeneratePlainText(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		contains []string
		excludes []string
	}{
		{
			name:     "simple paragraph",
			html:     "<p>Hello, World!</p>",
			contains: []string{"Hello, World!"},
			excludes: []string{"<p>", "</p>"},
		},
		{
			name:     "line breaks",
			html:     "Line 1<br>Line 2<br/>Line 3<br />Line 4",
			contains: []string{"Line 1", "Line 2", "Line 3", "Line 4"},
			excludes: []string{"<br>", "<br/>", "<br />"},
		},
		{
			name:     "headings",
			html:     "<h1>Title</h1><h2>Subtitle</h2><h3>Section</h3>",
			contains: []string{"Title", "Subtitle", "Section"},
			excludes: []string{"<h1>", "</h1>", "<h2>", "</h2>", "<h3>", "</h3>"},
		},
		{
			name:     "table cells keep their spacing",
			html:     "<table><tr><td>Consulting</td><td>USD 100.00</td></tr></table>",
			contains: []string{"Consulting USD 100.00"},
			excludes: []string{"<td>", "</tr>"},
		},
		{
			name:     "HTML entities",
			html:     "Price: $10 &amp; shipping &nbsp; included &lt;$5&gt; &quot;free&quot;",
			contains: []string{"Price: $10 & shipping", "included <$5>", "\"free\""},
			excludes: []string{"&amp;", "&nbsp;", "&lt;", "&gt;", "&quot;"},
		},
		{
			name:     "links stripped",
			html:     `<a href="https://example.com/pay/tok">Pay this invoice online</a>`,
			contains: []string{"Pay this invoice online"},
			excludes: []string{"<a", "href", "</a>"},
		},
		{
			name:     "empty content",
			html:     "",
			contains: []string{},
			excludes: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := generatePlainText(tt.html)

			for _, want := range tt.contains {
				assert.Contains(t, result, want)
			}
			for _, exclude := range tt.excludes {
				assert.NotContains(t, result, exclude)
			}
		})
	}
}
