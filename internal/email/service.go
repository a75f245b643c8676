package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"strings"

	"github.com/flashbill/flashbill/internal/domain"
	"github.com/flashbill/flashbill/internal/telemetry"
)

// Config holds the identity the mailer sends as.
type Config struct {
	FromAddress string
	FromName    string
	CompanyName string
	BaseURL     string // used to build guest payment links, may be empty
}

// Mailer composes and sends the invoice lifecycle emails.
type Mailer struct {
	sender    Sender
	config    Config
	templates *template.Template
	logger    *slog.Logger
}

// NewMailer creates a mailer over the given sender.
func NewMailer(sender Sender, config Config, logger *slog.Logger) (*Mailer, error) {
	tmpl, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	return &Mailer{
		sender:    sender,
		config:    config,
		templates: tmpl,
		logger:    logger,
	}, nil
}

// SendInvoice emails the invoice to the client, attaching the rendered
// document when one is provided.
func (m *Mailer) SendInvoice(ctx context.Context, d *domain.InvoiceDetail, pdf []byte) error {
	if d.ClientEmail == "" {
		return ErrNoRecipient
	}

	data := InvoiceEmail{
		InvoiceNumber: d.InvoiceNumber,
		ClientName:    d.ClientName,
		CompanyName:   m.config.CompanyName,
		IssueDate:     d.IssueDate,
		DueDate:       d.DueDate,
		Items:         invoiceLines(d.Items),
		Subtotal:      d.Subtotal,
		TaxLabel:      d.TaxLabel,
		TaxAmount:     d.TaxAmount,
		Discount:      d.DiscountAmount,
		Total:         d.Total,
		BalanceDue:    d.BalanceDue,
		Currency:      d.Currency,
		PaymentURL:    m.paymentURL(d.GuestPaymentToken),
		Notes:         d.Notes,
		Terms:         d.Terms,
	}

	msg, err := m.compose(d.ClientEmail, data)
	if err != nil {
		return err
	}
	if len(pdf) > 0 {
		msg.Attachments = []Attachment{{
			Filename:    d.InvoiceNumber + ".pdf",
			ContentType: "application/pdf",
			Content:     pdf,
		}}
	}

	return m.deliver(ctx, msg, "invoice", d.InvoiceNumber)
}

// SendPaymentConfirmation emails a receipt for a recorded payment.
func (m *Mailer) SendPaymentConfirmation(ctx context.Context, d *domain.InvoiceDetail, p *domain.Payment) error {
	if d.ClientEmail == "" {
		return ErrNoRecipient
	}

	balance := d.Total - d.AmountPaid - p.Amount
	if balance < 0 {
		balance = 0
	}
	data := PaymentConfirmationEmail{
		InvoiceNumber: d.InvoiceNumber,
		ClientName:    d.ClientName,
		CompanyName:   m.config.CompanyName,
		Amount:        p.Amount,
		Method:        p.Method.DisplayName(),
		Currency:      d.Currency,
		BalanceDue:    balance,
		FullyPaid:     balance == 0,
		PaidAt:        p.CreatedAt,
	}

	msg, err := m.compose(d.ClientEmail, data)
	if err != nil {
		return err
	}
	return m.deliver(ctx, msg, "payment confirmation", d.InvoiceNumber)
}

// SendReminder emails an overdue reminder at the given escalation tier.
func (m *Mailer) SendReminder(ctx context.Context, d *domain.InvoiceDetail, tier domain.ReminderTier) error {
	if d.ClientEmail == "" {
		return ErrNoRecipient
	}

	daysOverdue := -d.DaysUntilDue
	if daysOverdue < 0 {
		daysOverdue = 0
	}
	data := ReminderEmail{
		InvoiceNumber: d.InvoiceNumber,
		ClientName:    d.ClientName,
		CompanyName:   m.config.CompanyName,
		DueDate:       d.DueDate,
		DaysOverdue:   daysOverdue,
		BalanceDue:    d.BalanceDue,
		Currency:      d.Currency,
		PaymentURL:    m.paymentURL(d.GuestPaymentToken),
		Tier:          string(tier),
	}

	msg, err := m.compose(d.ClientEmail, data)
	if err != nil {
		return err
	}
	return m.deliver(ctx, msg, "reminder", d.InvoiceNumber)
}

// compose renders the template for the data and builds the message.
func (m *Mailer) compose(to string, data EmailTemplate) (*Email, error) {
	var htmlBuf bytes.Buffer
	if err := m.templates.ExecuteTemplate(&htmlBuf, data.TemplateName(), data); err != nil {
		return nil, fmt.Errorf("failed to execute template %s: %w", data.TemplateName(), err)
	}
	htmlBody := htmlBuf.String()

	return &Email{
		To:       []string{to},
		From:     fmt.Sprintf("%s <%s>", m.config.FromName, m.config.FromAddress),
		Subject:  data.Subject(),
		HTMLBody: htmlBody,
		TextBody: generatePlainText(htmlBody),
	}, nil
}

func (m *Mailer) deliver(ctx context.Context, msg *Email, kind, invoiceNumber string) error {
	metricKind := strings.ReplaceAll(kind, " ", "_")
	messageID, err := m.sender.Send(ctx, msg)
	if err != nil {
		if bm := telemetry.Business; bm != nil {
			bm.EmailFailed.WithLabelValues(metricKind).Inc()
		}
		return fmt.Errorf("failed to send %s email: %w", kind, err)
	}
	if bm := telemetry.Business; bm != nil {
		bm.EmailSent.WithLabelValues(metricKind).Inc()
	}
	m.logger.Info("email sent",
		"kind", kind,
		"invoice_number", invoiceNumber,
		"message_id", messageID,
	)
	return nil
}

func (m *Mailer) paymentURL(token string) string {
	if m.config.BaseURL == "" || token == "" {
		return ""
	}
	return strings.TrimSuffix(m.config.BaseURL, "/") + "/pay/" + token
}

func invoiceLines(items []domain.InvoiceItem) []InvoiceLine {
	lines := make([]InvoiceLine, 0, len(items))
	for _, it := range items {
		lines = append(lines, InvoiceLine{
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Amount:      it.Amount,
		})
	}
	return lines
}

// generatePlainText creates a simple plain text version from HTML.
func generatePlainText(html string) string {
	text := html

	text = strings.ReplaceAll(text, "<br>", "\n")
	text = strings.ReplaceAll(text, "<br/>", "\n")
	text = strings.ReplaceAll(text, "<br />", "\n")
	text = strings.ReplaceAll(text, "</p>", "\n\n")
	text = strings.ReplaceAll(text, "</div>", "\n")
	text = strings.ReplaceAll(text, "</td>", " ")
	text = strings.ReplaceAll(text, "</th>", " ")
	text = strings.ReplaceAll(text, "</tr>", "\n")
	text = strings.ReplaceAll(text, "</h1>", "\n\n")
	text = strings.ReplaceAll(text, "</h2>", "\n\n")
	text = strings.ReplaceAll(text, "</h3>", "\n\n")

	for strings.Contains(text, "<") && strings.Contains(text, ">") {
		start := strings.Index(text, "<")
		end := strings.Index(text, ">")
		if start >= 0 && end > start {
			text = text[:start] + text[end+1:]
		} else {
			break
		}
	}

	text = strings.ReplaceAll(text, "&nbsp;", " ")
	text = strings.ReplaceAll(text, "&amp;", "&")
	text = strings.ReplaceAll(text, "&lt;", "<")
	text = strings.ReplaceAll(text, "&gt;", ">")
	text = strings.ReplaceAll(text, "&quot;", "\"")
	text = strings.ReplaceAll(text, "&#34;", "\"")
	text = strings.ReplaceAll(text, "&#39;", "'")

	lines := strings.Split(text, "\n")
	var cleaned []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}

	return strings.Join(cleaned, "\n")
}
