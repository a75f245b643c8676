package email

import (
	"fmt"
	"html/template"
	"time"
)

// EmailTemplate defines the interface for email templates.
type EmailTemplate interface {
	Subject() string
	TemplateName() string
}

// InvoiceEmail carries the data for the invoice delivery email.
type InvoiceEmail struct {
	InvoiceNumber string
	ClientName    string
	CompanyName   string
	IssueDate     time.Time
	DueDate       time.Time
	Items         []InvoiceLine
	Subtotal      float64
	TaxLabel      string
	TaxAmount     float64
	Discount      float64
	Total         float64
	BalanceDue    float64
	Currency      string
	PaymentURL    string // guest payment link, may be empty
	Notes         string
	Terms         string
}

func (e InvoiceEmail) Subject() string {
	return fmt.Sprintf("Invoice %s from %s", e.InvoiceNumber, e.CompanyName)
}

func (e InvoiceEmail) TemplateName() string {
	return "invoice"
}

// PaymentConfirmationEmail carries the data for the payment receipt email.
type PaymentConfirmationEmail struct {
	InvoiceNumber string
	ClientName    string
	CompanyName   string
	Amount        float64
	Method        string
	Currency      string
	BalanceDue    float64
	FullyPaid     bool
	PaidAt        time.Time
}

func (e PaymentConfirmationEmail) Subject() string {
	return fmt.Sprintf("Payment received for invoice %s", e.InvoiceNumber)
}

func (e PaymentConfirmationEmail) TemplateName() string {
	return "payment_confirmation"
}

// ReminderEmail carries the data for an overdue reminder email. Tier
// selects the escalation copy.
type ReminderEmail struct {
	InvoiceNumber string
	ClientName    string
	CompanyName   string
	DueDate       time.Time
	DaysOverdue   int
	BalanceDue    float64
	Currency      string
	PaymentURL    string
	Tier          string
}

func (e ReminderEmail) Subject() string {
	switch e.Tier {
	case "friendly":
		return fmt.Sprintf("Upcoming invoice %s from %s", e.InvoiceNumber, e.CompanyName)
	case "urgent":
		return fmt.Sprintf("Urgent: invoice %s is overdue", e.InvoiceNumber)
	case "final_notice":
		return fmt.Sprintf("Final notice: invoice %s", e.InvoiceNumber)
	default:
		return fmt.Sprintf("Reminder: invoice %s is due", e.InvoiceNumber)
	}
}

func (e ReminderEmail) TemplateName() string {
	return "reminder"
}

// InvoiceLine is a rendered line item.
type InvoiceLine struct {
	Description string
	Quantity    float64
	UnitPrice   float64
	Amount      float64
}

var templateFuncs = template.FuncMap{
	"money": func(amount float64, currency string) string {
		return fmt.Sprintf("%s %.2f", currency, amount)
	},
	"date": func(t time.Time) string {
		return t.Format("January 2, 2006")
	},
}

const invoiceTemplate = `{{define "invoice"}}
<div class="email-content">
  <h2>Invoice {{.InvoiceNumber}}</h2>
  <p>Hi {{.ClientName}},</p>
  <p>{{.CompanyName}} has sent you an invoice.</p>
  <table>
    <tr><th>Description</th><th>Qty</th><th>Unit price</th><th>Amount</th></tr>
    {{range .Items}}
    <tr><td>{{.Description}}</td><td>{{.Quantity}}</td><td>{{money .UnitPrice $.Currency}}</td><td>{{money .Amount $.Currency}}</td></tr>
    {{end}}
  </table>
  <p>Subtotal: {{money .Subtotal .Currency}}</p>
  {{if gt .TaxAmount 0.0}}<p>{{.TaxLabel}}: {{money .TaxAmount .Currency}}</p>{{end}}
  {{if gt .Discount 0.0}}<p>Discount: -{{money .Discount .Currency}}</p>{{end}}
  <p><strong>Total: {{money .Total .Currency}}</strong></p>
  <p>Due {{date .DueDate}}.</p>
  {{if .PaymentURL}}<p><a href="{{.PaymentURL}}">Pay this invoice online</a></p>{{end}}
  {{if .Notes}}<p>{{.Notes}}</p>{{end}}
  {{if .Terms}}<p>{{.Terms}}</p>{{end}}
</div>
{{end}}`

const paymentConfirmationTemplate = `{{define "payment_confirmation"}}
<div class="email-content">
  <h2>Payment received</h2>
  <p>Hi {{.ClientName}},</p>
  <p>We received your {{.Method}} payment of {{money .Amount .Currency}} for invoice {{.InvoiceNumber}}.</p>
  {{if .FullyPaid}}
  <p>This invoice is now paid in full. Thank you!</p>
  {{else}}
  <p>Remaining balance: {{money .BalanceDue .Currency}}.</p>
  {{end}}
  <p>{{.CompanyName}}</p>
</div>
{{end}}`

const reminderTemplate = `{{define "reminder"}}
<div class="email-content">
  <h2>Invoice {{.InvoiceNumber}}</h2>
  <p>Hi {{.ClientName}},</p>
  {{if eq .Tier "friendly"}}
  <p>This is a friendly note that invoice {{.InvoiceNumber}} is due {{date .DueDate}}.</p>
  {{else if eq .Tier "urgent"}}
  <p>Invoice {{.InvoiceNumber}} is now {{.DaysOverdue}} days overdue. Please arrange payment as soon as possible.</p>
  {{else if eq .Tier "final_notice"}}
  <p>Despite previous reminders, invoice {{.InvoiceNumber}} remains unpaid {{.DaysOverdue}} days past its due date. This is a final notice before the account is escalated.</p>
  {{else}}
  <p>Invoice {{.InvoiceNumber}} was due {{date .DueDate}} and is still outstanding.</p>
  {{end}}
  <p>Balance due: {{money .BalanceDue .Currency}}</p>
  {{if .PaymentURL}}<p><a href="{{.PaymentURL}}">Pay this invoice online</a></p>{{end}}
  <p>{{.CompanyName}}</p>
</div>
{{end}}`

// parseTemplates compiles the built-in email templates.
func parseTemplates() (*template.Template, error) {
	tmpl := template.New("email").Funcs(templateFuncs)
	for _, src := range []string{invoiceTemplate, paymentConfirmationTemplate, reminderTemplate} {
		var err error
		tmpl, err = tmpl.Parse(src)
		if err != nil {
			return nil, fmt.Errorf("failed to parse email template: %w", err)
		}
	}
	return tmpl, nil
}
