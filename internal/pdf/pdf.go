// Package pdf renders invoices into printable documents. The current
// renderer produces a self-contained HTML page sized for print; browsers
// and wkhtmltopdf-style converters turn it into an actual PDF downstream.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/flashbill/flashbill/internal/domain"
)

// Company is the issuing business shown on the document header.
type Company struct {
	Name    string
	Address string
	TaxID   string
}

// Renderer renders invoice documents.
type Renderer struct {
	company  Company
	template *template.Template
}

// NewRenderer creates a renderer for the given issuing company.
func NewRenderer(company Company) (*Renderer, error) {
	tmpl, err := template.New("invoice").Funcs(template.FuncMap{
		"money": func(amount float64, currency string) string {
			return fmt.Sprintf("%s %.2f", currency, amount)
		},
		"date": func(t time.Time) string {
			return t.Format("January 2, 2006")
		},
		"pct": func(rate float64) string {
			return fmt.Sprintf("%.2f%%", rate*100)
		},
	}).Parse(invoiceDocument)
	if err != nil {
		return nil, fmt.Errorf("failed to parse invoice document template: %w", err)
	}
	return &Renderer{company: company, template: tmpl}, nil
}

type documentData struct {
	Company Company
	Invoice *domain.InvoiceDetail
	Status  domain.InvoiceStatus
}

// RenderInvoice produces the printable document for an invoice.
func (r *Renderer) RenderInvoice(ctx context.Context, d *domain.InvoiceDetail) ([]byte, error) {
	if d == nil {
		return nil, fmt.Errorf("nil invoice")
	}

	status := d.EffectiveStatus
	if status == "" {
		status = d.Status
	}

	var buf bytes.Buffer
	if err := r.template.Execute(&buf, documentData{
		Company: r.company,
		Invoice: d,
		Status:  status,
	}); err != nil {
		return nil, fmt.Errorf("failed to render invoice %s: %w", d.InvoiceNumber, err)
	}
	return buf.Bytes(), nil
}

const invoiceDocument = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Invoice {{.Invoice.InvoiceNumber}}</title>
<style>
  body { font-family: Helvetica, Arial, sans-serif; margin: 2rem; color: #222; }
  .header { display: flex; justify-content: space-between; }
  .status { text-transform: uppercase; font-weight: bold; }
  table { width: 100%; border-collapse: collapse; margin-top: 1.5rem; }
  th, td { text-align: left; padding: 0.4rem 0.6rem; border-bottom: 1px solid #ddd; }
  .totals td { border: none; }
  .totals .label { text-align: right; }
  @media print { body { margin: 0; } }
</style>
</head>
<body>
<div class="header">
  <div>
    <h1>{{.Company.Name}}</h1>
    {{if .Company.Address}}<p>{{.Company.Address}}</p>{{end}}
    {{if .Company.TaxID}}<p>Tax ID: {{.Company.TaxID}}</p>{{end}}
  </div>
  <div>
    <h2>Invoice {{.Invoice.InvoiceNumber}}</h2>
    <p class="status">{{.Status}}</p>
    <p>Issued: {{date .Invoice.IssueDate}}</p>
    <p>Due: {{date .Invoice.DueDate}}</p>
  </div>
</div>

<h3>Bill to</h3>
<p>{{.Invoice.ClientName}}{{if .Invoice.TaxID}}<br>Tax ID: {{.Invoice.TaxID}}{{end}}</p>

<table>
  <tr><th>Description</th><th>Qty</th><th>Unit price</th><th>Tax</th><th>Amount</th></tr>
  {{range .Invoice.Items}}
  <tr>
    <td>{{.Description}}</td>
    <td>{{.Quantity}}</td>
    <td>{{money .UnitPrice $.Invoice.Currency}}</td>
    <td>{{pct .TaxRate}}</td>
    <td>{{money .Amount $.Invoice.Currency}}</td>
  </tr>
  {{end}}
</table>

<table class="totals">
  <tr><td class="label">Subtotal</td><td>{{money .Invoice.Subtotal .Invoice.Currency}}</td></tr>
  {{if gt .Invoice.TaxAmount 0.0}}<tr><td class="label">{{.Invoice.TaxLabel}}</td><td>{{money .Invoice.TaxAmount .Invoice.Currency}}</td></tr>{{end}}
  {{if gt .Invoice.DiscountAmount 0.0}}<tr><td class="label">Discount</td><td>-{{money .Invoice.DiscountAmount .Invoice.Currency}}</td></tr>{{end}}
  <tr><td class="label"><strong>Total</strong></td><td><strong>{{money .Invoice.Total .Invoice.Currency}}</strong></td></tr>
  {{if gt .Invoice.AmountPaid 0.0}}
  <tr><td class="label">Paid</td><td>{{money .Invoice.AmountPaid .Invoice.Currency}}</td></tr>
  <tr><td class="label">Balance due</td><td>{{money .Invoice.BalanceDue .Invoice.Currency}}</td></tr>
  {{end}}
</table>

{{if .Invoice.Notes}}<h3>Notes</h3><p>{{.Invoice.Notes}}</p>{{end}}
{{if .Invoice.Terms}}<h3>Terms</h3><p>{{.Invoice.Terms}}</p>{{end}}
</body>
</html>`
