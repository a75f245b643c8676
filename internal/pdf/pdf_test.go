package pdf

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashbill/flashbill/internal/domain"
)

func TestRenderInvoice(t *testing.T) {
	r, err := NewRenderer(Company{Name: "FlashBill", Address: "1 Main St", TaxID: "12-3456789"})
	require.NoError(t, err)

	d := &domain.InvoiceDetail{
		Invoice: domain.Invoice{
			InvoiceNumber:  "INV-2026-0042-117",
			Status:         domain.InvoiceStatusSent,
			IssueDate:      time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			DueDate:        time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
			Subtotal:       100,
			TaxLabel:       "VAT",
			TaxAmount:      21,
			DiscountAmount: 5,
			Total:          116,
			AmountPaid:     16,
			Currency:       "USD",
			Notes:          "Thanks for your business",
		},
		Items: []domain.InvoiceItem{
			{Description: "Consulting", Quantity: 2, UnitPrice: 50, TaxRate: 0.21, Amount: 100},
		},
		ClientName:      "Acme Corp",
		BalanceDue:      100,
		EffectiveStatus: domain.InvoiceStatusOverdue,
	}

	out, err := r.RenderInvoice(context.Background(), d)
	require.NoError(t, err)

	html := string(out)
	assert.Contains(t, html, "INV-2026-0042-117")
	assert.Contains(t, html, "Acme Corp")
	assert.Contains(t, html, "Consulting")
	assert.Contains(t, html, "VAT")
	assert.Contains(t, html, "USD 116.00")
	assert.Contains(t, html, "21.00%")
	assert.Contains(t, html, "Balance due")
	// The document shows the derived status, not the stored one.
	assert.Contains(t, html, "overdue")
	assert.Contains(t, html, "Thanks for your business")
}

func TestRenderInvoiceNil(t *testing.T) {
	r, err := NewRenderer(Company{Name: "FlashBill"})
	require.NoError(t, err)

	_, err = r.RenderInvoice(context.Background(), nil)
	assert.Error(t, err)
}
