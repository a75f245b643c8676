// Package ledger implements the pure monetary arithmetic behind invoices:
// line totals, tax, discounts, payment application, and status derivation.
// Intermediate values keep full decimal precision; amounts are rounded
// half-up to cents only at the storage and display boundaries.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/flashbill/flashbill/internal/domain"
)

// Line is the monetary shape of one invoice line.
// TaxRate is a fraction in [0, 1].
type Line struct {
	Quantity  float64
	UnitPrice float64
	TaxRate   float64
}

// LineSubtotal returns quantity times unit price at full precision.
func LineSubtotal(l Line) decimal.Decimal {
	return decimal.NewFromFloat(l.Quantity).Mul(decimal.NewFromFloat(l.UnitPrice))
}

// Subtotal sums quantity times unit price over all lines.
func Subtotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(LineSubtotal(l))
	}
	return sum
}

// TaxTotal sums each line's subtotal times its own rate.
func TaxTotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(LineSubtotal(l).Mul(decimal.NewFromFloat(l.TaxRate)))
	}
	return sum
}

// Total computes subtotal + tax - discount. The discount must be
// non-negative and must not exceed subtotal plus tax.
func Total(subtotal, tax, discount decimal.Decimal) (decimal.Decimal, error) {
	gross := subtotal.Add(tax)
	if discount.IsNegative() || discount.GreaterThan(gross) {
		return decimal.Zero, domain.ErrInvalidDiscount
	}
	return gross.Sub(discount), nil
}

// RoundMoney rounds half-up to 2 decimal places and returns the float value
// stored and displayed. Monetary amounts in this system are non-negative or
// refund negatives, for which half away from zero matches half-up semantics
// symmetrically.
func RoundMoney(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}

// RoundFloat is RoundMoney for values already held as float64.
func RoundFloat(v float64) float64 {
	return RoundMoney(decimal.NewFromFloat(v))
}

// BalanceDue returns total minus paid, rounded to cents, floored at zero.
func BalanceDue(total, paid float64) float64 {
	b := decimal.NewFromFloat(total).Sub(decimal.NewFromFloat(paid))
	if b.IsNegative() {
		return 0
	}
	return RoundMoney(b)
}

// ApplyPayment validates a payment amount against the invoice total and the
// amount already paid, and returns the new paid amount with the stored
// status it implies. It rejects non-positive amounts and amounts exceeding
// the remaining balance.
func ApplyPayment(total, alreadyPaid, amount float64) (newPaid float64, status domain.InvoiceStatus, err error) {
	amt := decimal.NewFromFloat(amount)
	if !amt.IsPositive() {
		return 0, "", domain.ErrPaymentNotPositive
	}

	tot := decimal.NewFromFloat(total)
	paid := decimal.NewFromFloat(alreadyPaid)
	balance := tot.Sub(paid)
	// Compare at cent precision so a payment of the displayed balance
	// never trips the guard on float noise.
	if amt.Round(2).GreaterThan(balance.Round(2)) {
		return 0, "", domain.ErrPaymentExceedsBalance
	}

	next := paid.Add(amt)
	if next.Round(2).GreaterThanOrEqual(tot.Round(2)) {
		return RoundMoney(next), domain.InvoiceStatusPaid, nil
	}
	return RoundMoney(next), domain.InvoiceStatusPartial, nil
}

// DeriveStatus overlays the computed Overdue state on a stored status.
// An invoice is overdue when it is outstanding (sent, viewed, or partially
// paid), not fully paid, and past its due date. Overdue is never stored.
func DeriveStatus(stored domain.InvoiceStatus, total, paid float64, dueDate, now time.Time) domain.InvoiceStatus {
	switch stored {
	case domain.InvoiceStatusSent, domain.InvoiceStatusViewed, domain.InvoiceStatusPartial:
	default:
		return stored
	}
	if BalanceDue(total, paid) <= 0 {
		return stored
	}
	if now.After(dueDate) {
		return domain.InvoiceStatusOverdue
	}
	return stored
}

// IsOverdue reports whether the derived status is Overdue.
func IsOverdue(stored domain.InvoiceStatus, total, paid float64, dueDate, now time.Time) bool {
	return DeriveStatus(stored, total, paid, dueDate, now) == domain.InvoiceStatusOverdue
}

// DaysUntilDue returns whole days from now until the due date, negative
// when past due.
func DaysUntilDue(dueDate, now time.Time) int {
	return int(dueDate.Sub(now).Hours() / 24)
}

// DaysOverdue returns whole days past due, zero or negative before the due date.
func DaysOverdue(dueDate, now time.Time) int {
	return -DaysUntilDue(dueDate, now)
}

// ReminderTierFor selects the reminder escalation tier from days overdue:
// friendly at or before the due date, standard within a week, urgent within
// a month, final notice beyond that.
func ReminderTierFor(daysOverdue int) domain.ReminderTier {
	switch {
	case daysOverdue <= 0:
		return domain.ReminderFriendly
	case daysOverdue <= 7:
		return domain.ReminderStandard
	case daysOverdue <= 30:
		return domain.ReminderUrgent
	default:
		return domain.ReminderFinalNotice
	}
}

// CalculateTax applies a fractional rate to an amount, rounding the tax
// to cents.
func CalculateTax(amount, rate float64) float64 {
	return RoundMoney(decimal.NewFromFloat(amount).Mul(decimal.NewFromFloat(rate)))
}
