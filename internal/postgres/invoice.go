package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/flashbill/flashbill/internal/domain"
	"github.com/flashbill/flashbill/internal/invoicenum"
	"github.com/flashbill/flashbill/internal/ledger"
)

// Invoice number allocation retries under unique collisions before falling
// back to a timestamp-based number.
const (
	numberAllocAttempts = 5
	numberAllocBackoff  = 10 * time.Millisecond
)

// InvoiceRepository persists invoices and their line items.
type InvoiceRepository struct {
	db     DB
	logger *slog.Logger
}

// NewInvoiceRepository creates an invoice repository.
func NewInvoiceRepository(db DB, logger *slog.Logger) *InvoiceRepository {
	return &InvoiceRepository{db: db, logger: logger}
}

const invoiceColumns = `
	i.id, i.org_id, i.client_id, i.invoice_number, i.status,
	i.issue_date, i.due_date,
	i.subtotal, i.tax_amount, i.tax_label, i.tax_id, i.discount_amount,
	i.total, i.amount_paid, i.currency, i.notes, i.terms,
	i.guest_payment_token, i.allow_partial_payment, i.min_payment_amount,
	i.partial_payment_count, i.reminder_sent_count, i.last_reminder_at,
	i.sent_at, i.viewed_at, i.paid_at, i.notification_sent_at,
	i.whatsapp_sent_at, i.pdf_url, i.created_at, i.updated_at`

func scanInvoice(row pgx.Row, inv *domain.Invoice, extra ...any) error {
	dest := []any{
		&inv.ID, &inv.OrgID, &inv.ClientID, &inv.InvoiceNumber, &inv.Status,
		&inv.IssueDate, &inv.DueDate,
		&inv.Subtotal, &inv.TaxAmount, &inv.TaxLabel, &inv.TaxID, &inv.DiscountAmount,
		&inv.Total, &inv.AmountPaid, &inv.Currency, &inv.Notes, &inv.Terms,
		&inv.GuestPaymentToken, &inv.AllowPartialPayment, &inv.MinPaymentAmount,
		&inv.PartialPaymentCount, &inv.ReminderSentCount, &inv.LastReminderAt,
		&inv.SentAt, &inv.ViewedAt, &inv.PaidAt, &inv.NotificationSentAt,
		&inv.WhatsAppSentAt, &inv.PDFURL, &inv.CreatedAt, &inv.UpdatedAt,
	}
	dest = append(dest, extra...)
	return row.Scan(dest...)
}

// Create persists a new invoice and its items, allocating the invoice
// number. Collisions on the per-org unique number constraint are retried
// with a fresh sequence count; after exhausting retries a timestamp-based
// number is used.
func (r *InvoiceRepository) Create(ctx context.Context, inv *domain.Invoice, items []domain.InvoiceItem) (*domain.Invoice, error) {
	op := "invoice.create"

	token, err := generateGuestToken()
	if err != nil {
		return nil, domain.Internal(err, op, "failed to generate guest payment token")
	}
	inv.GuestPaymentToken = token
	if inv.Currency == "" {
		inv.Currency = "USD"
	}
	if inv.Status == "" {
		inv.Status = domain.InvoiceStatusDraft
	}

	year := inv.IssueDate.Year()
	for attempt := 0; attempt <= numberAllocAttempts; attempt++ {
		if attempt == numberAllocAttempts {
			inv.InvoiceNumber = invoicenum.Fallback(time.Now().UTC(), rand.Intn(100000))
		} else {
			var count int64
			err := r.db.QueryRow(ctx,
				`SELECT COUNT(*) FROM invoices WHERE org_id = $1 AND EXTRACT(YEAR FROM issue_date) = $2`,
				inv.OrgID, year,
			).Scan(&count)
			if err != nil {
				return nil, domain.Internal(err, op, "failed to count invoices for numbering")
			}
			inv.InvoiceNumber = invoicenum.Format(year, count+1, rand.Intn(1000))
		}

		created, err := r.insertInvoice(ctx, inv, items)
		if err == nil {
			return created, nil
		}
		if !isUniqueViolation(err) {
			return nil, domain.Internal(err, op, "failed to save invoice")
		}

		r.logger.Warn("invoice number collision, retrying",
			"invoice_number", inv.InvoiceNumber,
			"attempt", attempt+1,
		)
		time.Sleep(numberAllocBackoff * time.Duration(attempt+1))
	}

	return nil, domain.ErrInvoiceNumberGeneration
}

func (r *InvoiceRepository) insertInvoice(ctx context.Context, inv *domain.Invoice, items []domain.InvoiceItem) (*domain.Invoice, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	out := *inv
	err = tx.QueryRow(ctx, `
		INSERT INTO invoices (
			org_id, client_id, invoice_number, status, issue_date, due_date,
			subtotal, tax_amount, tax_label, tax_id, discount_amount, total,
			currency, notes, terms, guest_payment_token,
			allow_partial_payment, min_payment_amount
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id, created_at, updated_at`,
		inv.OrgID, inv.ClientID, inv.InvoiceNumber, inv.Status, inv.IssueDate, inv.DueDate,
		inv.Subtotal, inv.TaxAmount, inv.TaxLabel, inv.TaxID, inv.DiscountAmount, inv.Total,
		inv.Currency, inv.Notes, inv.Terms, inv.GuestPaymentToken,
		inv.AllowPartialPayment, inv.MinPaymentAmount,
	).Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := insertItems(ctx, tx, out.ID, items); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &out, nil
}

func insertItems(ctx context.Context, tx pgx.Tx, invoiceID uuid.UUID, items []domain.InvoiceItem) error {
	for i, item := range items {
		_, err := tx.Exec(ctx, `
			INSERT INTO invoice_items (invoice_id, description, quantity, unit_price, tax_rate, amount, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			invoiceID, item.Description, item.Quantity, item.UnitPrice, item.TaxRate, item.Amount, int32(i),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// GetByID loads an invoice with its items and joined client fields.
func (r *InvoiceRepository) GetByID(ctx context.Context, orgID, invoiceID uuid.UUID) (*domain.InvoiceDetail, error) {
	op := "invoice.get"

	var d domain.InvoiceDetail
	row := r.db.QueryRow(ctx, `
		SELECT `+invoiceColumns+`, c.name, COALESCE(c.email, '')
		FROM invoices i
		JOIN clients c ON c.id = i.client_id
		WHERE i.id = $1 AND i.org_id = $2`,
		invoiceID, orgID,
	)
	if err := scanInvoice(row, &d.Invoice, &d.ClientName, &d.ClientEmail); err != nil {
		if isNoRows(err) {
			return nil, domain.NotFound(op, "invoice", invoiceID.String())
		}
		return nil, domain.Internal(err, op, "failed to load invoice")
	}

	items, err := r.loadItems(ctx, d.ID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load invoice items")
	}
	d.Items = items
	return &d, nil
}

// GetByGuestToken loads an invoice by its guest payment token, without org
// scoping. Used by the unauthenticated guest view and pay endpoints.
func (r *InvoiceRepository) GetByGuestToken(ctx context.Context, token string) (*domain.InvoiceDetail, error) {
	op := "invoice.get_by_token"

	var d domain.InvoiceDetail
	row := r.db.QueryRow(ctx, `
		SELECT `+invoiceColumns+`, c.name, COALESCE(c.email, '')
		FROM invoices i
		JOIN clients c ON c.id = i.client_id
		WHERE i.guest_payment_token = $1`,
		token,
	)
	if err := scanInvoice(row, &d.Invoice, &d.ClientName, &d.ClientEmail); err != nil {
		if isNoRows(err) {
			return nil, domain.NotFound(op, "invoice", "token")
		}
		return nil, domain.Internal(err, op, "failed to load invoice")
	}

	items, err := r.loadItems(ctx, d.ID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load invoice items")
	}
	d.Items = items
	return &d, nil
}

func (r *InvoiceRepository) loadItems(ctx context.Context, invoiceID uuid.UUID) ([]domain.InvoiceItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, invoice_id, description, quantity, unit_price, tax_rate, amount, position
		FROM invoice_items
		WHERE invoice_id = $1
		ORDER BY position`,
		invoiceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.InvoiceItem
	for rows.Next() {
		var it domain.InvoiceItem
		if err := rows.Scan(&it.ID, &it.InvoiceID, &it.Description, &it.Quantity, &it.UnitPrice, &it.TaxRate, &it.Amount, &it.Position); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// List returns invoices matching the filter, newest first, with joined
// client fields but without items.
func (r *InvoiceRepository) List(ctx context.Context, orgID uuid.UUID, filter domain.InvoiceFilter) ([]domain.InvoiceDetail, error) {
	op := "invoice.list"

	var sb strings.Builder
	sb.WriteString(`SELECT ` + invoiceColumns + `, c.name, COALESCE(c.email, '')
		FROM invoices i
		JOIN clients c ON c.id = i.client_id
		WHERE i.org_id = $1`)
	args := []any{orgID}

	// Overdue is derived, so an overdue filter translates to outstanding
	// statuses past their due date.
	if filter.Status != nil {
		if *filter.Status == domain.InvoiceStatusOverdue {
			sb.WriteString(` AND i.status IN ('sent', 'viewed', 'partial') AND i.due_date < NOW() AND i.amount_paid < i.total`)
		} else {
			args = append(args, *filter.Status)
			fmt.Fprintf(&sb, ` AND i.status = $%d`, len(args))
		}
	}
	if filter.ClientID != nil {
		args = append(args, *filter.ClientID)
		fmt.Fprintf(&sb, ` AND i.client_id = $%d`, len(args))
	}
	if filter.DateFrom != nil {
		args = append(args, *filter.DateFrom)
		fmt.Fprintf(&sb, ` AND i.issue_date >= $%d`, len(args))
	}
	if filter.DateTo != nil {
		args = append(args, *filter.DateTo)
		fmt.Fprintf(&sb, ` AND i.issue_date <= $%d`, len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		fmt.Fprintf(&sb, ` AND (i.invoice_number ILIKE $%d OR c.name ILIKE $%d)`, len(args), len(args))
	}

	sb.WriteString(` ORDER BY i.created_at DESC`)
	args = append(args, listLimit(filter.Limit))
	fmt.Fprintf(&sb, ` LIMIT $%d`, len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		fmt.Fprintf(&sb, ` OFFSET $%d`, len(args))
	}

	rows, err := r.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list invoices")
	}
	defer rows.Close()

	var out []domain.InvoiceDetail
	for rows.Next() {
		var d domain.InvoiceDetail
		if err := scanInvoice(rows, &d.Invoice, &d.ClientName, &d.ClientEmail); err != nil {
			return nil, domain.Internal(err, op, "failed to scan invoice")
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, op, "failed to list invoices")
	}
	return out, nil
}

// Update rewrites the invoice's mutable columns and, when items is
// non-nil, replaces the line items in the same transaction.
func (r *InvoiceRepository) Update(ctx context.Context, inv *domain.Invoice, items []domain.InvoiceItem) error {
	op := "invoice.update"

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return domain.Internal(err, op, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE invoices SET
			client_id = $1, issue_date = $2, due_date = $3,
			subtotal = $4, tax_amount = $5, tax_label = $6, tax_id = $7,
			discount_amount = $8, total = $9, notes = $10, terms = $11,
			updated_at = NOW()
		WHERE id = $12 AND org_id = $13`,
		inv.ClientID, inv.IssueDate, inv.DueDate,
		inv.Subtotal, inv.TaxAmount, inv.TaxLabel, inv.TaxID,
		inv.DiscountAmount, inv.Total, inv.Notes, inv.Terms,
		inv.ID, inv.OrgID,
	)
	if err != nil {
		return domain.Internal(err, op, "failed to update invoice")
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound(op, "invoice", inv.ID.String())
	}

	if items != nil {
		if _, err := tx.Exec(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1`, inv.ID); err != nil {
			return domain.Internal(err, op, "failed to replace invoice items")
		}
		if err := insertItems(ctx, tx, inv.ID, items); err != nil {
			return domain.Internal(err, op, "failed to replace invoice items")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Internal(err, op, "failed to commit invoice update")
	}
	return nil
}

// Delete removes an invoice and its items. Invoices with payment rows are
// refused so the payments ledger never loses its referent.
func (r *InvoiceRepository) Delete(ctx context.Context, orgID, invoiceID uuid.UUID) error {
	op := "invoice.delete"

	var paymentCount int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM payments WHERE invoice_id = $1 AND org_id = $2`,
		invoiceID, orgID,
	).Scan(&paymentCount)
	if err != nil {
		return domain.Internal(err, op, "failed to check payments")
	}
	if paymentCount > 0 {
		return domain.ErrInvoiceHasPayments
	}

	tag, err := r.db.Exec(ctx,
		`DELETE FROM invoices WHERE id = $1 AND org_id = $2`,
		invoiceID, orgID,
	)
	if err != nil {
		return domain.Internal(err, op, "failed to delete invoice")
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound(op, "invoice", invoiceID.String())
	}
	return nil
}

// ApplyPayment atomically increments amount_paid and appends the payment
// row in one transaction. The balance guard lives in the UPDATE's WHERE
// clause, so concurrent payments can never oversettle the invoice, and the
// increment never reads amount_paid on the client side.
func (r *InvoiceRepository) ApplyPayment(ctx context.Context, p *domain.Payment) (*domain.Payment, error) {
	op := "invoice.apply_payment"

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	var total, amountPaid float64
	err = tx.QueryRow(ctx, `
		UPDATE invoices
		SET amount_paid = amount_paid + $1,
		    partial_payment_count = partial_payment_count + 1,
		    updated_at = NOW()
		WHERE id = $2 AND org_id = $3
		  AND status NOT IN ('cancelled')
		  AND amount_paid + $1 <= total + 0.005
		RETURNING total, amount_paid`,
		p.Amount, p.InvoiceID, p.OrgID,
	).Scan(&total, &amountPaid)
	if err != nil {
		if isNoRows(err) {
			return nil, r.classifyApplyFailure(ctx, p.OrgID, p.InvoiceID)
		}
		return nil, domain.Internal(err, op, "failed to apply payment")
	}

	status := domain.InvoiceStatusPartial
	if ledger.BalanceDue(total, amountPaid) <= 0 {
		status = domain.InvoiceStatusPaid
	}
	_, err = tx.Exec(ctx, `
		UPDATE invoices
		SET status = $1, paid_at = CASE WHEN $1 = 'paid' THEN NOW() ELSE paid_at END
		WHERE id = $2`,
		status, p.InvoiceID,
	)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to update invoice status")
	}

	out := *p
	out.Status = domain.PaymentStatusCompleted
	if out.Currency == "" {
		out.Currency = "USD"
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO payments (
			org_id, invoice_id, amount, currency, method, status,
			gateway, gateway_payment_id, gateway_fee, paid_by, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at`,
		out.OrgID, out.InvoiceID, out.Amount, out.Currency, out.Method, out.Status,
		out.Gateway, out.GatewayPaymentID, out.GatewayFee, out.PaidBy, out.Notes,
	).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.Conflict(op, "payment already recorded for this gateway transaction")
		}
		return nil, domain.Internal(err, op, "failed to record payment")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, domain.Internal(err, op, "failed to commit payment")
	}
	return &out, nil
}

// classifyApplyFailure distinguishes a missing invoice from a guarded
// balance rejection after the atomic update matched no rows.
func (r *InvoiceRepository) classifyApplyFailure(ctx context.Context, orgID, invoiceID uuid.UUID) error {
	op := "invoice.apply_payment"

	var status domain.InvoiceStatus
	err := r.db.QueryRow(ctx,
		`SELECT status FROM invoices WHERE id = $1 AND org_id = $2`,
		invoiceID, orgID,
	).Scan(&status)
	if err != nil {
		if isNoRows(err) {
			return domain.NotFound(op, "invoice", invoiceID.String())
		}
		return domain.Internal(err, op, "failed to load invoice")
	}
	if status == domain.InvoiceStatusCancelled {
		return domain.ErrInvoiceCancelled
	}
	return domain.ErrPaymentExceedsBalance
}

// MarkSent stamps sent_at and moves a draft to sent. Re-sending an already
// sent or viewed invoice keeps its current status. When delivered is true
// the notification timestamp is stamped as well.
func (r *InvoiceRepository) MarkSent(ctx context.Context, orgID, invoiceID uuid.UUID, delivered bool) error {
	op := "invoice.mark_sent"

	tag, err := r.db.Exec(ctx, `
		UPDATE invoices
		SET status = CASE WHEN status = 'draft' THEN 'sent' ELSE status END,
		    sent_at = COALESCE(sent_at, NOW()),
		    notification_sent_at = CASE WHEN $3 THEN NOW() ELSE notification_sent_at END,
		    updated_at = NOW()
		WHERE id = $1 AND org_id = $2 AND status IN ('draft', 'sent', 'viewed', 'partial')`,
		invoiceID, orgID, delivered,
	)
	if err != nil {
		return domain.Internal(err, op, "failed to mark invoice sent")
	}
	if tag.RowsAffected() == 0 {
		return r.classifyStatusFailure(ctx, orgID, invoiceID, domain.ErrInvoiceNotSendable)
	}
	return nil
}

// MarkViewed transitions sent to viewed and stamps viewed_at once.
// Invoices already past viewed keep their status.
func (r *InvoiceRepository) MarkViewed(ctx context.Context, orgID, invoiceID uuid.UUID) error {
	op := "invoice.mark_viewed"

	tag, err := r.db.Exec(ctx, `
		UPDATE invoices
		SET status = CASE WHEN status = 'sent' THEN 'viewed' ELSE status END,
		    viewed_at = COALESCE(viewed_at, NOW()),
		    updated_at = NOW()
		WHERE id = $1 AND org_id = $2 AND status IN ('sent', 'viewed', 'partial', 'paid')`,
		invoiceID, orgID,
	)
	if err != nil {
		return domain.Internal(err, op, "failed to mark invoice viewed")
	}
	if tag.RowsAffected() == 0 {
		return r.classifyStatusFailure(ctx, orgID, invoiceID, domain.Invalid(op, "invoice has not been sent"))
	}
	return nil
}

// IncrementReminder bumps the reminder counter and stamps the timestamp.
func (r *InvoiceRepository) IncrementReminder(ctx context.Context, orgID, invoiceID uuid.UUID) error {
	op := "invoice.increment_reminder"

	tag, err := r.db.Exec(ctx, `
		UPDATE invoices
		SET reminder_sent_count = reminder_sent_count + 1,
		    last_reminder_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1 AND org_id = $2`,
		invoiceID, orgID,
	)
	if err != nil {
		return domain.Internal(err, op, "failed to record reminder")
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound(op, "invoice", invoiceID.String())
	}
	return nil
}

// Cancel moves an unpaid invoice to cancelled.
func (r *InvoiceRepository) Cancel(ctx context.Context, orgID, invoiceID uuid.UUID) error {
	op := "invoice.cancel"

	tag, err := r.db.Exec(ctx, `
		UPDATE invoices
		SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND org_id = $2 AND status <> 'paid'`,
		invoiceID, orgID,
	)
	if err != nil {
		return domain.Internal(err, op, "failed to cancel invoice")
	}
	if tag.RowsAffected() == 0 {
		return r.classifyStatusFailure(ctx, orgID, invoiceID, domain.ErrInvoiceAlreadyPaid)
	}
	return nil
}

// classifyStatusFailure distinguishes not-found from a status guard
// rejection after a guarded UPDATE matched no rows.
func (r *InvoiceRepository) classifyStatusFailure(ctx context.Context, orgID, invoiceID uuid.UUID, guardErr error) error {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM invoices WHERE id = $1 AND org_id = $2)`,
		invoiceID, orgID,
	).Scan(&exists)
	if err != nil {
		return domain.Internal(err, "invoice.classify", "failed to load invoice")
	}
	if !exists {
		return domain.NotFound("invoice.get", "invoice", invoiceID.String())
	}
	return guardErr
}
