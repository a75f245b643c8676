package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/flashbill/flashbill/internal/domain"
	"github.com/flashbill/flashbill/internal/ledger"
)

// PaymentRepository reads and appends to the payments ledger.
// Rows are never updated or deleted; a refund is a new negative-amount row
// referencing the original payment.
type PaymentRepository struct {
	db     DB
	logger *slog.Logger
}

// NewPaymentRepository creates a payment repository.
func NewPaymentRepository(db DB, logger *slog.Logger) *PaymentRepository {
	return &PaymentRepository{db: db, logger: logger}
}

const paymentColumns = `
	p.id, p.org_id, p.invoice_id, p.amount, p.currency, p.method, p.status,
	p.gateway, p.gateway_payment_id, p.gateway_fee, p.paid_by, p.notes,
	p.failure_reason, p.refund_of_id, p.created_at`

func scanPayment(row pgx.Row, p *domain.Payment) error {
	return row.Scan(
		&p.ID, &p.OrgID, &p.InvoiceID, &p.Amount, &p.Currency, &p.Method, &p.Status,
		&p.Gateway, &p.GatewayPaymentID, &p.GatewayFee, &p.PaidBy, &p.Notes,
		&p.FailureReason, &p.RefundOfID, &p.CreatedAt,
	)
}

// GetByID loads a single payment.
func (r *PaymentRepository) GetByID(ctx context.Context, orgID, paymentID uuid.UUID) (*domain.Payment, error) {
	op := "payment.get"

	var p domain.Payment
	row := r.db.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments p WHERE p.id = $1 AND p.org_id = $2`,
		paymentID, orgID,
	)
	if err := scanPayment(row, &p); err != nil {
		if isNoRows(err) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, domain.Internal(err, op, "failed to load payment")
	}
	return &p, nil
}

// List returns payments matching the filter, newest first.
func (r *PaymentRepository) List(ctx context.Context, orgID uuid.UUID, filter domain.PaymentFilter) ([]domain.Payment, error) {
	op := "payment.list"

	var sb strings.Builder
	sb.WriteString(`SELECT ` + paymentColumns + ` FROM payments p WHERE p.org_id = $1`)
	args := []any{orgID}

	if filter.InvoiceID != nil {
		args = append(args, *filter.InvoiceID)
		fmt.Fprintf(&sb, ` AND p.invoice_id = $%d`, len(args))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		fmt.Fprintf(&sb, ` AND p.status = $%d`, len(args))
	}
	if filter.Method != nil {
		args = append(args, *filter.Method)
		fmt.Fprintf(&sb, ` AND p.method = $%d`, len(args))
	}
	if filter.DateFrom != nil {
		args = append(args, *filter.DateFrom)
		fmt.Fprintf(&sb, ` AND p.created_at >= $%d`, len(args))
	}
	if filter.DateTo != nil {
		args = append(args, *filter.DateTo)
		fmt.Fprintf(&sb, ` AND p.created_at <= $%d`, len(args))
	}

	sb.WriteString(` ORDER BY p.created_at DESC`)
	args = append(args, listLimit(filter.Limit))
	fmt.Fprintf(&sb, ` LIMIT $%d`, len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		fmt.Fprintf(&sb, ` OFFSET $%d`, len(args))
	}

	rows, err := r.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list payments")
	}
	defer rows.Close()

	var out []domain.Payment
	for rows.Next() {
		var p domain.Payment
		if err := scanPayment(rows, &p); err != nil {
			return nil, domain.Internal(err, op, "failed to scan payment")
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, op, "failed to list payments")
	}
	return out, nil
}

// Refund appends a negative refund row referencing the original payment
// and rolls the refunded amount back out of the invoice, all in one
// transaction. The original row is left untouched.
func (r *PaymentRepository) Refund(ctx context.Context, orgID uuid.UUID, params domain.RefundParams) (*domain.Payment, error) {
	op := "payment.refund"

	if params.Amount <= 0 {
		return nil, domain.ErrRefundNotPositive
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	var orig domain.Payment
	row := tx.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments p WHERE p.id = $1 AND p.org_id = $2 FOR UPDATE`,
		params.PaymentID, orgID,
	)
	if err := scanPayment(row, &orig); err != nil {
		if isNoRows(err) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, domain.Internal(err, op, "failed to load payment")
	}
	if orig.Status != domain.PaymentStatusCompleted {
		return nil, domain.ErrRefundNotCompleted
	}

	// Prior refunds of this payment shrink what is still refundable.
	var refunded float64
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(-SUM(amount), 0) FROM payments WHERE refund_of_id = $1`,
		orig.ID,
	).Scan(&refunded)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to sum prior refunds")
	}
	if ledger.RoundFloat(refunded+params.Amount) > ledger.RoundFloat(orig.Amount) {
		return nil, domain.ErrRefundExceedsPayment
	}

	notes := "Refund"
	if params.Reason != "" {
		notes = "Refund: " + params.Reason
	}

	refund := domain.Payment{
		OrgID:      orgID,
		InvoiceID:  orig.InvoiceID,
		Amount:     -params.Amount,
		Currency:   orig.Currency,
		Method:     orig.Method,
		Status:     domain.PaymentStatusRefunded,
		Gateway:    orig.Gateway,
		Notes:      notes,
		RefundOfID: &orig.ID,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO payments (
			org_id, invoice_id, amount, currency, method, status,
			gateway, notes, refund_of_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`,
		refund.OrgID, refund.InvoiceID, refund.Amount, refund.Currency, refund.Method,
		refund.Status, refund.Gateway, refund.Notes, refund.RefundOfID,
	).Scan(&refund.ID, &refund.CreatedAt)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to record refund")
	}

	// A fully paid invoice with money handed back is outstanding again.
	_, err = tx.Exec(ctx, `
		UPDATE invoices
		SET amount_paid = amount_paid - $1,
		    status = CASE WHEN status = 'paid' AND amount_paid - $1 < total THEN 'partial' ELSE status END,
		    paid_at = CASE WHEN amount_paid - $1 < total THEN NULL ELSE paid_at END,
		    updated_at = NOW()
		WHERE id = $2 AND org_id = $3`,
		params.Amount, orig.InvoiceID, orgID,
	)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to adjust invoice balance")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, domain.Internal(err, op, "failed to commit refund")
	}
	return &refund, nil
}

// Stats aggregates completed payments: count, total, average, and a
// per-method breakdown. Refund rows subtract from their method's total.
func (r *PaymentRepository) Stats(ctx context.Context, orgID uuid.UUID) (*domain.PaymentStats, error) {
	op := "payment.stats"

	stats := &domain.PaymentStats{ByMethod: make(map[domain.PaymentMethod]float64)}
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE status = 'completed'),
		       COALESCE(SUM(amount) FILTER (WHERE status IN ('completed', 'refunded')), 0),
		       COALESCE(AVG(amount) FILTER (WHERE status = 'completed'), 0)
		FROM payments
		WHERE org_id = $1`,
		orgID,
	).Scan(&stats.Count, &stats.Total, &stats.Average)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to aggregate payments")
	}
	stats.Total = ledger.RoundFloat(stats.Total)
	stats.Average = ledger.RoundFloat(stats.Average)

	rows, err := r.db.Query(ctx, `
		SELECT method, COALESCE(SUM(amount), 0)
		FROM payments
		WHERE org_id = $1 AND status IN ('completed', 'refunded')
		GROUP BY method`,
		orgID,
	)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to aggregate payment methods")
	}
	defer rows.Close()

	for rows.Next() {
		var method domain.PaymentMethod
		var total float64
		if err := rows.Scan(&method, &total); err != nil {
			return nil, domain.Internal(err, op, "failed to scan payment method totals")
		}
		stats.ByMethod[method] = ledger.RoundFloat(total)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, op, "failed to aggregate payment methods")
	}
	return stats, nil
}
