package postgres

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/flashbill/flashbill/internal/domain"
)

// ClientRepository persists an org's billable clients.
type ClientRepository struct {
	db     DB
	logger *slog.Logger
}

// NewClientRepository creates a client repository.
func NewClientRepository(db DB, logger *slog.Logger) *ClientRepository {
	return &ClientRepository{db: db, logger: logger}
}

const clientColumns = `id, org_id, name, email, phone, company, address, tax_id, created_at, updated_at`

func scanClient(row pgx.Row, c *domain.Client) error {
	return row.Scan(&c.ID, &c.OrgID, &c.Name, &c.Email, &c.Phone, &c.Company, &c.Address, &c.TaxID, &c.CreatedAt, &c.UpdatedAt)
}

// Create inserts a new client.
func (r *ClientRepository) Create(ctx context.Context, c *domain.Client) (*domain.Client, error) {
	op := "client.create"

	out := *c
	err := r.db.QueryRow(ctx, `
		INSERT INTO clients (org_id, name, email, phone, company, address, tax_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`,
		c.OrgID, c.Name, c.Email, c.Phone, c.Company, c.Address, c.TaxID,
	).Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to save client")
	}
	return &out, nil
}

// GetByID loads a client.
func (r *ClientRepository) GetByID(ctx context.Context, orgID, clientID uuid.UUID) (*domain.Client, error) {
	op := "client.get"

	var c domain.Client
	row := r.db.QueryRow(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE id = $1 AND org_id = $2`,
		clientID, orgID,
	)
	if err := scanClient(row, &c); err != nil {
		if isNoRows(err) {
			return nil, domain.ErrClientNotFound
		}
		return nil, domain.Internal(err, op, "failed to load client")
	}
	return &c, nil
}

// List returns the org's clients ordered by name.
func (r *ClientRepository) List(ctx context.Context, orgID uuid.UUID, limit, offset int32) ([]domain.Client, error) {
	op := "client.list"

	rows, err := r.db.Query(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE org_id = $1 ORDER BY name LIMIT $2 OFFSET $3`,
		orgID, listLimit(limit), offset,
	)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list clients")
	}
	defer rows.Close()

	var out []domain.Client
	for rows.Next() {
		var c domain.Client
		if err := scanClient(rows, &c); err != nil {
			return nil, domain.Internal(err, op, "failed to scan client")
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, op, "failed to list clients")
	}
	return out, nil
}

// Update rewrites a client's fields.
func (r *ClientRepository) Update(ctx context.Context, c *domain.Client) (*domain.Client, error) {
	op := "client.update"

	out := *c
	err := r.db.QueryRow(ctx, `
		UPDATE clients
		SET name = $1, email = $2, phone = $3, company = $4, address = $5, tax_id = $6, updated_at = NOW()
		WHERE id = $7 AND org_id = $8
		RETURNING updated_at`,
		c.Name, c.Email, c.Phone, c.Company, c.Address, c.TaxID, c.ID, c.OrgID,
	).Scan(&out.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrClientNotFound
		}
		return nil, domain.Internal(err, op, "failed to update client")
	}
	return &out, nil
}

// Delete removes a client unless invoices reference it.
func (r *ClientRepository) Delete(ctx context.Context, orgID, clientID uuid.UUID) error {
	op := "client.delete"

	var invoices int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM invoices WHERE client_id = $1 AND org_id = $2`,
		clientID, orgID,
	).Scan(&invoices)
	if err != nil {
		return domain.Internal(err, op, "failed to check client invoices")
	}
	if invoices > 0 {
		return domain.Conflict(op, "client has invoices and cannot be deleted")
	}

	tag, err := r.db.Exec(ctx, `DELETE FROM clients WHERE id = $1 AND org_id = $2`, clientID, orgID)
	if err != nil {
		return domain.Internal(err, op, "failed to delete client")
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrClientNotFound
	}
	return nil
}
