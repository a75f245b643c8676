package postgres

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/flashbill/flashbill/internal/domain"
)

// TaxSettingRepository persists per-org tax settings.
// A partial unique index on (org_id) WHERE is_default AND is_active backs
// the single-active-default invariant; the transactional swap below keeps
// promotions from ever tripping it.
type TaxSettingRepository struct {
	db     DB
	logger *slog.Logger
}

// NewTaxSettingRepository creates a tax setting repository.
func NewTaxSettingRepository(db DB, logger *slog.Logger) *TaxSettingRepository {
	return &TaxSettingRepository{db: db, logger: logger}
}

const taxSettingColumns = `id, org_id, label, rate, is_default, is_active, created_at, updated_at`

func scanTaxSetting(row pgx.Row, s *domain.TaxSetting) error {
	return row.Scan(&s.ID, &s.OrgID, &s.Label, &s.Rate, &s.IsDefault, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
}

// Create inserts a new tax setting. Inserting a second active default
// trips the partial unique index and surfaces as a conflict.
func (r *TaxSettingRepository) Create(ctx context.Context, s *domain.TaxSetting) (*domain.TaxSetting, error) {
	op := "tax.create"

	out := *s
	err := r.db.QueryRow(ctx, `
		INSERT INTO tax_settings (org_id, label, rate, is_default, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		s.OrgID, s.Label, s.Rate, s.IsDefault, s.IsActive,
	).Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrDefaultTaxExists
		}
		return nil, domain.Internal(err, op, "failed to save tax setting")
	}
	return &out, nil
}

// GetByID loads a tax setting.
func (r *TaxSettingRepository) GetByID(ctx context.Context, orgID, settingID uuid.UUID) (*domain.TaxSetting, error) {
	op := "tax.get"

	var s domain.TaxSetting
	row := r.db.QueryRow(ctx,
		`SELECT `+taxSettingColumns+` FROM tax_settings WHERE id = $1 AND org_id = $2`,
		settingID, orgID,
	)
	if err := scanTaxSetting(row, &s); err != nil {
		if isNoRows(err) {
			return nil, domain.ErrTaxSettingNotFound
		}
		return nil, domain.Internal(err, op, "failed to load tax setting")
	}
	return &s, nil
}

// List returns the org's tax settings, default first, then by label.
func (r *TaxSettingRepository) List(ctx context.Context, orgID uuid.UUID) ([]domain.TaxSetting, error) {
	op := "tax.list"

	rows, err := r.db.Query(ctx,
		`SELECT `+taxSettingColumns+` FROM tax_settings WHERE org_id = $1 ORDER BY is_default DESC, label`,
		orgID,
	)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list tax settings")
	}
	defer rows.Close()

	var out []domain.TaxSetting
	for rows.Next() {
		var s domain.TaxSetting
		if err := scanTaxSetting(rows, &s); err != nil {
			return nil, domain.Internal(err, op, "failed to scan tax setting")
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, op, "failed to list tax settings")
	}
	return out, nil
}

// FindDefault returns the org's active default setting, or nil when the
// org has none.
func (r *TaxSettingRepository) FindDefault(ctx context.Context, orgID uuid.UUID) (*domain.TaxSetting, error) {
	op := "tax.find_default"

	var s domain.TaxSetting
	row := r.db.QueryRow(ctx,
		`SELECT `+taxSettingColumns+` FROM tax_settings WHERE org_id = $1 AND is_default AND is_active`,
		orgID,
	)
	if err := scanTaxSetting(row, &s); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, domain.Internal(err, op, "failed to load default tax setting")
	}
	return &s, nil
}

// Update rewrites a setting. When the update promotes it to active
// default, the previous default is demoted in the same transaction so no
// moment exists with two defaults or none observable between statements.
func (r *TaxSettingRepository) Update(ctx context.Context, s *domain.TaxSetting) (*domain.TaxSetting, error) {
	op := "tax.update"

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	if s.IsDefault && s.IsActive {
		_, err = tx.Exec(ctx,
			`UPDATE tax_settings SET is_default = FALSE, updated_at = NOW()
			 WHERE org_id = $1 AND is_default AND id <> $2`,
			s.OrgID, s.ID,
		)
		if err != nil {
			return nil, domain.Internal(err, op, "failed to demote previous default")
		}
	}

	out := *s
	err = tx.QueryRow(ctx, `
		UPDATE tax_settings
		SET label = $1, rate = $2, is_default = $3, is_active = $4, updated_at = NOW()
		WHERE id = $5 AND org_id = $6
		RETURNING updated_at`,
		s.Label, s.Rate, s.IsDefault, s.IsActive, s.ID, s.OrgID,
	).Scan(&out.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrTaxSettingNotFound
		}
		if isUniqueViolation(err) {
			return nil, domain.ErrDefaultTaxExists
		}
		return nil, domain.Internal(err, op, "failed to update tax setting")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, domain.Internal(err, op, "failed to commit tax setting update")
	}
	return &out, nil
}

// Delete removes a setting unless it is the org's only active default.
func (r *TaxSettingRepository) Delete(ctx context.Context, orgID, settingID uuid.UUID) error {
	op := "tax.delete"

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return domain.Internal(err, op, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	var s domain.TaxSetting
	row := tx.QueryRow(ctx,
		`SELECT `+taxSettingColumns+` FROM tax_settings WHERE id = $1 AND org_id = $2 FOR UPDATE`,
		settingID, orgID,
	)
	if err := scanTaxSetting(row, &s); err != nil {
		if isNoRows(err) {
			return domain.ErrTaxSettingNotFound
		}
		return domain.Internal(err, op, "failed to load tax setting")
	}

	if s.IsDefault && s.IsActive {
		var others int64
		err = tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM tax_settings WHERE org_id = $1 AND is_active AND id <> $2`,
			orgID, settingID,
		).Scan(&others)
		if err != nil {
			return domain.Internal(err, op, "failed to count tax settings")
		}
		if others == 0 {
			return domain.ErrCannotDeleteDefault
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM tax_settings WHERE id = $1 AND org_id = $2`, settingID, orgID); err != nil {
		return domain.Internal(err, op, "failed to delete tax setting")
	}
	return domain.WrapError(tx.Commit(ctx), domain.EINTERNAL, op, "failed to commit tax setting delete")
}

// TaxSummary aggregates tax collected per label across non-draft,
// non-cancelled invoices.
func (r *TaxSettingRepository) TaxSummary(ctx context.Context, orgID uuid.UUID) ([]domain.TaxSummaryRow, error) {
	op := "tax.summary"

	rows, err := r.db.Query(ctx, `
		SELECT tax_label, COALESCE(SUM(tax_amount), 0), COUNT(*)
		FROM invoices
		WHERE org_id = $1 AND status NOT IN ('draft', 'cancelled') AND tax_amount > 0
		GROUP BY tax_label
		ORDER BY tax_label`,
		orgID,
	)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to aggregate tax")
	}
	defer rows.Close()

	var out []domain.TaxSummaryRow
	for rows.Next() {
		var row domain.TaxSummaryRow
		if err := rows.Scan(&row.Label, &row.TaxTotal, &row.Invoices); err != nil {
			return nil, domain.Internal(err, op, "failed to scan tax summary")
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, op, "failed to aggregate tax")
	}
	return out, nil
}
