package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Tax-related domain errors.
var (
	ErrTaxSettingNotFound   = &Error{Code: ENOTFOUND, Message: "Tax setting not found"}
	ErrDefaultTaxExists     = &Error{Code: ECONFLICT, Message: "A default tax setting already exists"}
	ErrCannotDeleteDefault  = &Error{Code: ECONFLICT, Message: "Cannot delete the only default tax setting"}
	ErrInvalidTaxRate       = &Error{Code: EINVALID, Message: "Tax rate must be between 0 and 1"}
	ErrInvalidTaxIdentifier = &Error{Code: EINVALID, Message: "Tax ID must match the format 12-3456789"}
)

// TaxSetting is a per-org tax configuration row.
// Rate is a fraction in [0, 1]. At most one setting per org may be both
// default and active at any instant.
type TaxSetting struct {
	ID        uuid.UUID
	OrgID     uuid.UUID
	Label     string
	Rate      float64
	IsDefault bool
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateTaxSettingParams contains parameters for a new tax setting.
type CreateTaxSettingParams struct {
	Label     string
	Rate      float64
	IsDefault bool
	IsActive  bool
}

// UpdateTaxSettingParams contains optional fields for a partial update.
type UpdateTaxSettingParams struct {
	Label     *string
	Rate      *float64
	IsDefault *bool
	IsActive  *bool
}

// TaxCalculation is the result of applying a rate to a base amount.
type TaxCalculation struct {
	Amount    float64
	Rate      float64
	Label     string
	TaxAmount float64
	Total     float64
}

// TaxSummaryRow aggregates tax collected per label across sent invoices.
type TaxSummaryRow struct {
	Label    string
	Rate     float64
	TaxTotal float64
	Invoices int64
}

// TaxService manages tax settings and tax math for an org.
type TaxService interface {
	// CreateTaxSetting persists a new setting. Creating a second active
	// default is a conflict.
	CreateTaxSetting(ctx context.Context, orgID uuid.UUID, params CreateTaxSettingParams) (*TaxSetting, error)

	// GetTaxSetting retrieves a setting by ID.
	GetTaxSetting(ctx context.Context, orgID, settingID uuid.UUID) (*TaxSetting, error)

	// ListTaxSettings lists the org's settings, default first.
	ListTaxSettings(ctx context.Context, orgID uuid.UUID) ([]TaxSetting, error)

	// UpdateTaxSetting applies a partial update. Promoting a setting to
	// default demotes the previous default in the same transaction.
	UpdateTaxSetting(ctx context.Context, orgID, settingID uuid.UUID, params UpdateTaxSettingParams) (*TaxSetting, error)

	// DeleteTaxSetting removes a setting. Deleting the only active default
	// is a conflict.
	DeleteTaxSetting(ctx context.Context, orgID, settingID uuid.UUID) error

	// CalculateTax applies an explicit rate, or the org default when rate is
	// nil, to the amount. Without a default the rate is zero ("No Tax").
	CalculateTax(ctx context.Context, orgID uuid.UUID, amount float64, rate *float64) (*TaxCalculation, error)

	// GetTaxSummary aggregates tax collected per label.
	GetTaxSummary(ctx context.Context, orgID uuid.UUID) ([]TaxSummaryRow, error)
}
