package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/flashbill/flashbill/internal/domain"
	"github.com/flashbill/flashbill/internal/ledger"
)

// TaxService manages tax settings and tax math.
type TaxService struct {
	taxes  TaxStore
	logger *slog.Logger
}

var _ domain.TaxService = (*TaxService)(nil)

// NewTaxService creates the tax service.
func NewTaxService(taxes TaxStore, logger *slog.Logger) *TaxService {
	return &TaxService{taxes: taxes, logger: logger}
}

func validateRate(rate float64) error {
	if rate < 0 || rate > 1 {
		return domain.ErrInvalidTaxRate
	}
	return nil
}

// CreateTaxSetting persists a new setting. The single-default invariant is
// enforced up front for a clean error, and again by the store's unique
// index under concurrency.
func (s *TaxService) CreateTaxSetting(ctx context.Context, orgID uuid.UUID, params domain.CreateTaxSettingParams) (*domain.TaxSetting, error) {
	op := "tax.create"

	if params.Label == "" {
		return nil, domain.NewValidationError(op, "label", "label is required")
	}
	if err := validateRate(params.Rate); err != nil {
		return nil, err
	}

	if params.IsDefault && params.IsActive {
		existing, err := s.taxes.FindDefault(ctx, orgID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, domain.ErrDefaultTaxExists
		}
	}

	created, err := s.taxes.Create(ctx, &domain.TaxSetting{
		OrgID:     orgID,
		Label:     params.Label,
		Rate:      params.Rate,
		IsDefault: params.IsDefault,
		IsActive:  params.IsActive,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("tax setting created", "tax_setting_id", created.ID, "label", created.Label, "rate", created.Rate)
	return created, nil
}

// GetTaxSetting retrieves a setting.
func (s *TaxService) GetTaxSetting(ctx context.Context, orgID, settingID uuid.UUID) (*domain.TaxSetting, error) {
	return s.taxes.GetByID(ctx, orgID, settingID)
}

// ListTaxSettings lists the org's settings, default first.
func (s *TaxService) ListTaxSettings(ctx context.Context, orgID uuid.UUID) ([]domain.TaxSetting, error) {
	return s.taxes.List(ctx, orgID)
}

// UpdateTaxSetting applies a partial update. A promotion to default rides
// the store's transactional swap so two defaults can never coexist.
func (s *TaxService) UpdateTaxSetting(ctx context.Context, orgID, settingID uuid.UUID, params domain.UpdateTaxSettingParams) (*domain.TaxSetting, error) {
	setting, err := s.taxes.GetByID(ctx, orgID, settingID)
	if err != nil {
		return nil, err
	}

	if params.Label != nil {
		if *params.Label == "" {
			return nil, domain.NewValidationError("tax.update", "label", "label is required")
		}
		setting.Label = *params.Label
	}
	if params.Rate != nil {
		if err := validateRate(*params.Rate); err != nil {
			return nil, err
		}
		setting.Rate = *params.Rate
	}
	if params.IsDefault != nil {
		setting.IsDefault = *params.IsDefault
	}
	if params.IsActive != nil {
		setting.IsActive = *params.IsActive
	}

	return s.taxes.Update(ctx, setting)
}

// DeleteTaxSetting removes a setting; the store refuses to delete the
// org's only active default.
func (s *TaxService) DeleteTaxSetting(ctx context.Context, orgID, settingID uuid.UUID) error {
	return s.taxes.Delete(ctx, orgID, settingID)
}

// CalculateTax applies an explicit rate, or the org default when rate is
// nil, to the amount.
func (s *TaxService) CalculateTax(ctx context.Context, orgID uuid.UUID, amount float64, rate *float64) (*domain.TaxCalculation, error) {
	op := "tax.calculate"

	if amount < 0 {
		return nil, domain.Invalid(op, "amount cannot be negative")
	}

	effectiveRate := 0.0
	label := "No Tax"
	if rate != nil {
		if err := validateRate(*rate); err != nil {
			return nil, err
		}
		effectiveRate = *rate
		label = "Custom"
	} else {
		def, err := s.taxes.FindDefault(ctx, orgID)
		if err != nil {
			return nil, err
		}
		if def != nil {
			effectiveRate = def.Rate
			label = def.Label
		}
	}

	taxAmount := ledger.CalculateTax(amount, effectiveRate)
	return &domain.TaxCalculation{
		Amount:    amount,
		Rate:      effectiveRate,
		Label:     label,
		TaxAmount: taxAmount,
		Total:     ledger.RoundFloat(amount + taxAmount),
	}, nil
}

// GetTaxSummary aggregates tax collected per label.
func (s *TaxService) GetTaxSummary(ctx context.Context, orgID uuid.UUID) ([]domain.TaxSummaryRow, error) {
	rows, err := s.taxes.TaxSummary(ctx, orgID)
	if err != nil {
		return nil, err
	}

	// Attach the current rate for labels that still have a setting.
	settings, err := s.taxes.List(ctx, orgID)
	if err != nil {
		return nil, err
	}
	rateByLabel := make(map[string]float64, len(settings))
	for _, t := range settings {
		rateByLabel[t.Label] = t.Rate
	}
	for i := range rows {
		rows[i].Rate = rateByLabel[rows[i].Label]
	}
	return rows, nil
}
