package handler

import (
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/flashbill/flashbill/internal/domain"
)

// TaxHandler serves the tax settings and tax math endpoints.
type TaxHandler struct {
	taxes    domain.TaxService
	validate *validator.Validate
}

// NewTaxHandler creates a tax handler.
func NewTaxHandler(taxes domain.TaxService, validate *validator.Validate) *TaxHandler {
	return &TaxHandler{taxes: taxes, validate: validate}
}

type createTaxSettingRequest struct {
	Label     string  `json:"label" validate:"required,max=100"`
	Rate      float64 `json:"rate" validate:"gte=0,lte=1"`
	IsDefault bool    `json:"is_default"`
	IsActive  *bool   `json:"is_active"`
}

// Create handles POST /api/v1/tax-settings.
func (h *TaxHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}

	var req createTaxSettingRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, err)
		return
	}
	if err := validateRequest(h.validate, "tax.create", &req); err != nil {
		ValidationErrorResponse(w, r, err)
		return
	}

	// New settings are active unless explicitly disabled.
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	setting, err := h.taxes.CreateTaxSetting(r.Context(), orgID, domain.CreateTaxSettingParams{
		Label:     req.Label,
		Rate:      req.Rate,
		IsDefault: req.IsDefault,
		IsActive:  active,
	})
	if err != nil {
		ValidationErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTaxSettingResponse(setting))
}

// Get handles GET /api/v1/tax-settings/{id}.
func (h *TaxHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}
	settingID, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	setting, err := h.taxes.GetTaxSetting(r.Context(), orgID, settingID)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaxSettingResponse(setting))
}

// List handles GET /api/v1/tax-settings, default setting first.
func (h *TaxHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}

	settings, err := h.taxes.ListTaxSettings(r.Context(), orgID)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	out := make([]taxSettingResponse, 0, len(settings))
	for i := range settings {
		out = append(out, toTaxSettingResponse(&settings[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"tax_settings": out})
}

type updateTaxSettingRequest struct {
	Label     *string  `json:"label" validate:"omitempty,max=100"`
	Rate      *float64 `json:"rate" validate:"omitempty,gte=0,lte=1"`
	IsDefault *bool    `json:"is_default"`
	IsActive  *bool    `json:"is_active"`
}

// Update handles PUT /api/v1/tax-settings/{id}. Promoting a setting to
// default demotes the previous default atomically.
func (h *TaxHandler) Update(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}
	settingID, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	var req updateTaxSettingRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, err)
		return
	}
	if err := validateRequest(h.validate, "tax.update", &req); err != nil {
		ValidationErrorResponse(w, r, err)
		return
	}

	setting, err := h.taxes.UpdateTaxSetting(r.Context(), orgID, settingID, domain.UpdateTaxSettingParams{
		Label:     req.Label,
		Rate:      req.Rate,
		IsDefault: req.IsDefault,
		IsActive:  req.IsActive,
	})
	if err != nil {
		ValidationErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaxSettingResponse(setting))
}

// Delete handles DELETE /api/v1/tax-settings/{id}.
func (h *TaxHandler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}
	settingID, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	if err := h.taxes.DeleteTaxSetting(r.Context(), orgID, settingID); err != nil {
		ErrorResponse(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type calculateTaxRequest struct {
	Amount float64  `json:"amount" validate:"gte=0"`
	Rate   *float64 `json:"rate" validate:"omitempty,gte=0,lte=1"`
}

// Calculate handles POST /api/v1/tax-settings/calculate. With no explicit
// rate the org default applies; without a default the rate is zero.
func (h *TaxHandler) Calculate(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}

	var req calculateTaxRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, err)
		return
	}
	if err := validateRequest(h.validate, "tax.calculate", &req); err != nil {
		ValidationErrorResponse(w, r, err)
		return
	}

	calc, err := h.taxes.CalculateTax(r.Context(), orgID, req.Amount, req.Rate)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"amount":     calc.Amount,
		"rate":       calc.Rate,
		"label":      calc.Label,
		"tax_amount": calc.TaxAmount,
		"total":      calc.Total,
	})
}

// Summary handles GET /api/v1/tax-settings/summary, aggregating tax
// collected per label.
func (h *TaxHandler) Summary(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}

	rows, err := h.taxes.GetTaxSummary(r.Context(), orgID)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	type summaryRow struct {
		Label    string  `json:"label"`
		Rate     float64 `json:"rate"`
		TaxTotal float64 `json:"tax_total"`
		Invoices int64   `json:"invoices"`
	}
	out := make([]summaryRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, summaryRow{Label: row.Label, Rate: row.Rate, TaxTotal: row.TaxTotal, Invoices: row.Invoices})
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": out})
}
