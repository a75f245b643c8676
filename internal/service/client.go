package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/flashbill/flashbill/internal/domain"
	"github.com/flashbill/flashbill/internal/tax"
)

// ClientService manages an org's billable clients.
type ClientService struct {
	clients ClientStore
	logger  *slog.Logger
}

var _ domain.ClientService = (*ClientService)(nil)

// NewClientService creates the client service.
func NewClientService(clients ClientStore, logger *slog.Logger) *ClientService {
	return &ClientService{clients: clients, logger: logger}
}

// CreateClient validates and persists a new client.
func (s *ClientService) CreateClient(ctx context.Context, orgID uuid.UUID, params domain.CreateClientParams) (*domain.Client, error) {
	op := "client.create"

	if params.Name == "" {
		return nil, domain.NewValidationError(op, "name", "name is required")
	}
	if !tax.ValidTaxID(params.TaxID) {
		return nil, domain.ErrInvalidTaxIdentifier
	}

	return s.clients.Create(ctx, &domain.Client{
		OrgID:   orgID,
		Name:    params.Name,
		Email:   params.Email,
		Phone:   params.Phone,
		Company: params.Company,
		Address: params.Address,
		TaxID:   params.TaxID,
	})
}

// GetClient retrieves a client.
func (s *ClientService) GetClient(ctx context.Context, orgID, clientID uuid.UUID) (*domain.Client, error) {
	return s.clients.GetByID(ctx, orgID, clientID)
}

// ListClients lists the org's clients.
func (s *ClientService) ListClients(ctx context.Context, orgID uuid.UUID, limit, offset int32) ([]domain.Client, error) {
	return s.clients.List(ctx, orgID, limit, offset)
}

// UpdateClient applies a partial update.
func (s *ClientService) UpdateClient(ctx context.Context, orgID, clientID uuid.UUID, params domain.UpdateClientParams) (*domain.Client, error) {
	client, err := s.clients.GetByID(ctx, orgID, clientID)
	if err != nil {
		return nil, err
	}

	if params.Name != nil {
		if *params.Name == "" {
			return nil, domain.NewValidationError("client.update", "name", "name is required")
		}
		client.Name = *params.Name
	}
	if params.Email != nil {
		client.Email = *params.Email
	}
	if params.Phone != nil {
		client.Phone = *params.Phone
	}
	if params.Company != nil {
		client.Company = *params.Company
	}
	if params.Address != nil {
		client.Address = *params.Address
	}
	if params.TaxID != nil {
		if !tax.ValidTaxID(*params.TaxID) {
			return nil, domain.ErrInvalidTaxIdentifier
		}
		client.TaxID = *params.TaxID
	}

	return s.clients.Update(ctx, client)
}

// DeleteClient removes a client; the store refuses clients with invoices.
func (s *ClientService) DeleteClient(ctx context.Context, orgID, clientID uuid.UUID) error {
	return s.clients.Delete(ctx, orgID, clientID)
}
