package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Client is a billable customer of an org.
type Client struct {
	ID        uuid.UUID
	OrgID     uuid.UUID
	Name      string
	Email     string
	Phone     string
	Company   string
	Address   string
	TaxID     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateClientParams contains parameters for a new client.
type CreateClientParams struct {
	Name    string
	Email   string
	Phone   string
	Company string
	Address string
	TaxID   string
}

// UpdateClientParams contains optional fields for a partial update.
type UpdateClientParams struct {
	Name    *string
	Email   *string
	Phone   *string
	Company *string
	Address *string
	TaxID   *string
}

// ClientService manages an org's clients.
type ClientService interface {
	CreateClient(ctx context.Context, orgID uuid.UUID, params CreateClientParams) (*Client, error)
	GetClient(ctx context.Context, orgID, clientID uuid.UUID) (*Client, error)
	ListClients(ctx context.Context, orgID uuid.UUID, limit, offset int32) ([]Client, error)
	UpdateClient(ctx context.Context, orgID, clientID uuid.UUID, params UpdateClientParams) (*Client, error)
	DeleteClient(ctx context.Context, orgID, clientID uuid.UUID) error
}
