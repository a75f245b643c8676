package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashbill/flashbill/internal/domain"
)

func TestClientService(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.New()

	newSvc := func() (*ClientService, *fakeClientStore) {
		store := newFakeClientStore()
		return NewClientService(store, testLogger()), store
	}

	t.Run("creates a client", func(t *testing.T) {
		svc, _ := newSvc()

		c, err := svc.CreateClient(ctx, orgID, domain.CreateClientParams{
			Name:  "Acme Corp",
			Email: "billing@acme.test",
			TaxID: "12-3456789",
		})
		require.NoError(t, err)
		assert.Equal(t, orgID, c.OrgID)
		assert.Equal(t, "12-3456789", c.TaxID)
	})

	t.Run("empty tax id is accepted", func(t *testing.T) {
		svc, _ := newSvc()

		_, err := svc.CreateClient(ctx, orgID, domain.CreateClientParams{Name: "Acme Corp"})
		assert.NoError(t, err)
	})

	t.Run("rejects malformed tax id", func(t *testing.T) {
		svc, _ := newSvc()

		_, err := svc.CreateClient(ctx, orgID, domain.CreateClientParams{Name: "Acme Corp", TaxID: "not-a-tax-id!"})
		assert.ErrorIs(t, err, domain.ErrInvalidTaxIdentifier)
	})

	t.Run("rejects empty name", func(t *testing.T) {
		svc, _ := newSvc()

		_, err := svc.CreateClient(ctx, orgID, domain.CreateClientParams{})
		assert.True(t, domain.IsValidationError(err))
	})

	t.Run("partial update keeps unset fields", func(t *testing.T) {
		svc, store := newSvc()
		c := store.add(&domain.Client{OrgID: orgID, Name: "Acme Corp", Email: "old@acme.test", Phone: "555-0100"})

		email := "new@acme.test"
		updated, err := svc.UpdateClient(ctx, orgID, c.ID, domain.UpdateClientParams{Email: &email})
		require.NoError(t, err)
		assert.Equal(t, "new@acme.test", updated.Email)
		assert.Equal(t, "Acme Corp", updated.Name)
		assert.Equal(t, "555-0100", updated.Phone)
	})

	t.Run("update validates tax id", func(t *testing.T) {
		svc, store := newSvc()
		c := store.add(&domain.Client{OrgID: orgID, Name: "Acme Corp"})

		bad := "???"
		_, err := svc.UpdateClient(ctx, orgID, c.ID, domain.UpdateClientParams{TaxID: &bad})
		assert.ErrorIs(t, err, domain.ErrInvalidTaxIdentifier)
	})

	t.Run("cross-org client is not found", func(t *testing.T) {
		svc, store := newSvc()
		c := store.add(&domain.Client{OrgID: uuid.New(), Name: "Other"})

		_, err := svc.GetClient(ctx, orgID, c.ID)
		assert.ErrorIs(t, err, domain.ErrClientNotFound)
	})
}
