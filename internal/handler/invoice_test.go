package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashbill/flashbill/internal/domain"
	"github.com/flashbill/flashbill/internal/middleware"
)

// fakeInvoiceService satisfies domain.InvoiceService with canned results,
// recording the arguments it was called with.
type fakeInvoiceService struct {
	detail  *domain.InvoiceDetail
	payment *domain.Payment
	tier    domain.ReminderTier
	err     error

	createParams  *domain.CreateInvoiceParams
	listFilter    *domain.InvoiceFilter
	paymentParams *domain.RecordPaymentParams
	sendRecipient string
	guestToken    string
	guestAmount   float64
	orgID         uuid.UUID
}

var _ domain.InvoiceService = (*fakeInvoiceService)(nil)

func (f *fakeInvoiceService) CreateInvoice(ctx context.Context, orgID uuid.UUID, params domain.CreateInvoiceParams) (*domain.InvoiceDetail, error) {
	f.orgID, f.createParams = orgID, &params
	return f.detail, f.err
}

func (f *fakeInvoiceService) GetInvoice(ctx context.Context, orgID, invoiceID uuid.UUID) (*domain.InvoiceDetail, error) {
	f.orgID = orgID
	return f.detail, f.err
}

func (f *fakeInvoiceService) ListInvoices(ctx context.Context, orgID uuid.UUID, filter domain.InvoiceFilter) ([]domain.InvoiceDetail, error) {
	f.orgID, f.listFilter = orgID, &filter
	if f.err != nil {
		return nil, f.err
	}
	if f.detail == nil {
		return nil, nil
	}
	return []domain.InvoiceDetail{*f.detail}, nil
}

func (f *fakeInvoiceService) UpdateInvoice(ctx context.Context, orgID, invoiceID uuid.UUID, params domain.UpdateInvoiceParams) (*domain.InvoiceDetail, error) {
	return f.detail, f.err
}

func (f *fakeInvoiceService) DeleteInvoice(ctx context.Context, orgID, invoiceID uuid.UUID) error {
	return f.err
}

func (f *fakeInvoiceService) SendInvoice(ctx context.Context, orgID, invoiceID uuid.UUID, recipientEmail string) (*domain.SendInvoiceResult, error) {
	f.sendRecipient = recipientEmail
	if f.err != nil {
		return nil, f.err
	}
	return &domain.SendInvoiceResult{Invoice: f.detail, EmailSent: true}, nil
}

func (f *fakeInvoiceService) MarkSent(ctx context.Context, orgID, invoiceID uuid.UUID) (*domain.InvoiceDetail, error) {
	return f.detail, f.err
}

func (f *fakeInvoiceService) MarkViewed(ctx context.Context, orgID, invoiceID uuid.UUID) error {
	return f.err
}

func (f *fakeInvoiceService) RecordPayment(ctx context.Context, orgID uuid.UUID, params domain.RecordPaymentParams) (*domain.Payment, error) {
	f.orgID, f.paymentParams = orgID, &params
	return f.payment, f.err
}

func (f *fakeInvoiceService) SendReminder(ctx context.Context, orgID, invoiceID uuid.UUID) (domain.ReminderTier, error) {
	return f.tier, f.err
}

func (f *fakeInvoiceService) CancelInvoice(ctx context.Context, orgID, invoiceID uuid.UUID) (*domain.InvoiceDetail, error) {
	return f.detail, f.err
}

func (f *fakeInvoiceService) GetInvoicePDF(ctx context.Context, orgID, invoiceID uuid.UUID) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("<html>invoice</html>"), nil
}

func (f *fakeInvoiceService) GetInvoiceByGuestToken(ctx context.Context, token string) (*domain.InvoiceDetail, error) {
	f.guestToken = token
	return f.detail, f.err
}

func (f *fakeInvoiceService) RecordGuestPayment(ctx context.Context, token string, amount float64) (*domain.Payment, error) {
	f.guestToken, f.guestAmount = token, amount
	return f.payment, f.err
}

func testDetail(orgID uuid.UUID) *domain.InvoiceDetail {
	now := time.Now()
	return &domain.InvoiceDetail{
		Invoice: domain.Invoice{
			ID:            uuid.New(),
			OrgID:         orgID,
			ClientID:      uuid.New(),
			InvoiceNumber: "INV-2026-0001-042",
			Status:        domain.InvoiceStatusDraft,
			IssueDate:     now,
			DueDate:       now.AddDate(0, 0, 30),
			Subtotal:      100,
			TaxAmount:     8,
			Total:         108,
			Currency:      "USD",
			CreatedAt:     now,
			UpdatedAt:     now,
		},
		ClientName:  "Acme Corp",
		ClientEmail: "billing@acme.test",
		BalanceDue:  108,
	}
}

// serve runs the handler through the org middleware so org scope resolution
// matches production.
func serve(orgID uuid.UUID, h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req.Header.Set("Accept", "application/json")
	middleware.WithOrg(middleware.OrgConfig{DefaultOrgID: orgID})(h).ServeHTTP(rec, req)
	return rec
}

func TestInvoiceCreate(t *testing.T) {
	orgID := uuid.New()
	fake := &fakeInvoiceService{detail: testDetail(orgID)}
	h := NewInvoiceHandler(fake, NewValidator())

	clientID := uuid.New()
	body := `{
		"client_id": "` + clientID.String() + `",
		"issue_date": "2026-08-01",
		"due_date": "2026-08-31",
		"items": [{"description": "Consulting", "quantity": 10, "unit_price": 10}]
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec := serve(orgID, h.Create, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NotNil(t, fake.createParams)
	assert.Equal(t, orgID, fake.orgID)
	assert.Equal(t, clientID, fake.createParams.ClientID)
	assert.Equal(t, "2026-08-31", fake.createParams.DueDate.Format("2006-01-02"))
	require.Len(t, fake.createParams.Items, 1)
	assert.Equal(t, "Consulting", fake.createParams.Items[0].Description)

	var resp invoiceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "INV-2026-0001-042", resp.InvoiceNumber)
	assert.Equal(t, domain.InvoiceStatusDraft, resp.Status)
	assert.Equal(t, 108.0, resp.BalanceDue)
}

func TestInvoiceCreateValidation(t *testing.T) {
	orgID := uuid.New()
	fake := &fakeInvoiceService{}
	h := NewInvoiceHandler(fake, NewValidator())

	// Missing items and a malformed due date.
	body := `{"client_id": "` + uuid.New().String() + `", "issue_date": "2026-08-01", "due_date": "soon", "items": []}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec := serve(orgID, h.Create, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, fake.createParams)

	var resp struct {
		Error struct {
			Code   string            `json:"code"`
			Fields map[string]string `json:"fields"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.EINVALID, resp.Error.Code)
	assert.Contains(t, resp.Error.Fields, "items")
	assert.Contains(t, resp.Error.Fields, "due_date")
}

func TestInvoiceGetNotFound(t *testing.T) {
	orgID := uuid.New()
	invoiceID := uuid.New()
	fake := &fakeInvoiceService{err: domain.NotFound("invoice.get", "invoice", invoiceID.String())}
	h := NewInvoiceHandler(fake, NewValidator())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices/"+invoiceID.String(), nil)
	req.SetPathValue("id", invoiceID.String())

	rec := serve(orgID, h.Get, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInvoiceListStatusFilter(t *testing.T) {
	orgID := uuid.New()

	t.Run("overdue is accepted even though never stored", func(t *testing.T) {
		fake := &fakeInvoiceService{detail: testDetail(orgID)}
		h := NewInvoiceHandler(fake, NewValidator())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices?status=overdue", nil)
		rec := serve(orgID, h.List, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, fake.listFilter)
		require.NotNil(t, fake.listFilter.Status)
		assert.Equal(t, domain.InvoiceStatusOverdue, *fake.listFilter.Status)
	})

	t.Run("unknown status rejected", func(t *testing.T) {
		fake := &fakeInvoiceService{}
		h := NewInvoiceHandler(fake, NewValidator())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices?status=shipped", nil)
		rec := serve(orgID, h.List, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Nil(t, fake.listFilter)
	})
}

func TestInvoiceRecordPayment(t *testing.T) {
	orgID := uuid.New()
	invoiceID := uuid.New()
	fake := &fakeInvoiceService{payment: &domain.Payment{
		ID:        uuid.New(),
		InvoiceID: invoiceID,
		Amount:    50,
		Method:    domain.PaymentMethodCheck,
		Status:    domain.PaymentStatusCompleted,
	}}
	h := NewInvoiceHandler(fake, NewValidator())

	body := `{"amount": 50, "method": "check", "paid_by": "Acme Corp"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices/"+invoiceID.String()+"/payments", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.SetPathValue("id", invoiceID.String())

	rec := serve(orgID, h.RecordPayment, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NotNil(t, fake.paymentParams)
	assert.Equal(t, invoiceID, fake.paymentParams.InvoiceID)
	assert.Equal(t, domain.PaymentMethodCheck, fake.paymentParams.Method)
	assert.Equal(t, "Acme Corp", fake.paymentParams.PaidBy)
}

func TestInvoiceSend(t *testing.T) {
	orgID := uuid.New()
	invoiceID := uuid.New()

	t.Run("no body sends to the client address", func(t *testing.T) {
		fake := &fakeInvoiceService{detail: testDetail(orgID)}
		h := NewInvoiceHandler(fake, NewValidator())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices/"+invoiceID.String()+"/send", nil)
		req.SetPathValue("id", invoiceID.String())

		rec := serve(orgID, h.Send, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Empty(t, fake.sendRecipient)
	})

	t.Run("explicit recipient is passed through", func(t *testing.T) {
		fake := &fakeInvoiceService{detail: testDetail(orgID)}
		h := NewInvoiceHandler(fake, NewValidator())

		body := `{"recipient_email": "accounts@acme.test"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices/"+invoiceID.String()+"/send", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.SetPathValue("id", invoiceID.String())

		rec := serve(orgID, h.Send, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "accounts@acme.test", fake.sendRecipient)
	})

	t.Run("malformed recipient is rejected", func(t *testing.T) {
		fake := &fakeInvoiceService{detail: testDetail(orgID)}
		h := NewInvoiceHandler(fake, NewValidator())

		body := `{"recipient_email": "not-an-address"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices/"+invoiceID.String()+"/send", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.SetPathValue("id", invoiceID.String())

		rec := serve(orgID, h.Send, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, fake.sendRecipient)
	})
}

func TestInvoiceSendReminder(t *testing.T) {
	orgID := uuid.New()
	invoiceID := uuid.New()
	fake := &fakeInvoiceService{tier: domain.ReminderUrgent}
	h := NewInvoiceHandler(fake, NewValidator())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices/"+invoiceID.String()+"/reminders", nil)
	req.SetPathValue("id", invoiceID.String())

	rec := serve(orgID, h.SendReminder, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"tier": "urgent"}`, rec.Body.String())
}

func TestInvoiceMarkViewed(t *testing.T) {
	orgID := uuid.New()
	invoiceID := uuid.New()
	fake := &fakeInvoiceService{}
	h := NewInvoiceHandler(fake, NewValidator())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices/"+invoiceID.String()+"/mark-viewed", nil)
	req.SetPathValue("id", invoiceID.String())

	rec := serve(orgID, h.MarkViewed, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}
