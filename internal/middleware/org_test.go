package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithOrg(t *testing.T) {
	defaultOrg := uuid.New()
	headerOrg := uuid.New()

	tests := []struct {
		name       string
		defaultID  uuid.UUID
		header     string
		wantStatus int
		wantOrg    uuid.UUID
		wantScoped bool
	}{
		{
			name:       "header wins over default",
			defaultID:  defaultOrg,
			header:     headerOrg.String(),
			wantStatus: http.StatusOK,
			wantOrg:    headerOrg,
			wantScoped: true,
		},
		{
			name:       "falls back to default",
			defaultID:  defaultOrg,
			wantStatus: http.StatusOK,
			wantOrg:    defaultOrg,
			wantScoped: true,
		},
		{
			name:       "malformed header is rejected",
			defaultID:  defaultOrg,
			header:     "not-a-uuid",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "no header and no default leaves request unscoped",
			wantStatus: http.StatusOK,
			wantScoped: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotOrg uuid.UUID
			var gotScoped bool
			handler := WithOrg(OrgConfig{DefaultOrgID: tt.defaultID})(
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					gotOrg, gotScoped = GetOrgID(r.Context())
					w.WriteHeader(http.StatusOK)
				}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices", nil)
			if tt.header != "" {
				req.Header.Set(OrgIDHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantScoped, gotScoped)
			if tt.wantScoped {
				assert.Equal(t, tt.wantOrg, gotOrg)
			}
		})
	}
}

func TestRequireOrg(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("scoped request passes", func(t *testing.T) {
		handler := WithOrg(OrgConfig{DefaultOrgID: uuid.New()})(RequireOrg(next))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/invoices", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unscoped request is rejected", func(t *testing.T) {
		handler := WithOrg(OrgConfig{})(RequireOrg(next))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/invoices", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
