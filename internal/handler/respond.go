package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/flashbill/flashbill/internal/domain"
	"github.com/flashbill/flashbill/internal/middleware"
)

// writeJSON encodes v with the given status. Encoding failures after the
// header is written can only be logged.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are already out; nothing more we can do for the client.
		return
	}
}

// decodeJSON reads the request body into dst, rejecting unknown fields and
// trailing garbage so client typos surface as 400s instead of silently
// dropped fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return &domain.Error{Code: domain.ETOOLARGE, Message: "Request body too large"}
		}
		return domain.Invalid("request.decode", "Invalid JSON request body: "+err.Error())
	}
	if dec.More() {
		return domain.Invalid("request.decode", "Request body must contain a single JSON object")
	}
	// Drain so keep-alive connections can be reused.
	io.Copy(io.Discard, r.Body)
	return nil
}

// orgFromRequest resolves the request's org scope. The middleware stack
// guarantees it on API routes; a missing scope here is a wiring bug.
func orgFromRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	orgID, ok := middleware.GetOrgID(r.Context())
	if !ok {
		ErrorResponse(w, r, &domain.Error{Code: domain.EINVALID, Message: "Missing organization scope"})
		return uuid.Nil, false
	}
	return orgID, true
}

// pathUUID parses the named path value as a UUID.
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := r.PathValue(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, domain.Invalid("request.path", "Invalid "+name+" in URL")
	}
	return id, nil
}

// queryInt32 parses an optional integer query parameter, falling back to
// def when absent or unparseable.
func queryInt32(r *http.Request, name string, def int32) int32 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || n < 0 {
		return def
	}
	return int32(n)
}

// queryDate parses an optional YYYY-MM-DD query parameter.
func queryDate(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, domain.Invalid("request.query", name+" must be a date in YYYY-MM-DD format")
	}
	return &t, nil
}
