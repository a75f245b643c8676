package handler

import (
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/flashbill/flashbill/internal/domain"
)

// ClientHandler serves the client directory endpoints.
type ClientHandler struct {
	clients  domain.ClientService
	validate *validator.Validate
}

// NewClientHandler creates a client handler.
func NewClientHandler(clients domain.ClientService, validate *validator.Validate) *ClientHandler {
	return &ClientHandler{clients: clients, validate: validate}
}

type createClientRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email" validate:"omitempty,email"`
	Phone   string `json:"phone" validate:"max=50"`
	Company string `json:"company" validate:"max=200"`
	Address string `json:"address" validate:"max=500"`
	TaxID   string `json:"tax_id" validate:"max=20"`
}

// Create handles POST /api/v1/clients.
func (h *ClientHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}

	var req createClientRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, err)
		return
	}
	if err := validateRequest(h.validate, "client.create", &req); err != nil {
		ValidationErrorResponse(w, r, err)
		return
	}

	client, err := h.clients.CreateClient(r.Context(), orgID, domain.CreateClientParams{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Company: req.Company,
		Address: req.Address,
		TaxID:   req.TaxID,
	})
	if err != nil {
		ValidationErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toClientResponse(client))
}

// Get handles GET /api/v1/clients/{id}.
func (h *ClientHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}
	clientID, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	client, err := h.clients.GetClient(r.Context(), orgID, clientID)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toClientResponse(client))
}

// List handles GET /api/v1/clients.
func (h *ClientHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}

	clients, err := h.clients.ListClients(r.Context(), orgID,
		queryInt32(r, "limit", 50), queryInt32(r, "offset", 0))
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	out := make([]clientResponse, 0, len(clients))
	for i := range clients {
		out = append(out, toClientResponse(&clients[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"clients": out})
}

type updateClientRequest struct {
	Name    *string `json:"name" validate:"omitempty,min=1,max=200"`
	Email   *string `json:"email" validate:"omitempty,email"`
	Phone   *string `json:"phone" validate:"omitempty,max=50"`
	Company *string `json:"company" validate:"omitempty,max=200"`
	Address *string `json:"address" validate:"omitempty,max=500"`
	TaxID   *string `json:"tax_id" validate:"omitempty,max=20"`
}

// Update handles PUT /api/v1/clients/{id}.
func (h *ClientHandler) Update(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}
	clientID, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	var req updateClientRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, err)
		return
	}
	if err := validateRequest(h.validate, "client.update", &req); err != nil {
		ValidationErrorResponse(w, r, err)
		return
	}

	client, err := h.clients.UpdateClient(r.Context(), orgID, clientID, domain.UpdateClientParams{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Company: req.Company,
		Address: req.Address,
		TaxID:   req.TaxID,
	})
	if err != nil {
		ValidationErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toClientResponse(client))
}

// Delete handles DELETE /api/v1/clients/{id}.
func (h *ClientHandler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}
	clientID, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	if err := h.clients.DeleteClient(r.Context(), orgID, clientID); err != nil {
		ErrorResponse(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
