package order

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/storefront/internal/common"
)

// Handler exposes the session's order history.
type Handler struct {
	Store *Store
}

// List handles GET /api/v1/orders with page/limit pagination.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}
	orders, err := h.Store.List(r.Context(), sid)
	if err != nil {
		h.writeError(w, err)
		return
	}
	page := common.QueryInt(r, "page", 1)
	perPage := common.QueryInt(r, "limit", 20)
	if perPage > 100 {
		perPage = 100
	}
	start, end := common.PageBounds(page, perPage, len(orders))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       orders[start:end],
		"pagination": common.NewPagination(page, perPage, len(orders)),
	})
}

// Get handles GET /api/v1/orders/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}
	o, err := h.Store.Get(r.Context(), sid, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, o)
}

type patchStatusRequest struct {
	Status       string `json:"status"`
	DeliveryDate string `json:"deliveryDate"`
}

// PatchStatus handles PATCH /api/v1/orders/{id}/status.
func (h *Handler) PatchStatus(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}
	var req patchStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	status, ok := ParseStatus(req.Status)
	if !ok {
		h.writeError(w, ErrInvalidStatus)
		return
	}
	o, err := h.Store.UpdateStatus(r.Context(), sid, chi.URLParam(r, "id"), status, req.DeliveryDate)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, o)
}

// Clear handles DELETE /api/v1/orders.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := h.Store.Clear(r.Context(), sid); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order store not configured", nil)
		return "", false
	}
	sid, ok := common.SessionID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "session required", nil)
		return "", false
	}
	return sid, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
	case errors.Is(err, ErrInvalidStatus):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "status must be pending, in-transit or delivered", nil)
	default:
		common.WriteError(w, err)
	}
}
