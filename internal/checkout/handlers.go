package checkout

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/noah-isme/storefront/internal/common"
)

// Handler exposes quoting, drafts and order placement.
type Handler struct {
	Svc *Service
}

// Quote handles POST /api/v1/checkout/quote.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}
	var payload QuoteInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	q, err := h.Svc.Quote(r.Context(), sid, payload)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, q)
}

// GetDraft handles GET /api/v1/checkout/draft.
func (h *Handler) GetDraft(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}
	draft, found, err := h.Svc.Draft(r.Context(), sid)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !found {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "no saved draft", nil)
		return
	}
	common.Data(w, http.StatusOK, draft)
}

// SaveDraft handles PUT /api/v1/checkout/draft.
func (h *Handler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}
	var payload Input
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.Svc.SaveDraft(r.Context(), sid, payload); err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, payload)
}

// DiscardDraft handles DELETE /api/v1/checkout/draft.
func (h *Handler) DiscardDraft(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := h.Svc.DiscardDraft(r.Context(), sid); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PlaceOrder handles POST /api/v1/checkout/orders.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}
	var payload Input
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	o, err := h.Svc.PlaceOrder(r.Context(), sid, payload)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, o)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
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
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", "checkout form is invalid", verr.Fields)
	case errors.Is(err, ErrEmptyCart):
		common.JSONError(w, http.StatusConflict, "EMPTY_CART", "cart is empty", nil)
	default:
		common.WriteError(w, err)
	}
}
