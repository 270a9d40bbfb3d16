package preference

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/currency"
)

// Handler exposes the currency selection over HTTP.
type Handler struct {
	Svc *Service
}

// Get handles GET /api/v1/currency.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}
	c, err := h.Svc.Get(r.Context(), sid)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, c)
}

// Set handles PUT /api/v1/currency.
func (h *Handler) Set(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}
	var payload struct {
		Currency string `json:"currency"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	c, err := h.Svc.Set(r.Context(), sid, payload.Currency)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, c)
}

// Toggle handles POST /api/v1/currency/toggle.
func (h *Handler) Toggle(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}
	c, err := h.Svc.Toggle(r.Context(), sid)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, c)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "preference service not configured", nil)
		return "", false
	}
	sid, ok := common.SessionID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "session required", nil)
		return "", false
	}
	return sid, true
}

func (h *Handler) respond(w http.ResponseWriter, c currency.Currency) {
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"currency":  c,
			"symbol":    c.Symbol(),
			"available": currency.All(),
		},
	})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrInvalidCurrency) {
		common.JSONError(w, http.StatusBadRequest, "INVALID_CURRENCY", "currency must be USD, CAD or EUR", nil)
		return
	}
	common.WriteError(w, err)
}
