package cart

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/currency"
	"github.com/noah-isme/storefront/internal/preference"
	"github.com/noah-isme/storefront/internal/pricing"
)

// Handler wires cart services to HTTP.
type Handler struct {
	Svc    *Service
	Prefs  *preference.Service
	Engine *pricing.Engine
}

// Get returns the session's cart.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}
	st, err := h.Svc.Load(r.Context(), sid)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, r, sid, http.StatusOK, st)
}

// AddItem handles POST /api/v1/cart/items.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}
	var payload struct {
		Model    string `json:"model"`
		Quantity int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if strings.TrimSpace(payload.Model) == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "model is required", map[string]any{"field": "model"})
		return
	}
	st, err := h.Svc.Add(r.Context(), sid, payload.Model, payload.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, r, sid, http.StatusCreated, st)
}

// UpdateItem handles PATCH /api/v1/cart/items/{id}.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}
	var payload struct {
		Quantity *int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Quantity == nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "quantity is required", map[string]any{"field": "quantity"})
		return
	}
	st, err := h.Svc.UpdateQuantity(r.Context(), sid, chi.URLParam(r, "id"), *payload.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, r, sid, http.StatusOK, st)
}

// RemoveItem handles DELETE /api/v1/cart/items/{id}.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}
	st, err := h.Svc.Remove(r.Context(), sid, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, r, sid, http.StatusOK, st)
}

// Clear handles DELETE /api/v1/cart.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := h.Svc.Clear(r.Context(), sid); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return "", false
	}
	sid, ok := common.SessionID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "session required", nil)
		return "", false
	}
	return sid, true
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, sid string, status int, st *Store) {
	cur := currency.USD
	if h.Prefs != nil {
		if c, err := h.Prefs.Get(r.Context(), sid); err == nil {
			cur = c
		}
	}
	items := make([]map[string]any, 0, st.Len())
	for _, it := range st.Items() {
		items = append(items, map[string]any{
			"id":        it.ID,
			"name":      it.Name,
			"brand":     it.Brand,
			"category":  it.Category,
			"image":     it.Image,
			"unitPrice": it.UnitPrice,
			"quantity":  it.Quantity,
			"price":     it.Price(cur),
			"lineTotal": it.Subtotal(cur),
		})
	}
	subtotal := st.TotalCost(cur)
	data := map[string]any{
		"items":      items,
		"totalItems": st.TotalItems(),
		"totals":     st.Totals(),
		"currency":   cur,
		"subtotal":   subtotal,
	}
	if h.Engine != nil {
		data["subtotalDisplay"] = h.Engine.FormatCurrency(subtotal, cur)
	}
	common.Data(w, status, data)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrUnknownProduct) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "product not found", nil)
		return
	}
	common.WriteError(w, err)
}
