package pricing

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/currency"
)

// Handler exposes the tax table and tax quotes over HTTP.
type Handler struct {
	Engine *Engine
}

// Locations lists office destinations with their tax rates.
func (h *Handler) Locations(w http.ResponseWriter, r *http.Request) {
	if h.Engine == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "pricing engine not configured", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"locations":      h.Engine.Locations(),
			"defaultTaxRate": DefaultTaxRate,
		},
	})
}

// Rate resolves the tax rate for a destination.
func (h *Handler) Rate(w http.ResponseWriter, r *http.Request) {
	if h.Engine == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "pricing engine not configured", nil)
		return
	}
	query := r.URL.Query()
	shippingType, ok := ParseShippingType(query.Get("shippingType"))
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "shippingType must be office or residential", nil)
		return
	}
	destination := strings.TrimSpace(query.Get("destination"))
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"shippingType": shippingType,
			"destination":  destination,
			"rate":         h.Engine.TaxRate(shippingType, destination),
		},
	})
}

// Quote computes tax, shipping and total for a caller-supplied subtotal.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if h.Engine == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "pricing engine not configured", nil)
		return
	}
	var payload struct {
		Subtotal       float64 `json:"subtotal"`
		ShippingType   string  `json:"shippingType"`
		Destination    string  `json:"destination"`
		ShippingMethod string  `json:"shippingMethod"`
		Currency       string  `json:"currency"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	shippingType, ok := ParseShippingType(payload.ShippingType)
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "shippingType must be office or residential", nil)
		return
	}
	method, ok := ParseShippingMethod(payload.ShippingMethod)
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "shippingMethod must be free or express", nil)
		return
	}
	cur := currency.USD
	if strings.TrimSpace(payload.Currency) != "" {
		parsed, err := currency.Parse(payload.Currency)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unsupported currency", nil)
			return
		}
		cur = parsed
	}
	summary := h.Engine.Summarize(payload.Subtotal, shippingType, payload.Destination, ShippingCost(method))
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"currency": cur,
			"pricing":  summary,
			"display":  h.Engine.Display(summary, cur),
		},
	})
}
