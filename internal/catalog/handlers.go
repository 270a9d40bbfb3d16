package catalog

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/storefront/internal/common"
)

// Handler exposes public catalog endpoints.
type Handler struct {
	service *Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service}
}

// Brands lists manufacturers with product counts.
func (h *Handler) Brands(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	common.Data(w, http.StatusOK, h.service.ListBrands())
}

// Categories lists categories with product counts.
func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	common.Data(w, http.StatusOK, h.service.ListCategories())
}

// Products serves the filtered, sorted and paginated product list. Sorting by price uses the
// currency query parameter.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	params, err := h.service.ParseListParams(r.URL.Query())
	if err != nil {
		h.writeError(w, err)
		return
	}
	result, err := h.service.ListProducts(r.Context(), params)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(result.Total))
	body := map[string]any{
		"data":       result.Items,
		"pagination": common.NewPagination(result.Page, result.Limit, result.Total),
	}
	if result.Suggestions != nil {
		body["suggestions"] = result.Suggestions
	}
	common.JSON(w, http.StatusOK, body)
}

// Compare serves GET /catalog/compare?models=a,b,c&brand=x.
func (h *Handler) Compare(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var models []string
	for _, m := range strings.Split(r.URL.Query().Get("models"), ",") {
		if m = strings.TrimSpace(m); m != "" {
			models = append(models, m)
		}
	}
	common.Data(w, http.StatusOK, h.service.Compare(models, r.URL.Query().Get("brand")))
}

// ProductDetail looks a product up by model, case-insensitively.
func (h *Handler) ProductDetail(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	product, err := h.service.GetProduct(chi.URLParam(r, "model"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, product)
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h == nil || h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "product not found", nil)
		return
	}
	common.WriteError(w, err)
}
