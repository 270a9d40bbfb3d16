package catalog

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront/internal/cart"
	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/currency"
)

//go:embed data/products.json
var defaultProductsJSON []byte

// ErrNotFound indicates the requested product does not exist.
var ErrNotFound = errors.New("catalog: product not found")

// Sort orders accepted by ParseListParams.
const (
	SortFeatured  = "featured"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortName      = "name"
)

// CompareDefaultCount is how many products Compare picks when no models are named.
const CompareDefaultCount = 3

// Product is a catalog entry. Any of the three prices may be absent.
type Product struct {
	Model        string            `json:"model"`
	Manufacturer string            `json:"manufacturer"`
	Category     string            `json:"category"`
	PriceUSD     *float64          `json:"price_usd,omitempty"`
	PriceCAD     *float64          `json:"price_cad,omitempty"`
	PriceEUR     *float64          `json:"price_eur,omitempty"`
	Description  string            `json:"description,omitempty"`
	Image        string            `json:"image,omitempty"`
	Recommended  bool              `json:"recommended,omitempty"`
	Specs        map[string]string `json:"specs,omitempty"`
}

// Price returns the price in c and whether the product is priced in that currency.
func (p Product) Price(c currency.Currency) (float64, bool) {
	var v *float64
	switch c {
	case currency.USD:
		v = p.PriceUSD
	case currency.CAD:
		v = p.PriceCAD
	case currency.EUR:
		v = p.PriceEUR
	}
	if v == nil {
		return 0, false
	}
	return *v, true
}

// Descriptor converts the product into the facts a cart line keeps.
func (p Product) Descriptor() cart.Descriptor {
	prices := make(cart.Prices, 3)
	for _, c := range currency.All() {
		if v, ok := p.Price(c); ok {
			prices[c] = v
		}
	}
	return cart.Descriptor{
		ID:          p.Model,
		Name:        p.Model,
		Brand:       p.Manufacturer,
		Category:    p.Category,
		Image:       p.Image,
		Description: p.Description,
		UnitPrice:   prices,
	}
}

func (p Product) searchableText() string {
	parts := []string{p.Model, p.Manufacturer, p.Category, p.Description}
	keys := make([]string, 0, len(p.Specs))
	for k := range p.Specs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, p.Specs[k])
	}
	return strings.ToLower(strings.Join(parts, " "))
}

// Category summarises one product category.
type Category struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Brand summarises one manufacturer.
type Brand struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// ListParams captures filters for product listing.
type ListParams struct {
	Query    string
	Category string
	Brand    string
	Sort     string
	Currency currency.Currency
	Page     int
	Limit    int
}

// ProductListResult contains list data and pagination metadata.
type ProductListResult struct {
	Items       []Product
	Total       int
	Page        int
	Limit       int
	Suggestions []string
}

// Service serves the static catalog. It is immutable after construction.
type Service struct {
	products     []Product
	byModel      map[string]int
	cache        *Cache
	logger       *zerolog.Logger
	defaultPage  int
	defaultLimit int
	maxLimit     int
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Products     []Product
	Cache        *Cache
	Logger       *zerolog.Logger
	DefaultPage  int
	DefaultLimit int
	MaxLimit     int
}

// DefaultProducts returns the built-in catalog.
func DefaultProducts() ([]Product, error) {
	return LoadProducts(bytes.NewReader(defaultProductsJSON))
}

// LoadProducts decodes a JSON product array.
func LoadProducts(r io.Reader) ([]Product, error) {
	var products []Product
	if err := json.NewDecoder(r).Decode(&products); err != nil {
		return nil, fmt.Errorf("catalog: decode products: %w", err)
	}
	return products, nil
}

// NewService constructs a Service instance. When no products are supplied the built-in catalog is used.
func NewService(cfg ServiceConfig) (*Service, error) {
	products := cfg.Products
	if products == nil {
		var err error
		if products, err = DefaultProducts(); err != nil {
			return nil, err
		}
	}
	byModel := make(map[string]int, len(products))
	for i, p := range products {
		key := normalise(p.Model)
		if key == "" {
			return nil, errors.New("catalog: product model is required")
		}
		if _, dup := byModel[key]; dup {
			return nil, fmt.Errorf("catalog: duplicate product model %q", p.Model)
		}
		byModel[key] = i
	}
	defaultPage := cfg.DefaultPage
	if defaultPage < 1 {
		defaultPage = 1
	}
	defaultLimit := cfg.DefaultLimit
	if defaultLimit < 1 {
		defaultLimit = 12
	}
	maxLimit := cfg.MaxLimit
	if maxLimit < 1 {
		maxLimit = 100
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	return &Service{
		products:     products,
		byModel:      byModel,
		cache:        cfg.Cache,
		logger:       cfg.Logger,
		defaultPage:  defaultPage,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}, nil
}

// ParseListParams normalises raw query values into strongly typed filters.
func (s *Service) ParseListParams(values url.Values) (ListParams, error) {
	params := ListParams{
		Page:     s.defaultPage,
		Limit:    s.defaultLimit,
		Currency: currency.USD,
	}
	params.Query = strings.TrimSpace(values.Get("q"))
	params.Category = strings.TrimSpace(values.Get("category"))
	params.Brand = strings.TrimSpace(values.Get("brand"))

	if v := strings.TrimSpace(values.Get("page")); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return params, badRequest("page", "page must be a positive integer", err)
		}
		params.Page = page
	}

	limit := s.defaultLimit
	if v := strings.TrimSpace(values.Get("limit")); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil || l < 1 {
			return params, badRequest("limit", "limit must be a positive integer", err)
		}
		limit = l
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}
	params.Limit = limit

	if v := strings.TrimSpace(values.Get("currency")); v != "" {
		c, err := currency.Parse(v)
		if err != nil {
			return params, badRequest("currency", "currency must be USD, CAD or EUR", err)
		}
		params.Currency = c
	}

	sortKey, ok := normalizeSort(values.Get("sort"))
	if !ok {
		return params, badRequest("sort", "sort must be featured, price_asc, price_desc or name", nil)
	}
	params.Sort = sortKey
	return params, nil
}

// ListProducts filters, sorts and paginates the catalog.
func (s *Service) ListProducts(ctx context.Context, params ListParams) (ProductListResult, error) {
	candidates := s.search(ctx, params.Query)

	filtered := make([]Product, 0, len(candidates))
	for _, p := range candidates {
		if params.Category != "" && !strings.EqualFold(p.Category, params.Category) {
			continue
		}
		if params.Brand != "" && !strings.EqualFold(p.Manufacturer, params.Brand) {
			continue
		}
		filtered = append(filtered, p)
	}
	sortProducts(filtered, params.Sort, params.Currency)

	page, limit := params.Page, params.Limit
	if page < 1 {
		page = s.defaultPage
	}
	if limit < 1 {
		limit = s.defaultLimit
	}
	start, end := common.PageBounds(page, limit, len(filtered))
	result := ProductListResult{
		Items: append([]Product(nil), filtered[start:end]...),
		Total: len(filtered),
		Page:  page,
		Limit: limit,
	}
	if strings.TrimSpace(params.Query) != "" {
		result.Suggestions = s.Suggestions()
	}
	return result, nil
}

// Suggestions lists every brand then every category, each in first-seen order, as refinements
// for a text search.
func (s *Service) Suggestions() []string {
	var brands, categories []string
	seen := map[string]bool{}
	for _, p := range s.products {
		if b := "b:" + p.Manufacturer; p.Manufacturer != "" && !seen[b] {
			seen[b] = true
			brands = append(brands, p.Manufacturer)
		}
		if c := "c:" + p.Category; p.Category != "" && !seen[c] {
			seen[c] = true
			categories = append(categories, p.Category)
		}
	}
	return append(brands, categories...)
}

// Compare returns the named models in the order given, skipping unknown models, duplicates and
// models outside brand. With no models it picks CompareDefaultCount random products of brand
// (or of the whole catalog when brand is empty).
func (s *Service) Compare(models []string, brand string) []Product {
	inBrand := func(p Product) bool {
		return brand == "" || strings.EqualFold(p.Manufacturer, strings.TrimSpace(brand))
	}
	if len(models) > 0 {
		out := make([]Product, 0, len(models))
		picked := map[int]bool{}
		for _, m := range models {
			i, ok := s.byModel[normalise(m)]
			if !ok || picked[i] || !inBrand(s.products[i]) {
				continue
			}
			picked[i] = true
			out = append(out, s.products[i])
		}
		return out
	}

	pool := make([]Product, 0, len(s.products))
	for _, p := range s.products {
		if inBrand(p) {
			pool = append(pool, p)
		}
	}
	rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if len(pool) > CompareDefaultCount {
		pool = pool[:CompareDefaultCount]
	}
	return pool
}

// search returns products whose text contains query. Matching model lists are cached per query.
func (s *Service) search(ctx context.Context, query string) []Product {
	query = normalise(query)
	if query == "" {
		return s.products
	}
	key := s.cache.SearchKey(query)
	var models []string
	if ok, err := s.cache.GetJSON(ctx, key, &models); err == nil && ok {
		out := make([]Product, 0, len(models))
		for _, m := range models {
			if i, found := s.byModel[normalise(m)]; found {
				out = append(out, s.products[i])
			}
		}
		return out
	} else if err != nil && s.logger != nil {
		s.logger.Warn().Err(err).Str("query", query).Msg("catalog search cache read failed")
	}

	out := make([]Product, 0)
	models = make([]string, 0)
	for _, p := range s.products {
		if strings.Contains(p.searchableText(), query) {
			out = append(out, p)
			models = append(models, p.Model)
		}
	}
	if err := s.cache.SetJSON(ctx, key, models); err != nil && s.logger != nil {
		s.logger.Warn().Err(err).Str("query", query).Msg("catalog search cache write failed")
	}
	return out
}

// GetProduct returns a product by case-insensitive model.
func (s *Service) GetProduct(model string) (Product, error) {
	i, ok := s.byModel[normalise(model)]
	if !ok {
		return Product{}, ErrNotFound
	}
	return s.products[i], nil
}

// Descriptor returns the cart descriptor for a model.
func (s *Service) Descriptor(_ context.Context, model string) (cart.Descriptor, error) {
	p, err := s.GetProduct(model)
	if err != nil {
		return cart.Descriptor{}, err
	}
	return p.Descriptor(), nil
}

// ListCategories returns categories in first-seen order with item counts.
func (s *Service) ListCategories() []Category {
	counts := map[string]int{}
	var order []string
	for _, p := range s.products {
		if _, seen := counts[p.Category]; !seen {
			order = append(order, p.Category)
		}
		counts[p.Category]++
	}
	out := make([]Category, 0, len(order))
	for _, name := range order {
		out = append(out, Category{Name: name, Count: counts[name]})
	}
	return out
}

// ListBrands returns manufacturers sorted by name with item counts.
func (s *Service) ListBrands() []Brand {
	counts := map[string]int{}
	for _, p := range s.products {
		counts[p.Manufacturer]++
	}
	out := make([]Brand, 0, len(counts))
	for name, count := range counts {
		out = append(out, Brand{Name: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func sortProducts(items []Product, key string, c currency.Currency) {
	switch key {
	case SortPriceAsc, SortPriceDesc:
		sort.SliceStable(items, func(i, j int) bool {
			pi, iok := items[i].Price(c)
			pj, jok := items[j].Price(c)
			if iok != jok {
				return iok
			}
			if key == SortPriceAsc {
				return pi < pj
			}
			return pi > pj
		})
	case SortName:
		sort.SliceStable(items, func(i, j int) bool {
			return strings.ToLower(items[i].Model) < strings.ToLower(items[j].Model)
		})
	default:
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].Recommended && !items[j].Recommended
		})
	}
}

func normalizeSort(s string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", SortFeatured:
		return SortFeatured, true
	case SortPriceAsc:
		return SortPriceAsc, true
	case SortPriceDesc:
		return SortPriceDesc, true
	case SortName:
		return SortName, true
	default:
		return "", false
	}
}

func normalise(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func badRequest(field, message string, err error) *common.AppError {
	return &common.AppError{
		Code:       "BAD_REQUEST",
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
		Details: map[string]any{
			"field": field,
		},
	}
}
