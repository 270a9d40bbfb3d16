package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultTaxRate applies to residential deliveries and to office names missing from the table.
const DefaultTaxRate = 0.0725

// ExpressShippingCost is the flat express surcharge, in units of the order currency.
const ExpressShippingCost = 14.0

// ShippingType selects how the destination string is interpreted.
type ShippingType string

const (
	ShippingOffice      ShippingType = "office"
	ShippingResidential ShippingType = "residential"
)

// ShippingMethod selects the delivery speed.
type ShippingMethod string

const (
	ShippingFree    ShippingMethod = "free"
	ShippingExpress ShippingMethod = "express"
)

// ParseShippingType reports whether value names a known shipping type.
func ParseShippingType(value string) (ShippingType, bool) {
	switch t := ShippingType(strings.ToLower(strings.TrimSpace(value))); t {
	case ShippingOffice, ShippingResidential:
		return t, true
	default:
		return "", false
	}
}

// ParseShippingMethod reports whether value names a known shipping method. Empty means free.
func ParseShippingMethod(value string) (ShippingMethod, bool) {
	switch m := ShippingMethod(strings.ToLower(strings.TrimSpace(value))); m {
	case "":
		return ShippingFree, true
	case ShippingFree, ShippingExpress:
		return m, true
	default:
		return "", false
	}
}

// ShippingCost returns the surcharge for a method; unknown methods ship free.
func ShippingCost(method ShippingMethod) float64 {
	if method == ShippingExpress {
		return ExpressShippingCost
	}
	return 0
}

// Summary aggregates computed order totals.
type Summary struct {
	Subtotal float64 `json:"subtotal"`
	TaxRate  float64 `json:"taxRate"`
	Tax      float64 `json:"tax"`
	Shipping float64 `json:"shipping"`
	Total    float64 `json:"total"`
}

// Engine resolves tax rates from a static table and formats amounts for display.
// It is immutable after construction.
type Engine struct {
	rules       []TaxRule
	byName      map[string]TaxRule
	defaultRate decimal.Decimal
	printer     *message.Printer
	decimalSep  string
	observe     func(matched bool)
}

// Option customises an Engine.
type Option func(*Engine)

// WithLocale sets the locale used for digit grouping.
func WithLocale(tag language.Tag) Option {
	return func(e *Engine) {
		e.printer = message.NewPrinter(tag)
	}
}

// WithLookupObserver registers a callback invoked on every office lookup with whether the
// destination matched a rule.
func WithLookupObserver(fn func(matched bool)) Option {
	return func(e *Engine) {
		e.observe = fn
	}
}

// NewEngine validates the tax table and builds an engine around it.
func NewEngine(rules []TaxRule, opts ...Option) (*Engine, error) {
	e := &Engine{
		rules:       make([]TaxRule, 0, len(rules)),
		byName:      make(map[string]TaxRule, len(rules)),
		defaultRate: decimal.NewFromFloat(DefaultTaxRate),
		printer:     message.NewPrinter(language.AmericanEnglish),
	}
	for _, rule := range rules {
		key := normaliseName(rule.Name)
		if key == "" {
			return nil, errors.New("pricing: tax rule name is required")
		}
		if rule.Rate < 0 || rule.Rate >= 1 {
			return nil, fmt.Errorf("pricing: tax rate for %q out of range: %v", rule.Name, rule.Rate)
		}
		if _, dup := e.byName[key]; dup {
			return nil, fmt.Errorf("pricing: duplicate tax destination %q", rule.Name)
		}
		e.byName[key] = rule
		e.rules = append(e.rules, rule)
	}
	for _, opt := range opts {
		opt(e)
	}
	e.decimalSep = decimalSeparator(e.printer)
	return e, nil
}

// Locations returns a copy of the office table in declaration order.
func (e *Engine) Locations() []TaxRule {
	out := make([]TaxRule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Location looks up an office by case-insensitive name.
func (e *Engine) Location(name string) (TaxRule, bool) {
	rule, ok := e.byName[normaliseName(name)]
	return rule, ok
}

// TaxRate returns the rate for a destination. Residential destinations (zip codes) and unknown
// office names fall back to DefaultTaxRate.
func (e *Engine) TaxRate(shippingType ShippingType, destination string) float64 {
	f, _ := e.rate(shippingType, destination).Float64()
	return f
}

func (e *Engine) rate(shippingType ShippingType, destination string) decimal.Decimal {
	if shippingType != ShippingOffice {
		return e.defaultRate
	}
	rule, ok := e.byName[normaliseName(destination)]
	if e.observe != nil {
		e.observe(ok)
	}
	if !ok {
		return e.defaultRate
	}
	return decimal.NewFromFloat(rule.Rate)
}

// CalculateTax returns subtotal × rate rounded to cents. Negative subtotals yield negative tax.
func (e *Engine) CalculateTax(subtotal float64, shippingType ShippingType, destination string) float64 {
	return toFloat(e.tax(decimal.NewFromFloat(subtotal), shippingType, destination))
}

func (e *Engine) tax(subtotal decimal.Decimal, shippingType ShippingType, destination string) decimal.Decimal {
	return subtotal.Mul(e.rate(shippingType, destination)).Round(2)
}

// Summarize combines subtotal, tax and shipping into an order summary.
func (e *Engine) Summarize(subtotal float64, shippingType ShippingType, destination string, shipping float64) Summary {
	sub := decimal.NewFromFloat(subtotal)
	rate := e.rate(shippingType, destination)
	tax := sub.Mul(rate).Round(2)
	ship := decimal.NewFromFloat(shipping)
	return Summary{
		Subtotal: subtotal,
		TaxRate:  toFloat(rate),
		Tax:      toFloat(tax),
		Shipping: shipping,
		Total:    toFloat(sub.Add(tax).Add(ship).Round(2)),
	}
}

func normaliseName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
