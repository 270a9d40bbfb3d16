package currency

import (
	"errors"
	"strings"
)

// Currency is an ISO 4217 code supported by the storefront.
type Currency string

const (
	USD Currency = "USD"
	CAD Currency = "CAD"
	EUR Currency = "EUR"
)

// ErrUnsupported is returned when a currency code is not one of the supported set.
var ErrUnsupported = errors.New("unsupported currency")

// All lists supported currencies in toggle order.
func All() []Currency {
	return []Currency{USD, CAD, EUR}
}

// Parse normalises a currency code, rejecting anything outside the supported set.
func Parse(code string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(code)))
	if !c.Valid() {
		return "", ErrUnsupported
	}
	return c, nil
}

// Valid reports whether c is a supported currency.
func (c Currency) Valid() bool {
	switch c {
	case USD, CAD, EUR:
		return true
	default:
		return false
	}
}

// Symbol returns the display symbol. CAD shares the dollar sign with USD.
func (c Currency) Symbol() string {
	switch c {
	case EUR:
		return "€"
	default:
		return "$"
	}
}

// Next returns the currency that follows c when the display currency is toggled.
func (c Currency) Next() Currency {
	switch c {
	case USD:
		return CAD
	case CAD:
		return EUR
	default:
		return USD
	}
}

func (c Currency) String() string { return string(c) }
