package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/message"

	"github.com/noah-isme/storefront/internal/currency"
)

const maxDisplayFractionDigits = 3

var half = decimal.NewFromFloat(0.5)

// FormatCurrency renders an amount with its currency symbol. CAD and EUR are shown in whole units;
// USD keeps up to three fraction digits with trailing zeros dropped.
//
//	FormatCurrency(1234.567, currency.EUR) == "€1,235"
//	FormatCurrency(1234.567, currency.USD) == "$1,234.567"
func (e *Engine) FormatCurrency(amount float64, c currency.Currency) string {
	return c.Symbol() + e.formatAmount(amount, c)
}

// FormatCurrencyWithCode is FormatCurrency followed by the currency code, e.g. "€1,234 EUR".
func (e *Engine) FormatCurrencyWithCode(amount float64, c currency.Currency) string {
	return e.FormatCurrency(amount, c) + " " + c.String()
}

// Display renders each summary component with FormatCurrency.
func (e *Engine) Display(s Summary, c currency.Currency) map[string]string {
	return map[string]string{
		"subtotal": e.FormatCurrency(s.Subtotal, c),
		"tax":      e.FormatCurrency(s.Tax, c),
		"shipping": e.FormatCurrency(s.Shipping, c),
		"total":    e.FormatCurrency(s.Total, c),
	}
}

func (e *Engine) formatAmount(amount float64, c currency.Currency) string {
	d := decimal.NewFromFloat(amount)
	if c == currency.CAD || c == currency.EUR {
		return e.group(d.Add(half).Floor(), "")
	}
	d = d.Round(maxDisplayFractionDigits)
	frac := ""
	if s := d.Abs().String(); strings.Contains(s, ".") {
		frac = strings.TrimRight(s[strings.Index(s, ".")+1:], "0")
	}
	return e.group(d, frac)
}

// group writes the integer part of d with locale digit grouping, then frac if present.
func (e *Engine) group(d decimal.Decimal, frac string) string {
	var b strings.Builder
	if d.Sign() < 0 {
		b.WriteByte('-')
	}
	b.WriteString(e.printer.Sprintf("%d", d.Abs().Truncate(0).IntPart()))
	if frac != "" {
		b.WriteString(e.decimalSep)
		b.WriteString(frac)
	}
	return b.String()
}

func decimalSeparator(p *message.Printer) string {
	s := p.Sprintf("%.1f", 0.5)
	sep := strings.Trim(s, "0123456789")
	if sep == "" {
		return "."
	}
	return sep
}
