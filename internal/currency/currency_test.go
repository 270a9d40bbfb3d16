package currency_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront/internal/currency"
)

func TestParse(t *testing.T) {
	c, err := currency.Parse(" eur ")
	require.NoError(t, err)
	require.Equal(t, currency.EUR, c)

	_, err = currency.Parse("JPY")
	require.ErrorIs(t, err, currency.ErrUnsupported)
}

func TestToggleCycle(t *testing.T) {
	c := currency.USD
	seen := []currency.Currency{c}
	for i := 0; i < 3; i++ {
		c = c.Next()
		seen = append(seen, c)
	}
	require.Equal(t, []currency.Currency{currency.USD, currency.CAD, currency.EUR, currency.USD}, seen)
}

func TestSymbol(t *testing.T) {
	require.Equal(t, "$", currency.USD.Symbol())
	require.Equal(t, "$", currency.CAD.Symbol())
	require.Equal(t, "€", currency.EUR.Symbol())
}
