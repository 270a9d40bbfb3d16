package cart_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/cucumber/godog"

	"github.com/noah-isme/storefront/internal/cart"
	"github.com/noah-isme/storefront/internal/currency"
	"github.com/noah-isme/storefront/internal/pricing"
)

type cartFeatureContext struct {
	products map[string]cart.Descriptor
	store    *cart.Store
	engine   *pricing.Engine
	summary  pricing.Summary
}

func (c *cartFeatureContext) reset() error {
	rules, err := pricing.DefaultRules()
	if err != nil {
		return err
	}
	engine, err := pricing.NewEngine(rules)
	if err != nil {
		return err
	}
	c.products = map[string]cart.Descriptor{}
	c.store = cart.NewStore(nil)
	c.engine = engine
	c.summary = pricing.Summary{}
	return nil
}

func (c *cartFeatureContext) aProductPriced(id string, price float64, code string) error {
	cur, err := currency.Parse(code)
	if err != nil {
		return err
	}
	c.products[id] = cart.Descriptor{ID: id, Name: id, UnitPrice: cart.Prices{cur: price}}
	return nil
}

func (c *cartFeatureContext) iAddOf(quantity int, id string) error {
	d, ok := c.products[id]
	if !ok {
		return fmt.Errorf("unknown product %q", id)
	}
	c.store.AddToCart(d, quantity)
	return nil
}

func (c *cartFeatureContext) iSetTheQuantityOfTo(id string, quantity int) error {
	c.store.UpdateQuantity(id, quantity)
	return nil
}

func (c *cartFeatureContext) iRemove(id string) error {
	c.store.RemoveFromCart(id)
	return nil
}

func (c *cartFeatureContext) iShipTo(shippingType, destination string) error {
	st, ok := pricing.ParseShippingType(shippingType)
	if !ok {
		return fmt.Errorf("unknown shipping type %q", shippingType)
	}
	c.summary = c.engine.Summarize(c.store.TotalCost(currency.USD), st, destination, 0)
	return nil
}

func (c *cartFeatureContext) theCartHasLines(n int) error {
	if c.store.Len() != n {
		return fmt.Errorf("expected %d lines, got %d", n, c.store.Len())
	}
	return nil
}

func (c *cartFeatureContext) theQuantityOfIs(id string, want int) error {
	if got := c.store.ItemQuantity(id); got != want {
		return fmt.Errorf("expected quantity %d for %s, got %d", want, id, got)
	}
	return nil
}

func (c *cartFeatureContext) theCartDoesNotContain(id string) error {
	if c.store.IsInCart(id) {
		return fmt.Errorf("expected %s to be absent", id)
	}
	return nil
}

func (c *cartFeatureContext) theTotalItemCountIs(want int) error {
	if got := c.store.TotalItems(); got != want {
		return fmt.Errorf("expected %d items, got %d", want, got)
	}
	return nil
}

func (c *cartFeatureContext) theTotalIs(code string, want float64) error {
	cur, err := currency.Parse(code)
	if err != nil {
		return err
	}
	if got := c.store.TotalCost(cur); got != want {
		return fmt.Errorf("expected %s total %v, got %v", code, want, got)
	}
	return nil
}

func (c *cartFeatureContext) theTaxRateIs(want float64) error {
	if c.summary.TaxRate != want {
		return fmt.Errorf("expected tax rate %v, got %v", want, c.summary.TaxRate)
	}
	return nil
}

func (c *cartFeatureContext) theTaxIs(want float64) error {
	if c.summary.Tax != want {
		return fmt.Errorf("expected tax %v, got %v", want, c.summary.Tax)
	}
	return nil
}

func (c *cartFeatureContext) theOrderTotalIs(want float64) error {
	if c.summary.Total != want {
		return fmt.Errorf("expected total %v, got %v", want, c.summary.Total)
	}
	return nil
}

func (c *cartFeatureContext) isShownAs(amount float64, code, want string) error {
	cur, err := currency.Parse(code)
	if err != nil {
		return err
	}
	if got := c.engine.FormatCurrency(amount, cur); got != want {
		return fmt.Errorf("expected %q, got %q", want, got)
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &cartFeatureContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		return ctx, tc.reset()
	})

	ctx.Step(`^a product "([^"]*)" priced ([\d.]+) (USD|CAD|EUR)$`, tc.aProductPriced)

	ctx.Step(`^I add (\d+) of "([^"]*)"$`, tc.iAddOf)
	ctx.Step(`^I set the quantity of "([^"]*)" to (-?\d+)$`, tc.iSetTheQuantityOfTo)
	ctx.Step(`^I remove "([^"]*)"$`, tc.iRemove)
	ctx.Step(`^I ship to the "([^"]*)" destination "([^"]*)"$`, tc.iShipTo)

	ctx.Step(`^the cart has (\d+) lines?$`, tc.theCartHasLines)
	ctx.Step(`^the quantity of "([^"]*)" is (\d+)$`, tc.theQuantityOfIs)
	ctx.Step(`^the cart does not contain "([^"]*)"$`, tc.theCartDoesNotContain)
	ctx.Step(`^the total item count is (\d+)$`, tc.theTotalItemCountIs)
	ctx.Step(`^the (USD|CAD|EUR) total is ([\d.]+)$`, tc.theTotalIs)
	ctx.Step(`^the tax rate is ([\d.]+)$`, tc.theTaxRateIs)
	ctx.Step(`^the tax is ([\d.]+)$`, tc.theTaxIs)
	ctx.Step(`^the order total is ([\d.]+)$`, tc.theOrderTotalIs)
	ctx.Step(`^([\d.]+) in (USD|CAD|EUR) is shown as "([^"]*)"$`, tc.isShownAs)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"testdata/cart_pricing.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
