package checkout_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront/internal/cart"
	"github.com/noah-isme/storefront/internal/checkout"
	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/currency"
	"github.com/noah-isme/storefront/internal/lock"
	"github.com/noah-isme/storefront/internal/notice"
	"github.com/noah-isme/storefront/internal/order"
	"github.com/noah-isme/storefront/internal/preference"
	"github.com/noah-isme/storefront/internal/pricing"
	"github.com/noah-isme/storefront/internal/session"
)

type catalog map[string]cart.Descriptor

func (c catalog) Descriptor(_ context.Context, model string) (cart.Descriptor, error) {
	d, ok := c[model]
	if !ok {
		return cart.Descriptor{}, errors.New("not found")
	}
	return d, nil
}

type fixture struct {
	svc     *checkout.Service
	carts   *cart.Service
	orders  *order.Store
	prefs   *preference.Service
	notices *notice.Bus
	mr      *miniredis.Miniredis
	client  *redis.Client
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	rules, err := pricing.DefaultRules()
	require.NoError(t, err)
	engine, err := pricing.NewEngine(rules)
	require.NoError(t, err)

	storage := session.NewStorage(client, "", time.Hour)
	locker := lock.Locker{R: client, RetryBackoff: 2 * time.Millisecond}
	bus := &notice.Bus{Store: &notice.RedisStore{Client: client, Limit: 10}}
	carts := &cart.Service{
		Storage: storage,
		Catalog: catalog{"X1": {
			ID:          "X1",
			Name:        "X1 Carbon",
			Brand:       "Lenovo",
			Category:    "Laptop",
			Image:       "/images/x1.png",
			Description: "14 inch business laptop",
			UnitPrice:   cart.Prices{currency.USD: 500, currency.CAD: 680, currency.EUR: 460},
		}},
		Locker:  locker,
		Notices: bus,
	}
	orders := &order.Store{Storage: storage, Locker: locker}
	prefs := &preference.Service{Storage: storage}
	svc := checkout.NewService(storage, carts, orders, prefs, engine, bus, nil)
	svc.Now = func() time.Time { return time.Date(2025, time.March, 5, 9, 30, 0, 0, time.UTC) }
	return fixture{svc: svc, carts: carts, orders: orders, prefs: prefs, notices: bus, mr: mr, client: client}
}

func officeInput() checkout.Input {
	return checkout.Input{
		Billing: checkout.Billing{
			RequestedBy: "Dana Whitfield",
			Email:       "dana@example.com",
			FirstName:   "Dana",
			LastName:    "Whitfield",
			CostCenter:  "CC-42",
		},
		Shipping: checkout.Shipping{
			Type:            "office",
			OfficeFirstName: "Sam",
			OfficeLastName:  "Ortiz",
			OfficeLocation:  "Orlando",
		},
	}
}

func residentialInput() checkout.Input {
	return checkout.Input{
		Billing: checkout.Billing{
			RequestedBy: "  ",
			Email:       "dana@example.com",
			FirstName:   "Dana",
			LastName:    "Whitfield",
		},
		Shipping: checkout.Shipping{
			Type:      "residential",
			FirstName: "Lee",
			LastName:  "Park",
			Address1:  "1 Main St",
			Country:   "US",
			City:      "Springfield",
			Zip:       "62701",
			Phone:     "555-0100",
		},
		ShippingMethod: "express",
	}
}

func TestPlaceOrderAtOffice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.carts.Add(ctx, "s1", "X1", 1)
	require.NoError(t, err)
	_, err = f.carts.UpdateQuantity(ctx, "s1", "X1", 3)
	require.NoError(t, err)
	require.NoError(t, f.svc.SaveDraft(ctx, "s1", officeInput()))
	_, _ = f.notices.Drain(ctx, "s1")

	placed, err := f.svc.PlaceOrder(ctx, "s1", officeInput())
	require.NoError(t, err)
	require.Regexp(t, `^112-\d{7}$`, placed.OrderNumber)
	require.NotEmpty(t, placed.ID)
	require.Equal(t, "March 05, 2025", placed.OrderDate)
	require.Equal(t, "Dana Whitfield", placed.OrderedBy)
	require.Equal(t, "Sam Ortiz", placed.OrderedFor)
	require.Equal(t, order.ShippingAddress{Type: "office", Address: "Orlando"}, placed.ShippingAddress)
	require.Equal(t, order.StatusPending, placed.Status)
	require.Equal(t, currency.USD, placed.Currency)
	require.Equal(t, "CC-42", placed.CostCenter)
	require.Equal(t, "free", placed.ShippingMethod)
	require.Equal(t, 1500.0, placed.Subtotal)
	require.Equal(t, 0.065, placed.TaxRate)
	require.Equal(t, 97.50, placed.Tax)
	require.Equal(t, 1597.50, placed.Total)
	require.Equal(t, []order.Item{{
		Model:       "X1",
		Brand:       "Lenovo",
		Image:       "/images/x1.png",
		Description: "14 inch business laptop",
		Price:       500,
		Quantity:    3,
	}}, placed.Items)

	st, err := f.carts.Load(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, 0, st.Len())

	_, found, err := f.svc.Draft(ctx, "s1")
	require.NoError(t, err)
	require.False(t, found)

	history, err := f.orders.List(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, placed.ID, history[0].ID)

	drained, err := f.notices.Drain(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, drained, 1)
	require.Equal(t, "Order "+placed.OrderNumber+" placed", drained[0].Message)
}

func TestPlaceOrderResidentialExpressInEuros(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.carts.Add(ctx, "s1", "X1", 2)
	require.NoError(t, err)
	_, err = f.prefs.Set(ctx, "s1", "EUR")
	require.NoError(t, err)

	first, err := f.svc.PlaceOrder(ctx, "s1", residentialInput())
	require.NoError(t, err)
	require.Equal(t, "Unknown", first.OrderedBy)
	require.Equal(t, "Lee Park", first.OrderedFor)
	require.Equal(t, "1 Main St, Springfield, US 62701", first.ShippingAddress.Address)
	require.Equal(t, currency.EUR, first.Currency)
	require.Equal(t, 920.0, first.Subtotal)
	require.Equal(t, 66.70, first.Tax)
	require.Equal(t, 14.0, first.Shipping)
	require.Equal(t, 1000.70, first.Total)

	_, err = f.carts.Add(ctx, "s1", "X1", 1)
	require.NoError(t, err)
	second, err := f.svc.PlaceOrder(ctx, "s1", residentialInput())
	require.NoError(t, err)

	history, err := f.orders.List(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, []string{second.ID, first.ID}, []string{history[0].ID, history[1].ID})
}

// refuseSet fails SET commands on one key and passes everything else through.
type refuseSet struct{ key string }

func (refuseSet) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h refuseSet) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if args := cmd.Args(); cmd.Name() == "set" && len(args) > 1 && args[1] == h.key {
			err := errors.New("write refused")
			cmd.SetErr(err)
			return err
		}
		return next(ctx, cmd)
	}
}

func (refuseSet) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestPlaceOrderSurvivesCartCleanupFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.carts.Add(ctx, "s1", "X1", 1)
	require.NoError(t, err)

	f.client.AddHook(refuseSet{key: "session:s1:cart"})
	placed, err := f.svc.PlaceOrder(ctx, "s1", officeInput())
	require.NoError(t, err)

	history, err := f.orders.List(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, placed.ID, history[0].ID)
}

func TestPlaceOrderRejectsEmptyCart(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.PlaceOrder(context.Background(), "s1", officeInput())
	require.ErrorIs(t, err, checkout.ErrEmptyCart)
}

func TestValidate(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.Validate(officeInput()))
	require.NoError(t, f.svc.Validate(residentialInput()))

	fieldsOf := func(in checkout.Input) map[string]string {
		err := f.svc.Validate(in)
		require.ErrorIs(t, err, checkout.ErrValidation)
		var verr *checkout.ValidationError
		require.True(t, errors.As(err, &verr))
		return verr.Fields
	}

	in := officeInput()
	in.Billing.Email = "not-an-email"
	in.Billing.FirstName = ""
	fields := fieldsOf(in)
	require.Equal(t, "email", fields["billing.email"])
	require.Equal(t, "required", fields["billing.firstName"])

	in = officeInput()
	in.Shipping.OfficeLocation = "Atlantis"
	require.Equal(t, map[string]string{"shipping.officeLocation": "office"}, fieldsOf(in))

	in = officeInput()
	in.Shipping.OfficeLocation = "orlando"
	require.NoError(t, f.svc.Validate(in))

	in = residentialInput()
	in.Shipping.Zip = ""
	in.Shipping.Phone = ""
	fields = fieldsOf(in)
	require.Contains(t, fields, "shipping.zip")
	require.Contains(t, fields, "shipping.phone")

	in = residentialInput()
	in.Shipping.Type = "drone"
	require.Contains(t, fieldsOf(in), "shipping.type")

	in = residentialInput()
	in.ShippingMethod = "overnight"
	require.Contains(t, fieldsOf(in), "shippingMethod")
}

func TestQuote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.carts.Add(ctx, "s1", "X1", 3)
	require.NoError(t, err)

	q, err := f.svc.Quote(ctx, "s1", checkout.QuoteInput{ShippingType: "office", Destination: "Orlando"})
	require.NoError(t, err)
	require.Equal(t, currency.USD, q.Currency)
	require.Equal(t, 3, q.TotalItems)
	require.Equal(t, 1597.50, q.Pricing.Total)
	require.Equal(t, "$1,597.5", q.Display["total"])

	q, err = f.svc.Quote(ctx, "s1", checkout.QuoteInput{ShippingType: "office", Destination: "Nonexistent City"})
	require.NoError(t, err)
	require.Equal(t, pricing.DefaultTaxRate, q.Pricing.TaxRate)

	_, err = f.svc.Quote(ctx, "s1", checkout.QuoteInput{ShippingType: "boat"})
	require.ErrorIs(t, err, checkout.ErrValidation)
}

func TestDraftLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, found, err := f.svc.Draft(ctx, "s1")
	require.NoError(t, err)
	require.False(t, found)

	partial := checkout.Input{Billing: checkout.Billing{FirstName: "Dana"}}
	require.NoError(t, f.svc.SaveDraft(ctx, "s1", partial))
	got, found, err := f.svc.Draft(ctx, "s1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, partial, got)

	require.NoError(t, f.svc.DiscardDraft(ctx, "s1"))
	_, found, err = f.svc.Draft(ctx, "s1")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, f.mr.Set("session:s1:devSetupOrder", "{oops"))
	_, found, err = f.svc.Draft(ctx, "s1")
	require.NoError(t, err)
	require.False(t, found)
}

func TestHandlers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := &checkout.Handler{Svc: f.svc}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sid := r.Header.Get("X-Test-Session"); sid != "" {
				r = r.WithContext(common.WithSessionID(r.Context(), sid))
			}
			next.ServeHTTP(w, r)
		})
	})
	router.Post("/api/v1/checkout/quote", h.Quote)
	router.Get("/api/v1/checkout/draft", h.GetDraft)
	router.Put("/api/v1/checkout/draft", h.SaveDraft)
	router.Delete("/api/v1/checkout/draft", h.DiscardDraft)
	router.Post("/api/v1/checkout/orders", h.PlaceOrder)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("X-Test-Session", "s1")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/checkout/orders", strings.NewReader(`{}`)))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	payload, err := json.Marshal(officeInput())
	require.NoError(t, err)

	rec = do(http.MethodPost, "/api/v1/checkout/orders", string(payload))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "EMPTY_CART")

	rec = do(http.MethodPost, "/api/v1/checkout/orders", `{"billing":{},"shipping":{"type":"office"}}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var verr struct {
		Error struct {
			Code    string            `json:"code"`
			Details map[string]string `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verr))
	require.Equal(t, "VALIDATION_FAILED", verr.Error.Code)
	require.Equal(t, "required", verr.Error.Details["shipping.officeLocation"])

	rec = do(http.MethodPost, "/api/v1/checkout/orders", `{`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(http.MethodGet, "/api/v1/checkout/draft", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(http.MethodPut, "/api/v1/checkout/draft", string(payload))
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(http.MethodGet, "/api/v1/checkout/draft", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"officeLocation":"Orlando"`)
	rec = do(http.MethodDelete, "/api/v1/checkout/draft", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	_, err = f.carts.Add(ctx, "s1", "X1", 3)
	require.NoError(t, err)

	rec = do(http.MethodPost, "/api/v1/checkout/quote", `{"shippingType":"office","destination":"Orlando"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"total":1597.5`)

	rec = do(http.MethodPost, "/api/v1/checkout/quote", `{"shippingType":"boat"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(http.MethodPost, "/api/v1/checkout/orders", string(payload))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Data order.Order `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, 1597.50, created.Data.Total)
}
