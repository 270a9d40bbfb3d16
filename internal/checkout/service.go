package checkout

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront/internal/cart"
	"github.com/noah-isme/storefront/internal/currency"
	"github.com/noah-isme/storefront/internal/notice"
	"github.com/noah-isme/storefront/internal/obs"
	"github.com/noah-isme/storefront/internal/order"
	"github.com/noah-isme/storefront/internal/preference"
	"github.com/noah-isme/storefront/internal/pricing"
	"github.com/noah-isme/storefront/internal/session"
)

var (
	// ErrValidation wraps form validation failures. Use errors.As with *ValidationError for field details.
	ErrValidation = errors.New("checkout: validation failed")
	// ErrEmptyCart is returned when an order is placed with nothing in the cart.
	ErrEmptyCart = errors.New("checkout: cart is empty")
)

// ValidationError lists the failing fields keyed by their JSON path, e.g. "billing.email".
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(keys, ", "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Billing identifies who requested the order.
type Billing struct {
	RequestedBy string `json:"requestedBy" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	FirstName   string `json:"firstName" validate:"required"`
	LastName    string `json:"lastName" validate:"required"`
	CostCenter  string `json:"costCenter,omitempty"`
}

// Shipping is either a residential address or a known office.
type Shipping struct {
	Type            string `json:"type" validate:"required,oneof=residential office"`
	FirstName       string `json:"firstName,omitempty" validate:"required_if=Type residential"`
	LastName        string `json:"lastName,omitempty" validate:"required_if=Type residential"`
	Address1        string `json:"address1,omitempty" validate:"required_if=Type residential"`
	Address2        string `json:"address2,omitempty"`
	Country         string `json:"country,omitempty" validate:"required_if=Type residential"`
	City            string `json:"city,omitempty" validate:"required_if=Type residential"`
	Zip             string `json:"zip,omitempty" validate:"required_if=Type residential"`
	Phone           string `json:"phone,omitempty" validate:"required_if=Type residential"`
	OfficeFirstName string `json:"officeFirstName,omitempty" validate:"required_if=Type office"`
	OfficeLastName  string `json:"officeLastName,omitempty" validate:"required_if=Type office"`
	OfficeLocation  string `json:"officeLocation,omitempty" validate:"required_if=Type office"`
}

// Destination is the tax destination for the address.
func (s Shipping) Destination() string {
	if s.Type == string(pricing.ShippingOffice) {
		return s.OfficeLocation
	}
	return s.Zip
}

// Recipient is the full name of whoever receives the order.
func (s Shipping) Recipient() string {
	if s.Type == string(pricing.ShippingOffice) {
		return strings.TrimSpace(s.OfficeFirstName + " " + s.OfficeLastName)
	}
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// Address renders the destination as shown in order history.
func (s Shipping) Address() string {
	if s.Type == string(pricing.ShippingOffice) {
		return s.OfficeLocation
	}
	return fmt.Sprintf("%s, %s, %s %s", s.Address1, s.City, s.Country, s.Zip)
}

// Input is the checkout form. It doubles as the saved draft.
type Input struct {
	Billing        Billing  `json:"billing"`
	Shipping       Shipping `json:"shipping"`
	ShippingMethod string   `json:"shippingMethod,omitempty" validate:"omitempty,oneof=free express"`
}

// QuoteInput selects the destination and shipping method to price the cart against.
type QuoteInput struct {
	ShippingType   string `json:"shippingType"`
	Destination    string `json:"destination"`
	ShippingMethod string `json:"shippingMethod"`
}

// Quote is the priced cart in the session's currency.
type Quote struct {
	Currency   currency.Currency `json:"currency"`
	TotalItems int               `json:"totalItems"`
	Pricing    pricing.Summary   `json:"pricing"`
	Display    map[string]string `json:"display"`
}

// Service prices carts and turns them into orders.
type Service struct {
	Storage *session.Storage
	Cart    *cart.Service
	Orders  *order.Store
	Prefs   *preference.Service
	Engine  *pricing.Engine
	Notices *notice.Bus
	Logger  *zerolog.Logger
	Now     func() time.Time

	validate *validator.Validate
}

// NewService wires a checkout service with its form validator.
func NewService(storage *session.Storage, carts *cart.Service, orders *order.Store, prefs *preference.Service, engine *pricing.Engine, notices *notice.Bus, logger *zerolog.Logger) *Service {
	return &Service{
		Storage:  storage,
		Cart:     carts,
		Orders:   orders,
		Prefs:    prefs,
		Engine:   engine,
		Notices:  notices,
		Logger:   logger,
		validate: newValidator(),
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the form, including that an office destination exists in the tax table.
func (s *Service) Validate(in Input) error {
	if s.validate == nil {
		s.validate = newValidator()
	}
	fields := map[string]string{}
	if err := s.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate checkout: %w", err)
		}
		for _, fe := range verrs {
			_, path, _ := strings.Cut(fe.Namespace(), ".")
			fields[path] = fe.Tag()
		}
	}
	if in.Shipping.Type == string(pricing.ShippingOffice) && in.Shipping.OfficeLocation != "" && s.Engine != nil {
		if _, ok := s.Engine.Location(in.Shipping.OfficeLocation); !ok {
			fields["shipping.officeLocation"] = "office"
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Quote prices the session's cart for the given destination.
func (s *Service) Quote(ctx context.Context, sessionID string, in QuoteInput) (Quote, error) {
	if err := s.check(); err != nil {
		return Quote{}, err
	}
	shippingType, method, err := parseShipping(in.ShippingType, in.ShippingMethod)
	if err != nil {
		return Quote{}, err
	}
	st, err := s.Cart.Load(ctx, sessionID)
	if err != nil {
		return Quote{}, err
	}
	cur := s.currency(ctx, sessionID)
	summary := s.Engine.Summarize(st.TotalCost(cur), shippingType, in.Destination, pricing.ShippingCost(method))
	return Quote{
		Currency:   cur,
		TotalItems: st.TotalItems(),
		Pricing:    summary,
		Display:    s.Engine.Display(summary, cur),
	}, nil
}

// SaveDraft stores the in-flight form without validating it.
func (s *Service) SaveDraft(ctx context.Context, sessionID string, in Input) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := s.Storage.SetJSON(ctx, sessionID, session.KeyDraft, in); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

// Draft returns the saved form. A missing or corrupt draft reports false.
func (s *Service) Draft(ctx context.Context, sessionID string) (Input, bool, error) {
	if err := s.check(); err != nil {
		return Input{}, false, err
	}
	var in Input
	found, err := s.Storage.GetJSON(ctx, sessionID, session.KeyDraft, &in)
	if err != nil {
		if errors.Is(err, session.ErrCorrupt) {
			if s.Logger != nil {
				s.Logger.Warn().Err(err).Str("session_id", sessionID).Msg("discarding corrupt checkout draft")
			}
			return Input{}, false, nil
		}
		return Input{}, false, fmt.Errorf("load draft: %w", err)
	}
	return in, found, nil
}

// DiscardDraft removes the saved form.
func (s *Service) DiscardDraft(ctx context.Context, sessionID string) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.Storage.Delete(ctx, sessionID, session.KeyDraft)
}

// PlaceOrder validates the form, records the order in the session's history and empties the
// cart and draft. The cart is read and cleared under the session's cart lock.
func (s *Service) PlaceOrder(ctx context.Context, sessionID string, in Input) (order.Order, error) {
	if err := s.check(); err != nil {
		return order.Order{}, err
	}
	if err := s.Validate(in); err != nil {
		return order.Order{}, err
	}
	cur := s.currency(ctx, sessionID)

	var placed order.Order
	err := s.Cart.WithLock(ctx, sessionID, func(ctx context.Context) error {
		st, err := s.Cart.Load(ctx, sessionID)
		if err != nil {
			return err
		}
		if st.Len() == 0 {
			return ErrEmptyCart
		}
		placed = s.buildOrder(st, in, cur)
		if err := s.Orders.Save(ctx, sessionID, placed); err != nil {
			return err
		}
		// Past this point the order is recorded; cleanup failures are logged only.
		st.ClearCart()
		if err := s.Cart.Save(ctx, sessionID, st); err != nil {
			s.warn(err, sessionID, placed.OrderNumber, "clear cart after order")
		}
		if err := s.Storage.Delete(ctx, sessionID, session.KeyDraft); err != nil {
			s.warn(err, sessionID, placed.OrderNumber, "discard draft after order")
		}
		return nil
	})
	if err != nil {
		return order.Order{}, err
	}

	obs.CountOrderPlaced(string(cur), in.Shipping.Type, placed.Total)
	s.Notices.Emit(ctx, sessionID, notice.LevelSuccess, "Order "+placed.OrderNumber+" placed")
	if s.Logger != nil {
		s.Logger.Info().
			Str("session_id", sessionID).
			Str("order_number", placed.OrderNumber).
			Str("currency", string(cur)).
			Float64("total", placed.Total).
			Msg("order placed")
	}
	return placed, nil
}

func (s *Service) warn(err error, sessionID, orderNumber, msg string) {
	if s.Logger == nil {
		return
	}
	s.Logger.Warn().Err(err).Str("session_id", sessionID).Str("order_number", orderNumber).Msg(msg)
}

func (s *Service) buildOrder(st *cart.Store, in Input, cur currency.Currency) order.Order {
	method, _ := pricing.ParseShippingMethod(in.ShippingMethod)
	shippingType := pricing.ShippingType(in.Shipping.Type)
	summary := s.Engine.Summarize(st.TotalCost(cur), shippingType, in.Shipping.Destination(), pricing.ShippingCost(method))

	items := make([]order.Item, 0, st.Len())
	for _, it := range st.Items() {
		items = append(items, order.Item{
			Model:       it.ID,
			Brand:       it.Brand,
			Image:       it.Image,
			Description: it.Description,
			Price:       it.Price(cur),
			Quantity:    it.Quantity,
		})
	}

	orderedBy := strings.TrimSpace(in.Billing.RequestedBy)
	if orderedBy == "" {
		orderedBy = "Unknown"
	}
	now := s.now()
	return order.Order{
		ID:          uuid.NewString(),
		OrderNumber: order.NewOrderNumber(nil),
		PlacedAt:    now,
		OrderDate:   now.Format(order.DisplayDateLayout),
		OrderedBy:   orderedBy,
		OrderedFor:  in.Shipping.Recipient(),
		ShippingAddress: order.ShippingAddress{
			Type:    in.Shipping.Type,
			Address: in.Shipping.Address(),
		},
		Status:         order.StatusPending,
		Items:          items,
		Currency:       cur,
		CostCenter:     in.Billing.CostCenter,
		ShippingMethod: string(method),
		Subtotal:       summary.Subtotal,
		TaxRate:        summary.TaxRate,
		Tax:            summary.Tax,
		Shipping:       summary.Shipping,
		Total:          summary.Total,
	}
}

func (s *Service) currency(ctx context.Context, sessionID string) currency.Currency {
	if s.Prefs == nil {
		return currency.USD
	}
	c, err := s.Prefs.Get(ctx, sessionID)
	if err != nil {
		return currency.USD
	}
	return c
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) check() error {
	if s == nil || s.Storage == nil || s.Cart == nil || s.Orders == nil || s.Engine == nil {
		return errors.New("checkout service not configured")
	}
	return nil
}

func parseShipping(shippingType, method string) (pricing.ShippingType, pricing.ShippingMethod, error) {
	fields := map[string]string{}
	st, ok := pricing.ParseShippingType(shippingType)
	if !ok {
		fields["shippingType"] = "oneof"
	}
	m, ok := pricing.ParseShippingMethod(method)
	if !ok {
		fields["shippingMethod"] = "oneof"
	}
	if len(fields) > 0 {
		return "", "", &ValidationError{Fields: fields}
	}
	return st, m, nil
}

