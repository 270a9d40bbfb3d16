package order

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/storefront/internal/currency"
)

// Status is the fulfilment state shown in order history.
type Status string

const (
	StatusPending   Status = "pending"
	StatusInTransit Status = "in-transit"
	StatusDelivered Status = "delivered"
)

// ParseStatus reports whether value names a known status.
func ParseStatus(value string) (Status, bool) {
	switch s := Status(strings.ToLower(strings.TrimSpace(value))); s {
	case StatusPending, StatusInTransit, StatusDelivered:
		return s, true
	default:
		return "", false
	}
}

// DisplayDateLayout renders order and delivery dates, e.g. "March 05, 2025".
const DisplayDateLayout = "January 02, 2006"

// ShippingAddress is the rendered destination of an order.
type ShippingAddress struct {
	Type    string `json:"type"`
	Address string `json:"address"`
}

// Item is one purchased product at the price paid.
type Item struct {
	Model       string  `json:"model"`
	Brand       string  `json:"brand"`
	Image       string  `json:"image"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Quantity    int     `json:"quantity"`
}

// Order is a placed order kept in the session's history.
type Order struct {
	ID              string            `json:"id"`
	OrderNumber     string            `json:"orderNumber"`
	PlacedAt        time.Time         `json:"placedAt"`
	OrderDate       string            `json:"orderDate"`
	OrderedBy       string            `json:"orderedBy"`
	OrderedFor      string            `json:"orderedFor"`
	ShippingAddress ShippingAddress   `json:"shippingAddress"`
	Status          Status            `json:"status"`
	DeliveryDate    string            `json:"deliveryDate,omitempty"`
	Items           []Item            `json:"items"`
	Currency        currency.Currency `json:"currency"`
	CostCenter      string            `json:"costCenter,omitempty"`
	ShippingMethod  string            `json:"shippingMethod"`
	Subtotal        float64           `json:"subtotal"`
	TaxRate         float64           `json:"taxRate"`
	Tax             float64           `json:"tax"`
	Shipping        float64           `json:"shipping"`
	Total           float64           `json:"total"`
}

// NewOrderNumber returns "112-" followed by seven random digits. A nil source uses the global generator.
func NewOrderNumber(r *rand.Rand) string {
	var n int
	if r != nil {
		n = r.IntN(9000000)
	} else {
		n = rand.IntN(9000000)
	}
	return "112-" + strconv.Itoa(1000000+n)
}
