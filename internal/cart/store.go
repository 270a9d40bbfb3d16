package cart

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront/internal/currency"
)

// Prices maps a currency to a unit price. A missing currency counts as zero.
type Prices map[currency.Currency]float64

// Descriptor carries the immutable product facts copied into a line item.
type Descriptor struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Brand       string `json:"brand"`
	Category    string `json:"category"`
	Image       string `json:"image,omitempty"`
	Description string `json:"description,omitempty"`
	UnitPrice   Prices `json:"unitPrice"`
}

// LineItem is one distinct product in the cart.
type LineItem struct {
	Descriptor
	Quantity int `json:"quantity"`
}

// Price returns the unit price in c, or zero when the product has no price in that currency.
func (li LineItem) Price(c currency.Currency) float64 {
	return li.UnitPrice[c]
}

// Subtotal returns unit price × quantity in c.
func (li LineItem) Subtotal(c currency.Currency) float64 {
	f, _ := li.subtotal(c).Float64()
	return f
}

func (li LineItem) subtotal(c currency.Currency) decimal.Decimal {
	return decimal.NewFromFloat(li.UnitPrice[c]).Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Store holds the line items of one cart in insertion order. Ids are unique and every quantity
// is at least one. A Store is not safe for concurrent use.
type Store struct {
	items []LineItem
}

// NewStore builds a store from a snapshot. Repeated ids are merged and non-positive quantities
// are dropped.
func NewStore(items []LineItem) *Store {
	s := &Store{}
	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		if i := s.index(it.ID); i >= 0 {
			s.items[i].Quantity += it.Quantity
			continue
		}
		it.UnitPrice = copyPrices(it.UnitPrice)
		s.items = append(s.items, it)
	}
	return s
}

// AddToCart adds quantity units of d. A quantity of zero or less is treated as one.
// It reports whether a new line was created rather than an existing one incremented.
func (s *Store) AddToCart(d Descriptor, quantity int) bool {
	if quantity <= 0 {
		quantity = 1
	}
	if i := s.index(d.ID); i >= 0 {
		s.items[i].Quantity += quantity
		return false
	}
	d.UnitPrice = copyPrices(d.UnitPrice)
	s.items = append(s.items, LineItem{Descriptor: d, Quantity: quantity})
	return true
}

// RemoveFromCart deletes the line for id. Unknown ids are ignored.
func (s *Store) RemoveFromCart(id string) {
	i := s.index(id)
	if i < 0 {
		return
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
}

// UpdateQuantity sets the quantity for id; zero or less removes the line.
// Unknown ids are ignored.
func (s *Store) UpdateQuantity(id string, quantity int) {
	if quantity <= 0 {
		s.RemoveFromCart(id)
		return
	}
	if i := s.index(id); i >= 0 {
		s.items[i].Quantity = quantity
	}
}

// ClearCart empties the store.
func (s *Store) ClearCart() {
	s.items = nil
}

// TotalItems returns the sum of all quantities.
func (s *Store) TotalItems() int {
	total := 0
	for _, it := range s.items {
		total += it.Quantity
	}
	return total
}

// TotalCost returns Σ unit price × quantity in c.
func (s *Store) TotalCost(c currency.Currency) float64 {
	f, _ := s.totalCost(c).Float64()
	return f
}

func (s *Store) totalCost(c currency.Currency) decimal.Decimal {
	total := decimal.Zero
	for _, it := range s.items {
		total = total.Add(it.subtotal(c))
	}
	return total
}

// Totals returns TotalCost for every supported currency.
func (s *Store) Totals() map[currency.Currency]float64 {
	out := make(map[currency.Currency]float64, len(currency.All()))
	for _, c := range currency.All() {
		out[c] = s.TotalCost(c)
	}
	return out
}

// IsInCart reports whether id has a line.
func (s *Store) IsInCart(id string) bool {
	return s.index(id) >= 0
}

// ItemQuantity returns the quantity for id, or zero.
func (s *Store) ItemQuantity(id string) int {
	if i := s.index(id); i >= 0 {
		return s.items[i].Quantity
	}
	return 0
}

// Item returns the line for id.
func (s *Store) Item(id string) (LineItem, bool) {
	if i := s.index(id); i >= 0 {
		return s.items[i], true
	}
	return LineItem{}, false
}

// Items returns a copy of the lines in insertion order.
func (s *Store) Items() []LineItem {
	out := make([]LineItem, len(s.items))
	for i, it := range s.items {
		it.UnitPrice = copyPrices(it.UnitPrice)
		out[i] = it
	}
	return out
}

// Len returns the number of distinct lines.
func (s *Store) Len() int {
	return len(s.items)
}

// MarshalJSON encodes the store as its line item array.
func (s *Store) MarshalJSON() ([]byte, error) {
	if s.items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.items)
}

// UnmarshalJSON decodes a line item array, applying the NewStore normalisation.
func (s *Store) UnmarshalJSON(data []byte) error {
	var items []LineItem
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*s = *NewStore(items)
	return nil
}

func (s *Store) index(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

func copyPrices(p Prices) Prices {
	if p == nil {
		return nil
	}
	out := make(Prices, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
