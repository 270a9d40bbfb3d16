package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront/internal/lock"
	"github.com/noah-isme/storefront/internal/session"
)

// DefaultHistoryLimit caps how many orders a session keeps.
const DefaultHistoryLimit = 50

var (
	// ErrNotFound indicates the order is not in the session's history.
	ErrNotFound = errors.New("order not found")
	// ErrInvalidStatus is returned for statuses outside pending, in-transit and delivered.
	ErrInvalidStatus = errors.New("invalid order status")
)

// Store keeps a session's order history newest first.
type Store struct {
	Storage *session.Storage
	Locker  lock.Locker
	Limit   int
	Logger  *zerolog.Logger
	Now     func() time.Time
}

func (s *Store) limit() int {
	if s.Limit <= 0 {
		return DefaultHistoryLimit
	}
	return s.Limit
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// List returns the session's orders newest first. A corrupt history reads as empty.
func (s *Store) List(ctx context.Context, sessionID string) ([]Order, error) {
	if s == nil || s.Storage == nil {
		return nil, errors.New("order store not configured")
	}
	orders := []Order{}
	if _, err := s.Storage.GetJSON(ctx, sessionID, session.KeyOrders, &orders); err != nil {
		if errors.Is(err, session.ErrCorrupt) {
			if s.Logger != nil {
				s.Logger.Warn().Err(err).Str("session_id", sessionID).Msg("discarding corrupt order history")
			}
			return []Order{}, nil
		}
		return nil, fmt.Errorf("load orders: %w", err)
	}
	return orders, nil
}

// Get returns one order by id.
func (s *Store) Get(ctx context.Context, sessionID, id string) (Order, error) {
	orders, err := s.List(ctx, sessionID)
	if err != nil {
		return Order{}, err
	}
	for _, o := range orders {
		if o.ID == id {
			return o, nil
		}
	}
	return Order{}, ErrNotFound
}

// Save prepends o to the history, dropping the oldest entries beyond the limit.
func (s *Store) Save(ctx context.Context, sessionID string, o Order) error {
	return s.withLock(ctx, sessionID, func(ctx context.Context) error {
		orders, err := s.List(ctx, sessionID)
		if err != nil {
			return err
		}
		orders = append([]Order{o}, orders...)
		if len(orders) > s.limit() {
			orders = orders[:s.limit()]
		}
		return s.write(ctx, sessionID, orders)
	})
}

// UpdateStatus sets the status of an order. Marking an order delivered without a delivery date
// stamps today's date.
func (s *Store) UpdateStatus(ctx context.Context, sessionID, id string, status Status, deliveryDate string) (Order, error) {
	if _, ok := ParseStatus(string(status)); !ok {
		return Order{}, ErrInvalidStatus
	}
	var updated Order
	err := s.withLock(ctx, sessionID, func(ctx context.Context) error {
		orders, err := s.List(ctx, sessionID)
		if err != nil {
			return err
		}
		for i := range orders {
			if orders[i].ID != id {
				continue
			}
			orders[i].Status = status
			orders[i].DeliveryDate = deliveryDate
			if status == StatusDelivered && deliveryDate == "" {
				orders[i].DeliveryDate = s.now().Format(DisplayDateLayout)
			}
			updated = orders[i]
			return s.write(ctx, sessionID, orders)
		}
		return ErrNotFound
	})
	return updated, err
}

// Clear removes the session's order history.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	return s.withLock(ctx, sessionID, func(ctx context.Context) error {
		return s.Storage.Delete(ctx, sessionID, session.KeyOrders)
	})
}

func (s *Store) write(ctx context.Context, sessionID string, orders []Order) error {
	if err := s.Storage.SetJSON(ctx, sessionID, session.KeyOrders, orders); err != nil {
		return fmt.Errorf("save orders: %w", err)
	}
	return nil
}

func (s *Store) withLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	if s == nil || s.Storage == nil {
		return errors.New("order store not configured")
	}
	return s.Locker.WithSession(ctx, lock.ScopeOrders, sessionID, fn)
}
