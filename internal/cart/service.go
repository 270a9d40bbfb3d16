package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront/internal/lock"
	"github.com/noah-isme/storefront/internal/notice"
	"github.com/noah-isme/storefront/internal/obs"
	"github.com/noah-isme/storefront/internal/session"
)

// ErrUnknownProduct is returned when a model is not in the catalog.
var ErrUnknownProduct = errors.New("cart: unknown product")

// Catalog resolves a product model to the descriptor stored on a cart line.
type Catalog interface {
	Descriptor(ctx context.Context, model string) (Descriptor, error)
}

// Service keeps one Store per session in session storage. Mutations are serialised per
// session with a Redis lock.
type Service struct {
	Storage *session.Storage
	Catalog Catalog
	Locker  lock.Locker
	Notices *notice.Bus
	Logger  *zerolog.Logger
}

// Load returns the session's cart. A missing or corrupt snapshot yields an empty cart.
func (s *Service) Load(ctx context.Context, sessionID string) (*Store, error) {
	if s == nil || s.Storage == nil {
		return nil, errors.New("cart service not configured")
	}
	var items []LineItem
	_, err := s.Storage.GetJSON(ctx, sessionID, session.KeyCart, &items)
	if err != nil {
		if errors.Is(err, session.ErrCorrupt) {
			if s.Logger != nil {
				s.Logger.Warn().Err(err).Str("session_id", sessionID).Msg("discarding corrupt cart snapshot")
			}
			return NewStore(nil), nil
		}
		return nil, fmt.Errorf("load cart: %w", err)
	}
	return NewStore(items), nil
}

// Add adds quantity units of model. A non-positive quantity adds one.
func (s *Service) Add(ctx context.Context, sessionID, model string, quantity int) (*Store, error) {
	if s == nil || s.Catalog == nil {
		return nil, errors.New("cart service not configured")
	}
	d, err := s.Catalog.Descriptor(ctx, model)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProduct, model)
	}
	return s.mutate(ctx, sessionID, "add", func(st *Store) string {
		if st.AddToCart(d, quantity) {
			return d.Name + " added to cart"
		}
		return d.Name + " quantity updated in cart"
	})
}

// UpdateQuantity sets the quantity of id; zero or less removes the line.
func (s *Service) UpdateQuantity(ctx context.Context, sessionID, id string, quantity int) (*Store, error) {
	op := "update"
	if quantity <= 0 {
		op = "remove"
	}
	return s.mutate(ctx, sessionID, op, func(st *Store) string {
		item, ok := st.Item(id)
		if !ok {
			return ""
		}
		st.UpdateQuantity(id, quantity)
		if quantity <= 0 {
			return item.Name + " removed from cart"
		}
		return item.Name + " quantity updated"
	})
}

// Remove deletes the line for id. Removing an absent id is a no-op.
func (s *Service) Remove(ctx context.Context, sessionID, id string) (*Store, error) {
	return s.mutate(ctx, sessionID, "remove", func(st *Store) string {
		item, ok := st.Item(id)
		if !ok {
			return ""
		}
		st.RemoveFromCart(id)
		return item.Name + " removed from cart"
	})
}

// Clear empties the session's cart.
func (s *Service) Clear(ctx context.Context, sessionID string) error {
	_, err := s.mutate(ctx, sessionID, "clear", func(st *Store) string {
		st.ClearCart()
		return ""
	})
	return err
}

// Save replaces the stored snapshot. Callers must already hold the session's cart lock.
func (s *Service) Save(ctx context.Context, sessionID string, st *Store) error {
	if err := s.Storage.SetJSON(ctx, sessionID, session.KeyCart, st); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

// WithLock runs fn while holding the session's cart lock.
func (s *Service) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	return s.Locker.WithSession(ctx, lock.ScopeCart, sessionID, fn)
}

// mutate applies fn under the session lock and persists the result. fn returns the notice to
// emit, or "" when nothing changed.
func (s *Service) mutate(ctx context.Context, sessionID, op string, fn func(*Store) string) (*Store, error) {
	if s == nil || s.Storage == nil {
		return nil, errors.New("cart service not configured")
	}
	var (
		result  *Store
		message string
	)
	err := s.WithLock(ctx, sessionID, func(ctx context.Context) error {
		st, err := s.Load(ctx, sessionID)
		if err != nil {
			return err
		}
		message = fn(st)
		if message == "" && op != "clear" {
			result = st
			return nil
		}
		if err := s.Save(ctx, sessionID, st); err != nil {
			return err
		}
		result = st
		return nil
	})
	if err != nil {
		return nil, err
	}
	if message != "" || op == "clear" {
		obs.CountCartMutation(op)
	}
	if message != "" {
		level := notice.LevelSuccess
		if op == "remove" {
			level = notice.LevelInfo
		}
		s.Notices.Emit(ctx, sessionID, level, message)
	}
	return result, nil
}
