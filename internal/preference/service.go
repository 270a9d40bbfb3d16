package preference

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront/internal/currency"
	"github.com/noah-isme/storefront/internal/session"
)

// ErrInvalidCurrency is returned when a caller selects an unsupported currency.
var ErrInvalidCurrency = errors.New("preference: invalid currency")

// Service stores the display currency selected for a session.
type Service struct {
	Storage *session.Storage
	Default currency.Currency
	Logger  *zerolog.Logger
}

func (s *Service) fallback() currency.Currency {
	if s != nil && s.Default.Valid() {
		return s.Default
	}
	return currency.USD
}

// Get returns the session's currency, or the default when none is stored or the stored value is unusable.
func (s *Service) Get(ctx context.Context, sessionID string) (currency.Currency, error) {
	if s == nil || s.Storage == nil {
		return currency.USD, errors.New("preference service not configured")
	}
	var stored string
	ok, err := s.Storage.GetJSON(ctx, sessionID, session.KeyCurrency, &stored)
	if err != nil {
		if errors.Is(err, session.ErrCorrupt) {
			s.warn(err, sessionID)
			return s.fallback(), nil
		}
		return s.fallback(), fmt.Errorf("load currency: %w", err)
	}
	if !ok {
		return s.fallback(), nil
	}
	c, err := currency.Parse(stored)
	if err != nil {
		s.warn(err, sessionID)
		return s.fallback(), nil
	}
	return c, nil
}

// Set stores code as the session's currency.
func (s *Service) Set(ctx context.Context, sessionID, code string) (currency.Currency, error) {
	c, err := currency.Parse(code)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}
	if err := s.save(ctx, sessionID, c); err != nil {
		return "", err
	}
	return c, nil
}

// Toggle advances the session's currency USD → CAD → EUR → USD and returns the new value.
func (s *Service) Toggle(ctx context.Context, sessionID string) (currency.Currency, error) {
	current, err := s.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	next := current.Next()
	if err := s.save(ctx, sessionID, next); err != nil {
		return "", err
	}
	return next, nil
}

func (s *Service) save(ctx context.Context, sessionID string, c currency.Currency) error {
	if s == nil || s.Storage == nil {
		return errors.New("preference service not configured")
	}
	if err := s.Storage.SetJSON(ctx, sessionID, session.KeyCurrency, c.String()); err != nil {
		return fmt.Errorf("save currency: %w", err)
	}
	return nil
}

func (s *Service) warn(err error, sessionID string) {
	if s.Logger != nil {
		s.Logger.Warn().Err(err).Str("session_id", sessionID).Msg("stored currency unusable, using default")
	}
}
