package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/storefront/internal/obs"
)

const (
	// DefaultSessionTTL is how long a gate session token stays valid.
	DefaultSessionTTL = 720 * time.Hour
	// CookieName carries the session token for browser clients.
	CookieName = "storefront_session"

	defaultIssuer   = "storefront"
	defaultAudience = "storefront-web"
)

var (
	// ErrInvalidPassword is returned when the shared password does not match.
	ErrInvalidPassword = errors.New("gate: invalid password")
	// ErrInvalidToken is returned for missing, malformed, expired or foreign tokens.
	ErrInvalidToken = errors.New("gate: invalid session token")
)

// Config configures the gate.
type Config struct {
	// PasswordHash is an argon2id PHC string. It takes precedence over Password.
	PasswordHash string
	Password     string
	Secret       string
	TTL          time.Duration
	Issuer       string
	Audience     string
	ClockSkew    time.Duration
}

// Session is the result of a successful login.
type Session struct {
	ID        string    `json:"sessionId"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Service checks the shared storefront password and issues signed session tokens.
type Service struct {
	hash      string
	secret    []byte
	ttl       time.Duration
	issuer    string
	audience  string
	clockSkew time.Duration
	signer    jwa.SignatureAlgorithm
	validator TokenValidator
	now       func() time.Time
}

// NewService validates cfg. A plain Password is hashed once here.
func NewService(cfg Config) (*Service, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("gate: session secret is required")
	}
	hash := strings.TrimSpace(cfg.PasswordHash)
	if hash == "" {
		if cfg.Password == "" {
			return nil, errors.New("gate: password or password hash is required")
		}
		created, err := argon2id.CreateHash(cfg.Password, argon2id.DefaultParams)
		if err != nil {
			return nil, fmt.Errorf("gate: hash password: %w", err)
		}
		hash = created
	}
	if _, _, _, err := argon2id.DecodeHash(hash); err != nil {
		return nil, fmt.Errorf("gate: invalid password hash: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = defaultIssuer
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = defaultAudience
	}
	clockSkew := cfg.ClockSkew
	if clockSkew < 0 {
		clockSkew = 0
	}

	return &Service{
		hash:      hash,
		secret:    []byte(secret),
		ttl:       ttl,
		issuer:    issuer,
		audience:  audience,
		clockSkew: clockSkew,
		signer:    jwa.HS256,
		validator: TokenValidator{
			Issuer:    issuer,
			Audience:  audience,
			ClockSkew: clockSkew,
			Algorithm: jwa.HS256,
		},
		now: time.Now,
	}, nil
}

// WithNow overrides the clock, mainly for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// TTL returns the session lifetime.
func (s *Service) TTL() time.Duration { return s.ttl }

// Login compares password with the configured hash and opens a new session.
func (s *Service) Login(_ context.Context, password string) (Session, error) {
	ok, err := argon2id.ComparePasswordAndHash(password, s.hash)
	if err != nil {
		obs.CountGateLogin("error")
		return Session{}, fmt.Errorf("gate: compare password: %w", err)
	}
	if !ok {
		obs.CountGateLogin("invalid")
		return Session{}, ErrInvalidPassword
	}
	sid := uuid.NewString()
	token, expiresAt, err := s.sign(sid)
	if err != nil {
		obs.CountGateLogin("error")
		return Session{}, fmt.Errorf("gate: sign token: %w", err)
	}
	obs.CountGateLogin("success")
	return Session{ID: sid, Token: token, ExpiresAt: expiresAt}, nil
}

// ParseToken verifies token and returns the session id it carries.
func (s *Service) ParseToken(token string) (string, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", ErrInvalidToken
	}
	algorithm, err := tokenAlgorithm(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if algorithm != s.validator.Algorithm {
		return "", fmt.Errorf("%w: unexpected algorithm %s", ErrInvalidToken, algorithm)
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, s.secret), jwt.WithValidate(false))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if err := s.validator.Validate(parsed, algorithm, s.now()); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if _, err := uuid.Parse(parsed.Subject()); err != nil {
		return "", fmt.Errorf("%w: subject is not a session id", ErrInvalidToken)
	}
	return parsed.Subject(), nil
}

func (s *Service) sign(sessionID string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	token, err := jwt.NewBuilder().
		Subject(sessionID).
		Issuer(s.issuer).
		Audience([]string{s.audience}).
		IssuedAt(now).
		NotBefore(now.Add(-s.clockSkew)).
		Expiration(expiresAt).
		Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(s.signer, s.secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
}
