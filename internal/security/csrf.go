package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/noah-isme/storefront/internal/common"
)

const (
	defaultCSRFHeader = "X-CSRF-Token"
	defaultCSRFCookie = "storefront_csrf"
)

// CSRF protects cookie-based flows using the double-submit technique. Requests authenticated
// with a bearer header skip the check.
type CSRF struct {
	Header string
	Cookie string
	Secure bool
}

func (c CSRF) headerName() string {
	if h := strings.TrimSpace(c.Header); h != "" {
		return h
	}
	return defaultCSRFHeader
}

func (c CSRF) cookieName() string {
	if n := strings.TrimSpace(c.Cookie); n != "" {
		return n
	}
	return defaultCSRFCookie
}

// Issue sets a fresh token cookie readable by the browser client, which echoes it in the header.
func (c CSRF) Issue(w http.ResponseWriter, ttl time.Duration) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := hex.EncodeToString(buf)
	http.SetCookie(w, &http.Cookie{
		Name:     c.cookieName(),
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	})
	return token, nil
}

// Clear expires the token cookie.
func (c CSRF) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.cookieName(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// Middleware enforces that non-idempotent requests include a CSRF token header matching a cookie.
func (c CSRF) Middleware(next http.Handler) http.Handler {
	headerName := c.headerName()
	cookieName := c.cookieName()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
			next.ServeHTTP(w, r)
			return
		}

		auth := strings.TrimSpace(r.Header.Get("Authorization"))
		if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
			next.ServeHTTP(w, r)
			return
		}

		token := strings.TrimSpace(r.Header.Get(headerName))
		if token == "" {
			common.JSONError(w, http.StatusForbidden, "CSRF", "missing csrf token", nil)
			return
		}

		cookie, err := r.Cookie(cookieName)
		if err != nil || strings.TrimSpace(cookie.Value) == "" {
			common.JSONError(w, http.StatusForbidden, "CSRF", "missing csrf cookie", nil)
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(cookie.Value)) != 1 {
			common.JSONError(w, http.StatusForbidden, "CSRF", "invalid csrf token", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
