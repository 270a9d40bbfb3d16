package gate

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/security"
)

// Handler exposes the password gate over HTTP.
type Handler struct {
	Service        *Service
	CookieDomain   string
	CookieSecure   bool
	CookieSameSite http.SameSite
	// CSRF, when set, issues the double-submit token alongside the session cookie.
	CSRF *security.CSRF
}

type loginRequest struct {
	Password string `json:"password"`
}

// Login handles POST /api/v1/gate/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "gate not configured", nil)
		return
	}
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return
	}
	session, err := h.Service.Login(r.Context(), req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidPassword) {
			common.JSONError(w, http.StatusUnauthorized, "INVALID_PASSWORD", "incorrect password", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		return
	}
	http.SetCookie(w, h.cookie(session.Token, int(h.Service.TTL().Seconds())))
	if h.CSRF != nil {
		if _, err := h.CSRF.Issue(w, h.Service.TTL()); err != nil {
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
			return
		}
	}
	common.Data(w, http.StatusOK, session)
}

// Logout handles POST /api/v1/gate/logout. Session data in Redis expires on its own.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.cookie("", -1))
	if h.CSRF != nil {
		h.CSRF.Clear(w)
	}
	w.WriteHeader(http.StatusNoContent)
}

// Session handles GET /api/v1/gate/session behind RequireSession.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	sid, ok := common.SessionID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "session required", nil)
		return
	}
	common.Data(w, http.StatusOK, map[string]any{"sessionId": sid, "authenticated": true})
}

func (h *Handler) cookie(value string, maxAge int) *http.Cookie {
	sameSite := h.CookieSameSite
	if sameSite == 0 {
		sameSite = http.SameSiteLaxMode
	}
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Domain:   h.CookieDomain,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: sameSite,
	}
}
