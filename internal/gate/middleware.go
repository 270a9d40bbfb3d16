package gate

import (
	"net/http"
	"strings"

	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/obs"
)

// RequireSession rejects requests without a valid session token and stores the session id on
// the request context. The token is read from a bearer header or the session cookie.
func (s *Service) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sid, err := s.ParseToken(tokenFromRequest(r))
		if err != nil {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid session", nil)
			return
		}
		obs.AnnotateSession(r.Context(), sid)
		next.ServeHTTP(w, r.WithContext(common.WithSessionID(r.Context(), sid)))
	})
}

func tokenFromRequest(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	if cookie, err := r.Cookie(CookieName); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}
