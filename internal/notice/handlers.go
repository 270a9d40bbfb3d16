package notice

import (
	"net/http"

	"github.com/noah-isme/storefront/internal/common"
)

// Handler exposes pending notices for the caller's session.
type Handler struct {
	Bus *Bus
}

// Drain returns and clears the pending notices.
func (h *Handler) Drain(w http.ResponseWriter, r *http.Request) {
	sid, ok := common.SessionID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "session required", nil)
		return
	}
	notices, err := h.Bus.Drain(r.Context(), sid)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to load notices", nil)
		return
	}
	common.Data(w, http.StatusOK, notices)
}
