// internal/api/eligibility/handlers.go
package eligibility

import (
	"net/http"

	"github.com/winstonapp/themestore/internal/api/apiutil"
)

// Checker reports allowlist membership for a user token.
type Checker interface {
	Check(token string) bool
}

type Handler struct {
	list Checker
}

func NewHandler(list Checker) *Handler {
	return &Handler{list: list}
}

// GET /eligibility/{token}
//
// The body is a bare JSON boolean; clients branch on it directly.
func (h *Handler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	if token == "" {
		apiutil.WriteError(w, http.StatusBadRequest, "token is required")
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, h.list.Check(token))
}
