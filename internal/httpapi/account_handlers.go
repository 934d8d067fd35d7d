package httpapi

import (
	"net/http"
	"strings"
)

type accountResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	PlanID string `json:"plan_id,omitempty"`
}

// handleAccountSelf serves GET /v1/accounts/{id}. A caller may only
// fetch the account its own session is bound to; any other id is
// rejected before the lookup happens.
func (a *API) handleAccountSelf(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.posts == nil {
		writeError(w, r, http.StatusServiceUnavailable, "resource access is not configured")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/accounts/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}
	token, err := bearerToken(r)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	sess, err := a.posts.RequireAccountSelf(r.Context(), token, id)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accountResponse{
		ID:     sess.Account.ID,
		Name:   sess.Account.Name,
		PlanID: sess.Account.PlanID,
	})
}
