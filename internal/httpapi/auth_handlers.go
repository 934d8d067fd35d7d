package httpapi

import (
	"net/http"
	"time"

	"fenceline.dev/internal/audit"
	"fenceline.dev/internal/auth"
	"fenceline.dev/internal/obs"
)

type tokenRequest struct {
	Strategy    string `json:"strategy"`
	Email       string `json:"email,omitempty"`
	Password    string `json:"password,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
}

type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	UserID      string    `json:"user_id"`
	AccountID   string    `json:"account_id"`
}

func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.issuer == nil {
		writeError(w, r, http.StatusServiceUnavailable, "credential issuance is not configured")
		return
	}
	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	grant, err := a.issuer.Issue(r.Context(), auth.Credentials{
		Strategy:    req.Strategy,
		Email:       req.Email,
		Password:    req.Password,
		AccessToken: req.AccessToken,
	})
	if err != nil {
		obs.AuthDenied(auth.Kind(err))
		audit.LogEvent(r.Context(), "auth.token.denied", map[string]any{
			"strategy": req.Strategy,
			"reason":   auth.Kind(err),
		})
		writeAuthError(w, r, err)
		return
	}
	obs.TokenIssued(req.Strategy)
	audit.LogEvent(r.Context(), "auth.token.issued", map[string]any{
		"strategy":   req.Strategy,
		"user_id":    grant.UserID,
		"account_id": grant.AccountID,
	})
	writeJSON(w, http.StatusCreated, tokenResponse{
		AccessToken: grant.AccessToken,
		TokenType:   "Bearer",
		ExpiresAt:   grant.ExpiresAt,
		UserID:      grant.UserID,
		AccountID:   grant.AccountID,
	})
}
