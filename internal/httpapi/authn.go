package httpapi

import (
	"net/http"
	"strings"

	"fenceline.dev/internal/auth"
)

// bearerToken extracts the access token from the Authorization header.
// Protected routes require it; the scoping pipeline never sees an
// external request without credentials.
func bearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", auth.ErrUnauthenticated
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", auth.ErrInvalidToken
	}
	return parts[1], nil
}
