package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"fenceline.dev/api/spec"
	"fenceline.dev/internal/auth"
	"fenceline.dev/internal/config"
	"fenceline.dev/internal/obs"
	"fenceline.dev/internal/scope"
)

// ReadyProbe reports whether downstream dependencies are reachable.
type ReadyProbe func(ctx context.Context) error

// API is the HTTP surface: credential issuance, the scoped posts
// collection, account self lookup and the operational endpoints.
type API struct {
	mux     *http.ServeMux
	ready   ReadyProbe
	version string
	issuer  *auth.Issuer
	posts   *scope.Pipeline
	limits  config.LimitsConfig
}

func New(ready ReadyProbe, version string, issuer *auth.Issuer, posts *scope.Pipeline, limits config.LimitsConfig) *API {
	a := &API{
		mux:     http.NewServeMux(),
		ready:   ready,
		version: version,
		issuer:  issuer,
		posts:   posts,
		limits:  limits,
	}
	a.routes()
	return a
}

func (a *API) routes() {
	a.mux.HandleFunc("/healthz", a.handleHealthz)
	a.mux.HandleFunc("/readyz", a.handleReadyz)
	a.mux.HandleFunc("/v1/info", a.handleInfo)
	a.mux.HandleFunc("/v1/openapi.yaml", a.handleOpenAPI)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/token", a.handleAuthToken)
	a.mux.HandleFunc("/v1/posts", a.handlePosts)
	a.mux.HandleFunc("/v1/posts/", a.handlePostByID)
	a.mux.HandleFunc("/v1/accounts/", a.handleAccountSelf)
}

// Handler returns the fully wrapped handler: metrics instrumentation on
// the outside, then request id, logging, security headers, CORS, body
// size cap and rate limiting.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = RateLimit(float64(a.limits.RatePerSecond), a.limits.RateBurst)(h)
	h = MaxBodyBytes(a.limits.MaxBodyBytes)(h)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if a.ready != nil {
		if err := a.ready(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (a *API) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "fenceline",
		"version": a.version,
	})
}

func (a *API) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(spec.OpenAPI)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, map[string]string{
		"error":      msg,
		"request_id": RequestIDFromContext(r.Context()),
	})
}

// writeAuthError maps the credential and scoping error taxonomy onto
// HTTP status codes. Internal failures keep their detail out of the
// response body.
func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrBadRequest):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, r, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
