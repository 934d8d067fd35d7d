package httpapi

import (
	"net/http"
	"strings"

	"fenceline.dev/internal/audit"
	"fenceline.dev/internal/resource"
)

func (a *API) handlePosts(w http.ResponseWriter, r *http.Request) {
	if a.posts == nil {
		writeError(w, r, http.StatusServiceUnavailable, "resource access is not configured")
		return
	}
	token, err := bearerToken(r)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	switch r.Method {
	case http.MethodGet:
		filter := resource.Filter{}
		for k, vs := range r.URL.Query() {
			if len(vs) > 0 && vs[0] != "" {
				filter[k] = vs[0]
			}
		}
		recs, err := a.posts.Find(r.Context(), token, filter)
		if err != nil {
			writeAuthError(w, r, err)
			return
		}
		out := make([]map[string]any, 0, len(recs))
		for _, rec := range recs {
			out = append(out, rec.Flatten())
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": out})
	case http.MethodPost:
		data := map[string]any{}
		if err := decodeJSON(r, &data); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid request body")
			return
		}
		rec, err := a.posts.Create(r.Context(), token, data)
		if err != nil {
			writeAuthError(w, r, err)
			return
		}
		audit.LogEvent(r.Context(), "posts.created", map[string]any{"post_id": rec.ID})
		w.Header().Set("Location", "/v1/posts/"+rec.ID)
		writeJSON(w, http.StatusCreated, rec.Flatten())
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handlePostByID(w http.ResponseWriter, r *http.Request) {
	if a.posts == nil {
		writeError(w, r, http.StatusServiceUnavailable, "resource access is not configured")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/posts/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}
	token, err := bearerToken(r)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	switch r.Method {
	case http.MethodGet:
		rec, err := a.posts.Get(r.Context(), token, id)
		if err != nil {
			writeAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rec.Flatten())
	case http.MethodPut, http.MethodPatch:
		data := map[string]any{}
		if err := decodeJSON(r, &data); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid request body")
			return
		}
		var rec resource.Record
		if r.Method == http.MethodPut {
			rec, err = a.posts.Update(r.Context(), token, id, data)
		} else {
			rec, err = a.posts.Patch(r.Context(), token, id, data)
		}
		if err != nil {
			writeAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rec.Flatten())
	case http.MethodDelete:
		rec, err := a.posts.Remove(r.Context(), token, id)
		if err != nil {
			writeAuthError(w, r, err)
			return
		}
		audit.LogEvent(r.Context(), "posts.removed", map[string]any{"post_id": rec.ID})
		writeJSON(w, http.StatusOK, rec.Flatten())
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodDelete)
	}
}
