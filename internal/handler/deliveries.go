package handler

import (
	"net/http"
	"strconv"

	"github.com/PipeOpsHQ/hookscope/internal/store"
	"github.com/go-chi/chi/v5"
	goerrors "github.com/goliatone/go-errors"
)

type listResponse struct {
	Items      []store.Summary `json:"items"`
	NextCursor *string         `json:"nextCursor"`
}

func (h *Handler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, r, badRequest("limit must be an integer", map[string]any{"limit": raw}))
			return
		}
		if n == 0 {
			h.writeError(w, r, badRequest("limit must be positive", map[string]any{"limit": raw}))
			return
		}
		limit = n
	}

	page, err := h.Service.List(r.Context(), q.Get("cursor"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := listResponse{Items: make([]store.Summary, 0, len(page.Items))}
	for _, d := range page.Items {
		resp.Items = append(resp.Items, d.Summary())
	}
	if page.NextCursor != "" {
		resp.NextCursor = &page.NextCursor
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetDelivery(w http.ResponseWriter, r *http.Request) {
	d, err := h.Service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// ResetDeliveries drops every captured delivery when resets are enabled.
func (h *Handler) ResetDeliveries(w http.ResponseWriter, r *http.Request) {
	if !h.opts.AllowReset {
		h.writeError(w, r, goerrors.New("reset is disabled", goerrors.CategoryAuthz).
			WithCode(http.StatusForbidden).
			WithTextCode(textCodeForbidden))
		return
	}
	if err := h.Service.Reset(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logger.WithContext(r.Context()).Warn("deliveries reset over http", "remote", remoteIP(r.RemoteAddr))
	w.WriteHeader(http.StatusNoContent)
}
