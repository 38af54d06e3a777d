package handler

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PipeOpsHQ/hookscope/internal/store"
	"github.com/go-chi/chi/v5"
	goerrors "github.com/goliatone/go-errors"
)

// Headers that belong to the original hop and must not be replayed.
var replaySkipHeaders = map[string]bool{
	"host":              true,
	"content-length":    true,
	"connection":        true,
	"transfer-encoding": true,
}

type replayResponse struct {
	StatusCode int    `json:"statusCode"`
	Status     string `json:"status"`
}

// ReplayDelivery re-sends a stored delivery to the target given in the query
// string, or the configured default target.
func (h *Handler) ReplayDelivery(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("target")
	if target == "" {
		target = h.opts.ReplayTarget
	}
	base, err := url.Parse(target)
	if target == "" || err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		h.writeError(w, r, badRequest("replay target must be an absolute http(s) url", map[string]any{"target": target}))
		return
	}

	d, err := h.Service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp, err := h.replay(r.Context(), base, d)
	if err != nil {
		h.logger.WithContext(r.Context()).Warn("replay failed", "id", d.ID.String(), "target", target, "error", err)
		h.writeError(w, r, goerrors.Wrap(err, goerrors.CategoryExternal, "failed to replay delivery").
			WithCode(http.StatusBadGateway).
			WithTextCode(textCodeReplayFailed))
		return
	}

	h.logger.WithContext(r.Context()).Info("delivery replayed", "id", d.ID.String(), "target", target, "status", resp.StatusCode)
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) replay(ctx context.Context, base *url.URL, d *store.Delivery) (replayResponse, error) {
	targetURL := strings.TrimRight(base.Scheme+"://"+base.Host+base.EscapedPath(), "/") + d.Pathname
	if d.QueryParams != nil {
		targetURL += "?" + encodeParams(d.QueryParams)
	}

	var body io.Reader
	if d.Body != nil {
		body = strings.NewReader(*d.Body)
	}
	req, err := http.NewRequestWithContext(ctx, d.Method, targetURL, body)
	if err != nil {
		return replayResponse{}, err
	}
	for name, value := range d.Headers {
		if replaySkipHeaders[name] {
			continue
		}
		req.Header.Set(name, value)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return replayResponse{}, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	return replayResponse{StatusCode: resp.StatusCode, Status: resp.Status}, nil
}

// encodeParams keeps the stored key order.
func encodeParams(p *store.Params) string {
	var b strings.Builder
	for i, k := range p.Keys() {
		if i > 0 {
			b.WriteByte('&')
		}
		v, _ := p.Get(k)
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(v))
	}
	return b.String()
}
