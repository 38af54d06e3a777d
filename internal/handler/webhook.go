package handler

import (
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/PipeOpsHQ/hookscope/internal/capture"
	goerrors "github.com/goliatone/go-errors"
)

// CaptureWebhook stores any request that reaches the capture path and acks it
// with an empty body once the delivery is durable.
func (h *Handler) CaptureWebhook(w http.ResponseWriter, r *http.Request) {
	req, err := h.captureRequest(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	d, err := h.Service.Ingest(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.hub.Publish(d.Summary())
	w.WriteHeader(d.StatusCode)
}

func (h *Handler) captureRequest(w http.ResponseWriter, r *http.Request) (capture.Request, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return capture.Request{}, goerrors.New("request body too large", goerrors.CategoryBadInput).
				WithCode(http.StatusRequestEntityTooLarge).
				WithTextCode(textCodeBodyTooLarge).
				WithMetadata(map[string]any{"limit": h.opts.MaxBodyBytes})
		}
		return capture.Request{}, badRequest("failed to read request body", map[string]any{"error": err.Error()})
	}
	// An empty read is an absent body unless the producer declared a zero length.
	if len(body) == 0 && !(r.ContentLength == 0 && r.Header.Get("Content-Length") != "") {
		body = nil
	}

	header := r.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	if r.Host != "" && header.Get("Host") == "" {
		header.Set("Host", r.Host)
	}
	if len(header) == 0 {
		header = nil
	}

	return capture.Request{
		Method:        r.Method,
		Path:          r.URL.EscapedPath(),
		RawQuery:      r.URL.RawQuery,
		HasQuery:      r.URL.ForceQuery || r.URL.RawQuery != "",
		Header:        header,
		Body:          body,
		RemoteAddr:    remoteIP(r.RemoteAddr),
		ContentLength: r.ContentLength,
	}, nil
}

func remoteIP(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
