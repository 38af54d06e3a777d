package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const sseKeepalive = 15 * time.Second

// TailSSE streams delivery summaries as server-sent events for clients that
// cannot speak websocket.
func (h *Handler) TailSSE(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// The stream outlives the server's write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.Warn("sse: clear write deadline", "error", err)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.Warn("sse: streaming unsupported", "error", err)
		return
	}

	events, unsubscribe := h.hub.Subscribe()
	defer unsubscribe()
	h.tailConnected()
	defer h.tailDisconnected()

	ticker := time.NewTicker(sseKeepalive)
	defer ticker.Stop()

	for {
		select {
		case summary, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(summary)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: delivery\ndata: %s\n\n", data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

func (h *Handler) tailConnected() {
	if h.opts.Tail != nil {
		h.opts.Tail.TailConnected()
	}
}

func (h *Handler) tailDisconnected() {
	if h.opts.Tail != nil {
		h.opts.Tail.TailDisconnected()
	}
}
