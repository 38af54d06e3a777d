package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/PipeOpsHQ/hookscope/internal/capture"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// TailObserver is notified when live tail clients come and go.
type TailObserver interface {
	TailConnected()
	TailDisconnected()
}

type Options struct {
	MaxBodyBytes int64
	AllowReset   bool
	// TrustProxyHeaders records the client address from proxy headers
	// instead of the connection's peer address.
	TrustProxyHeaders bool
	ReplayTarget      string
	ReplayTimeout     time.Duration
	Logger            glog.Logger
	Tail              TailObserver
}

type Handler struct {
	Service *capture.Service
	hub     *Hub
	opts    Options
	logger  glog.Logger
	client  *http.Client
}

func NewHandler(svc *capture.Service, opts Options) *Handler {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 10 << 20
	}
	if opts.ReplayTimeout <= 0 {
		opts.ReplayTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = glog.Nop()
	}
	return &Handler{
		Service: svc,
		hub:     NewHub(defaultTailBuffer),
		opts:    opts,
		logger:  opts.Logger,
		client:  &http.Client{Timeout: opts.ReplayTimeout},
	}
}

// Hub returns the live tail fan-out.
func (h *Handler) Hub() *Hub { return h.hub }

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
