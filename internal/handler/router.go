package handler

import (
	"log"
	"net/http"
	"strings"

	"github.com/PipeOpsHQ/hookscope/internal/logging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Instrumenter wraps a named route with request metrics.
type Instrumenter interface {
	Instrument(name string, next http.Handler) http.Handler
	Handler() http.Handler
}

// NewRouter mounts the capture path and the query API. metrics may be nil.
func NewRouter(h *Handler, capturePath string, metrics Instrumenter) http.Handler {
	capturePath = "/" + strings.Trim(capturePath, "/")

	instrument := func(name string, fn http.HandlerFunc) http.Handler {
		if metrics == nil {
			return fn
		}
		return metrics.Instrument(name, fn)
	}

	requestLogger := middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  log.New(logging.StdWriter(h.logger), "", 0),
		NoColor: true,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if h.opts.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)

	// Skip request logging on the capture path; producers can be chatty.
	r.Use(func(next http.Handler) http.Handler {
		logged := requestLogger(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isCapturePath(r.URL.Path, capturePath) {
				next.ServeHTTP(w, r)
				return
			}
			logged.ServeHTTP(w, r)
		})
	})

	r.Get("/healthz", h.Healthz)
	if metrics != nil {
		r.Handle("/metrics", metrics.Handler())
	}

	r.Route("/deliveries", func(r chi.Router) {
		r.Method(http.MethodGet, "/", instrument("list_deliveries", h.ListDeliveries))
		r.Method(http.MethodDelete, "/", instrument("reset_deliveries", h.ResetDeliveries))
		r.Method(http.MethodGet, "/{id}", instrument("get_delivery", h.GetDelivery))
		r.Method(http.MethodPost, "/{id}/replay", instrument("replay_delivery", h.ReplayDelivery))
	})

	r.Get("/ws/deliveries", h.WebSocket)
	r.Get("/sse/deliveries", h.TailSSE)

	capture := instrument("capture", h.CaptureWebhook)
	r.Handle(capturePath, capture)
	if capturePath != "/" {
		r.Handle(capturePath+"/*", capture)
	}
	return r
}

func isCapturePath(path, capturePath string) bool {
	if capturePath == "/" {
		return true
	}
	return path == capturePath || strings.HasPrefix(path, capturePath+"/")
}
