package capture

import (
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/PipeOpsHQ/hookscope/internal/store"
)

// Request is the transport-level view of one inbound delivery.
type Request struct {
	Method     string
	Path       string // escaped path, no query
	RawQuery   string
	HasQuery   bool // the request target contained '?'
	Header     http.Header
	Body       []byte // nil when no body was received
	RemoteAddr string
	// ContentLength is the transport-reported body length, -1 when unknown.
	ContentLength int64
}

// Normalize maps req onto the stored shape. ID, CreatedAt and StatusCode are
// left for the service to stamp.
//
// Absent and empty are kept apart: a missing '?' yields nil query params, a
// request without headers yields nil headers and a nil Body yields nil body
// and content length.
func Normalize(req Request) *store.Delivery {
	d := &store.Delivery{
		Method:   req.Method,
		Pathname: req.Path,
		IP:       req.RemoteAddr,
	}

	if len(req.Header) > 0 {
		// Names differing only in case fold into one key; sorting fixes the join order.
		names := make([]string, 0, len(req.Header))
		for name := range req.Header {
			names = append(names, name)
		}
		sort.Strings(names)

		d.Headers = make(map[string]string, len(req.Header))
		for _, name := range names {
			key := strings.ToLower(name)
			joined := strings.Join(req.Header[name], ", ")
			if prev, ok := d.Headers[key]; ok {
				joined = prev + ", " + joined
			}
			d.Headers[key] = joined
		}
		if ct, ok := d.Headers["content-type"]; ok {
			d.ContentType = &ct
		}
	}

	if req.HasQuery || req.RawQuery != "" {
		d.QueryParams = parseQuery(req.RawQuery)
	}

	if req.Body != nil {
		body := string(req.Body)
		d.Body = &body
		n := req.ContentLength
		if n < 0 {
			n = int64(len(req.Body))
		}
		d.ContentLength = &n
	}
	return d
}

// parseQuery keeps keys in arrival order; a repeated key keeps its first
// position and takes the last value.
func parseQuery(raw string) *store.Params {
	p := store.NewParams()
	for raw != "" {
		var part string
		part, raw, _ = strings.Cut(raw, "&")
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		p.Set(unescape(k), unescape(v))
	}
	return p
}

func unescape(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return s
}

func validateDelivery(d *store.Delivery) error {
	if d.Method == "" {
		return validationError("method is required", nil)
	}
	if d.Pathname == "" {
		return validationError("pathname is required", nil)
	}
	return nil
}
