package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// row is the column form of a Delivery shared by the SQL backends.
type row struct {
	ID            string
	Method        string
	Pathname      string
	IP            string
	StatusCode    int
	ContentType   sql.Null[[]byte]
	ContentLength sql.NullInt64
	QueryParams   sql.NullString
	Headers       sql.NullString
	Body          sql.Null[[]byte]
	CreatedAt     int64
}

func toRow(d *Delivery) (row, error) {
	r := row{
		ID:         d.ID.String(),
		Method:     d.Method,
		Pathname:   d.Pathname,
		IP:         d.IP,
		StatusCode: d.StatusCode,
		CreatedAt:  d.CreatedAt.UnixMilli(),
	}
	if d.ContentType != nil {
		r.ContentType = sql.Null[[]byte]{V: []byte(*d.ContentType), Valid: true}
	}
	if d.ContentLength != nil {
		r.ContentLength = sql.NullInt64{Int64: *d.ContentLength, Valid: true}
	}
	if d.QueryParams != nil {
		b, err := json.Marshal(paramPairs(d.QueryParams))
		if err != nil {
			return row{}, fmt.Errorf("encode query params: %w", err)
		}
		r.QueryParams = sql.NullString{String: string(b), Valid: true}
	}
	if d.Headers != nil {
		b, err := json.Marshal(headerPairs(d.Headers))
		if err != nil {
			return row{}, fmt.Errorf("encode headers: %w", err)
		}
		r.Headers = sql.NullString{String: string(b), Valid: true}
	}
	if d.Body != nil {
		r.Body = sql.Null[[]byte]{V: []byte(*d.Body), Valid: true}
	}
	return r, nil
}

func (r row) args() []any {
	return []any{r.ID, r.Method, r.Pathname, r.IP, r.StatusCode, r.ContentType, r.ContentLength, r.QueryParams, r.Headers, r.Body, r.CreatedAt}
}

func (r *row) dest() []any {
	return []any{&r.ID, &r.Method, &r.Pathname, &r.IP, &r.StatusCode, &r.ContentType, &r.ContentLength, &r.QueryParams, &r.Headers, &r.Body, &r.CreatedAt}
}

func (r row) delivery() (*Delivery, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("decode id %q: %w", r.ID, err)
	}
	d := &Delivery{
		ID:         id,
		Method:     r.Method,
		Pathname:   r.Pathname,
		IP:         r.IP,
		StatusCode: r.StatusCode,
		CreatedAt:  time.UnixMilli(r.CreatedAt).UTC(),
	}
	if r.ContentType.Valid {
		v := string(r.ContentType.V)
		d.ContentType = &v
	}
	if r.ContentLength.Valid {
		v := r.ContentLength.Int64
		d.ContentLength = &v
	}
	if r.QueryParams.Valid {
		var pairs bytePairs
		if err := json.Unmarshal([]byte(r.QueryParams.String), &pairs); err != nil {
			return nil, fmt.Errorf("decode query params for %s: %w", r.ID, err)
		}
		d.QueryParams = pairs.params()
	}
	if r.Headers.Valid {
		var pairs bytePairs
		if err := json.Unmarshal([]byte(r.Headers.String), &pairs); err != nil {
			return nil, fmt.Errorf("decode headers for %s: %w", r.ID, err)
		}
		d.Headers = pairs.headers()
	}
	if r.Body.Valid {
		v := string(r.Body.V)
		d.Body = &v
	}
	return d, nil
}

// bytePairs carries string pairs through JSON as base64 byte slices, so
// header and query values that are not valid UTF-8 keep their exact bytes.
type bytePairs [][2][]byte

func headerPairs(h map[string]string) bytePairs {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make(bytePairs, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, [2][]byte{[]byte(k), []byte(h[k])})
	}
	return pairs
}

func paramPairs(p *Params) bytePairs {
	pairs := make(bytePairs, 0, p.Len())
	for _, k := range p.Keys() {
		v, _ := p.Get(k)
		pairs = append(pairs, [2][]byte{[]byte(k), []byte(v)})
	}
	return pairs
}

func (b bytePairs) headers() map[string]string {
	h := make(map[string]string, len(b))
	for _, kv := range b {
		h[string(kv[0])] = string(kv[1])
	}
	return h
}

func (b bytePairs) params() *Params {
	p := NewParams()
	for _, kv := range b {
		p.Set(string(kv[0]), string(kv[1]))
	}
	return p
}

// record is the value layout for key-value backends. Byte-valued fields
// travel as base64 so invalid UTF-8 survives the JSON encoding.
type record struct {
	ID            uuid.UUID  `json:"id"`
	Method        string     `json:"method"`
	Pathname      string     `json:"pathname"`
	IP            string     `json:"ip"`
	StatusCode    int        `json:"status_code"`
	ContentType   *[]byte    `json:"content_type,omitempty"`
	ContentLength *int64     `json:"content_length,omitempty"`
	QueryParams   *bytePairs `json:"query_params,omitempty"`
	Headers       *bytePairs `json:"headers,omitempty"`
	Body          *[]byte    `json:"body,omitempty"`
	CreatedAtMs   int64      `json:"created_at_ms"`
}

func encodeRecord(d *Delivery) ([]byte, error) {
	rec := record{
		ID:            d.ID,
		Method:        d.Method,
		Pathname:      d.Pathname,
		IP:            d.IP,
		StatusCode:    d.StatusCode,
		ContentLength: d.ContentLength,
		CreatedAtMs:   d.CreatedAt.UnixMilli(),
	}
	if d.ContentType != nil {
		ct := []byte(*d.ContentType)
		rec.ContentType = &ct
	}
	if d.QueryParams != nil {
		q := paramPairs(d.QueryParams)
		rec.QueryParams = &q
	}
	if d.Headers != nil {
		h := headerPairs(d.Headers)
		rec.Headers = &h
	}
	if d.Body != nil {
		body := []byte(*d.Body)
		rec.Body = &body
	}
	return json.Marshal(rec)
}

func decodeRecord(b []byte) (*Delivery, error) {
	var rec record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	d := &Delivery{
		ID:            rec.ID,
		Method:        rec.Method,
		Pathname:      rec.Pathname,
		IP:            rec.IP,
		StatusCode:    rec.StatusCode,
		ContentLength: rec.ContentLength,
		CreatedAt:     time.UnixMilli(rec.CreatedAtMs).UTC(),
	}
	if rec.ContentType != nil {
		ct := string(*rec.ContentType)
		d.ContentType = &ct
	}
	if rec.QueryParams != nil {
		d.QueryParams = rec.QueryParams.params()
	}
	if rec.Headers != nil {
		d.Headers = rec.Headers.headers()
	}
	if rec.Body != nil {
		body := string(*rec.Body)
		d.Body = &body
	}
	return d, nil
}
