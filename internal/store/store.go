package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned by Get when no delivery has the requested id.
	ErrNotFound = errors.New("store: delivery not found")
	// ErrConflict is returned by Put when a different delivery already owns the id.
	ErrConflict = errors.New("store: conflicting delivery for id")
)

// Delivery is one captured inbound request. Values are immutable once stored.
type Delivery struct {
	ID            uuid.UUID         `json:"id"`
	Method        string            `json:"method"`
	Pathname      string            `json:"pathname"`
	IP            string            `json:"ip"`
	StatusCode    int               `json:"statusCode"`
	ContentType   *string           `json:"contentType"`
	ContentLength *int64            `json:"contentLength"`
	QueryParams   *Params           `json:"queryParams"`
	Headers       map[string]string `json:"headers"`
	Body          *string           `json:"body"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// Summary is the list view of a delivery.
type Summary struct {
	ID        uuid.UUID `json:"id"`
	Method    string    `json:"method"`
	Pathname  string    `json:"pathname"`
	CreatedAt time.Time `json:"createdAt"`
}

// Summary returns the list view of d.
func (d *Delivery) Summary() Summary {
	return Summary{ID: d.ID, Method: d.Method, Pathname: d.Pathname, CreatedAt: d.CreatedAt}
}

// Equal reports whether d and o describe the same stored delivery.
// Timestamps are compared at millisecond precision, which is what backends keep.
func (d *Delivery) Equal(o *Delivery) bool {
	if d == nil || o == nil {
		return d == o
	}
	if d.ID != o.ID || d.Method != o.Method || d.Pathname != o.Pathname || d.IP != o.IP || d.StatusCode != o.StatusCode {
		return false
	}
	if d.CreatedAt.UnixMilli() != o.CreatedAt.UnixMilli() {
		return false
	}
	if !equalPtr(d.ContentType, o.ContentType) || !equalPtr(d.ContentLength, o.ContentLength) || !equalPtr(d.Body, o.Body) {
		return false
	}
	if (d.Headers == nil) != (o.Headers == nil) || len(d.Headers) != len(o.Headers) {
		return false
	}
	for k, v := range d.Headers {
		if ov, ok := o.Headers[k]; !ok || ov != v {
			return false
		}
	}
	return d.QueryParams.Equal(o.QueryParams)
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Store persists deliveries keyed by id. Implementations own their locking and
// are safe for concurrent use.
type Store interface {
	// Put durably stores d. Storing an identical delivery twice is a no-op;
	// storing a different delivery under an existing id returns ErrConflict.
	Put(ctx context.Context, d *Delivery) error
	// Get returns the delivery with the given id or ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*Delivery, error)
	// Scan returns up to limit deliveries with id > after in ascending id order.
	// uuid.Nil starts from the beginning.
	Scan(ctx context.Context, after uuid.UUID, limit int) ([]*Delivery, error)
	// Clear removes every delivery.
	Clear(ctx context.Context) error
	Close() error
}
