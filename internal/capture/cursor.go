package capture

import (
	"bytes"
	"context"
	"encoding/base64"

	"github.com/PipeOpsHQ/hookscope/internal/ident"
	"github.com/PipeOpsHQ/hookscope/internal/store"
	"github.com/google/uuid"
)

// Page is one slice of the delivery history. NextCursor is empty when the
// scan reached the end of the data.
type Page struct {
	Items      []*store.Delivery
	NextCursor string
}

// EncodeCursor turns the last id of a page into an opaque resume token.
func EncodeCursor(id uuid.UUID) string {
	return base64.RawURLEncoding.EncodeToString(id[:])
}

// DecodeCursor reverses EncodeCursor. The empty cursor means the start of the
// data and decodes to uuid.Nil.
func DecodeCursor(cursor string) (uuid.UUID, error) {
	if cursor == "" {
		return uuid.Nil, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil || len(b) != len(uuid.Nil) {
		return uuid.Nil, invalidCursorError(cursor)
	}
	var id uuid.UUID
	copy(id[:], b)
	if !ident.Valid(id) {
		return uuid.Nil, invalidCursorError(cursor)
	}
	return id, nil
}

// Pager translates cursors into bounded store scans.
type Pager struct {
	store store.Store
	// horizon returns an exclusive upper id bound for what a scan may expose.
	horizon func() uuid.UUID
}

// NewPager returns a Pager over s. A nil horizon exposes every stored record.
func NewPager(s store.Store, horizon func() uuid.UUID) *Pager {
	return &Pager{store: s, horizon: horizon}
}

// Page returns up to size deliveries after cursor. The bound is taken before
// the scan so records committed out of id order are held back until every
// lower id has settled.
func (p *Pager) Page(ctx context.Context, cursor string, size int) (Page, error) {
	after, err := DecodeCursor(cursor)
	if err != nil {
		return Page{}, err
	}
	if size <= 0 {
		return Page{}, validationError("page size must be positive", map[string]any{"limit": size})
	}

	var bound uuid.UUID
	bounded := p.horizon != nil
	if bounded {
		bound = p.horizon()
	}

	items, err := p.store.Scan(ctx, after, size)
	if err != nil {
		return Page{}, err
	}
	if bounded {
		for i, d := range items {
			if bytes.Compare(d.ID[:], bound[:]) >= 0 {
				items = items[:i]
				break
			}
		}
	}

	page := Page{Items: items}
	if len(items) == size {
		page.NextCursor = EncodeCursor(items[len(items)-1].ID)
	}
	return page, nil
}
