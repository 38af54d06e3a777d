package capture

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/PipeOpsHQ/hookscope/internal/ident"
	"github.com/PipeOpsHQ/hookscope/internal/store"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Observer receives ingestion outcomes and store latencies. Optional.
type Observer interface {
	ObserveIngest(result string, elapsed time.Duration)
	ObserveStore(op string, elapsed time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveIngest(string, time.Duration)       {}
func (nopObserver) ObserveStore(string, time.Duration, error) {}

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
	AckStatus       int
	Generator       *ident.Generator
	Logger          glog.Logger
	Observer        Observer
}

// Service captures deliveries and serves them back. It keeps no state of its
// own between calls beyond the ids it is currently writing.
type Service struct {
	store       store.Store
	seq         *sequencer
	pager       *Pager
	defaultSize int
	maxSize     int
	ackStatus   int
	logger      glog.Logger
	observer    Observer
}

func NewService(s store.Store, opts Options) *Service {
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = DefaultPageSize
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = MaxPageSize
	}
	if opts.AckStatus == 0 {
		opts.AckStatus = http.StatusOK
	}
	if opts.Generator == nil {
		opts.Generator = ident.NewGenerator()
	}
	if opts.Logger == nil {
		opts.Logger = glog.Nop()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}

	svc := &Service{
		store:       s,
		seq:         newSequencer(opts.Generator),
		defaultSize: opts.DefaultPageSize,
		maxSize:     opts.MaxPageSize,
		ackStatus:   opts.AckStatus,
		logger:      opts.Logger,
		observer:    opts.Observer,
	}
	svc.pager = NewPager(timedStore{Store: s, observer: opts.Observer}, svc.seq.horizon)
	return svc
}

// Ingest normalizes req, stamps id, creation time and ack status, and writes
// the result. A nil error means the delivery is durable and the producer may
// be acknowledged with the returned StatusCode.
func (s *Service) Ingest(ctx context.Context, req Request) (*store.Delivery, error) {
	start := time.Now()
	d := Normalize(req)
	if err := validateDelivery(d); err != nil {
		s.observer.ObserveIngest("invalid", time.Since(start))
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if err := ctx.Err(); err != nil {
			s.observer.ObserveIngest("cancelled", time.Since(start))
			return nil, fmt.Errorf("ingest cancelled: %w", err)
		}

		id, done := s.seq.begin()
		d.ID = id
		d.CreatedAt = ident.Time(id)
		d.StatusCode = s.ackStatus

		err := s.put(ctx, d)
		done()
		if err == nil {
			s.observer.ObserveIngest("stored", time.Since(start))
			s.logger.Debug("delivery captured", "id", id.String(), "method", d.Method, "path", d.Pathname, "bytes", bodyLen(d))
			return d, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			s.observer.ObserveIngest("failed", time.Since(start))
			s.logger.Error("store delivery failed", "id", id.String(), "error", err)
			if ctx.Err() != nil {
				return nil, fmt.Errorf("ingest cancelled: %w", err)
			}
			return nil, storageUnavailable(err, "failed to store delivery")
		}
		lastErr = collisionError(id.String())
		s.logger.Warn("identifier collision, regenerating", "id", id.String(), "attempt", attempt+1)
	}

	s.observer.ObserveIngest("failed", time.Since(start))
	return nil, storageUnavailable(lastErr, "failed to assign a unique identifier")
}

// List returns one page of deliveries in ascending id order. A zero limit
// selects the configured default.
func (s *Service) List(ctx context.Context, cursor string, limit int) (Page, error) {
	switch {
	case limit == 0:
		limit = s.defaultSize
	case limit < 0:
		return Page{}, validationError("limit must be positive", map[string]any{"limit": limit})
	case limit > s.maxSize:
		return Page{}, validationError(fmt.Sprintf("limit must not exceed %d", s.maxSize), map[string]any{"limit": limit})
	}

	page, err := s.pager.Page(ctx, cursor, limit)
	if err != nil {
		if IsValidation(err) {
			return Page{}, err
		}
		return Page{}, storageUnavailable(err, "failed to list deliveries")
	}
	return page, nil
}

// Get looks up one delivery by its canonical id string.
func (s *Service) Get(ctx context.Context, rawID string) (*store.Delivery, error) {
	id, err := ident.Parse(rawID)
	if err != nil {
		return nil, validationError("malformed delivery id", map[string]any{"id": rawID})
	}
	return s.GetByID(ctx, id)
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*store.Delivery, error) {
	start := time.Now()
	d, err := s.store.Get(ctx, id)
	s.observer.ObserveStore("get", time.Since(start), ignoreNotFound(err))
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, notFoundError(id.String())
	case err != nil:
		return nil, storageUnavailable(err, "failed to load delivery")
	}
	return d, nil
}

// Reset removes every captured delivery. Administrative use only.
func (s *Service) Reset(ctx context.Context) error {
	start := time.Now()
	err := s.store.Clear(ctx)
	s.observer.ObserveStore("clear", time.Since(start), err)
	if err != nil {
		return storageUnavailable(err, "failed to clear deliveries")
	}
	s.logger.Warn("all deliveries cleared")
	return nil
}

func (s *Service) put(ctx context.Context, d *store.Delivery) error {
	start := time.Now()
	err := s.store.Put(ctx, d)
	s.observer.ObserveStore("put", time.Since(start), err)
	return err
}

// timedStore reports scan latency to the observer.
type timedStore struct {
	store.Store
	observer Observer
}

func (t timedStore) Scan(ctx context.Context, after uuid.UUID, limit int) ([]*store.Delivery, error) {
	start := time.Now()
	items, err := t.Store.Scan(ctx, after, limit)
	t.observer.ObserveStore("scan", time.Since(start), err)
	return items, err
}

func ignoreNotFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

func bodyLen(d *store.Delivery) int {
	if d.Body == nil {
		return 0
	}
	return len(*d.Body)
}
