package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"
)

// FsyncMode defines durability behavior for Pebble writes.
type FsyncMode int

const (
	// FsyncModeAlways syncs the WAL before each Put returns.
	FsyncModeAlways FsyncMode = iota
	// FsyncModeInterval syncs before returning but lets Pebble coalesce syncs
	// of concurrent writers within FsyncInterval.
	FsyncModeInterval
	// FsyncModeNever leaves syncing to Pebble. A crash may lose acknowledged writes.
	FsyncModeNever
)

// ParseFsyncMode maps always|interval|never to a FsyncMode.
func ParseFsyncMode(s string) (FsyncMode, error) {
	switch s {
	case "", "always":
		return FsyncModeAlways, nil
	case "interval":
		return FsyncModeInterval, nil
	case "never":
		return FsyncModeNever, nil
	}
	return 0, fmt.Errorf("invalid fsync mode %q; use always|interval|never", s)
}

// PebbleOptions configures NewPebbleStore.
type PebbleOptions struct {
	DataDir       string
	Fsync         FsyncMode
	FsyncInterval time.Duration
}

const lockStripes = 64

var (
	deliveryPrefix = []byte("d/")
	deliveryEnd    = []byte("d0") // '/'+1
)

func deliveryKey(id uuid.UUID) []byte {
	k := make([]byte, 0, len(deliveryPrefix)+len(id))
	k = append(k, deliveryPrefix...)
	return append(k, id[:]...)
}

// PebbleStore keeps deliveries in a Pebble keyspace ordered by id bytes.
type PebbleStore struct {
	db    *pebble.DB
	write *pebble.WriteOptions
	locks [lockStripes]sync.Mutex
}

// NewPebbleStore opens (or creates) a Pebble database in opts.DataDir.
func NewPebbleStore(opts PebbleOptions) (*PebbleStore, error) {
	if opts.DataDir == "" {
		return nil, errors.New("pebble: DataDir is required")
	}
	po := &pebble.Options{}
	write := pebble.Sync
	switch opts.Fsync {
	case FsyncModeInterval:
		interval := opts.FsyncInterval
		if interval <= 0 {
			interval = 5 * time.Millisecond
		}
		po.WALMinSyncInterval = func() time.Duration { return interval }
	case FsyncModeNever:
		write = pebble.NoSync
	}

	db, err := pebble.Open(opts.DataDir, po)
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db, write: write}, nil
}

func (s *PebbleStore) lockFor(id uuid.UUID) *sync.Mutex {
	return &s.locks[int(id[15])%lockStripes]
}

func (s *PebbleStore) Put(ctx context.Context, d *Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	val, err := encodeRecord(d)
	if err != nil {
		return err
	}

	mu := s.lockFor(d.ID)
	mu.Lock()
	defer mu.Unlock()

	existing, err := s.get(d.ID)
	switch {
	case err == nil:
		if !existing.Equal(d) {
			return fmt.Errorf("%w %s", ErrConflict, d.ID)
		}
		return nil
	case !errors.Is(err, ErrNotFound):
		return err
	}

	if err := s.db.Set(deliveryKey(d.ID), val, s.write); err != nil {
		return fmt.Errorf("pebble: put %s: %w", d.ID, err)
	}
	return nil
}

func (s *PebbleStore) Get(ctx context.Context, id uuid.UUID) (*Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.get(id)
}

func (s *PebbleStore) get(id uuid.UUID) (*Delivery, error) {
	val, closer, err := s.db.Get(deliveryKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("pebble: get %s: %w", id, err)
	}
	defer closer.Close()
	return decodeRecord(val)
}

func (s *PebbleStore) Scan(ctx context.Context, after uuid.UUID, limit int) ([]*Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}
	// Keys share one length, so key(after)+0x00 is the smallest key above after.
	lower := append(deliveryKey(after), 0x00)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: deliveryEnd})
	if err != nil {
		return nil, fmt.Errorf("pebble: scan: %w", err)
	}

	out := make([]*Delivery, 0, limit)
	for valid := iter.First(); valid && len(out) < limit; valid = iter.Next() {
		d, err := decodeRecord(iter.Value())
		if err != nil {
			iter.Close()
			return nil, err
		}
		out = append(out, d)
	}
	if err := iter.Error(); err != nil {
		iter.Close()
		return nil, fmt.Errorf("pebble: scan: %w", err)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("pebble: scan: %w", err)
	}
	return out, nil
}

func (s *PebbleStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.DeleteRange(deliveryPrefix, deliveryEnd, s.write)
}

func (s *PebbleStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
