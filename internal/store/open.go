package store

import (
	"fmt"
	"time"
)

// Options selects and configures a backend for Open.
type Options struct {
	Driver        string // sqlite, postgres or pebble
	DSN           string // file path, connection URL or data directory
	Fsync         string
	FsyncInterval time.Duration
}

// Open returns the Store named by opts.Driver.
func Open(opts Options) (Store, error) {
	var (
		s   Store
		err error
	)
	switch opts.Driver {
	case "", "sqlite":
		var sq *SQLStore
		if sq, err = NewSQLiteStore(opts.DSN); err == nil {
			s = sq
		}
	case "postgres":
		var pg *SQLStore
		if pg, err = NewPostgresStore(opts.DSN); err == nil {
			s = pg
		}
	case "pebble":
		var mode FsyncMode
		if mode, err = ParseFsyncMode(opts.Fsync); err != nil {
			return nil, err
		}
		var pb *PebbleStore
		if pb, err = NewPebbleStore(PebbleOptions{DataDir: opts.DSN, Fsync: mode, FsyncInterval: opts.FsyncInterval}); err == nil {
			s = pb
		}
	default:
		return nil, fmt.Errorf("store: unknown driver %q", opts.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", opts.Driver, err)
	}
	return s, nil
}
