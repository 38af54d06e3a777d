package ident

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

const maxSequence = 0x0fff

// ErrMalformed is returned by Parse for strings that are not canonical v7 identifiers.
var ErrMalformed = errors.New("ident: malformed identifier")

// NowMs returns the current time in milliseconds since the Unix epoch.
var NowMs = func() int64 { return time.Now().UnixMilli() }

// Generator produces monotonically increasing identifiers. It is safe for
// concurrent use.
type Generator struct {
	mu       sync.Mutex
	lastMs   int64
	sequence uint16
	random   io.Reader
}

// NewGenerator returns a Generator backed by crypto/rand.
func NewGenerator() *Generator { return &Generator{random: rand.Reader} }

// Next returns a new identifier that sorts after every identifier previously
// returned by g.
func (g *Generator) Next() uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := NowMs()
	if ms < g.lastMs {
		ms = g.lastMs
	}

	if ms == g.lastMs {
		if g.sequence == maxSequence {
			ms++
			g.sequence = 0
		} else {
			g.sequence++
		}
	} else {
		g.sequence = 0
	}

	g.lastMs = ms
	return g.makeID(ms, g.sequence)
}

func (g *Generator) makeID(ms int64, seq uint16) uuid.UUID {
	var id uuid.UUID
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(ms))
	copy(id[0:6], ts[2:8])

	id[6] = 0x70 | byte(seq>>8)&0x0f
	id[7] = byte(seq)

	if _, err := io.ReadFull(g.random, id[8:]); err != nil {
		// crypto/rand does not fail on supported platforms.
		panic(fmt.Sprintf("ident: read random: %v", err))
	}
	id[8] = 0x80 | id[8]&0x3f
	return id
}

// Parse accepts only the canonical lowercase 36-character form of a version 7
// identifier.
func Parse(s string) (uuid.UUID, error) {
	if len(s) != 36 {
		return uuid.Nil, ErrMalformed
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, ErrMalformed
	}
	if id.Version() != 7 || id.Variant() != uuid.RFC4122 || id.String() != s {
		return uuid.Nil, ErrMalformed
	}
	return id, nil
}

// Valid reports whether id carries the v7 layout.
func Valid(id uuid.UUID) bool {
	return id.Version() == 7 && id.Variant() == uuid.RFC4122
}

// Time returns the millisecond timestamp embedded in id.
func Time(id uuid.UUID) time.Time {
	var ts [8]byte
	copy(ts[2:], id[0:6])
	return time.UnixMilli(int64(binary.BigEndian.Uint64(ts[:]))).UTC()
}
