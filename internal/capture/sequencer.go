package capture

import (
	"bytes"
	"sync"

	"github.com/PipeOpsHQ/hookscope/internal/ident"
	"github.com/google/uuid"
)

// sequencer hands out identifiers and remembers which ones have not yet
// finished their store write.
type sequencer struct {
	gen      *ident.Generator
	mu       sync.Mutex
	inflight map[uuid.UUID]struct{}
}

func newSequencer(gen *ident.Generator) *sequencer {
	return &sequencer{gen: gen, inflight: make(map[uuid.UUID]struct{})}
}

// begin mints an id and marks it in flight until done is called.
func (s *sequencer) begin() (uuid.UUID, func()) {
	s.mu.Lock()
	id := s.gen.Next()
	s.inflight[id] = struct{}{}
	s.mu.Unlock()

	return id, func() {
		s.mu.Lock()
		delete(s.inflight, id)
		s.mu.Unlock()
	}
}

// horizon returns the lowest id a reader must not see yet: the smallest
// in-flight id, or a freshly minted probe when nothing is in flight. Every id
// handed out later sorts above the probe.
func (s *sequencer) horizon() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	bound := s.gen.Next()
	for id := range s.inflight {
		if bytes.Compare(id[:], bound[:]) < 0 {
			bound = id
		}
	}
	return bound
}
