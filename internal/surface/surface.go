// Package surface implements the C4 surface/consistency/generation
// state a ComputeContext manages for every resident buffer: backing
// storage, a monotonic generation counter bumped on every upload, and
// a per-accelerator consistency bitset recording whether that
// accelerator's cached copy matches the current generation. The shape
// follows vmaccel::surface in vmaccel.hpp directly: upload/download
// memcpy semantics, set_consistency[_range] built on the same
// IdentifierDB bitset C1 already provides.
package surface

import (
	"fmt"
	"sync"

	"github.com/vmware/vmaccel/internal/identifier"
)

// Surface is a single resident buffer plus its consistency state.
type Surface struct {
	mu sync.Mutex

	id         int64
	backing    []byte
	generation uint64

	// consistency tracks, per accelerator/context id, whether that
	// consumer's view of backing matches generation. A set bit means
	// "consistent"; upload() clears every bit (matching
	// set_consistency_range(0, max-1, false)).
	consistency *identifier.DB
}

// New allocates a surface of the given byte width with a consistency
// bitset sized for maxRefs concurrent accelerator/context references.
func New(id int64, width uint64, maxRefs int) *Surface {
	return &Surface{
		id:          id,
		backing:     make([]byte, width),
		consistency: identifier.New(maxRefs),
	}
}

func (s *Surface) ID() int64 { return s.id }

// Generation returns the current upload generation.
func (s *Surface) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Size returns the backing store's byte width.
func (s *Surface) Size() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(len(s.backing))
}

// Upload copies data into the surface's backing store starting at
// offset, bumps the generation counter, and marks every
// accelerator/context as inconsistent (clearing the whole bitset),
// exactly as vmaccel::surface::upload does for the direct-image path.
func (s *Surface) Upload(data []byte, offset uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	end := offset + uint64(len(data))
	if end > uint64(len(s.backing)) {
		return fmt.Errorf("surface %d: upload [%d,%d) exceeds backing size %d", s.id, offset, end, len(s.backing))
	}
	copy(s.backing[offset:end], data)
	s.generation++
	s.consistency.ReleaseIdRange(0, s.consistency.Size()-1)
	return nil
}

// Download copies a region of the surface's backing store into out.
func (s *Surface) Download(out []byte, offset uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	end := offset + uint64(len(out))
	if end > uint64(len(s.backing)) {
		return fmt.Errorf("surface %d: download [%d,%d) exceeds backing size %d", s.id, offset, end, len(s.backing))
	}
	copy(out, s.backing[offset:end])
	return nil
}

// IsConsistent reports whether refID's cached view matches the current
// generation.
func (s *Surface) IsConsistent(refID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consistency.ActiveId(refID)
}

// SetConsistent marks refID consistent (true) or stale (false).
func (s *Surface) SetConsistent(refID int, state bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state {
		s.consistency.AcquireId(refID)
	} else if s.consistency.ActiveId(refID) {
		s.consistency.ReleaseId(refID)
	}
}

// SetConsistentRange marks every refID in [start, end] consistent or
// stale in one call, used after a copy/fill operation that brings a
// known set of contexts up to date without a full upload.
func (s *Surface) SetConsistentRange(start, end int, state bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state {
		s.consistency.AcquireIdRange(start, end)
	} else {
		s.consistency.ReleaseIdRange(start, end)
	}
}
