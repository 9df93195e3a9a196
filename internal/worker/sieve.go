package worker

import (
	"sync"

	"github.com/seanpm2001/mysql-queue/internal/core"
)

// sieve is the set of refs currently traversing the pipeline. The dedup gate
// consults it before forwarding; the publishers snapshot it to build SQL
// exclusion lists. Eventual consistency is fine — a stale entry costs one
// wasted round trip, a missed one is caught at the gate.
type sieve struct {
	mu   sync.Mutex
	refs map[core.Ref]struct{}
}

func newSieve() *sieve {
	return &sieve{refs: make(map[core.Ref]struct{})}
}

// Add inserts ref and reports whether it was absent.
func (s *sieve) Add(ref core.Ref) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.refs[ref]; ok {
		return false
	}
	s.refs[ref] = struct{}{}
	return true
}

// Remove deletes ref. Removing an absent ref is a no-op.
func (s *sieve) Remove(ref core.Ref) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.refs, ref)
}

// IDs returns a snapshot of the ids present for kind.
func (s *sieve) IDs(kind core.Kind) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for ref := range s.refs {
		if ref.Kind == kind {
			ids = append(ids, ref.ID)
		}
	}
	return ids
}

// Len returns the current number of refs.
func (s *sieve) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.refs)
}
