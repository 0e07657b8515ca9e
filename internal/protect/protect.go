// Package protect implements the protection scope that lets a compute
// method write its own result straight into the store without
// retriggering the write pipeline. Scopes nest: two overlapping
// acquisitions union their (field, id) sets, and releases are symmetric
// thanks to per-pair reference counting.
package protect

import "github.com/objectcore/objectcore/internal/token"

type pairKey struct {
	field token.Token
	id    token.RecordID
}

// Scope holds the currently-protected (field, id) pairs.
type Scope struct {
	refcount map[pairKey]int
}

// New creates an empty protection scope.
func New() *Scope {
	return &Scope{refcount: make(map[pairKey]int)}
}

// Lease is the acquired-then-released lifetime returned by Protecting.
// Release is idempotent; calling it more than once only decrements once.
type Lease struct {
	scope    *Scope
	pairs    []pairKey
	released bool
}

// Protecting acquires protection for the cartesian product of fields x
// ids. Hold the returned Lease for the duration of the compute method
// and Release it on every exit path (including panics, via defer).
func (s *Scope) Protecting(fields []token.Token, ids []token.RecordID) *Lease {
	pairs := make([]pairKey, 0, len(fields)*len(ids))
	for _, f := range fields {
		for _, id := range ids {
			k := pairKey{field: f, id: id}
			s.refcount[k]++
			pairs = append(pairs, k)
		}
	}
	return &Lease{scope: s, pairs: pairs}
}

// Release gives back this lease's share of the protected pairs. Entries
// whose refcount drops to zero are removed so IsProtected reflects the
// exact current set.
func (l *Lease) Release() {
	if l.released {
		return
	}
	l.released = true
	for _, k := range l.pairs {
		l.scope.refcount[k]--
		if l.scope.refcount[k] <= 0 {
			delete(l.scope.refcount, k)
		}
	}
}

// IsProtected reports whether (field, id) is covered by any currently
// held lease.
func (s *Scope) IsProtected(field token.Token, id token.RecordID) bool {
	return s.refcount[pairKey{field: field, id: id}] > 0
}
