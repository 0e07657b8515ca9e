package token

import (
	"crypto/sha256"
	"encoding/binary"
)

// IDAllocator mints RecordIDs for create(). It hashes a monotonic counter
// through sha256 to scatter ids, producing a uint64 directly rather than
// a base36 display string: each call hashes the allocator's seed and an
// incrementing counter, so two allocators with different seeds are very
// unlikely to collide even if their counters run in lockstep.
type IDAllocator struct {
	seed    uint64
	counter uint64
}

// NewIDAllocator creates an allocator distinguished by seed. Two
// allocators with the same seed mint the same id sequence, so callers
// that need distinct ids share one allocator (as every Environment of an
// Application does) or give each allocator its own seed.
func NewIDAllocator(seed uint64) *IDAllocator {
	return &IDAllocator{seed: seed}
}

// Next mints the next RecordID. Zero is reserved for "empty", so on the
// vanishingly unlikely event a hash lands on zero the counter advances
// again rather than returning it.
func (a *IDAllocator) Next() RecordID {
	for {
		a.counter++
		var buf [16]byte
		binary.BigEndian.PutUint64(buf[:8], a.seed)
		binary.BigEndian.PutUint64(buf[8:], a.counter)
		sum := sha256.Sum256(buf[:])
		id := RecordID(binary.BigEndian.Uint64(sum[:8]))
		if !id.IsEmpty() {
			return id
		}
	}
}
