package token

import "testing"

func TestIDAllocatorNeverReturnsEmpty(t *testing.T) {
	a := NewIDAllocator(1)
	for i := 0; i < 1000; i++ {
		if a.Next().IsEmpty() {
			t.Fatal("allocator returned the empty record id")
		}
	}
}

func TestIDAllocatorIsDeterministicPerSeed(t *testing.T) {
	a := NewIDAllocator(42)
	b := NewIDAllocator(42)
	for i := 0; i < 10; i++ {
		if a.Next() != b.Next() {
			t.Fatal("two allocators with the same seed diverged")
		}
	}
}

func TestIDAllocatorDistinctSeedsRarelyCollideOnFirstID(t *testing.T) {
	a := NewIDAllocator(1)
	b := NewIDAllocator(2)
	if a.Next() == b.Next() {
		t.Fatal("allocators with distinct seeds produced the same first id")
	}
}

func TestIDAllocatorProducesDistinctIDsWithinOneSeed(t *testing.T) {
	a := NewIDAllocator(7)
	seen := make(map[RecordID]bool)
	for i := 0; i < 500; i++ {
		id := a.Next()
		if seen[id] {
			t.Fatalf("duplicate id %v from a single allocator", id)
		}
		seen[id] = true
	}
}
