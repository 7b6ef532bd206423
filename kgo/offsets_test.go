package kgo

import "testing"

// P5: a commit can never advance past the highest offset the client has
// actually delivered to its caller.
func TestOffsetStoreRefusesCommitAheadOfDelivery(t *testing.T) {
	s := newOffsetStore()

	s.markDelivered("t", 0, 4)
	if err := s.Commit("t", 0, 5); err != nil {
		t.Fatalf("commit at delivered+1 should be allowed: %v", err)
	}
	if off, ok := s.Committed("t", 0); !ok || off != 5 {
		t.Fatalf("want committed offset 5, got %d (ok=%v)", off, ok)
	}

	if err := s.Commit("t", 0, 9); err == nil {
		t.Fatalf("commit past delivered offset should have been refused")
	}
	if off, _ := s.Committed("t", 0); off != 5 {
		t.Fatalf("a refused commit must not change the stored offset, got %d", off)
	}
}

func TestOffsetStoreUncommittedReportsNotOK(t *testing.T) {
	s := newOffsetStore()
	if _, ok := s.Committed("t", 0); ok {
		t.Fatalf("want no committed offset before any Commit call")
	}
}

func TestOffsetStoreMarkDeliveredMonotonic(t *testing.T) {
	s := newOffsetStore()
	s.markDelivered("t", 0, 10)
	s.markDelivered("t", 0, 3) // an out-of-order redelivery must not regress
	if err := s.Commit("t", 0, 11); err != nil {
		t.Fatalf("commit at the high-water delivered+1 should be allowed: %v", err)
	}
}
