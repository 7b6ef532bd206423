package kgo

import "testing"

// P6 (first half): Heartbeats are never sent in Joining, AwaitingSync, or
// Disconnected — only a Stable member may heartbeat. heartbeatAllowed is
// false for every other state, Rebalancing and Leaving included
// (heartbeatLoop handles those two states separately).
func TestHeartbeatAllowedOnlyWhenStable(t *testing.T) {
	cases := []struct {
		state groupState
		want  bool
	}{
		{groupDisconnected, false},
		{groupDiscovering, false},
		{groupJoining, false},
		{groupAwaitingSync, false},
		{groupStable, true},
		{groupRebalancing, false},
		{groupLeaving, false},
	}
	for _, c := range cases {
		if got := heartbeatAllowed(c.state); got != c.want {
			t.Errorf("heartbeatAllowed(%s) = %v, want %v", c.state, got, c.want)
		}
	}
}

// P6 (second half): a generation advanced under the group coordinator's
// mutex reads back as the new value under that same mutex. Commit paths
// read the generation under this lock; this test checks only the write and
// read of the field and sends no OffsetCommit.
func TestGroupGenerationReadIsConsistentWithRejoin(t *testing.T) {
	g := &groupCoordinator{generation: 1}

	g.mu.Lock()
	g.generation = 7
	g.mu.Unlock()

	g.mu.Lock()
	got := g.generation
	g.mu.Unlock()

	if got != 7 {
		t.Fatalf("want generation 7 after rejoin advances it, got %d", got)
	}
}
