package kgo

import (
	"sort"
	"testing"
	"time"

	"github.com/dcrodman/kaf/kgotest"
)

func newTestGroupMember(t *testing.T, addr, group string) *Client {
	t.Helper()
	cl, err := NewClient(
		WithSeedBrokers(addr),
		WithGroup(group, nil, RoundRobinAllocator{}),
		WithHeartbeatInterval(20*time.Millisecond),
		WithSessionTimeout(200*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(cl.Close)
	return cl
}

// pollAssignment retries f until it returns true or deadline elapses,
// tolerating the back-and-forth of independent heartbeat loops converging.
func pollAssignment(t *testing.T, deadline time.Duration, f func() bool) bool {
	t.Helper()
	until := time.Now().Add(deadline)
	for time.Now().Before(until) {
		if f() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return f()
}

func sortedPartitions(assignment map[string][]int32, topic string) []int32 {
	ps := append([]int32(nil), assignment[topic]...)
	sort.Slice(ps, func(i, j int) bool { return ps[i] < ps[j] })
	return ps
}

// S3: two members join a group over a four-partition topic, split the
// partitions via round-robin, and when one member leaves the other
// re-absorbs the full partition set after its next rejoin.
func TestGroupRebalanceOnJoinAndLeave(t *testing.T) {
	broker := kgotest.NewBroker(1)
	if err := broker.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { broker.Close() })
	broker.AddMessages("events", 0)
	broker.AddMessages("events", 1)
	broker.AddMessages("events", 2)
	broker.AddMessages("events", 3)

	clA := newTestGroupMember(t, broker.Addr(), "rebalance-group")
	clA.trackTopic("events")
	clA.group.setTopics([]string{"events"})

	// A alone should own every partition once its first rejoin tick picks
	// up the topic subscription.
	ok := pollAssignment(t, time.Second, func() bool {
		return len(sortedPartitions(clA.group.currentAssignment(), "events")) == 4
	})
	if !ok {
		t.Fatalf("want A alone assigned all 4 partitions, got %v", clA.group.currentAssignment())
	}

	clB := newTestGroupMember(t, broker.Addr(), "rebalance-group")
	clB.trackTopic("events")
	clB.group.setTopics([]string{"events"})

	// Once B joins, the two members should split the 4 partitions evenly
	// with no overlap and no partition left unassigned.
	ok = pollAssignment(t, 2*time.Second, func() bool {
		a := sortedPartitions(clA.group.currentAssignment(), "events")
		b := sortedPartitions(clB.group.currentAssignment(), "events")
		if len(a) != 2 || len(b) != 2 {
			return false
		}
		seen := append(append([]int32(nil), a...), b...)
		sort.Slice(seen, func(i, j int) bool { return seen[i] < seen[j] })
		for i, want := range []int32{0, 1, 2, 3} {
			if seen[i] != want {
				return false
			}
		}
		return true
	})
	if !ok {
		t.Fatalf("want a 2/2 split across A and B covering all 4 partitions, got A=%v B=%v",
			clA.group.currentAssignment(), clB.group.currentAssignment())
	}

	clB.Close()

	// After B leaves, A should re-absorb all 4 partitions once it rejoins.
	ok = pollAssignment(t, 2*time.Second, func() bool {
		return len(sortedPartitions(clA.group.currentAssignment(), "events")) == 4
	})
	if !ok {
		t.Fatalf("want A to re-absorb all 4 partitions after B left, got %v", clA.group.currentAssignment())
	}
}
