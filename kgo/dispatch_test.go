package kgo

import (
	"context"
	"sort"
	"testing"
)

// P4: given a synthetic cluster snapshot with partitions scattered across
// brokers, resolveLeaders emits exactly one leader bucket per involved
// broker and every requested partition ends up in exactly one bucket (or
// unresolved), with no partition identity lost or duplicated.
func TestResolveLeadersRoutingCorrectness(t *testing.T) {
	cl := &Client{
		cfg:         defaultCfg(),
		knownTopics: make(map[string]struct{}),
	}
	state := &ClusterState{
		Brokers: map[int32]BrokerDescriptor{
			1: {NodeID: 1, Host: "b1", Port: 9092},
			2: {NodeID: 2, Host: "b2", Port: 9092},
		},
		Topics: map[string]TopicMetadata{
			"orders": {
				Topic: "orders",
				Partitions: []PartitionMetadata{
					{PartitionID: 0, Leader: 1},
					{PartitionID: 1, Leader: 2},
					{PartitionID: 2, Leader: 1},
					{PartitionID: 3, Leader: 2},
				},
			},
		},
	}
	cl.state.Store(state)

	ctx := context.Background()
	byLeader, unresolved := cl.resolveLeaders(ctx, "orders", []int32{0, 1, 2, 3})

	if len(unresolved) != 0 {
		t.Fatalf("want no unresolved partitions, got %v", unresolved)
	}
	if len(byLeader) != 2 {
		t.Fatalf("want exactly 2 leader buckets (one per involved broker), got %d: %v", len(byLeader), byLeader)
	}

	var seen []int32
	for _, ps := range byLeader {
		seen = append(seen, ps...)
	}
	sort.Slice(seen, func(i, j int) bool { return seen[i] < seen[j] })
	want := []int32{0, 1, 2, 3}
	for i, p := range want {
		if seen[i] != p {
			t.Fatalf("want partitions %v preserved exactly once, got %v", want, seen)
		}
	}

	sort.Slice(byLeader[1], func(i, j int) bool { return byLeader[1][i] < byLeader[1][j] })
	sort.Slice(byLeader[2], func(i, j int) bool { return byLeader[2][i] < byLeader[2][j] })
	if len(byLeader[1]) != 2 || byLeader[1][0] != 0 || byLeader[1][1] != 2 {
		t.Fatalf("want broker 1 to own partitions [0 2], got %v", byLeader[1])
	}
	if len(byLeader[2]) != 2 || byLeader[2][0] != 1 || byLeader[2][1] != 3 {
		t.Fatalf("want broker 2 to own partitions [1 3], got %v", byLeader[2])
	}
}

// A partition with no leader in the snapshot (leader -1, or a leader ID not
// present in the broker map) comes back unresolved rather than silently
// dropped or misrouted, once the refresh budget is exhausted.
func TestResolveLeadersUnresolvedWhenNoLeader(t *testing.T) {
	cfg := defaultCfg()
	cfg.refreshRetries = 0
	cl := &Client{
		cfg:         cfg,
		knownTopics: make(map[string]struct{}),
	}
	state := &ClusterState{
		Brokers: map[int32]BrokerDescriptor{1: {NodeID: 1, Host: "b1", Port: 9092}},
		Topics: map[string]TopicMetadata{
			"orders": {
				Topic: "orders",
				Partitions: []PartitionMetadata{
					{PartitionID: 0, Leader: 1},
					{PartitionID: 1, Leader: -1},
				},
			},
		},
	}
	cl.state.Store(state)

	byLeader, unresolved := cl.resolveLeaders(context.Background(), "orders", []int32{0, 1})
	if len(byLeader[1]) != 1 || byLeader[1][0] != 0 {
		t.Fatalf("want partition 0 routed to broker 1, got %v", byLeader)
	}
	if _, ok := unresolved[1]; !ok {
		t.Fatalf("want partition 1 unresolved (no routable leader), got %v", unresolved)
	}
}
