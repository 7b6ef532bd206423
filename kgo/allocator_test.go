package kgo

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// P3: allocating over the same member set and partition set twice produces
// the same assignment, regardless of input ordering.
func TestRoundRobinAllocatorStability(t *testing.T) {
	members := []string{"c", "a", "b"}
	partitionsByTopic := map[string][]int32{
		"orders":  {2, 0, 1},
		"refunds": {1, 0},
	}

	var alloc RoundRobinAllocator
	first := alloc.Allocate(members, partitionsByTopic)

	shuffled := append([]string(nil), members...)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	second := alloc.Allocate(shuffled, partitionsByTopic)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("allocation not stable across input ordering (-first +second):\n%s", diff)
	}
}

// Every partition is assigned to exactly one member, and no member is
// assigned a partition twice.
func TestRoundRobinAllocatorCoversEveryPartition(t *testing.T) {
	members := []string{"m1", "m2", "m3"}
	partitionsByTopic := map[string][]int32{"t": {0, 1, 2, 3, 4}}

	var alloc RoundRobinAllocator
	got := alloc.Allocate(members, partitionsByTopic)

	seen := make(map[int32]bool)
	for _, byTopic := range got {
		for _, parts := range byTopic {
			for _, p := range parts {
				if seen[p] {
					t.Fatalf("partition %d assigned more than once", p)
				}
				seen[p] = true
			}
		}
	}
	for _, p := range partitionsByTopic["t"] {
		if !seen[p] {
			t.Fatalf("partition %d was never assigned", p)
		}
	}
}

func TestRoundRobinAllocatorNoMembers(t *testing.T) {
	var alloc RoundRobinAllocator
	got := alloc.Allocate(nil, map[string][]int32{"t": {0, 1}})
	if len(got) != 0 {
		t.Fatalf("want empty assignment with no members, got %v", got)
	}
}
