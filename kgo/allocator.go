package kgo

import "sort"

// Allocator assigns partitions to group members (spec §4.G): a pure
// function of its inputs, so that every member computes the identical
// assignment from the same JoinGroup response without needing to exchange
// anything beyond what SyncGroup already carries for non-leader members.
type Allocator interface {
	// Allocate distributes every partition in partitionsByTopic across
	// members, keyed by member ID in the result. The same (members,
	// partitionsByTopic) input must always produce the same output (spec
	// §4.G "Stability: allocating over the same member set and partition
	// set twice produces the same assignment").
	Allocate(members []string, partitionsByTopic map[string][]int32) map[string]map[string][]int32
}

// RoundRobinAllocator distributes partitions across members round-robin,
// topic by topic, after sorting both member IDs and partition IDs so the
// assignment is deterministic regardless of map iteration order (spec
// §4.G "Round-robin over the combined, sorted (topic, partition) list").
type RoundRobinAllocator struct{}

func (RoundRobinAllocator) Allocate(members []string, partitionsByTopic map[string][]int32) map[string]map[string][]int32 {
	out := make(map[string]map[string][]int32, len(members))
	sortedMembers := append([]string(nil), members...)
	sort.Strings(sortedMembers)
	for _, m := range sortedMembers {
		out[m] = make(map[string][]int32)
	}
	if len(sortedMembers) == 0 {
		return out
	}

	topics := make([]string, 0, len(partitionsByTopic))
	for t := range partitionsByTopic {
		topics = append(topics, t)
	}
	sort.Strings(topics)

	next := 0
	for _, t := range topics {
		parts := append([]int32(nil), partitionsByTopic[t]...)
		sort.Slice(parts, func(i, j int) bool { return parts[i] < parts[j] })
		for _, p := range parts {
			m := sortedMembers[next%len(sortedMembers)]
			out[m][t] = append(out[m][t], p)
			next++
		}
	}
	return out
}
