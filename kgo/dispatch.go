package kgo

import (
	"context"
	"fmt"
	"time"

	"github.com/dcrodman/kaf/kerr"
)

// PartitionError pairs a topic/partition with a terminal error for it (spec
// §7 "Per-partition errors are returned with any successful partitions from
// the same call").
type PartitionError struct {
	Topic     string
	Partition int32
	Err       error
}

func (e *PartitionError) Error() string {
	return fmt.Sprintf("kgo: %s[%d]: %v", e.Topic, e.Partition, e.Err)
}

// resolveLeaders maps each requested partition to its current leader broker
// ID, refreshing metadata and retrying (spec §4.D "Routing algorithm") when
// a partition's leader is unknown or unresolvable. Partitions that remain
// unroutable after exhausting the refresh budget come back in unresolved.
func (cl *Client) resolveLeaders(ctx context.Context, topic string, partitions []int32) (byLeader map[int32][]int32, unresolved map[int32]error) {
	byLeader = make(map[int32][]int32)
	unresolved = make(map[int32]error)
	remaining := append([]int32(nil), partitions...)

	for attempt := 0; attempt <= cl.cfg.refreshRetries && len(remaining) > 0; attempt++ {
		if attempt > 0 {
			if err := cl.refreshMetadata(ctx); err != nil {
				// Refresh itself failed; let the retry loop's backoff
				// below govern pacing before trying again.
			}
			select {
			case <-time.After(cl.retryBackoff().forAttempt(attempt - 1)):
			case <-ctx.Done():
				for _, p := range remaining {
					unresolved[p] = ctx.Err()
				}
				return byLeader, unresolved
			}
		}

		state := cl.loadState()
		tm, ok := state.Topics[topic]
		var next []int32
		for _, p := range remaining {
			var pm *PartitionMetadata
			if ok {
				for i := range tm.Partitions {
					if tm.Partitions[i].PartitionID == p {
						pm = &tm.Partitions[i]
						break
					}
				}
			}
			switch {
			case pm == nil:
				next = append(next, p)
			case pm.Err != nil && kerr.IsRefreshThenRetry(pm.Err):
				next = append(next, p)
			case !state.leaderRoutable(pm.Leader):
				next = append(next, p)
			default:
				byLeader[pm.Leader] = append(byLeader[pm.Leader], p)
			}
		}
		remaining = next
		if len(remaining) > 0 && attempt == 0 {
			cl.trackTopic(topic)
		}
	}

	for _, p := range remaining {
		unresolved[p] = ErrNoLeader
	}
	return byLeader, unresolved
}
