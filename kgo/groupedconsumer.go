package kgo

import (
	"context"
	"time"

	"github.com/dcrodman/kaf/kerr"
)

// GroupedConsumer is the group-coordinated consumer façade (spec §6): same
// surface as SingleConsumer, restricted to the partitions this member was
// assigned by the group's rebalance protocol, with optional autocommit.
// Delivery is at-most-once across a rebalance boundary: an offset marked
// delivered but not yet committed before the group reassigns the partition
// away is not redelivered by this member (spec §6 "duplicate delivery
// possible across generations if commit is lost" is the complementary
// failure mode on the commit side, not redelivery on this side).
type GroupedConsumer struct {
	cl     *Client
	starts map[string]StartPosition

	autocommit       bool
	autocommitPeriod time.Duration
	lastAutocommit   time.Time
}

// NewGroupedConsumer wraps cl, which must have been constructed with
// WithGroup so cl.group is non-nil.
func NewGroupedConsumer(cl *Client) (*GroupedConsumer, error) {
	if cl.group == nil {
		return nil, &ConfigurationError{Reason: "GroupedConsumer requires WithGroup"}
	}
	return &GroupedConsumer{
		cl:               cl,
		starts:           make(map[string]StartPosition),
		autocommit:       cl.cfg.autocommit,
		autocommitPeriod: cl.cfg.autocommitPeriod,
	}, nil
}

// Consume fetches newly available records from this member's currently
// assigned partitions of topic (spec §6, §4.F). Topics not yet part of the
// group's subscription are added and trigger a rejoin.
func (c *GroupedConsumer) Consume(ctx context.Context, topic string, start StartPosition) ([]Record, error) {
	if _, seen := c.starts[topic]; !seen {
		c.starts[topic] = start
		c.cl.group.setTopics(append(c.cl.trackedTopics(), topic))
		c.cl.trackTopic(topic)
	}

	assignment := c.cl.group.currentAssignment()
	partitions, ok := assignment[topic]
	if !ok || len(partitions) == 0 {
		return nil, nil // not assigned any partition of this topic right now
	}

	coord := c.cl.group.coordinator
	offsets := make(map[int32]int64, len(partitions))
	for _, p := range partitions {
		if off, ok := c.cl.offsets.Committed(topic, p); ok {
			offsets[p] = off
			continue
		}
		if coord != nil {
			remote, err := c.cl.offsets.FetchRemote(ctx, coord, c.cl.cfg.groupName, topic, []int32{p})
			if err == nil {
				if off, ok := remote[p]; ok && off >= 0 {
					offsets[p] = off
					continue
				}
			}
		}
		resolved, err := c.resolveStart(ctx, topic, p, c.starts[topic])
		if err != nil {
			return nil, err
		}
		offsets[p] = resolved
	}

	results, err := c.cl.Fetch(ctx, topic, offsets)
	if err != nil {
		return nil, err
	}

	var out []Record
	var lastErr error
	for partition, res := range results {
		if res.Err != nil {
			if kerr.Code(res.Err) == kerr.OffsetOutOfRange.Code {
				newOffset, err := c.resolveStart(ctx, topic, partition, c.starts[topic])
				if err == nil {
					recovered, err := c.cl.Fetch(ctx, topic, map[int32]int64{partition: newOffset})
					if err == nil && recovered[partition].Err == nil {
						out = append(out, recovered[partition].Records...)
						c.deliver(topic, partition, recovered[partition].Records)
						continue
					}
				}
			}
			lastErr = res.Err
			continue
		}
		out = append(out, res.Records...)
		c.deliver(topic, partition, res.Records)
	}

	if c.autocommit {
		c.maybeAutocommit(ctx)
	}
	return out, lastErr
}

func (c *GroupedConsumer) deliver(topic string, partition int32, records []Record) {
	for _, rec := range records {
		c.cl.offsets.markDelivered(topic, partition, rec.Offset)
		c.cl.offsets.Commit(topic, partition, rec.Offset+1)
	}
}

func (c *GroupedConsumer) resolveStart(ctx context.Context, topic string, partition int32, start StartPosition) (int64, error) {
	results, err := c.cl.ListOffsets(ctx, topic, map[int32]int64{partition: start.listOffsetsTimestamp()})
	if err != nil {
		return 0, err
	}
	res := results[partition]
	return res.Offset, res.Err
}

// maybeAutocommit commits every assigned partition's locally committed
// offset (the next offset to fetch, one past the highest delivered) to the
// group coordinator, at most once per autocommitPeriod (spec §6).
func (c *GroupedConsumer) maybeAutocommit(ctx context.Context) {
	if time.Since(c.lastAutocommit) < c.autocommitPeriod {
		return
	}
	c.lastAutocommit = time.Now()

	coord := c.cl.group.coordinator
	if coord == nil {
		return
	}
	c.cl.group.mu.Lock()
	memberID := c.cl.group.memberID
	generation := c.cl.group.generation
	assignment := c.cl.group.assignment
	c.cl.group.mu.Unlock()

	for topic, partitions := range assignment {
		for _, p := range partitions {
			off, ok := c.cl.offsets.Committed(topic, p)
			if !ok {
				continue
			}
			c.cl.offsets.CommitRemote(ctx, coord, c.cl.cfg.groupName, memberID, generation, topic, p, off)
		}
	}
}

// Close leaves the group and releases the underlying Client.
func (c *GroupedConsumer) Close() {
	c.cl.group.leave()
	c.cl.Close()
}
