package kgo

import (
	"context"
	"fmt"
	"time"

	"github.com/dcrodman/kaf/kerr"
)

// StartPosition selects where a consumer begins reading a partition it has
// no stored offset for (spec §6: "start is one of: END, BEGINNING, an
// absolute timestamp, or a relative duration").
type StartPosition struct {
	kind      startKind
	timestamp time.Time
	relative  time.Duration
}

type startKind int8

const (
	startEnd startKind = iota
	startBeginning
	startAtTimestamp
	startRelative
)

// End starts from the tail of the partition (spec default).
func End() StartPosition { return StartPosition{kind: startEnd} }

// Beginning starts from the head of the partition.
func Beginning() StartPosition { return StartPosition{kind: startBeginning} }

// AtTimestamp starts from the first offset at or after t.
func AtTimestamp(t time.Time) StartPosition { return StartPosition{kind: startAtTimestamp, timestamp: t} }

// Relative starts from the first offset at or after now-d.
func Relative(d time.Duration) StartPosition { return StartPosition{kind: startRelative, relative: d} }

// listOffsetsTimestamp converts a StartPosition into the wire protocol's
// reserved ListOffsets timestamp sentinels (spec §4.A: -1 latest, -2
// earliest) or a concrete millisecond timestamp.
func (s StartPosition) listOffsetsTimestamp() int64 {
	switch s.kind {
	case startBeginning:
		return -2
	case startAtTimestamp:
		return s.timestamp.UnixNano() / int64(time.Millisecond)
	case startRelative:
		return time.Now().Add(-s.relative).UnixNano() / int64(time.Millisecond)
	default:
		return -1
	}
}

// SingleConsumer is the non-grouped consumer façade (spec §6): it tracks its
// own per-partition offsets locally and never talks to a coordinator
// service.
type SingleConsumer struct {
	cl     *Client
	starts map[string]StartPosition
}

// NewSingleConsumer wraps cl as a SingleConsumer.
func NewSingleConsumer(cl *Client) *SingleConsumer {
	return &SingleConsumer{cl: cl, starts: make(map[string]StartPosition)}
}

// Consume fetches whatever is newly available on every known partition of
// topic, honoring start only the first time topic is consumed or after an
// OffsetOutOfRange recovery (spec §6). Offsets advance automatically as
// records are delivered.
func (c *SingleConsumer) Consume(ctx context.Context, topic string, start StartPosition) ([]Record, error) {
	if err := c.cl.refreshMetadata(ctx); err != nil {
		c.cl.trackTopic(topic)
	}
	c.cl.trackTopic(topic)
	state := c.cl.loadState()
	tm, ok := state.Topics[topic]
	if !ok {
		if err := c.cl.refreshMetadata(ctx); err != nil {
			return nil, err
		}
		state = c.cl.loadState()
		tm, ok = state.Topics[topic]
		if !ok {
			return nil, &ConfigurationError{Reason: "unknown topic " + topic}
		}
	}

	if _, seen := c.starts[topic]; !seen {
		c.starts[topic] = start
	}

	offsets := make(map[int32]int64, len(tm.Partitions))
	for _, p := range tm.Partitions {
		if off, ok := c.cl.offsets.Committed(topic, p.PartitionID); ok {
			offsets[p.PartitionID] = off
		} else {
			resolved, err := c.resolveStart(ctx, topic, p.PartitionID, c.starts[topic])
			if err != nil {
				return nil, err
			}
			offsets[p.PartitionID] = resolved
		}
	}

	results, err := c.cl.Fetch(ctx, topic, offsets)
	if err != nil {
		return nil, err
	}

	var out []Record
	var recoveryErr error
	for partition, res := range results {
		if res.Err != nil {
			if kerr.Code(res.Err) == kerr.OffsetOutOfRange.Code {
				recovered, err := c.recoverOutOfRange(ctx, topic, partition, c.starts[topic])
				if err != nil {
					recoveryErr = err
					continue
				}
				out = append(out, recovered...)
				continue
			}
			recoveryErr = res.Err
			continue
		}
		for _, rec := range res.Records {
			c.cl.offsets.markDelivered(topic, partition, rec.Offset)
			c.cl.offsets.Commit(topic, partition, rec.Offset+1)
		}
		out = append(out, res.Records...)
	}
	return out, recoveryErr
}

// resolveStart converts a StartPosition to a concrete fetch offset for one
// partition via ListOffsets.
func (c *SingleConsumer) resolveStart(ctx context.Context, topic string, partition int32, start StartPosition) (int64, error) {
	results, err := c.cl.ListOffsets(ctx, topic, map[int32]int64{partition: start.listOffsetsTimestamp()})
	if err != nil {
		return 0, err
	}
	res, ok := results[partition]
	if !ok || res.Err != nil {
		if ok {
			return 0, res.Err
		}
		return 0, fmt.Errorf("kgo: no ListOffsets result for %s[%d]", topic, partition)
	}
	return res.Offset, nil
}

// recoverOutOfRange re-applies the start hint per spec S5: ListOffsets,
// update the stored offset, and re-fetch.
func (c *SingleConsumer) recoverOutOfRange(ctx context.Context, topic string, partition int32, start StartPosition) ([]Record, error) {
	newOffset, err := c.resolveStart(ctx, topic, partition, start)
	if err != nil {
		return nil, err
	}
	results, err := c.cl.Fetch(ctx, topic, map[int32]int64{partition: newOffset})
	if err != nil {
		return nil, err
	}
	res := results[partition]
	if res.Err != nil {
		return nil, res.Err
	}
	for _, rec := range res.Records {
		c.cl.offsets.markDelivered(topic, partition, rec.Offset)
		c.cl.offsets.Commit(topic, partition, rec.Offset+1)
	}
	return res.Records, nil
}

// Close releases the underlying Client.
func (c *SingleConsumer) Close() { c.cl.Close() }
