package kgo

import (
	"context"
	"fmt"
	"sync"

	"github.com/dcrodman/kaf/kerr"
	"github.com/dcrodman/kaf/kmsg"
)

type topicPartition struct {
	topic     string
	partition int32
}

// offsetStore is the offset bookkeeping described in spec §4.E: an
// in-memory table of the highest delivered offset per partition (used
// directly by SingleConsumer, which never talks to a coordinator), plus the
// last committed offset, with the invariant that a commit is never accepted
// more than one past the highest offset this client has actually delivered
// to its caller (a committed offset names the next offset to fetch).
type offsetStore struct {
	mu        sync.Mutex
	delivered map[topicPartition]int64
	committed map[topicPartition]int64
}

func newOffsetStore() *offsetStore {
	return &offsetStore{
		delivered: make(map[topicPartition]int64),
		committed: make(map[topicPartition]int64),
	}
}

// markDelivered records that offset has been handed to the caller, so a
// subsequent Commit up to one past it is legal.
func (s *offsetStore) markDelivered(topic string, partition int32, offset int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tp := topicPartition{topic, partition}
	if offset > s.delivered[tp] {
		s.delivered[tp] = offset
	}
}

// Commit stores offset as committed for (topic, partition) locally. It
// refuses an offset more than one past the highest offset markDelivered has
// recorded: offset is the next one to fetch, so delivered+1 is the furthest
// legal commit (spec §4.E).
func (s *offsetStore) Commit(topic string, partition int32, offset int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tp := topicPartition{topic, partition}
	if offset > s.delivered[tp]+1 {
		return fmt.Errorf("kgo: refusing to commit offset %d on %s[%d]: highest delivered offset is %d",
			offset, topic, partition, s.delivered[tp])
	}
	s.committed[tp] = offset
	return nil
}

// Committed returns the last locally committed offset for (topic,
// partition), or (0, false) if none has been committed yet.
func (s *offsetStore) Committed(topic string, partition int32) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	off, ok := s.committed[topicPartition{topic, partition}]
	return off, ok
}

// CommitRemote issues an OffsetCommit request to the group's coordinator
// broker (spec §4.E), and only updates the local table once the broker
// acknowledges.
func (s *offsetStore) CommitRemote(ctx context.Context, coord *broker, group, memberID string, generation int32, topic string, partition int32, offset int64) error {
	if err := s.precheckCommit(topic, partition, offset); err != nil {
		return err
	}

	req := &kmsg.OffsetCommitRequest{
		GroupID:      group,
		GenerationID: generation,
		MemberID:     memberID,
		Topics: []kmsg.OffsetCommitRequestTopic{{
			Topic: topic,
			Partitions: []kmsg.OffsetCommitRequestPartition{
				{Partition: partition, Offset: offset},
			},
		}},
	}
	req.SetVersion(1)

	resp, err := coord.waitResp(ctx, req)
	if err != nil {
		return err
	}
	cresp := resp.(*kmsg.OffsetCommitResponse)
	for _, t := range cresp.Topics {
		for _, p := range t.Partitions {
			if p.Partition == partition {
				if rerr := kerr.ErrorForCode(p.ErrorCode); rerr != nil {
					return rerr
				}
			}
		}
	}

	s.mu.Lock()
	s.committed[topicPartition{topic, partition}] = offset
	s.mu.Unlock()
	return nil
}

func (s *offsetStore) precheckCommit(topic string, partition int32, offset int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tp := topicPartition{topic, partition}
	if offset > s.delivered[tp]+1 {
		return fmt.Errorf("kgo: refusing to commit offset %d on %s[%d]: highest delivered offset is %d",
			offset, topic, partition, s.delivered[tp])
	}
	return nil
}

// FetchRemote issues an OffsetFetch request against the group coordinator
// and seeds the local committed table from the response (spec §4.E, used on
// GroupedConsumer startup/rebalance to resume from the last committed
// position).
func (s *offsetStore) FetchRemote(ctx context.Context, coord *broker, group, topic string, partitions []int32) (map[int32]int64, error) {
	resp, err := coord.waitResp(ctx, &kmsg.OffsetFetchRequest{
		GroupID: group,
		Topics: []kmsg.OffsetFetchRequestTopic{{
			Topic:      topic,
			Partitions: partitions,
		}},
	})
	if err != nil {
		return nil, err
	}
	fresp := resp.(*kmsg.OffsetFetchResponse)

	out := make(map[int32]int64, len(partitions))
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range fresp.Topics {
		for _, p := range t.Partitions {
			if rerr := kerr.ErrorForCode(p.ErrorCode); rerr != nil {
				continue
			}
			out[p.Partition] = p.Offset
			if p.Offset >= 0 {
				s.committed[topicPartition{topic, p.Partition}] = p.Offset
			}
		}
	}
	return out, nil
}
