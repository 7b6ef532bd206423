package kgo

import (
	"context"

	"github.com/dcrodman/kaf/kcompress"
	"github.com/dcrodman/kaf/kerr"
	"github.com/dcrodman/kaf/kmsg"
)

// Fetch issues a Fetch request per resolved leader for the given
// partition->offset starting points, decompressing and flattening each
// partition's record set (spec §4.A, §4.B). A partition whose leader
// cannot be resolved comes back with ErrNoLeader in its FetchResult. A
// refresh-class per-partition error (NotLeaderForPartition,
// LeaderNotAvailable, UnknownTopicOrPartition) triggers a metadata refresh
// and a retry against the corrected leader, exactly like Produce (spec
// §4.D); a partition that still hasn't settled after the retry budget comes
// back with ErrTimedOut.
func (cl *Client) Fetch(ctx context.Context, topic string, offsets map[int32]int64) (map[int32]FetchResult, error) {
	results := make(map[int32]FetchResult, len(offsets))
	partitions := make([]int32, 0, len(offsets))
	for p := range offsets {
		partitions = append(partitions, p)
	}

	perPartitionMax, err := cl.cfg.perPartitionMaxBytes(len(partitions))
	if err != nil {
		return nil, err
	}

	remaining := partitions
	for attempt := 0; attempt <= cl.cfg.retries && len(remaining) > 0; attempt++ {
		if attempt > 0 {
			if err := cl.backoffWait(ctx, attempt-1); err != nil {
				for _, p := range remaining {
					results[p] = FetchResult{Err: err}
				}
				remaining = nil
				break
			}
		}

		byLeader, unresolved := cl.resolveLeaders(ctx, topic, remaining)
		for p, err := range unresolved {
			results[p] = FetchResult{Err: err}
		}

		var retry []int32
		needsRefresh := false
		for leader, ps := range byLeader {
			b := cl.brokerByID(leader)
			if b == nil {
				for _, p := range ps {
					retry = append(retry, p)
				}
				needsRefresh = true
				continue
			}
			perPartition, err := cl.fetchFromBroker(ctx, b, topic, ps, offsets, perPartitionMax)
			if err != nil {
				for _, p := range ps {
					retry = append(retry, p)
				}
				continue
			}
			for p, res := range perPartition {
				if res.Err != nil && classify(res.Err) != classFatal {
					retry = append(retry, p)
					if classify(res.Err) == classRefreshThenRetry {
						needsRefresh = true
					}
					continue
				}
				results[p] = res
			}
		}
		remaining = retry

		// See Produce: resolveLeaders only refreshes when a partition is
		// already unroutable in the snapshot, so a refresh-class error
		// reported by the broker itself needs an explicit refresh here or
		// the retry just re-sends to the same stale leader (spec §4.D,
		// scenario S6 "metadata refresh has been scheduled").
		if needsRefresh {
			cl.refreshMetadata(ctx)
		}
	}

	for _, p := range remaining {
		if _, ok := results[p]; !ok {
			results[p] = FetchResult{Err: ErrTimedOut}
		}
	}
	return results, nil
}

func (cl *Client) fetchFromBroker(ctx context.Context, b *broker, topic string, ps []int32, offsets map[int32]int64, perPartitionMax int32) (map[int32]FetchResult, error) {
	req := &kmsg.FetchRequest{
		ReplicaID:     -1,
		MaxWaitMillis: cl.cfg.maxWaitMillis,
		MinBytes:      cl.cfg.minBytes,
	}
	reqTopic := kmsg.FetchRequestTopic{Topic: topic}
	for _, p := range ps {
		reqTopic.Partitions = append(reqTopic.Partitions, kmsg.FetchRequestPartition{
			Partition:   p,
			FetchOffset: offsets[p],
			MaxBytes:    perPartitionMax,
		})
	}
	req.Topics = []kmsg.FetchRequestTopic{reqTopic}

	resp, err := b.waitResp(ctx, req)
	if err != nil {
		return nil, err
	}
	fresp := resp.(*kmsg.FetchResponse)

	out := make(map[int32]FetchResult, len(ps))
	for _, t := range fresp.Topics {
		for _, p := range t.Partitions {
			if respErr := kerr.ErrorForCode(p.ErrorCode); respErr != nil {
				out[p.Partition] = FetchResult{Err: respErr, HighWatermark: p.HighWatermark}
				continue
			}

			flattened, err := kcompress.Unwrap(p.RecordSet)
			if err != nil {
				out[p.Partition] = FetchResult{Err: err}
				continue
			}
			records := make([]Record, len(flattened))
			for i, m := range flattened {
				records[i] = Record{
					Key:       m.Key,
					Value:     m.Value,
					Offset:    m.Offset,
					Partition: p.Partition,
					Topic:     topic,
				}
			}
			out[p.Partition] = FetchResult{Records: records, HighWatermark: p.HighWatermark}
		}
	}
	return out, nil
}

// ListOffsets resolves the offset nearest timestamp for each partition (spec
// §4.A ListOffsets; timestamp -1 means "latest", -2 means "earliest", per
// the wire protocol's reserved sentinel values). Refresh-class per-partition
// errors are retried against a refreshed leader the same way Fetch and
// Produce do (spec §4.D).
func (cl *Client) ListOffsets(ctx context.Context, topic string, partitionTimestamps map[int32]int64) (map[int32]ListOffsetsResult, error) {
	results := make(map[int32]ListOffsetsResult, len(partitionTimestamps))
	partitions := make([]int32, 0, len(partitionTimestamps))
	for p := range partitionTimestamps {
		partitions = append(partitions, p)
	}

	remaining := partitions
	for attempt := 0; attempt <= cl.cfg.retries && len(remaining) > 0; attempt++ {
		if attempt > 0 {
			if err := cl.backoffWait(ctx, attempt-1); err != nil {
				for _, p := range remaining {
					results[p] = ListOffsetsResult{Err: err}
				}
				remaining = nil
				break
			}
		}

		byLeader, unresolved := cl.resolveLeaders(ctx, topic, remaining)
		for p, err := range unresolved {
			results[p] = ListOffsetsResult{Err: err}
		}

		var retry []int32
		needsRefresh := false
		for leader, ps := range byLeader {
			b := cl.brokerByID(leader)
			if b == nil {
				for _, p := range ps {
					retry = append(retry, p)
				}
				needsRefresh = true
				continue
			}
			perPartition, err := cl.listOffsetsFromBroker(ctx, b, topic, ps, partitionTimestamps)
			if err != nil {
				for _, p := range ps {
					retry = append(retry, p)
				}
				continue
			}
			for p, res := range perPartition {
				if res.Err != nil && classify(res.Err) != classFatal {
					retry = append(retry, p)
					if classify(res.Err) == classRefreshThenRetry {
						needsRefresh = true
					}
					continue
				}
				results[p] = res
			}
		}
		remaining = retry

		if needsRefresh {
			cl.refreshMetadata(ctx)
		}
	}

	for _, p := range remaining {
		if _, ok := results[p]; !ok {
			results[p] = ListOffsetsResult{Err: ErrTimedOut}
		}
	}
	return results, nil
}

func (cl *Client) listOffsetsFromBroker(ctx context.Context, b *broker, topic string, ps []int32, partitionTimestamps map[int32]int64) (map[int32]ListOffsetsResult, error) {
	req := &kmsg.ListOffsetsRequest{ReplicaID: -1}
	reqTopic := kmsg.ListOffsetsRequestTopic{Topic: topic}
	for _, p := range ps {
		reqTopic.Partitions = append(reqTopic.Partitions, kmsg.ListOffsetsRequestPartition{
			Partition:     p,
			Timestamp:     partitionTimestamps[p],
			MaxNumOffsets: 1,
		})
	}
	req.Topics = []kmsg.ListOffsetsRequestTopic{reqTopic}

	resp, err := b.waitResp(ctx, req)
	if err != nil {
		return nil, err
	}
	lresp := resp.(*kmsg.ListOffsetsResponse)

	out := make(map[int32]ListOffsetsResult, len(ps))
	for _, t := range lresp.Topics {
		for _, p := range t.Partitions {
			res := ListOffsetsResult{Err: kerr.ErrorForCode(p.ErrorCode)}
			if len(p.Offsets) > 0 {
				res.Offset = p.Offsets[0]
			}
			out[p.Partition] = res
		}
	}
	return out, nil
}
