package kgo

import (
	"context"

	"github.com/dcrodman/kaf/kcompress"
	"github.com/dcrodman/kaf/kerr"
	"github.com/dcrodman/kaf/kmsg"
)

// Produce sends records to topic, grouped by partition, and returns the
// base offset assigned to each partition's batch (spec §4.A "Produce
// appends one MessageSet per (topic, partition) to the request and
// receives one base_offset per partition in the response").
//
// Partitions whose leader cannot be resolved, and partitions whose produce
// attempt exhausts the retry budget, come back with a non-nil Err in their
// ProduceResult; partitions that succeed alongside them are not rolled
// back (spec §7 "Per-partition errors are returned with any successful
// partitions from the same call").
func (cl *Client) Produce(ctx context.Context, topic string, batches map[int32][]ProducedRecord) (map[int32]ProduceResult, error) {
	results := make(map[int32]ProduceResult, len(batches))
	partitions := make([]int32, 0, len(batches))
	for p := range batches {
		partitions = append(partitions, p)
	}

	remaining := partitions
	for attempt := 0; attempt <= cl.cfg.retries && len(remaining) > 0; attempt++ {
		if attempt > 0 {
			if err := cl.backoffWait(ctx, attempt-1); err != nil {
				for _, p := range remaining {
					results[p] = ProduceResult{Err: err}
				}
				remaining = nil
				break
			}
		}

		byLeader, unresolved := cl.resolveLeaders(ctx, topic, remaining)
		for p, err := range unresolved {
			results[p] = ProduceResult{Err: err}
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
			perPartition, err := cl.produceToBroker(ctx, b, topic, ps, batches)
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

		// A refresh-class per-partition error (NotLeaderForPartition,
		// LeaderNotAvailable, UnknownTopicOrPartition) means the cluster
		// snapshot's leader for that partition is stale; resolveLeaders
		// only refreshes when a partition is already unroutable in the
		// snapshot, so without this the retry would re-resolve to the
		// same stale leader and exhaust the budget (spec §4.D).
		if needsRefresh {
			cl.refreshMetadata(ctx)
		}
	}

	for _, p := range remaining {
		if _, ok := results[p]; !ok {
			results[p] = ProduceResult{Err: ErrTimedOut}
		}
	}
	return results, nil
}

// produceToBroker issues a single ProduceRequest covering every partition in
// ps against b, applying the configured compression codec per batch (spec
// §4.B).
func (cl *Client) produceToBroker(ctx context.Context, b *broker, topic string, ps []int32, batches map[int32][]ProducedRecord) (map[int32]ProduceResult, error) {
	req := &kmsg.ProduceRequest{
		Acks:          -1,
		TimeoutMillis: 30000,
	}
	reqTopic := kmsg.ProduceRequestTopic{Topic: topic}

	for _, p := range ps {
		var ms kmsg.MessageSet
		for i, rec := range batches[p] {
			ms.Messages = append(ms.Messages, kmsg.Message{
				Offset: int64(i),
				Key:    rec.Key,
				Value:  rec.Value,
			})
		}

		if cl.cfg.produceCompression != kcompress.CodecNone && len(ms.Messages) > 0 {
			wrapped, err := kcompress.Wrap(cl.cfg.produceCompression, ms, int64(len(ms.Messages)-1))
			if err != nil {
				return nil, err
			}
			ms = kmsg.MessageSet{Messages: []kmsg.Message{wrapped}}
		}

		reqTopic.Partitions = append(reqTopic.Partitions, kmsg.ProduceRequestPartition{
			Partition: p,
			RecordSet: ms,
		})
	}
	req.Topics = []kmsg.ProduceRequestTopic{reqTopic}

	resp, err := b.waitResp(ctx, req)
	if err != nil {
		return nil, err
	}
	presp := resp.(*kmsg.ProduceResponse)

	out := make(map[int32]ProduceResult, len(ps))
	for _, t := range presp.Topics {
		for _, p := range t.Partitions {
			out[p.Partition] = ProduceResult{
				BaseOffset: p.BaseOffset,
				Err:        kerr.ErrorForCode(p.ErrorCode),
			}
		}
	}
	return out, nil
}
