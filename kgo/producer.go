package kgo

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"sync/atomic"
)

// Producer is the producer façade (spec §6): connect/produce/close over a
// Client, defaulting to JSON-encoded UTF-8 values.
type Producer struct {
	cl      *Client
	counter int32
}

// NewProducer wraps cl (already connected via NewClient) as a Producer.
// "connect()" in the collaborator contract is NewClient's bootstrap; this
// constructor performs no additional I/O.
func NewProducer(cl *Client) *Producer {
	return &Producer{cl: cl}
}

// Produce JSON-encodes value and appends it as a single record to topic,
// selecting the destination partition by hashing key when one is given, or
// round-robin otherwise. It returns once the broker has acknowledged the
// record (spec §6 "produce(topic, value, key?) -> future<ack>").
func (p *Producer) Produce(ctx context.Context, topic string, value interface{}, key []byte) (ProduceResult, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return ProduceResult{}, err
	}
	return p.ProduceRaw(ctx, topic, raw, key)
}

// ProduceRaw appends value verbatim, bypassing JSON encoding, for callers
// that already have wire-ready bytes.
func (p *Producer) ProduceRaw(ctx context.Context, topic string, value, key []byte) (ProduceResult, error) {
	partition, err := p.choosePartition(ctx, topic, key)
	if err != nil {
		return ProduceResult{}, err
	}

	results, err := p.cl.Produce(ctx, topic, map[int32][]ProducedRecord{
		partition: {{Key: key, Value: value}},
	})
	if err != nil {
		return ProduceResult{}, err
	}
	return results[partition], nil
}

func (p *Producer) choosePartition(ctx context.Context, topic string, key []byte) (int32, error) {
	if err := p.cl.refreshMetadata(ctx); err != nil {
		p.cl.trackTopic(topic)
	}
	state := p.cl.loadState()
	tm, ok := state.Topics[topic]
	if !ok || len(tm.Partitions) == 0 {
		p.cl.trackTopic(topic)
		if err := p.cl.refreshMetadata(ctx); err != nil {
			return 0, err
		}
		state = p.cl.loadState()
		tm, ok = state.Topics[topic]
		if !ok || len(tm.Partitions) == 0 {
			return 0, &ConfigurationError{Reason: "unknown topic " + topic}
		}
	}

	n := int32(len(tm.Partitions))
	if len(key) > 0 {
		h := fnv.New32a()
		h.Write(key)
		return tm.Partitions[h.Sum32()%uint32(n)].PartitionID, nil
	}
	idx := atomic.AddInt32(&p.counter, 1) - 1
	return tm.Partitions[idx%n].PartitionID, nil
}

// Close releases the underlying Client.
func (p *Producer) Close() { p.cl.Close() }
