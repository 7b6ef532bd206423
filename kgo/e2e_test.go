package kgo_test

import (
	"context"
	"testing"
	"time"

	"github.com/dcrodman/kaf/kcompress"
	"github.com/dcrodman/kaf/kerr"
	"github.com/dcrodman/kaf/kgo"
	"github.com/dcrodman/kaf/kgotest"
)

func mustBroker(t *testing.T) *kgotest.Broker {
	t.Helper()
	b := kgotest.NewBroker(1)
	if err := b.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func mustClient(t *testing.T, addr string, opts ...kgo.Opt) *kgo.Client {
	t.Helper()
	all := append([]kgo.Opt{kgo.WithSeedBrokers(addr)}, opts...)
	cl, err := kgo.NewClient(all...)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(cl.Close)
	return cl
}

// S1: a single produce/consume round trip with the JSON-default Producer
// and a SingleConsumer starting from the beginning of the topic.
func TestProduceConsumeRoundTrip(t *testing.T) {
	broker := mustBroker(t)
	broker.AddMessages("orders", 0)

	cl := mustClient(t, broker.Addr())
	producer := kgo.NewProducer(cl)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type order struct {
		ID string `json:"id"`
	}
	if _, err := producer.Produce(ctx, "orders", order{ID: "abc"}, nil); err != nil {
		t.Fatalf("Produce: %v", err)
	}

	consumer := kgo.NewSingleConsumer(cl)
	records, err := consumer.Consume(ctx, "orders", kgo.Beginning())
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("want 1 record, got %d", len(records))
	}

	var got order
	if err := records[0].DecodeJSON(&got); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if got.ID != "abc" {
		t.Fatalf("want id abc, got %q", got.ID)
	}
}

// S4: a producer configured with gzip compression round-trips through the
// compression envelope on both ends without the caller seeing it.
func TestCompressedFetch(t *testing.T) {
	broker := mustBroker(t)
	broker.AddMessages("events", 0)

	cl := mustClient(t, broker.Addr(), kgo.WithProduceCompression(kcompress.CodecGzip))
	producer := kgo.NewProducer(cl)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := 0; i < 3; i++ {
		if _, err := producer.ProduceRaw(ctx, "events", []byte("payload"), nil); err != nil {
			t.Fatalf("ProduceRaw: %v", err)
		}
	}

	consumer := kgo.NewSingleConsumer(cl)
	records, err := consumer.Consume(ctx, "events", kgo.Beginning())
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("want 3 records, got %d", len(records))
	}
	for i, r := range records {
		if string(r.Value) != "payload" {
			t.Fatalf("record %d: want payload, got %q", i, r.Value)
		}
	}
}

// S5: a consumer whose stored offset has been truncated out from under it
// recovers by re-resolving its start position and re-fetching.
func TestOffsetOutOfRangeRecovery(t *testing.T) {
	broker := mustBroker(t)
	broker.AddMessages("metrics", 0, []byte("a"), []byte("b"), []byte("c"))

	cl := mustClient(t, broker.Addr())
	consumer := kgo.NewSingleConsumer(cl)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Consume once from the beginning to establish a stored offset past
	// the point we are about to truncate to.
	if _, err := consumer.Consume(ctx, "metrics", kgo.Beginning()); err != nil {
		t.Fatalf("initial Consume: %v", err)
	}

	broker.Truncate("metrics", 0, 1)

	records, err := consumer.Consume(ctx, "metrics", kgo.Beginning())
	if err != nil {
		t.Fatalf("recovering Consume: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("want 1 record after recovery, got %d", len(records))
	}
}

// S6: a Produce call spanning two partitions where one partition fails
// returns the successful partition's result alongside the failed one,
// rather than failing the whole call.
func TestPartialPartitionFailure(t *testing.T) {
	broker := mustBroker(t)
	broker.AddMessages("mixed", 0)
	broker.AddMessages("mixed", 1)
	broker.InjectError("mixed", 1, kerr.Code(kerr.MessageSizeTooLarge), -1)

	cl := mustClient(t, broker.Addr())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	results, err := cl.Produce(ctx, "mixed", map[int32][]kgo.ProducedRecord{
		0: {{Value: []byte("ok")}},
		1: {{Value: []byte("bad")}},
	})
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if results[0].Err != nil {
		t.Fatalf("partition 0 should have succeeded, got %v", results[0].Err)
	}
	if results[1].Err == nil {
		t.Fatalf("partition 1 should have failed")
	}
}

// S2: the leader for a partition actually moves to a different broker
// mid-session. The first Produce after the move is rejected by the stale
// leader with NotLeaderForPartition, the engine refreshes metadata and
// retries, and the retried request lands on the new leader.
func TestLeaderMigrationRetry(t *testing.T) {
	b1 := kgotest.NewBroker(1)
	if err := b1.Listen(); err != nil {
		t.Fatalf("listen b1: %v", err)
	}
	t.Cleanup(func() { b1.Close() })

	b2 := kgotest.NewBroker(2)
	if err := b2.Listen(); err != nil {
		t.Fatalf("listen b2: %v", err)
	}
	t.Cleanup(func() { b2.Close() })

	b1.RegisterPeer(b2)
	b2.RegisterPeer(b1)

	b1.AddMessages("migrating", 0)
	b2.AddMessages("migrating", 0)

	cl := mustClient(t, b1.Addr())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Warm the client's cluster snapshot: broker 1 is leader by default,
	// so this lands there and the snapshot now says so.
	if _, err := cl.Produce(ctx, "migrating", map[int32][]kgo.ProducedRecord{
		0: {{Value: []byte("warmup")}},
	}); err != nil {
		t.Fatalf("warmup Produce: %v", err)
	}

	// Leadership moves to broker 2. The client's cached snapshot still
	// points at broker 1, which will now answer NotLeaderForPartition.
	b1.MoveLeader("migrating", 0, 2)
	b2.MoveLeader("migrating", 0, 2)

	results, err := cl.Produce(ctx, "migrating", map[int32][]kgo.ProducedRecord{
		0: {{Value: []byte("after-move")}},
	})
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if results[0].Err != nil {
		t.Fatalf("want success after leader migration, got %v", results[0].Err)
	}

	// Broker 2's log for this partition was never written to before the
	// move, so a fetch landing there -- rather than stale broker 1, whose
	// log would show 2 records -- proves the retry followed the moved
	// leader.
	fetched, err := cl.Fetch(ctx, "migrating", map[int32]int64{0: 0})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if fetched[0].Err != nil {
		t.Fatalf("Fetch partition 0: %v", fetched[0].Err)
	}
	if len(fetched[0].Records) != 1 || string(fetched[0].Records[0].Value) != "after-move" {
		t.Fatalf("want exactly [after-move] on the new leader, got %+v", fetched[0].Records)
	}
}

// S6: an UnknownTopicOrPartition error -- a refresh-class code, unlike a
// fatal one -- schedules a metadata refresh while the call's other
// partitions still succeed.
func TestPartialFetchFailureSchedulesRefresh(t *testing.T) {
	broker := mustBroker(t)
	broker.AddMessages("mixed-refresh", 0, []byte("a"))
	broker.AddMessages("mixed-refresh", 1, []byte("b"))
	broker.AddMessages("mixed-refresh", 2, []byte("c"))
	broker.InjectError("mixed-refresh", 1, kerr.Code(kerr.UnknownTopicOrPartition), -1)

	cl := mustClient(t, broker.Addr())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	before := broker.MetadataCallCount()

	results, err := cl.Fetch(ctx, "mixed-refresh", map[int32]int64{0: 0, 1: 0, 2: 0})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if results[0].Err != nil || len(results[0].Records) != 1 {
		t.Fatalf("partition 0 should have succeeded with 1 record, got %+v", results[0])
	}
	if results[2].Err != nil || len(results[2].Records) != 1 {
		t.Fatalf("partition 2 should have succeeded with 1 record, got %+v", results[2])
	}
	if results[1].Err == nil {
		t.Fatalf("partition 1 should have failed")
	}
	if after := broker.MetadataCallCount(); after <= before {
		t.Fatalf("want a metadata refresh scheduled after the UnknownTopicOrPartition error, call count stayed at %d", after)
	}
}

// S2: a transient refresh-then-retry error on the first attempt is
// retried automatically and the call still succeeds.
func TestRetryAfterTransientLeaderError(t *testing.T) {
	broker := mustBroker(t)
	broker.AddMessages("retry-topic", 0)
	broker.InjectError("retry-topic", 0, kerr.Code(kerr.LeaderNotAvailable), 1)

	cl := mustClient(t, broker.Addr())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	results, err := cl.Produce(ctx, "retry-topic", map[int32][]kgo.ProducedRecord{
		0: {{Value: []byte("retry-me")}},
	})
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if results[0].Err != nil {
		t.Fatalf("want eventual success after transient error, got %v", results[0].Err)
	}
}
