// Package kgo is the engine beneath the Producer/SingleConsumer/
// GroupedConsumer façade (spec §1): the broker connection layer, the
// cluster model, the group coordinator state machine, the partition
// allocator, and the retry/backoff policy.
package kgo

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dcrodman/kaf/kerr"
	"github.com/dcrodman/kaf/kmsg"
)

// PartitionMetadata mirrors spec §3: leader -1 means "no leader available";
// such partitions are not routable until the next refresh.
type PartitionMetadata struct {
	PartitionID int32
	Leader      int32
	Replicas    []int32
	ISR         []int32
	Err         error
}

// TopicMetadata mirrors spec §3.
type TopicMetadata struct {
	Topic      string
	Partitions []PartitionMetadata
	Err        error
}

// ClusterState is the atomically-replaced snapshot described in spec §3:
// "The state is replaced atomically on refresh; readers see either the old
// or the new full snapshot, never a torn mix."
type ClusterState struct {
	Brokers map[int32]BrokerDescriptor
	Topics  map[string]TopicMetadata
}

func newClusterState() *ClusterState {
	return &ClusterState{
		Brokers: make(map[int32]BrokerDescriptor),
		Topics:  make(map[string]TopicMetadata),
	}
}

// leaderRoutable reports whether the given leader broker ID both names a
// real leader (>= 0) and appears in the broker map (spec §3 invariant).
func (s *ClusterState) leaderRoutable(leader int32) bool {
	if leader < 0 {
		return false
	}
	_, ok := s.Brokers[leader]
	return ok
}

// Client is the cluster model (spec §4.D): it owns ClusterState and every
// BrokerConnection, and routes logical operations to the correct broker(s).
type Client struct {
	cfg cfg

	ctx    context.Context
	cancel context.CancelFunc

	brokersMu sync.RWMutex
	brokers   map[int32]*broker
	seeds     []*broker

	state atomic.Value // *ClusterState

	knownTopicsMu sync.Mutex
	knownTopics   map[string]struct{}

	refreshMu      sync.Mutex
	refreshing     bool
	refreshWaiters []chan struct{}

	offsets *offsetStore
	group   *groupCoordinator
}

// NewClient constructs a Client and bootstraps against the configured seed
// brokers (spec §4.D bootstrap). ConfigurationError is returned immediately
// for invalid options (spec §7.4).
func NewClient(opts ...Opt) (*Client, error) {
	c := defaultCfg()
	for _, o := range opts {
		o.apply(&c)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	cl := &Client{
		cfg:         c,
		ctx:         ctx,
		cancel:      cancel,
		brokers:     make(map[int32]*broker),
		knownTopics: make(map[string]struct{}),
		offsets:     newOffsetStore(),
	}
	cl.state.Store(newClusterState())

	if err := cl.bootstrap(); err != nil {
		cancel()
		return nil, err
	}

	if c.groupName != "" {
		g, err := newGroupCoordinator(cl)
		if err != nil {
			cancel()
			return nil, err
		}
		cl.group = g
	}

	return cl, nil
}

// bootstrap connects to each seed host in turn until one answers a Metadata
// request (spec §4.D bootstrap).
func (cl *Client) bootstrap() error {
	for i, addr := range cl.cfg.seedBrokers {
		host, port, err := splitHostPort(addr)
		if err != nil {
			return &ConfigurationError{Reason: fmt.Sprintf("invalid seed broker %q: %v", addr, err)}
		}
		seed := cl.newBroker(BrokerDescriptor{NodeID: unknownSeedID(i), Host: host, Port: port})
		cl.seeds = append(cl.seeds, seed)
		cl.brokers[seed.meta.NodeID] = seed
	}

	var lastErr error
	for _, seed := range cl.seeds {
		ctx, cancel := context.WithTimeout(cl.ctx, 10*time.Second)
		err := cl.refreshFrom(ctx, seed, nil)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("kgo: bootstrap failed against all seed brokers: %w", lastErr)
}

func unknownSeedID(i int) int32 { return int32(-1000 - i) }

// Close tears down every broker connection and stops background work.
func (cl *Client) Close() {
	if cl.group != nil {
		cl.group.leave()
	}
	cl.cancel()
	cl.brokersMu.Lock()
	for _, b := range cl.brokers {
		b.stopForever()
	}
	cl.brokersMu.Unlock()
}

// loadState returns the current immutable ClusterState snapshot.
func (cl *Client) loadState() *ClusterState { return cl.state.Load().(*ClusterState) }

// leastRecentlyUsedBroker implements the tie-break in spec §4.D: "when
// multiple connections can answer... prefer the least-recently-used live
// broker connection to spread load."
func (cl *Client) leastRecentlyUsedBroker() *broker {
	cl.brokersMu.RLock()
	defer cl.brokersMu.RUnlock()

	var best *broker
	var bestUsed int64 = 1<<63 - 1
	for _, b := range cl.brokers {
		if atomic.LoadInt32(&b.dead) == 1 {
			continue
		}
		used := atomic.LoadInt64(&b.lastUsed)
		if used < bestUsed {
			bestUsed = used
			best = b
		}
	}
	return best
}

func (cl *Client) brokerByID(id int32) *broker {
	cl.brokersMu.RLock()
	defer cl.brokersMu.RUnlock()
	return cl.brokers[id]
}

// trackTopic records that topic should be included in future metadata
// refreshes (spec §4.D "issues Metadata request for known topics").
func (cl *Client) trackTopic(topic string) {
	cl.knownTopicsMu.Lock()
	cl.knownTopics[topic] = struct{}{}
	cl.knownTopicsMu.Unlock()
}

func (cl *Client) trackedTopics() []string {
	cl.knownTopicsMu.Lock()
	defer cl.knownTopicsMu.Unlock()
	topics := make([]string, 0, len(cl.knownTopics))
	for t := range cl.knownTopics {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// refreshMetadata is single-flight (spec §4.D "Refresh is single-flight:
// concurrent refresh triggers coalesce into one in-flight refresh future").
func (cl *Client) refreshMetadata(ctx context.Context) error {
	cl.refreshMu.Lock()
	if cl.refreshing {
		wait := make(chan struct{})
		cl.refreshWaiters = append(cl.refreshWaiters, wait)
		cl.refreshMu.Unlock()
		select {
		case <-wait:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	cl.refreshing = true
	cl.refreshMu.Unlock()

	b := cl.leastRecentlyUsedBroker()
	if b == nil && len(cl.seeds) > 0 {
		b = cl.seeds[0]
	}
	err := cl.refreshFrom(ctx, b, cl.trackedTopics())

	cl.refreshMu.Lock()
	cl.refreshing = false
	waiters := cl.refreshWaiters
	cl.refreshWaiters = nil
	cl.refreshMu.Unlock()
	for _, w := range waiters {
		close(w)
	}
	return err
}

// refreshFrom issues a Metadata request against b and atomically swaps in
// the resulting ClusterState (spec §4.D metadata_refresh).
func (cl *Client) refreshFrom(ctx context.Context, b *broker, topics []string) error {
	if b == nil {
		return fmt.Errorf("kgo: no broker available to refresh metadata")
	}
	req := &kmsg.MetadataRequest{}
	if topics != nil {
		for _, t := range topics {
			req.Topics = append(req.Topics, kmsg.MetadataRequestTopic{Topic: t})
		}
	}
	resp, err := b.waitResp(ctx, req)
	if err != nil {
		return err
	}
	meta := resp.(*kmsg.MetadataResponse)

	next := newClusterState()
	for _, br := range meta.Brokers {
		next.Brokers[br.NodeID] = BrokerDescriptor{NodeID: br.NodeID, Host: br.Host, Port: br.Port}
	}
	for _, t := range meta.Topics {
		tm := TopicMetadata{Topic: t.Topic, Err: kerr.ErrorForCode(t.ErrorCode)}
		for _, p := range t.Partitions {
			tm.Partitions = append(tm.Partitions, PartitionMetadata{
				PartitionID: p.Partition,
				Leader:      p.Leader,
				Replicas:    p.Replicas,
				ISR:         p.ISR,
				Err:         kerr.ErrorForCode(p.ErrorCode),
			})
		}
		next.Topics[t.Topic] = tm
		cl.trackTopic(t.Topic)
	}

	cl.syncBrokers(next.Brokers)
	cl.state.Store(next)
	return nil
}

// syncBrokers reconciles the live broker connection map against a freshly
// learned broker list, keeping seed connections alive and tearing down
// brokers that disappeared (spec §4.C "destroyed on... cluster-state
// eviction").
func (cl *Client) syncBrokers(known map[int32]BrokerDescriptor) {
	cl.brokersMu.Lock()
	defer cl.brokersMu.Unlock()

	for id, desc := range known {
		if existing, ok := cl.brokers[id]; ok {
			if existing.meta != desc {
				existing.stopForever()
				cl.brokers[id] = cl.newBroker(desc)
			}
			continue
		}
		cl.brokers[id] = cl.newBroker(desc)
	}
	for id, b := range cl.brokers {
		if id < 0 {
			continue // seed broker, always kept
		}
		if _, ok := known[id]; !ok {
			b.stopForever()
			delete(cl.brokers, id)
		}
	}
}

func splitHostPort(addr string) (host string, port int32, err error) {
	h, p, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	portNum, err := strconv.Atoi(p)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q: %w", p, err)
	}
	return h, int32(portNum), nil
}
