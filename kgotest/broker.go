// Package kgotest is an in-memory broker simulator used to drive end-to-end
// scenario tests against the kgo engine. It is grounded on the teacher
// pack's own hand-rolled mock broker (a TCP listener that decodes each
// incoming request, mutates an in-memory topic log under a single mutex,
// and writes back a scripted response), adapted to this module's own wire
// schema (kmsg/kbin) since neither kmsg.Request nor kmsg.Response exposes
// the decode/encode direction a server needs: requests only know how to
// AppendTo, responses only know how to ReadFrom.
package kgotest

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/dcrodman/kaf/kbin"
	"github.com/dcrodman/kaf/kmsg"
)

type partitionLog struct {
	messages []kmsg.Message
}

type topicPartitionKey struct {
	topic     string
	partition int32
}

// fault lets a test force the next N requests against a (topic, partition)
// to fail with a given broker error code, the building block for S2
// (leader change during produce) and S6 (partial per-partition failure).
type fault struct {
	errorCode int16
	remaining int // -1 means "until cleared"
}

type offsetAndMetadata struct {
	offset   int64
	metadata string
}

type member struct {
	id        string
	protocols []kmsg.JoinGroupRequestProtocol
}

type groupState struct {
	protocolType string
	generation   int32
	members      map[string]*member
	joinOrder    []string
	leaderID     string
	protocolName string
	assignments  map[string][]byte
	committed    map[string]map[int32]offsetAndMetadata
}

// Broker is a single fake broker node that speaks enough of the wire
// protocol to answer a real kgo.Client: Metadata, Produce, Fetch,
// ListOffsets, the group coordinator flow, and offset commit/fetch.
type Broker struct {
	NodeID int32

	mu            sync.Mutex
	topics        map[string]map[int32]*partitionLog
	groups        map[string]*groupState
	faults        map[topicPartitionKey]*fault
	peers         map[int32]string
	leaders       map[topicPartitionKey]int32
	metadataCalls int

	ln      net.Listener
	started bool
	stopped bool
}

// NewBroker constructs a Broker identified by nodeID; it does not start
// listening until Listen is called.
func NewBroker(nodeID int32) *Broker {
	return &Broker{
		NodeID:  nodeID,
		topics:  make(map[string]map[int32]*partitionLog),
		groups:  make(map[string]*groupState),
		faults:  make(map[topicPartitionKey]*fault),
		peers:   make(map[int32]string),
		leaders: make(map[topicPartitionKey]int32),
	}
}

// RegisterPeer makes peer known to b's Metadata responses, the building
// block for a multi-broker cluster (S2, leader migration). Registration is
// one-directional; a test wiring up two brokers that should each see the
// other calls it both ways.
func (b *Broker) RegisterPeer(peer *Broker) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.peers[peer.NodeID] = peer.Addr()
}

// MoveLeader reassigns which broker (by node ID) this Broker reports and
// enforces as leader of (topic, partition). Producing or fetching against a
// partition this Broker is no longer leader for answers
// NotLeaderForPartition instead of being processed, matching a real broker
// rejecting a request for a partition it no longer owns.
func (b *Broker) MoveLeader(topic string, partition int32, nodeID int32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.leaders[topicPartitionKey{topic, partition}] = nodeID
}

// leaderFor reports the node ID this Broker currently considers leader for
// (topic, partition), defaulting to itself when no reassignment has been
// recorded. Caller holds b.mu.
func (b *Broker) leaderFor(topic string, partition int32) int32 {
	if id, ok := b.leaders[topicPartitionKey{topic, partition}]; ok {
		return id
	}
	return b.NodeID
}

// Listen starts serving on a random loopback port in the background. It is
// an error to call it more than once on the same Broker.
func (b *Broker) Listen() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ln != nil {
		return fmt.Errorf("kgotest: broker %d already listening", b.NodeID)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		return err
	}
	b.ln = ln
	b.started = true
	go b.serve()
	return nil
}

// Addr returns "host:port" for a running broker, matching the form
// BrokerDescriptor expects for seed brokers in tests.
func (b *Broker) Addr() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ln == nil {
		panic("kgotest: broker not listening")
	}
	return b.ln.Addr().String()
}

// Close stops accepting and tears down the listener. Safe to call more
// than once.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped || b.ln == nil {
		return nil
	}
	b.stopped = true
	return b.ln.Close()
}

func (b *Broker) serve() {
	for {
		conn, err := b.ln.Accept()
		if err != nil {
			return
		}
		go b.handleConn(conn)
	}
}

func (b *Broker) handleConn(conn net.Conn) {
	defer conn.Close()
	for {
		frame, err := readFrame(conn)
		if err != nil {
			return
		}

		r := kbin.Reader{Src: frame}
		apiKey := r.Int16()
		apiVersion := r.Int16()
		corrID := r.Int32()
		_ = r.String() // client_id, unused by the simulator
		body := r.Src

		respBody := b.dispatch(apiKey, apiVersion, body)
		if respBody == nil {
			return
		}

		payload := kbin.AppendInt32(nil, corrID)
		payload = append(payload, respBody...)

		out := make([]byte, 4+len(payload))
		binary.BigEndian.PutUint32(out, uint32(len(payload)))
		copy(out[4:], payload)
		if _, err := conn.Write(out); err != nil {
			return
		}
	}
}

func readFrame(conn net.Conn) ([]byte, error) {
	var sizeBuf [4]byte
	if _, err := io.ReadFull(conn, sizeBuf[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(sizeBuf[:])
	buf := make([]byte, size)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (b *Broker) dispatch(apiKey, apiVersion int16, body []byte) []byte {
	switch apiKey {
	case kmsg.MetadataKey:
		return b.handleMetadata(apiVersion, body)
	case kmsg.ProduceKey:
		return b.handleProduce(apiVersion, body)
	case kmsg.FetchKey:
		return b.handleFetch(apiVersion, body)
	case kmsg.ListOffsetsKey:
		return b.handleListOffsets(apiVersion, body)
	case kmsg.GroupCoordinatorKey:
		return b.handleGroupCoordinator(apiVersion, body)
	case kmsg.JoinGroupKey:
		return b.handleJoinGroup(apiVersion, body)
	case kmsg.SyncGroupKey:
		return b.handleSyncGroup(apiVersion, body)
	case kmsg.HeartbeatKey:
		return b.handleHeartbeat(apiVersion, body)
	case kmsg.LeaveGroupKey:
		return b.handleLeaveGroup(apiVersion, body)
	case kmsg.OffsetCommitKey:
		return b.handleOffsetCommit(apiVersion, body)
	case kmsg.OffsetFetchKey:
		return b.handleOffsetFetch(apiVersion, body)
	case kmsg.ListGroupsKey:
		return b.handleListGroups(apiVersion, body)
	case kmsg.DescribeGroupsKey:
		return b.handleDescribeGroups(apiVersion, body)
	default:
		return nil
	}
}

// --- seeding and fault injection, the test-facing surface ---

func (b *Broker) ensurePartition(topic string, partition int32) *partitionLog {
	parts, ok := b.topics[topic]
	if !ok {
		parts = make(map[int32]*partitionLog)
		b.topics[topic] = parts
	}
	p, ok := parts[partition]
	if !ok {
		p = &partitionLog{}
		parts[partition] = p
	}
	return p
}

// AddMessages appends messages to a topic/partition log, assigning them
// sequential offsets, creating the topic/partition if needed. Passing no
// messages just creates an empty partition (matching the teacher mock's
// "create by calling with zero messages" convention).
func (b *Broker) AddMessages(topic string, partition int32, values ...[]byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p := b.ensurePartition(topic, partition)
	for _, v := range values {
		p.messages = append(p.messages, kmsg.Message{
			Offset: int64(len(p.messages)),
			Value:  v,
		})
	}
}

// Truncate drops every message at or after fromOffset in a partition's log,
// forcing the next Fetch at an offset beyond the new tail to answer
// OffsetOutOfRange -- the building block for the offset-out-of-range
// recovery scenario (spec S5).
func (b *Broker) Truncate(topic string, partition int32, fromOffset int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p := b.ensurePartition(topic, partition)
	if fromOffset < int64(len(p.messages)) {
		p.messages = p.messages[:fromOffset]
	}
}

// InjectError forces the next `times` Produce or Fetch requests against
// (topic, partition) to answer with errorCode instead of being processed
// normally. times < 0 means "until ClearError is called", used to simulate
// a leader handoff (S2) or a partial per-partition failure (S6).
func (b *Broker) InjectError(topic string, partition int32, errorCode int16, times int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.faults[topicPartitionKey{topic, partition}] = &fault{errorCode: errorCode, remaining: times}
}

// ClearError removes any standing fault for (topic, partition).
func (b *Broker) ClearError(topic string, partition int32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.faults, topicPartitionKey{topic, partition})
}

// takeFault consumes one occurrence of a standing fault for (topic,
// partition), returning the error code to answer with and true, or
// (0, false) if there is none. Caller holds b.mu.
func (b *Broker) takeFault(topic string, partition int32) (int16, bool) {
	f, ok := b.faults[topicPartitionKey{topic, partition}]
	if !ok {
		return 0, false
	}
	code := f.errorCode
	if f.remaining > 0 {
		f.remaining--
		if f.remaining == 0 {
			delete(b.faults, topicPartitionKey{topic, partition})
		}
	}
	return code, true
}

// MetadataCallCount reports how many Metadata requests this Broker has
// answered, letting a test assert that a refresh was scheduled after a
// refresh-class per-partition error (S6).
func (b *Broker) MetadataCallCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.metadataCalls
}

// CommittedOffset reports the group's locally committed offset for
// (topic, partition), for test assertions.
func (b *Broker) CommittedOffset(group, topic string, partition int32) (int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.groups[group]
	if !ok {
		return 0, false
	}
	parts, ok := g.committed[topic]
	if !ok {
		return 0, false
	}
	om, ok := parts[partition]
	return om.offset, ok
}
