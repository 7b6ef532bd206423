package kgo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dcrodman/kaf/kerr"
	"github.com/dcrodman/kaf/kmsg"
	"github.com/dcrodman/kaf/kzk"
)

// groupState is the state machine in spec §4.F.
type groupState int32

const (
	groupDisconnected groupState = iota
	groupDiscovering
	groupJoining
	groupAwaitingSync
	groupStable
	groupRebalancing
	groupLeaving
)

func (s groupState) String() string {
	switch s {
	case groupDisconnected:
		return "disconnected"
	case groupDiscovering:
		return "discovering"
	case groupJoining:
		return "joining"
	case groupAwaitingSync:
		return "awaiting_sync"
	case groupStable:
		return "stable"
	case groupRebalancing:
		return "rebalancing"
	case groupLeaving:
		return "leaving"
	}
	return "unknown"
}

const consumerProtocolType = "consumer"
const roundRobinProtocolName = "roundrobin"

// groupCoordinator drives one member through the consumer-group protocol
// (spec §4.F): discovering the coordinator broker, joining, computing or
// receiving a partition assignment, and heartbeating to stay in the group.
type groupCoordinator struct {
	cl      *Client
	name    string
	topics  []string

	mu         sync.Mutex
	state      groupState
	memberID   string
	generation int32
	assignment map[string][]int32
	lastErr    error

	coordinator *broker

	onRebalance func(assignment map[string][]int32)

	// membership is the coordinator-service session backing this
	// member's ephemeral presence node (spec §6 "Membership is
	// represented as ephemeral children under a group znode"). Nil when
	// no coordinator_hosts were configured: the group still works off
	// the broker wire protocol alone, just without proactive
	// peer-loss detection between heartbeats.
	membership     *kzk.Client
	membershipPath string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

const groupMembershipRoot = "/kgo/groups"

// joinMembership registers this member's ephemeral presence node and starts
// a background watch that proactively forces a rejoin when a peer's node
// disappears, instead of waiting out a full heartbeat-detected rebalance
// (spec §6 membership representation, complementing §4.F's broker-driven
// state machine).
func (g *groupCoordinator) joinMembership() error {
	if len(g.cl.cfg.coordinatorHosts) == 0 {
		return nil
	}
	zkc, err := kzk.Dial(g.cl.cfg.coordinatorHosts, g.cl.cfg.sessionTimeout)
	if err != nil {
		return err
	}
	groupPath := groupMembershipRoot + "/" + g.name
	if _, err := zkc.CreatePersistent(groupMembershipRoot, nil); err != nil {
		zkc.Close()
		return err
	}
	if _, err := zkc.CreatePersistent(groupPath, nil); err != nil {
		zkc.Close()
		return err
	}
	idsPath := groupPath + "/ids"
	if _, err := zkc.CreatePersistent(idsPath, nil); err != nil {
		zkc.Close()
		return err
	}

	g.mu.Lock()
	memberID := g.memberID
	g.mu.Unlock()
	path, err := zkc.CreateEphemeral(idsPath+"/"+memberID, nil)
	if err != nil {
		zkc.Close()
		return err
	}

	g.membership = zkc
	g.membershipPath = path
	go g.watchPeers(idsPath)
	return nil
}

// watchPeers re-arms an existence watch on every known sibling and triggers
// a rejoin the moment one disappears. One goroutine per sibling, re-listed
// every second since the child list itself isn't watched here.
func (g *groupCoordinator) watchPeers(idsPath string) {
	watching := make(map[string]struct{})
	for {
		children, err := g.membership.GetChildren(idsPath)
		if err != nil {
			return
		}
		for _, child := range children {
			if _, ok := watching[child]; ok {
				continue
			}
			watching[child] = struct{}{}
			go g.watchOne(idsPath + "/" + child)
		}
		select {
		case <-g.ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

// watchOne blocks until path's existence watch fires once, then forces a
// rejoin; a vanished sibling znode means that peer's session ended (spec §6
// "loss of session deletes the child and triggers rebalance in other
// members").
func (g *groupCoordinator) watchOne(path string) {
	exists, events, err := g.membership.ExistsWatch(path)
	if err != nil || !exists {
		return
	}
	select {
	case <-events:
		g.retryRejoin()
	case <-g.ctx.Done():
	}
}

// newGroupCoordinator joins cl.cfg.groupName and starts the background
// heartbeat loop. The initial join is synchronous so NewClient returns only
// once the member either has an assignment or has hit a fatal error.
func newGroupCoordinator(cl *Client) (*groupCoordinator, error) {
	ctx, cancel := context.WithCancel(cl.ctx)
	g := &groupCoordinator{
		cl:     cl,
		name:   cl.cfg.groupName,
		topics: cl.trackedTopics(),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	joinCtx, joinCancel := context.WithTimeout(ctx, cl.cfg.sessionTimeout)
	defer joinCancel()
	if err := g.rejoin(joinCtx); err != nil {
		cancel()
		return nil, &GroupError{Group: g.name, Err: err}
	}

	if err := g.joinMembership(); err != nil {
		cl.cfg.logger.Log(LogLevelWarn, "unable to register group membership node", "group", g.name, "err", err)
	}

	go g.heartbeatLoop()
	return g, nil
}

// setTopics updates the subscription and forces a rejoin on the next
// heartbeat tick (called when a consumer adds a topic after construction).
func (g *groupCoordinator) setTopics(topics []string) {
	g.mu.Lock()
	g.topics = append([]string(nil), topics...)
	g.state = groupRebalancing
	g.mu.Unlock()
}

// currentAssignment returns this member's most recently synced partition
// assignment.
func (g *groupCoordinator) currentAssignment() map[string][]int32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string][]int32, len(g.assignment))
	for t, ps := range g.assignment {
		out[t] = append([]int32(nil), ps...)
	}
	return out
}

// discoverCoordinator issues a GroupCoordinatorRequest and returns a broker
// handle for the group coordinator (spec §4.F Discovering).
func (g *groupCoordinator) discoverCoordinator(ctx context.Context) (*broker, error) {
	g.setState(groupDiscovering)
	b := g.cl.leastRecentlyUsedBroker()
	if b == nil {
		return nil, fmt.Errorf("kgo: no broker available to discover group coordinator")
	}
	resp, err := b.waitResp(ctx, &kmsg.GroupCoordinatorRequest{GroupID: g.name})
	if err != nil {
		return nil, err
	}
	cresp := resp.(*kmsg.GroupCoordinatorResponse)
	if err := kerr.ErrorForCode(cresp.ErrorCode); err != nil {
		return nil, err
	}

	if existing := g.cl.brokerByID(cresp.CoordinatorID); existing != nil {
		return existing, nil
	}
	coord := g.cl.newBroker(BrokerDescriptor{
		NodeID: cresp.CoordinatorID,
		Host:   cresp.Host,
		Port:   cresp.Port,
	})
	g.cl.brokersMu.Lock()
	g.cl.brokers[coord.meta.NodeID] = coord
	g.cl.brokersMu.Unlock()
	return coord, nil
}

// rejoin runs Discovering -> Joining -> AwaitingSync, leaving the member
// Stable with a fresh assignment on success.
func (g *groupCoordinator) rejoin(ctx context.Context) error {
	coord, err := g.discoverCoordinator(ctx)
	if err != nil {
		g.setErr(err)
		return err
	}
	g.coordinator = coord

	g.setState(groupJoining)
	g.mu.Lock()
	memberID := g.memberID
	topics := append([]string(nil), g.topics...)
	g.mu.Unlock()

	meta := kmsg.GroupMemberMetadata{Version: 0, Topics: topics}
	join := &kmsg.JoinGroupRequest{
		GroupID:                g.name,
		SessionTimeoutMillis:   int32(g.cl.cfg.sessionTimeout / time.Millisecond),
		RebalanceTimeoutMillis: int32(g.cl.cfg.sessionTimeout / time.Millisecond),
		MemberID:               memberID,
		ProtocolType:           consumerProtocolType,
		Protocols: []kmsg.JoinGroupRequestProtocol{
			{Name: roundRobinProtocolName, Metadata: meta.AppendTo(nil)},
		},
	}
	resp, err := coord.waitResp(ctx, join)
	if err != nil {
		g.setErr(err)
		return err
	}
	jresp := resp.(*kmsg.JoinGroupResponse)
	if rerr := kerr.ErrorForCode(jresp.ErrorCode); rerr != nil {
		if kerr.Code(rerr) == kerr.UnknownMemberID.Code {
			g.mu.Lock()
			g.memberID = ""
			g.mu.Unlock()
		}
		g.setErr(rerr)
		return rerr
	}

	g.mu.Lock()
	g.memberID = jresp.MemberID
	g.generation = jresp.GenerationID
	g.mu.Unlock()

	g.setState(groupAwaitingSync)

	var assignments []kmsg.SyncGroupRequestAssignment
	if jresp.IsLeader() {
		assignments, err = g.computeAssignments(ctx, jresp.Members)
		if err != nil {
			g.setErr(err)
			return err
		}
	}

	sync := &kmsg.SyncGroupRequest{
		GroupID:      g.name,
		GenerationID: jresp.GenerationID,
		MemberID:     jresp.MemberID,
		Assignments:  assignments,
	}
	sresp, err := coord.waitResp(ctx, sync)
	if err != nil {
		g.setErr(err)
		return err
	}
	syncResp := sresp.(*kmsg.SyncGroupResponse)
	if rerr := kerr.ErrorForCode(syncResp.ErrorCode); rerr != nil {
		g.setErr(rerr)
		return rerr
	}

	assignment, err := kmsg.ReadGroupMemberAssignment(syncResp.Assignment)
	if err != nil {
		g.setErr(err)
		return err
	}

	g.mu.Lock()
	g.assignment = assignment.Topics
	g.state = groupStable
	g.lastErr = nil
	cb := g.onRebalance
	assigned := assignment.Topics
	g.mu.Unlock()
	if cb != nil {
		cb(assigned)
	}
	return nil
}

// computeAssignments runs when this member is the group leader (spec §4.F
// "the leader computes the assignment using the configured Allocator and
// distributes it via SyncGroup"): it decodes every member's subscription
// metadata, asks the cluster model for each subscribed topic's partitions,
// and allocates.
func (g *groupCoordinator) computeAssignments(ctx context.Context, members []kmsg.JoinGroupResponseMember) ([]kmsg.SyncGroupRequestAssignment, error) {
	memberIDs := make([]string, 0, len(members))
	topicSet := make(map[string]struct{})
	for _, m := range members {
		memberIDs = append(memberIDs, m.MemberID)
		meta, err := kmsg.ReadGroupMemberMetadata(m.Metadata)
		if err != nil {
			return nil, err
		}
		for _, t := range meta.Topics {
			topicSet[t] = struct{}{}
		}
	}

	partitionsByTopic := make(map[string][]int32, len(topicSet))
	for t := range topicSet {
		if err := g.cl.refreshMetadata(ctx); err != nil {
			return nil, err
		}
		state := g.cl.loadState()
		tm, ok := state.Topics[t]
		if !ok {
			continue
		}
		ps := make([]int32, 0, len(tm.Partitions))
		for _, p := range tm.Partitions {
			ps = append(ps, p.PartitionID)
		}
		partitionsByTopic[t] = ps
	}

	byMember := g.cl.cfg.partitionAllocator.Allocate(memberIDs, partitionsByTopic)

	out := make([]kmsg.SyncGroupRequestAssignment, 0, len(members))
	for _, m := range members {
		a := kmsg.GroupMemberAssignment{Topics: byMember[m.MemberID]}
		out = append(out, kmsg.SyncGroupRequestAssignment{
			MemberID:   m.MemberID,
			Assignment: a.AppendTo(nil, nil),
		})
	}
	return out, nil
}

// heartbeatLoop is the background goroutine that keeps the member alive in
// the group and drives rejoin on a rebalance signal or coordinator/
// membership error (spec §4.F Heartbeat timing, Rebalancing).
func (g *groupCoordinator) heartbeatLoop() {
	defer close(g.done)
	ticker := time.NewTicker(g.cl.cfg.heartbeatEvery())
	defer ticker.Stop()

	for {
		select {
		case <-g.ctx.Done():
			return
		case <-ticker.C:
		}

		g.mu.Lock()
		state := g.state
		coord := g.coordinator
		memberID := g.memberID
		generation := g.generation
		g.mu.Unlock()

		if state == groupLeaving {
			return
		}
		if !heartbeatAllowed(state) || coord == nil {
			g.retryRejoin()
			continue
		}

		hbCtx, cancel := context.WithTimeout(g.ctx, g.cl.cfg.sessionTimeout)
		resp, err := coord.waitResp(hbCtx, &kmsg.HeartbeatRequest{
			GroupID:      g.name,
			GenerationID: generation,
			MemberID:     memberID,
		})
		cancel()
		if err != nil {
			g.setErr(err)
			g.retryRejoin()
			continue
		}
		hresp := resp.(*kmsg.HeartbeatResponse)
		if rerr := kerr.ErrorForCode(hresp.ErrorCode); rerr != nil {
			switch kerr.Code(rerr) {
			case kerr.RebalanceInProgress.Code, kerr.IllegalGeneration.Code, kerr.UnknownMemberID.Code:
				// Only UnknownMemberID means the coordinator has actually
				// forgotten this member; RebalanceInProgress and
				// IllegalGeneration mean a rejoin is due but this member's
				// identity is still good, so keep memberID to preserve its
				// place in the group rather than minting a new one.
				if kerr.Code(rerr) == kerr.UnknownMemberID.Code {
					g.mu.Lock()
					g.memberID = ""
					g.mu.Unlock()
				}
				g.retryRejoin()
			case kerr.NotCoordinatorForGroup.Code:
				g.mu.Lock()
				g.coordinator = nil
				g.mu.Unlock()
				g.retryRejoin()
			default:
				g.setErr(rerr)
			}
		}
	}
}

// heartbeatAllowed reports whether a heartbeat may be sent while the member
// is in state s (spec §4.F / P6 "Heartbeats are never sent in Joining,
// AwaitingSync, or Disconnected"). Only a member that has completed a join
// cycle and is Stable holds a generation worth heartbeating on; every other
// state (including Rebalancing, which forces an immediate rejoin instead)
// routes through retryRejoin.
func heartbeatAllowed(s groupState) bool {
	return s == groupStable
}

// retryRejoin attempts rejoin once per heartbeat tick; persistent failure is
// surfaced via lastErr and the member stays Disconnected until the next
// tick tries again (spec §7.6 "client transitions to Disconnected" on
// exhausted retry budget talking to the coordinator service).
func (g *groupCoordinator) retryRejoin() {
	ctx, cancel := context.WithTimeout(g.ctx, g.cl.cfg.sessionTimeout)
	defer cancel()
	if err := g.rejoin(ctx); err != nil {
		g.setState(groupDisconnected)
	}
}

func (g *groupCoordinator) setState(s groupState) {
	g.mu.Lock()
	g.state = s
	g.mu.Unlock()
}

func (g *groupCoordinator) setErr(err error) {
	g.mu.Lock()
	g.lastErr = err
	g.mu.Unlock()
}

// leave sends a LeaveGroupRequest and stops the heartbeat loop (spec §4.F
// Leaving).
func (g *groupCoordinator) leave() {
	g.mu.Lock()
	if g.state == groupLeaving {
		g.mu.Unlock()
		return
	}
	g.state = groupLeaving
	coord := g.coordinator
	memberID := g.memberID
	g.mu.Unlock()

	if coord != nil && memberID != "" {
		ctx, cancel := context.WithTimeout(g.cl.ctx, 5*time.Second)
		coord.waitResp(ctx, &kmsg.LeaveGroupRequest{GroupID: g.name, MemberID: memberID})
		cancel()
	}
	if g.membership != nil {
		g.membership.Close() // ends the session, deleting our ephemeral node
	}
	g.cancel()
	<-g.done
}
