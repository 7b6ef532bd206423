package kgotest

import (
	"sort"

	"github.com/dcrodman/kaf/kbin"
	"github.com/dcrodman/kaf/kerr"
	"github.com/dcrodman/kaf/kmsg"
)

// --- Metadata ---

func (b *Broker) handleMetadata(version int16, body []byte) []byte {
	r := kbin.Reader{Src: body}
	n, ok := r.ArrayLen()
	var requested []string
	if ok {
		requested = make([]string, n)
		for i := range requested {
			requested[i] = r.String()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.metadataCalls++

	names := requested
	if names == nil {
		for name := range b.topics {
			names = append(names, name)
		}
		sort.Strings(names)
	}

	peerIDs := make([]int32, 0, len(b.peers))
	for id := range b.peers {
		peerIDs = append(peerIDs, id)
	}
	sort.Slice(peerIDs, func(i, j int) bool { return peerIDs[i] < peerIDs[j] })

	dst := kbin.AppendArrayLen(nil, 1+len(peerIDs))
	dst = kbin.AppendInt32(dst, b.NodeID)
	dst = kbin.AppendString(dst, "127.0.0.1")
	dst = kbin.AppendInt32(dst, int32(portOf(b.ln.Addr().String())))
	for _, id := range peerIDs {
		dst = kbin.AppendInt32(dst, id)
		dst = kbin.AppendString(dst, "127.0.0.1")
		dst = kbin.AppendInt32(dst, int32(portOf(b.peers[id])))
	}
	if version >= 1 {
		dst = kbin.AppendInt32(dst, b.NodeID) // controller_id
	}

	dst = kbin.AppendArrayLen(dst, len(names))
	for _, name := range names {
		parts, ok := b.topics[name]
		if !ok {
			// auto-create on first reference, matching the teacher mock's
			// "requesting a topic creates it" behavior.
			parts = make(map[int32]*partitionLog)
			parts[0] = &partitionLog{}
			b.topics[name] = parts
		}
		var ids []int32
		for id := range parts {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		dst = kbin.AppendInt16(dst, 0)
		dst = kbin.AppendString(dst, name)
		dst = kbin.AppendArrayLen(dst, len(ids))
		for _, id := range ids {
			leader := b.leaderFor(name, id)
			dst = kbin.AppendInt16(dst, 0)
			dst = kbin.AppendInt32(dst, id)
			dst = kbin.AppendInt32(dst, leader)
			dst = kbin.AppendArrayLen(dst, 1)
			dst = kbin.AppendInt32(dst, leader)
			dst = kbin.AppendArrayLen(dst, 1)
			dst = kbin.AppendInt32(dst, leader)
		}
	}
	return dst
}

func portOf(addr string) int {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			p := 0
			for _, c := range addr[i+1:] {
				p = p*10 + int(c-'0')
			}
			return p
		}
	}
	return 0
}

// --- Produce ---

func (b *Broker) handleProduce(version int16, body []byte) []byte {
	r := kbin.Reader{Src: body}
	_ = r.Int16() // acks
	_ = r.Int32() // timeout_ms
	nt, _ := r.ArrayLen()

	type partResult struct {
		partition  int32
		errorCode  int16
		baseOffset int64
	}
	type topicResult struct {
		topic      string
		partitions []partResult
	}
	results := make([]topicResult, nt)

	b.mu.Lock()
	defer b.mu.Unlock()

	for i := 0; i < nt; i++ {
		topic := r.String()
		np, _ := r.ArrayLen()
		tr := topicResult{topic: topic, partitions: make([]partResult, np)}
		for j := 0; j < np; j++ {
			partition := r.Int32()
			setBytes := r.Bytes()

			if leader := b.leaderFor(topic, partition); leader != b.NodeID {
				tr.partitions[j] = partResult{partition: partition, errorCode: kerr.Code(kerr.NotLeaderForPartition)}
				continue
			}

			if code, ok := b.takeFault(topic, partition); ok {
				tr.partitions[j] = partResult{partition: partition, errorCode: code}
				continue
			}

			ms, err := kmsg.ReadMessageSet(setBytes)
			if err != nil {
				tr.partitions[j] = partResult{partition: partition, errorCode: kerr.Code(kerr.CorruptMessage)}
				continue
			}

			p := b.ensurePartition(topic, partition)
			base := int64(len(p.messages))
			for _, m := range ms.Messages {
				m.Offset = int64(len(p.messages))
				p.messages = append(p.messages, m)
			}
			tr.partitions[j] = partResult{partition: partition, baseOffset: base}
		}
		results[i] = tr
	}

	dst := kbin.AppendArrayLen(nil, len(results))
	for _, tr := range results {
		dst = kbin.AppendString(dst, tr.topic)
		dst = kbin.AppendArrayLen(dst, len(tr.partitions))
		for _, p := range tr.partitions {
			dst = kbin.AppendInt32(dst, p.partition)
			dst = kbin.AppendInt16(dst, p.errorCode)
			dst = kbin.AppendInt64(dst, p.baseOffset)
		}
	}
	if version >= 1 {
		dst = kbin.AppendInt32(dst, 0)
	}
	return dst
}

// --- Fetch ---

func (b *Broker) handleFetch(version int16, body []byte) []byte {
	r := kbin.Reader{Src: body}
	_ = r.Int32() // replica_id
	_ = r.Int32() // max_wait_ms
	_ = r.Int32() // min_bytes
	nt, _ := r.ArrayLen()

	b.mu.Lock()
	defer b.mu.Unlock()

	var dst []byte
	if version >= 1 {
		dst = kbin.AppendInt32(dst, 0) // throttle_time_ms
	}
	dst = kbin.AppendArrayLen(dst, nt)

	for i := 0; i < nt; i++ {
		topic := r.String()
		np, _ := r.ArrayLen()
		dst = kbin.AppendString(dst, topic)
		dst = kbin.AppendArrayLen(dst, np)
		for j := 0; j < np; j++ {
			partition := r.Int32()
			fetchOffset := r.Int64()
			_ = r.Int32() // max_bytes

			dst = kbin.AppendInt32(dst, partition)

			if leader := b.leaderFor(topic, partition); leader != b.NodeID {
				dst = kbin.AppendInt16(dst, kerr.Code(kerr.NotLeaderForPartition))
				dst = kbin.AppendInt64(dst, 0)
				dst = kbin.AppendBytes(dst, nil)
				continue
			}

			if code, ok := b.takeFault(topic, partition); ok {
				dst = kbin.AppendInt16(dst, code)
				dst = kbin.AppendInt64(dst, 0)
				dst = kbin.AppendBytes(dst, nil)
				continue
			}

			parts, ok := b.topics[topic]
			if !ok {
				dst = kbin.AppendInt16(dst, kerr.Code(kerr.UnknownTopicOrPartition))
				dst = kbin.AppendInt64(dst, 0)
				dst = kbin.AppendBytes(dst, nil)
				continue
			}
			p, ok := parts[partition]
			if !ok {
				dst = kbin.AppendInt16(dst, kerr.Code(kerr.UnknownTopicOrPartition))
				dst = kbin.AppendInt64(dst, 0)
				dst = kbin.AppendBytes(dst, nil)
				continue
			}
			hw := int64(len(p.messages))
			if fetchOffset < 0 || fetchOffset > hw {
				dst = kbin.AppendInt16(dst, kerr.Code(kerr.OffsetOutOfRange))
				dst = kbin.AppendInt64(dst, hw)
				dst = kbin.AppendBytes(dst, nil)
				continue
			}

			ms := kmsg.MessageSet{Messages: p.messages[fetchOffset:]}
			dst = kbin.AppendInt16(dst, 0)
			dst = kbin.AppendInt64(dst, hw)
			dst = kbin.AppendBytes(dst, ms.AppendTo(nil))
		}
	}
	return dst
}

// --- ListOffsets ---

func (b *Broker) handleListOffsets(version int16, body []byte) []byte {
	r := kbin.Reader{Src: body}
	_ = r.Int32() // replica_id
	nt, _ := r.ArrayLen()

	b.mu.Lock()
	defer b.mu.Unlock()

	dst := kbin.AppendArrayLen(nil, nt)
	for i := 0; i < nt; i++ {
		topic := r.String()
		np, _ := r.ArrayLen()
		dst = kbin.AppendString(dst, topic)
		dst = kbin.AppendArrayLen(dst, np)
		for j := 0; j < np; j++ {
			partition := r.Int32()
			timestamp := r.Int64()
			maxOffsets := r.Int32()

			dst = kbin.AppendInt32(dst, partition)

			if leader := b.leaderFor(topic, partition); leader != b.NodeID {
				dst = kbin.AppendInt16(dst, kerr.Code(kerr.NotLeaderForPartition))
				dst = kbin.AppendArrayLen(dst, 0)
				continue
			}

			var hw int64
			if parts, ok := b.topics[topic]; ok {
				if p, ok := parts[partition]; ok {
					hw = int64(len(p.messages))
				}
			}

			var offsets []int64
			switch timestamp {
			case -1: // latest
				offsets = []int64{hw, 0}
			case -2: // earliest
				offsets = []int64{0, 0}
			default:
				offsets = []int64{hw, 0}
			}
			if int(maxOffsets) < len(offsets) {
				offsets = offsets[:maxOffsets]
			}

			dst = kbin.AppendInt16(dst, 0)
			dst = kbin.AppendArrayLen(dst, len(offsets))
			for _, o := range offsets {
				dst = kbin.AppendInt64(dst, o)
			}
		}
	}
	return dst
}

// --- GroupCoordinator ---

func (b *Broker) handleGroupCoordinator(version int16, body []byte) []byte {
	r := kbin.Reader{Src: body}
	_ = r.String() // group_id, this broker is always its own coordinator

	b.mu.Lock()
	addr := b.ln.Addr().String()
	b.mu.Unlock()

	dst := kbin.AppendInt16(nil, 0)
	dst = kbin.AppendInt32(dst, b.NodeID)
	dst = kbin.AppendString(dst, "127.0.0.1")
	dst = kbin.AppendInt32(dst, int32(portOf(addr)))
	return dst
}

// --- group coordination state machine ---

func (b *Broker) getOrCreateGroup(groupID, protocolType string) *groupState {
	g, ok := b.groups[groupID]
	if !ok {
		g = &groupState{
			protocolType: protocolType,
			members:      make(map[string]*member),
			assignments:  make(map[string][]byte),
			committed:    make(map[string]map[int32]offsetAndMetadata),
		}
		b.groups[groupID] = g
	}
	return g
}

func (b *Broker) handleJoinGroup(version int16, body []byte) []byte {
	r := kbin.Reader{Src: body}
	groupID := r.String()
	_ = r.Int32() // session_timeout_ms
	if version >= 1 {
		_ = r.Int32() // rebalance_timeout_ms
	}
	memberID := r.String()
	protocolType := r.String()
	np, _ := r.ArrayLen()
	protocols := make([]kmsg.JoinGroupRequestProtocol, np)
	for i := range protocols {
		protocols[i].Name = r.String()
		protocols[i].Metadata = r.Bytes()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	g := b.getOrCreateGroup(groupID, protocolType)
	if memberID == "" {
		memberID = groupID + "-" + itoa(len(g.joinOrder)+1)
	}
	if _, exists := g.members[memberID]; !exists {
		g.joinOrder = append(g.joinOrder, memberID)
	}
	g.members[memberID] = &member{id: memberID, protocols: protocols}
	g.generation++
	if g.leaderID == "" {
		g.leaderID = memberID
	}
	if len(protocols) > 0 {
		g.protocolName = protocols[0].Name
	}

	dst := kbin.AppendInt16(nil, 0)
	dst = kbin.AppendInt32(dst, g.generation)
	dst = kbin.AppendString(dst, g.protocolName)
	dst = kbin.AppendString(dst, g.leaderID)
	dst = kbin.AppendString(dst, memberID)

	if memberID == g.leaderID {
		dst = kbin.AppendArrayLen(dst, len(g.joinOrder))
		for _, id := range g.joinOrder {
			m := g.members[id]
			var meta []byte
			for _, p := range m.protocols {
				if p.Name == g.protocolName {
					meta = p.Metadata
					break
				}
			}
			dst = kbin.AppendString(dst, id)
			dst = kbin.AppendBytes(dst, meta)
		}
	} else {
		dst = kbin.AppendArrayLen(dst, 0)
	}
	return dst
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func (b *Broker) handleSyncGroup(version int16, body []byte) []byte {
	r := kbin.Reader{Src: body}
	groupID := r.String()
	generationID := r.Int32()
	memberID := r.String()
	na, _ := r.ArrayLen()
	assignments := make([]kmsg.SyncGroupRequestAssignment, na)
	for i := range assignments {
		assignments[i].MemberID = r.String()
		assignments[i].Assignment = r.Bytes()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	g, ok := b.groups[groupID]
	if !ok {
		return kbin.AppendBytes(kbin.AppendInt16(nil, kerr.Code(kerr.NotCoordinatorForGroup)), nil)
	}
	if generationID != g.generation {
		return kbin.AppendBytes(kbin.AppendInt16(nil, kerr.Code(kerr.IllegalGeneration)), nil)
	}
	if memberID == g.leaderID {
		for _, a := range assignments {
			g.assignments[a.MemberID] = a.Assignment
		}
	}

	dst := kbin.AppendInt16(nil, 0)
	dst = kbin.AppendBytes(dst, g.assignments[memberID])
	return dst
}

func (b *Broker) handleHeartbeat(version int16, body []byte) []byte {
	r := kbin.Reader{Src: body}
	groupID := r.String()
	generationID := r.Int32()
	memberID := r.String()

	b.mu.Lock()
	defer b.mu.Unlock()

	g, ok := b.groups[groupID]
	if !ok {
		return kbin.AppendInt16(nil, kerr.Code(kerr.NotCoordinatorForGroup))
	}
	if _, ok := g.members[memberID]; !ok {
		return kbin.AppendInt16(nil, kerr.Code(kerr.UnknownMemberID))
	}
	if generationID != g.generation {
		return kbin.AppendInt16(nil, kerr.Code(kerr.IllegalGeneration))
	}
	return kbin.AppendInt16(nil, 0)
}

func (b *Broker) handleLeaveGroup(version int16, body []byte) []byte {
	r := kbin.Reader{Src: body}
	groupID := r.String()
	memberID := r.String()

	b.mu.Lock()
	defer b.mu.Unlock()

	if g, ok := b.groups[groupID]; ok {
		delete(g.members, memberID)
		delete(g.assignments, memberID)
		for i, id := range g.joinOrder {
			if id == memberID {
				g.joinOrder = append(g.joinOrder[:i], g.joinOrder[i+1:]...)
				break
			}
		}
		if g.leaderID == memberID {
			g.leaderID = ""
			if len(g.joinOrder) > 0 {
				g.leaderID = g.joinOrder[0]
			}
		}
	}
	return kbin.AppendInt16(nil, 0)
}

// --- OffsetCommit / OffsetFetch ---

func (b *Broker) handleOffsetCommit(version int16, body []byte) []byte {
	r := kbin.Reader{Src: body}
	groupID := r.String()
	if version >= 1 {
		_ = r.Int32() // generation_id
		_ = r.String() // member_id
	}
	nt, _ := r.ArrayLen()

	b.mu.Lock()
	defer b.mu.Unlock()

	g := b.getOrCreateGroup(groupID, "")

	dst := kbin.AppendArrayLen(nil, nt)
	for i := 0; i < nt; i++ {
		topic := r.String()
		np, _ := r.ArrayLen()
		dst = kbin.AppendString(dst, topic)
		dst = kbin.AppendArrayLen(dst, np)
		for j := 0; j < np; j++ {
			partition := r.Int32()
			offset := r.Int64()
			metadata := r.String()

			parts, ok := g.committed[topic]
			if !ok {
				parts = make(map[int32]offsetAndMetadata)
				g.committed[topic] = parts
			}
			parts[partition] = offsetAndMetadata{offset: offset, metadata: metadata}

			dst = kbin.AppendInt32(dst, partition)
			dst = kbin.AppendInt16(dst, 0)
		}
	}
	return dst
}

func (b *Broker) handleOffsetFetch(version int16, body []byte) []byte {
	r := kbin.Reader{Src: body}
	groupID := r.String()
	nt, _ := r.ArrayLen()

	b.mu.Lock()
	defer b.mu.Unlock()

	g := b.getOrCreateGroup(groupID, "")

	dst := kbin.AppendArrayLen(nil, nt)
	for i := 0; i < nt; i++ {
		topic := r.String()
		np, _ := r.ArrayLen()
		dst = kbin.AppendString(dst, topic)
		dst = kbin.AppendArrayLen(dst, np)
		for j := 0; j < np; j++ {
			partition := r.Int32()
			om := offsetAndMetadata{offset: -1}
			if parts, ok := g.committed[topic]; ok {
				if v, ok := parts[partition]; ok {
					om = v
				}
			}
			dst = kbin.AppendInt32(dst, partition)
			dst = kbin.AppendInt64(dst, om.offset)
			dst = kbin.AppendString(dst, om.metadata)
			dst = kbin.AppendInt16(dst, 0)
		}
	}
	return dst
}

// --- admin: ListGroups / DescribeGroups ---

func (b *Broker) handleListGroups(version int16, body []byte) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	var names []string
	for name := range b.groups {
		names = append(names, name)
	}
	sort.Strings(names)

	dst := kbin.AppendInt16(nil, 0)
	dst = kbin.AppendArrayLen(dst, len(names))
	for _, name := range names {
		dst = kbin.AppendString(dst, name)
		dst = kbin.AppendString(dst, b.groups[name].protocolType)
	}
	return dst
}

func (b *Broker) handleDescribeGroups(version int16, body []byte) []byte {
	r := kbin.Reader{Src: body}
	n, _ := r.ArrayLen()
	ids := make([]string, n)
	for i := range ids {
		ids[i] = r.String()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	dst := kbin.AppendArrayLen(nil, len(ids))
	for _, id := range ids {
		g, ok := b.groups[id]
		if !ok {
			dst = kbin.AppendInt16(dst, kerr.Code(kerr.InvalidGroupID))
			dst = kbin.AppendString(dst, id)
			dst = kbin.AppendString(dst, "Dead")
			dst = kbin.AppendString(dst, "")
			dst = kbin.AppendString(dst, "")
			dst = kbin.AppendArrayLen(dst, 0)
			continue
		}
		dst = kbin.AppendInt16(dst, 0)
		dst = kbin.AppendString(dst, id)
		dst = kbin.AppendString(dst, "Stable")
		dst = kbin.AppendString(dst, g.protocolType)
		dst = kbin.AppendString(dst, g.protocolName)
		dst = kbin.AppendArrayLen(dst, len(g.joinOrder))
		for _, mid := range g.joinOrder {
			dst = kbin.AppendString(dst, mid)
			dst = kbin.AppendString(dst, "kgo")
			dst = kbin.AppendString(dst, "")
			dst = kbin.AppendBytes(dst, nil)
			dst = kbin.AppendBytes(dst, g.assignments[mid])
		}
	}
	return dst
}
