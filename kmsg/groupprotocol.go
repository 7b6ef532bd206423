package kmsg

import "github.com/dcrodman/kaf/kbin"

// GroupMemberMetadata is the payload of a JoinGroupRequestProtocol.Metadata
// field for the "consumer" protocol type: the topics this member wants to
// subscribe to, encoded the same way every real consumer-group member
// encodes its subscription so a naive broker or a peer leader can parse it.
type GroupMemberMetadata struct {
	Version  int16
	Topics   []string
	UserData []byte
}

// AppendTo encodes the metadata payload.
func (m GroupMemberMetadata) AppendTo(dst []byte) []byte {
	dst = kbin.AppendInt16(dst, m.Version)
	dst = kbin.AppendArrayLen(dst, len(m.Topics))
	for _, t := range m.Topics {
		dst = kbin.AppendString(dst, t)
	}
	dst = kbin.AppendBytes(dst, m.UserData)
	return dst
}

// ReadGroupMemberMetadata decodes a GroupMemberMetadata payload.
func ReadGroupMemberMetadata(src []byte) (GroupMemberMetadata, error) {
	var m GroupMemberMetadata
	b := &kbin.Reader{Src: src}
	m.Version = b.Int16()
	nt, _ := b.ArrayLen()
	m.Topics = make([]string, nt)
	for i := range m.Topics {
		m.Topics[i] = b.String()
	}
	m.UserData = b.Bytes()
	return m, b.Complete()
}

// GroupMemberAssignment is the payload of a SyncGroupRequestAssignment's
// Assignment field / SyncGroupResponse.Assignment: the partitions this
// member owns, per topic (spec §4.F AwaitingSync, §4.G allocator output).
type GroupMemberAssignment struct {
	Version    int16
	Topics     map[string][]int32
	UserData   []byte
}

// AppendTo encodes the assignment payload. Topics are emitted in the order
// given by topicOrder to keep the encoding deterministic for tests; callers
// that don't care about byte-stability may pass nil to iterate the map.
func (a GroupMemberAssignment) AppendTo(dst []byte, topicOrder []string) []byte {
	dst = kbin.AppendInt16(dst, a.Version)
	order := topicOrder
	if order == nil {
		for t := range a.Topics {
			order = append(order, t)
		}
	}
	dst = kbin.AppendArrayLen(dst, len(order))
	for _, t := range order {
		dst = kbin.AppendString(dst, t)
		parts := a.Topics[t]
		dst = kbin.AppendArrayLen(dst, len(parts))
		for _, p := range parts {
			dst = kbin.AppendInt32(dst, p)
		}
	}
	dst = kbin.AppendBytes(dst, a.UserData)
	return dst
}

// ReadGroupMemberAssignment decodes a GroupMemberAssignment payload. An
// empty/nil src (the follower's zero-length SyncGroup request body) decodes
// to a zero-value assignment with no error.
func ReadGroupMemberAssignment(src []byte) (GroupMemberAssignment, error) {
	var a GroupMemberAssignment
	if len(src) == 0 {
		return a, nil
	}
	b := &kbin.Reader{Src: src}
	a.Version = b.Int16()
	nt, _ := b.ArrayLen()
	a.Topics = make(map[string][]int32, nt)
	for i := 0; i < nt; i++ {
		topic := b.String()
		np, _ := b.ArrayLen()
		parts := make([]int32, np)
		for j := range parts {
			parts[j] = b.Int32()
		}
		a.Topics[topic] = parts
	}
	a.UserData = b.Bytes()
	return a, b.Complete()
}
