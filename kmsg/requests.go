package kmsg

import "github.com/dcrodman/kaf/kbin"

// Each request/response pair below implements Request/Response against the
// primitives in kbin. Every type defaults to version 0 of its schema; most
// only need version 0 to satisfy the spec's "version-compatible with...at
// least protocol version 0 of each API" contract (spec §6).

// ---- Metadata ----

type MetadataRequestTopic struct {
	Topic string
}

type MetadataRequest struct {
	version int16
	Topics  []MetadataRequestTopic // nil means "all topics"
}

func (r *MetadataRequest) Key() int16         { return MetadataKey }
func (r *MetadataRequest) Version() int16     { return r.version }
func (r *MetadataRequest) SetVersion(v int16) { r.version = v }
func (r *MetadataRequest) MaxVersion() int16  { return 1 }
func (r *MetadataRequest) ResponseKind() Response { return new(MetadataResponse) }

func (r *MetadataRequest) AppendTo(dst []byte) []byte {
	if r.Topics == nil {
		return kbin.AppendInt32(dst, -1)
	}
	dst = kbin.AppendArrayLen(dst, len(r.Topics))
	for _, t := range r.Topics {
		dst = kbin.AppendString(dst, t.Topic)
	}
	return dst
}

type MetadataResponseBroker struct {
	NodeID int32
	Host   string
	Port   int32
}

type MetadataResponsePartition struct {
	ErrorCode int16
	Partition int32
	Leader    int32
	Replicas  []int32
	ISR       []int32
}

type MetadataResponseTopic struct {
	ErrorCode  int16
	Topic      string
	Partitions []MetadataResponsePartition
}

type MetadataResponse struct {
	version      int16
	Brokers      []MetadataResponseBroker
	ControllerID int32
	Topics       []MetadataResponseTopic
}

func (r *MetadataResponse) Key() int16         { return MetadataKey }
func (r *MetadataResponse) Version() int16     { return r.version }
func (r *MetadataResponse) SetVersion(v int16) { r.version = v }

func (r *MetadataResponse) ReadFrom(src []byte) error {
	b := &kbin.Reader{Src: src}
	nb, _ := b.ArrayLen()
	r.Brokers = make([]MetadataResponseBroker, nb)
	for i := range r.Brokers {
		r.Brokers[i] = MetadataResponseBroker{
			NodeID: b.Int32(),
			Host:   b.String(),
			Port:   b.Int32(),
		}
	}
	if r.version >= 1 {
		r.ControllerID = b.Int32()
	} else {
		r.ControllerID = -1
	}
	nt, _ := b.ArrayLen()
	r.Topics = make([]MetadataResponseTopic, nt)
	for i := range r.Topics {
		t := &r.Topics[i]
		t.ErrorCode = b.Int16()
		t.Topic = b.String()
		np, _ := b.ArrayLen()
		t.Partitions = make([]MetadataResponsePartition, np)
		for j := range t.Partitions {
			p := &t.Partitions[j]
			p.ErrorCode = b.Int16()
			p.Partition = b.Int32()
			p.Leader = b.Int32()
			nr, _ := b.ArrayLen()
			p.Replicas = make([]int32, nr)
			for k := range p.Replicas {
				p.Replicas[k] = b.Int32()
			}
			ni, _ := b.ArrayLen()
			p.ISR = make([]int32, ni)
			for k := range p.ISR {
				p.ISR[k] = b.Int32()
			}
		}
	}
	return b.Complete()
}

// ---- Produce ----

type ProduceRequestPartition struct {
	Partition int32
	RecordSet MessageSet
}

type ProduceRequestTopic struct {
	Topic      string
	Partitions []ProduceRequestPartition
}

type ProduceRequest struct {
	version      int16
	Acks         int16
	TimeoutMillis int32
	Topics       []ProduceRequestTopic
}

func (r *ProduceRequest) Key() int16         { return ProduceKey }
func (r *ProduceRequest) Version() int16     { return r.version }
func (r *ProduceRequest) SetVersion(v int16) { r.version = v }
func (r *ProduceRequest) MaxVersion() int16  { return 0 }
func (r *ProduceRequest) ResponseKind() Response { return new(ProduceResponse) }

func (r *ProduceRequest) AppendTo(dst []byte) []byte {
	dst = kbin.AppendInt16(dst, r.Acks)
	dst = kbin.AppendInt32(dst, r.TimeoutMillis)
	dst = kbin.AppendArrayLen(dst, len(r.Topics))
	for _, t := range r.Topics {
		dst = kbin.AppendString(dst, t.Topic)
		dst = kbin.AppendArrayLen(dst, len(t.Partitions))
		for _, p := range t.Partitions {
			dst = kbin.AppendInt32(dst, p.Partition)
			setBytes := p.RecordSet.AppendTo(nil)
			dst = kbin.AppendBytes(dst, setBytes)
		}
	}
	return dst
}

type ProduceResponsePartition struct {
	Partition int32
	ErrorCode int16
	BaseOffset int64
}

type ProduceResponseTopic struct {
	Topic      string
	Partitions []ProduceResponsePartition
}

type ProduceResponse struct {
	version         int16
	Topics          []ProduceResponseTopic
	ThrottleTimeMillis int32
}

func (r *ProduceResponse) Key() int16         { return ProduceKey }
func (r *ProduceResponse) Version() int16     { return r.version }
func (r *ProduceResponse) SetVersion(v int16) { r.version = v }
func (r *ProduceResponse) Throttle() int32    { return r.ThrottleTimeMillis }

func (r *ProduceResponse) ReadFrom(src []byte) error {
	b := &kbin.Reader{Src: src}
	nt, _ := b.ArrayLen()
	r.Topics = make([]ProduceResponseTopic, nt)
	for i := range r.Topics {
		t := &r.Topics[i]
		t.Topic = b.String()
		np, _ := b.ArrayLen()
		t.Partitions = make([]ProduceResponsePartition, np)
		for j := range t.Partitions {
			p := &t.Partitions[j]
			p.Partition = b.Int32()
			p.ErrorCode = b.Int16()
			p.BaseOffset = b.Int64()
		}
	}
	if r.version >= 1 {
		r.ThrottleTimeMillis = b.Int32()
	}
	return b.Complete()
}

// ---- Fetch ----

type FetchRequestPartition struct {
	Partition   int32
	FetchOffset int64
	MaxBytes    int32
}

type FetchRequestTopic struct {
	Topic      string
	Partitions []FetchRequestPartition
}

type FetchRequest struct {
	version       int16
	ReplicaID     int32
	MaxWaitMillis int32
	MinBytes      int32
	Topics        []FetchRequestTopic
}

func (r *FetchRequest) Key() int16         { return FetchKey }
func (r *FetchRequest) Version() int16     { return r.version }
func (r *FetchRequest) SetVersion(v int16) { r.version = v }
func (r *FetchRequest) MaxVersion() int16  { return 0 }
func (r *FetchRequest) ResponseKind() Response { return new(FetchResponse) }

func (r *FetchRequest) AppendTo(dst []byte) []byte {
	dst = kbin.AppendInt32(dst, r.ReplicaID)
	dst = kbin.AppendInt32(dst, r.MaxWaitMillis)
	dst = kbin.AppendInt32(dst, r.MinBytes)
	dst = kbin.AppendArrayLen(dst, len(r.Topics))
	for _, t := range r.Topics {
		dst = kbin.AppendString(dst, t.Topic)
		dst = kbin.AppendArrayLen(dst, len(t.Partitions))
		for _, p := range t.Partitions {
			dst = kbin.AppendInt32(dst, p.Partition)
			dst = kbin.AppendInt64(dst, p.FetchOffset)
			dst = kbin.AppendInt32(dst, p.MaxBytes)
		}
	}
	return dst
}

type FetchResponsePartition struct {
	Partition     int32
	ErrorCode     int16
	HighWatermark int64
	RecordSet     MessageSet
}

type FetchResponseTopic struct {
	Topic      string
	Partitions []FetchResponsePartition
}

type FetchResponse struct {
	version            int16
	ThrottleTimeMillis int32
	Topics             []FetchResponseTopic
}

func (r *FetchResponse) Key() int16         { return FetchKey }
func (r *FetchResponse) Version() int16     { return r.version }
func (r *FetchResponse) SetVersion(v int16) { r.version = v }
func (r *FetchResponse) Throttle() int32    { return r.ThrottleTimeMillis }

func (r *FetchResponse) ReadFrom(src []byte) error {
	b := &kbin.Reader{Src: src}
	if r.version >= 1 {
		r.ThrottleTimeMillis = b.Int32()
	}
	nt, _ := b.ArrayLen()
	r.Topics = make([]FetchResponseTopic, nt)
	for i := range r.Topics {
		t := &r.Topics[i]
		t.Topic = b.String()
		np, _ := b.ArrayLen()
		t.Partitions = make([]FetchResponsePartition, np)
		for j := range t.Partitions {
			p := &t.Partitions[j]
			p.Partition = b.Int32()
			p.ErrorCode = b.Int16()
			p.HighWatermark = b.Int64()
			setBytes := b.Bytes()
			if err := b.Err(); err != nil {
				return err
			}
			ms, err := ReadMessageSet(setBytes)
			if err != nil {
				return err
			}
			p.RecordSet = ms
		}
	}
	return b.Complete()
}

// ---- ListOffsets ----

type ListOffsetsRequestPartition struct {
	Partition int32
	Timestamp int64
	MaxNumOffsets int32
}

type ListOffsetsRequestTopic struct {
	Topic      string
	Partitions []ListOffsetsRequestPartition
}

type ListOffsetsRequest struct {
	version   int16
	ReplicaID int32
	Topics    []ListOffsetsRequestTopic
}

func (r *ListOffsetsRequest) Key() int16         { return ListOffsetsKey }
func (r *ListOffsetsRequest) Version() int16     { return r.version }
func (r *ListOffsetsRequest) SetVersion(v int16) { r.version = v }
func (r *ListOffsetsRequest) MaxVersion() int16  { return 0 }
func (r *ListOffsetsRequest) ResponseKind() Response { return new(ListOffsetsResponse) }

func (r *ListOffsetsRequest) AppendTo(dst []byte) []byte {
	dst = kbin.AppendInt32(dst, r.ReplicaID)
	dst = kbin.AppendArrayLen(dst, len(r.Topics))
	for _, t := range r.Topics {
		dst = kbin.AppendString(dst, t.Topic)
		dst = kbin.AppendArrayLen(dst, len(t.Partitions))
		for _, p := range t.Partitions {
			dst = kbin.AppendInt32(dst, p.Partition)
			dst = kbin.AppendInt64(dst, p.Timestamp)
			dst = kbin.AppendInt32(dst, p.MaxNumOffsets)
		}
	}
	return dst
}

type ListOffsetsResponsePartition struct {
	Partition int32
	ErrorCode int16
	Offsets   []int64
}

type ListOffsetsResponseTopic struct {
	Topic      string
	Partitions []ListOffsetsResponsePartition
}

type ListOffsetsResponse struct {
	version int16
	Topics  []ListOffsetsResponseTopic
}

func (r *ListOffsetsResponse) Key() int16         { return ListOffsetsKey }
func (r *ListOffsetsResponse) Version() int16     { return r.version }
func (r *ListOffsetsResponse) SetVersion(v int16) { r.version = v }

func (r *ListOffsetsResponse) ReadFrom(src []byte) error {
	b := &kbin.Reader{Src: src}
	nt, _ := b.ArrayLen()
	r.Topics = make([]ListOffsetsResponseTopic, nt)
	for i := range r.Topics {
		t := &r.Topics[i]
		t.Topic = b.String()
		np, _ := b.ArrayLen()
		t.Partitions = make([]ListOffsetsResponsePartition, np)
		for j := range t.Partitions {
			p := &t.Partitions[j]
			p.Partition = b.Int32()
			p.ErrorCode = b.Int16()
			no, _ := b.ArrayLen()
			p.Offsets = make([]int64, no)
			for k := range p.Offsets {
				p.Offsets[k] = b.Int64()
			}
		}
	}
	return b.Complete()
}

// ---- GroupCoordinator ----

type GroupCoordinatorRequest struct {
	version int16
	GroupID string
}

func (r *GroupCoordinatorRequest) Key() int16         { return GroupCoordinatorKey }
func (r *GroupCoordinatorRequest) Version() int16     { return r.version }
func (r *GroupCoordinatorRequest) SetVersion(v int16) { r.version = v }
func (r *GroupCoordinatorRequest) MaxVersion() int16  { return 0 }
func (r *GroupCoordinatorRequest) ResponseKind() Response { return new(GroupCoordinatorResponse) }

func (r *GroupCoordinatorRequest) AppendTo(dst []byte) []byte {
	return kbin.AppendString(dst, r.GroupID)
}

type GroupCoordinatorResponse struct {
	version       int16
	ErrorCode     int16
	CoordinatorID int32
	Host          string
	Port          int32
}

func (r *GroupCoordinatorResponse) Key() int16         { return GroupCoordinatorKey }
func (r *GroupCoordinatorResponse) Version() int16     { return r.version }
func (r *GroupCoordinatorResponse) SetVersion(v int16) { r.version = v }

func (r *GroupCoordinatorResponse) ReadFrom(src []byte) error {
	b := &kbin.Reader{Src: src}
	r.ErrorCode = b.Int16()
	r.CoordinatorID = b.Int32()
	r.Host = b.String()
	r.Port = b.Int32()
	return b.Complete()
}

// ---- OffsetCommit ----

type OffsetCommitRequestPartition struct {
	Partition int32
	Offset    int64
	Metadata  string
}

type OffsetCommitRequestTopic struct {
	Topic      string
	Partitions []OffsetCommitRequestPartition
}

type OffsetCommitRequest struct {
	version      int16
	GroupID      string
	GenerationID int32
	MemberID     string
	Topics       []OffsetCommitRequestTopic
}

func (r *OffsetCommitRequest) Key() int16         { return OffsetCommitKey }
func (r *OffsetCommitRequest) Version() int16     { return r.version }
func (r *OffsetCommitRequest) SetVersion(v int16) { r.version = v }
func (r *OffsetCommitRequest) MaxVersion() int16  { return 2 }
func (r *OffsetCommitRequest) ResponseKind() Response { return new(OffsetCommitResponse) }

func (r *OffsetCommitRequest) AppendTo(dst []byte) []byte {
	dst = kbin.AppendString(dst, r.GroupID)
	if r.version >= 1 {
		dst = kbin.AppendInt32(dst, r.GenerationID)
		dst = kbin.AppendString(dst, r.MemberID)
	}
	dst = kbin.AppendArrayLen(dst, len(r.Topics))
	for _, t := range r.Topics {
		dst = kbin.AppendString(dst, t.Topic)
		dst = kbin.AppendArrayLen(dst, len(t.Partitions))
		for _, p := range t.Partitions {
			dst = kbin.AppendInt32(dst, p.Partition)
			dst = kbin.AppendInt64(dst, p.Offset)
			dst = kbin.AppendString(dst, p.Metadata)
		}
	}
	return dst
}

type OffsetCommitResponsePartition struct {
	Partition int32
	ErrorCode int16
}

type OffsetCommitResponseTopic struct {
	Topic      string
	Partitions []OffsetCommitResponsePartition
}

type OffsetCommitResponse struct {
	version int16
	Topics  []OffsetCommitResponseTopic
}

func (r *OffsetCommitResponse) Key() int16         { return OffsetCommitKey }
func (r *OffsetCommitResponse) Version() int16     { return r.version }
func (r *OffsetCommitResponse) SetVersion(v int16) { r.version = v }

func (r *OffsetCommitResponse) ReadFrom(src []byte) error {
	b := &kbin.Reader{Src: src}
	nt, _ := b.ArrayLen()
	r.Topics = make([]OffsetCommitResponseTopic, nt)
	for i := range r.Topics {
		t := &r.Topics[i]
		t.Topic = b.String()
		np, _ := b.ArrayLen()
		t.Partitions = make([]OffsetCommitResponsePartition, np)
		for j := range t.Partitions {
			t.Partitions[j].Partition = b.Int32()
			t.Partitions[j].ErrorCode = b.Int16()
		}
	}
	return b.Complete()
}

// ---- OffsetFetch ----

type OffsetFetchRequestTopic struct {
	Topic      string
	Partitions []int32
}

type OffsetFetchRequest struct {
	version int16
	GroupID string
	Topics  []OffsetFetchRequestTopic
}

func (r *OffsetFetchRequest) Key() int16         { return OffsetFetchKey }
func (r *OffsetFetchRequest) Version() int16     { return r.version }
func (r *OffsetFetchRequest) SetVersion(v int16) { r.version = v }
func (r *OffsetFetchRequest) MaxVersion() int16  { return 1 }
func (r *OffsetFetchRequest) ResponseKind() Response { return new(OffsetFetchResponse) }

func (r *OffsetFetchRequest) AppendTo(dst []byte) []byte {
	dst = kbin.AppendString(dst, r.GroupID)
	dst = kbin.AppendArrayLen(dst, len(r.Topics))
	for _, t := range r.Topics {
		dst = kbin.AppendString(dst, t.Topic)
		dst = kbin.AppendArrayLen(dst, len(t.Partitions))
		for _, p := range t.Partitions {
			dst = kbin.AppendInt32(dst, p)
		}
	}
	return dst
}

type OffsetFetchResponsePartition struct {
	Partition int32
	Offset    int64
	Metadata  string
	ErrorCode int16
}

type OffsetFetchResponseTopic struct {
	Topic      string
	Partitions []OffsetFetchResponsePartition
}

type OffsetFetchResponse struct {
	version int16
	Topics  []OffsetFetchResponseTopic
}

func (r *OffsetFetchResponse) Key() int16         { return OffsetFetchKey }
func (r *OffsetFetchResponse) Version() int16     { return r.version }
func (r *OffsetFetchResponse) SetVersion(v int16) { r.version = v }

func (r *OffsetFetchResponse) ReadFrom(src []byte) error {
	b := &kbin.Reader{Src: src}
	nt, _ := b.ArrayLen()
	r.Topics = make([]OffsetFetchResponseTopic, nt)
	for i := range r.Topics {
		t := &r.Topics[i]
		t.Topic = b.String()
		np, _ := b.ArrayLen()
		t.Partitions = make([]OffsetFetchResponsePartition, np)
		for j := range t.Partitions {
			p := &t.Partitions[j]
			p.Partition = b.Int32()
			p.Offset = b.Int64()
			p.Metadata = b.String()
			p.ErrorCode = b.Int16()
		}
	}
	return b.Complete()
}

// ---- JoinGroup ----

type JoinGroupRequestProtocol struct {
	Name     string
	Metadata []byte
}

type JoinGroupRequest struct {
	version                int16
	GroupID                string
	SessionTimeoutMillis   int32
	RebalanceTimeoutMillis int32
	MemberID               string
	ProtocolType           string
	Protocols              []JoinGroupRequestProtocol
}

func (r *JoinGroupRequest) Key() int16         { return JoinGroupKey }
func (r *JoinGroupRequest) Version() int16     { return r.version }
func (r *JoinGroupRequest) SetVersion(v int16) { r.version = v }
func (r *JoinGroupRequest) MaxVersion() int16  { return 1 }
func (r *JoinGroupRequest) ResponseKind() Response { return new(JoinGroupResponse) }

func (r *JoinGroupRequest) AppendTo(dst []byte) []byte {
	dst = kbin.AppendString(dst, r.GroupID)
	dst = kbin.AppendInt32(dst, r.SessionTimeoutMillis)
	if r.version >= 1 {
		dst = kbin.AppendInt32(dst, r.RebalanceTimeoutMillis)
	}
	dst = kbin.AppendString(dst, r.MemberID)
	dst = kbin.AppendString(dst, r.ProtocolType)
	dst = kbin.AppendArrayLen(dst, len(r.Protocols))
	for _, p := range r.Protocols {
		dst = kbin.AppendString(dst, p.Name)
		dst = kbin.AppendBytes(dst, p.Metadata)
	}
	return dst
}

type JoinGroupResponseMember struct {
	MemberID string
	Metadata []byte
}

type JoinGroupResponse struct {
	version      int16
	ErrorCode    int16
	GenerationID int32
	ProtocolName string
	LeaderID     string
	MemberID     string
	Members      []JoinGroupResponseMember
}

func (r *JoinGroupResponse) Key() int16         { return JoinGroupKey }
func (r *JoinGroupResponse) Version() int16     { return r.version }
func (r *JoinGroupResponse) SetVersion(v int16) { r.version = v }

func (r *JoinGroupResponse) ReadFrom(src []byte) error {
	b := &kbin.Reader{Src: src}
	r.ErrorCode = b.Int16()
	r.GenerationID = b.Int32()
	r.ProtocolName = b.String()
	r.LeaderID = b.String()
	r.MemberID = b.String()
	nm, _ := b.ArrayLen()
	r.Members = make([]JoinGroupResponseMember, nm)
	for i := range r.Members {
		r.Members[i].MemberID = b.String()
		r.Members[i].Metadata = b.Bytes()
	}
	return b.Complete()
}

// IsLeader reports whether this response names the caller as the group
// leader responsible for computing the assignment (spec §4.F Joining).
func (r *JoinGroupResponse) IsLeader() bool { return r.LeaderID == r.MemberID }

// ---- SyncGroup ----

type SyncGroupRequestAssignment struct {
	MemberID   string
	Assignment []byte
}

type SyncGroupRequest struct {
	version      int16
	GroupID      string
	GenerationID int32
	MemberID     string
	Assignments  []SyncGroupRequestAssignment
}

func (r *SyncGroupRequest) Key() int16         { return SyncGroupKey }
func (r *SyncGroupRequest) Version() int16     { return r.version }
func (r *SyncGroupRequest) SetVersion(v int16) { r.version = v }
func (r *SyncGroupRequest) MaxVersion() int16  { return 0 }
func (r *SyncGroupRequest) ResponseKind() Response { return new(SyncGroupResponse) }

func (r *SyncGroupRequest) AppendTo(dst []byte) []byte {
	dst = kbin.AppendString(dst, r.GroupID)
	dst = kbin.AppendInt32(dst, r.GenerationID)
	dst = kbin.AppendString(dst, r.MemberID)
	dst = kbin.AppendArrayLen(dst, len(r.Assignments))
	for _, a := range r.Assignments {
		dst = kbin.AppendString(dst, a.MemberID)
		dst = kbin.AppendBytes(dst, a.Assignment)
	}
	return dst
}

type SyncGroupResponse struct {
	version    int16
	ErrorCode  int16
	Assignment []byte
}

func (r *SyncGroupResponse) Key() int16         { return SyncGroupKey }
func (r *SyncGroupResponse) Version() int16     { return r.version }
func (r *SyncGroupResponse) SetVersion(v int16) { r.version = v }

func (r *SyncGroupResponse) ReadFrom(src []byte) error {
	b := &kbin.Reader{Src: src}
	r.ErrorCode = b.Int16()
	r.Assignment = b.Bytes()
	return b.Complete()
}

// ---- Heartbeat ----

type HeartbeatRequest struct {
	version      int16
	GroupID      string
	GenerationID int32
	MemberID     string
}

func (r *HeartbeatRequest) Key() int16         { return HeartbeatKey }
func (r *HeartbeatRequest) Version() int16     { return r.version }
func (r *HeartbeatRequest) SetVersion(v int16) { r.version = v }
func (r *HeartbeatRequest) MaxVersion() int16  { return 0 }
func (r *HeartbeatRequest) ResponseKind() Response { return new(HeartbeatResponse) }

func (r *HeartbeatRequest) AppendTo(dst []byte) []byte {
	dst = kbin.AppendString(dst, r.GroupID)
	dst = kbin.AppendInt32(dst, r.GenerationID)
	dst = kbin.AppendString(dst, r.MemberID)
	return dst
}

type HeartbeatResponse struct {
	version   int16
	ErrorCode int16
}

func (r *HeartbeatResponse) Key() int16         { return HeartbeatKey }
func (r *HeartbeatResponse) Version() int16     { return r.version }
func (r *HeartbeatResponse) SetVersion(v int16) { r.version = v }

func (r *HeartbeatResponse) ReadFrom(src []byte) error {
	b := &kbin.Reader{Src: src}
	r.ErrorCode = b.Int16()
	return b.Complete()
}

// ---- LeaveGroup ----

type LeaveGroupRequest struct {
	version  int16
	GroupID  string
	MemberID string
}

func (r *LeaveGroupRequest) Key() int16         { return LeaveGroupKey }
func (r *LeaveGroupRequest) Version() int16     { return r.version }
func (r *LeaveGroupRequest) SetVersion(v int16) { r.version = v }
func (r *LeaveGroupRequest) MaxVersion() int16  { return 0 }
func (r *LeaveGroupRequest) ResponseKind() Response { return new(LeaveGroupResponse) }

func (r *LeaveGroupRequest) AppendTo(dst []byte) []byte {
	dst = kbin.AppendString(dst, r.GroupID)
	dst = kbin.AppendString(dst, r.MemberID)
	return dst
}

type LeaveGroupResponse struct {
	version   int16
	ErrorCode int16
}

func (r *LeaveGroupResponse) Key() int16         { return LeaveGroupKey }
func (r *LeaveGroupResponse) Version() int16     { return r.version }
func (r *LeaveGroupResponse) SetVersion(v int16) { r.version = v }

func (r *LeaveGroupResponse) ReadFrom(src []byte) error {
	b := &kbin.Reader{Src: src}
	r.ErrorCode = b.Int16()
	return b.Complete()
}

// ---- ListGroups ----

type ListGroupsRequest struct {
	version int16
}

func (r *ListGroupsRequest) Key() int16         { return ListGroupsKey }
func (r *ListGroupsRequest) Version() int16     { return r.version }
func (r *ListGroupsRequest) SetVersion(v int16) { r.version = v }
func (r *ListGroupsRequest) MaxVersion() int16  { return 0 }
func (r *ListGroupsRequest) ResponseKind() Response { return new(ListGroupsResponse) }
func (r *ListGroupsRequest) AppendTo(dst []byte) []byte { return dst }

type ListGroupsResponseGroup struct {
	GroupID      string
	ProtocolType string
}

type ListGroupsResponse struct {
	version   int16
	ErrorCode int16
	Groups    []ListGroupsResponseGroup
}

func (r *ListGroupsResponse) Key() int16         { return ListGroupsKey }
func (r *ListGroupsResponse) Version() int16     { return r.version }
func (r *ListGroupsResponse) SetVersion(v int16) { r.version = v }

func (r *ListGroupsResponse) ReadFrom(src []byte) error {
	b := &kbin.Reader{Src: src}
	r.ErrorCode = b.Int16()
	ng, _ := b.ArrayLen()
	r.Groups = make([]ListGroupsResponseGroup, ng)
	for i := range r.Groups {
		r.Groups[i].GroupID = b.String()
		r.Groups[i].ProtocolType = b.String()
	}
	return b.Complete()
}

// ---- DescribeGroups ----

type DescribeGroupsRequest struct {
	version  int16
	GroupIDs []string
}

func (r *DescribeGroupsRequest) Key() int16         { return DescribeGroupsKey }
func (r *DescribeGroupsRequest) Version() int16     { return r.version }
func (r *DescribeGroupsRequest) SetVersion(v int16) { r.version = v }
func (r *DescribeGroupsRequest) MaxVersion() int16  { return 0 }
func (r *DescribeGroupsRequest) ResponseKind() Response { return new(DescribeGroupsResponse) }

func (r *DescribeGroupsRequest) AppendTo(dst []byte) []byte {
	dst = kbin.AppendArrayLen(dst, len(r.GroupIDs))
	for _, g := range r.GroupIDs {
		dst = kbin.AppendString(dst, g)
	}
	return dst
}

type DescribeGroupsResponseMember struct {
	MemberID         string
	ClientID         string
	ClientHost       string
	MemberMetadata   []byte
	MemberAssignment []byte
}

type DescribeGroupsResponseGroup struct {
	ErrorCode    int16
	GroupID      string
	State        string
	ProtocolType string
	Protocol     string
	Members      []DescribeGroupsResponseMember
}

type DescribeGroupsResponse struct {
	version int16
	Groups  []DescribeGroupsResponseGroup
}

func (r *DescribeGroupsResponse) Key() int16         { return DescribeGroupsKey }
func (r *DescribeGroupsResponse) Version() int16     { return r.version }
func (r *DescribeGroupsResponse) SetVersion(v int16) { r.version = v }

func (r *DescribeGroupsResponse) ReadFrom(src []byte) error {
	b := &kbin.Reader{Src: src}
	ng, _ := b.ArrayLen()
	r.Groups = make([]DescribeGroupsResponseGroup, ng)
	for i := range r.Groups {
		g := &r.Groups[i]
		g.ErrorCode = b.Int16()
		g.GroupID = b.String()
		g.State = b.String()
		g.ProtocolType = b.String()
		g.Protocol = b.String()
		nm, _ := b.ArrayLen()
		g.Members = make([]DescribeGroupsResponseMember, nm)
		for j := range g.Members {
			m := &g.Members[j]
			m.MemberID = b.String()
			m.ClientID = b.String()
			m.ClientHost = b.String()
			m.MemberMetadata = b.Bytes()
			m.MemberAssignment = b.Bytes()
		}
	}
	return b.Complete()
}
