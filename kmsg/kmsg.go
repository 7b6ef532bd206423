// Package kmsg is the wire codec (spec §4.A): it encodes and decodes every
// request/response kind against a schema keyed by (api_key, api_version),
// plus the embedded MessageSet format used by Produce and Fetch bodies.
//
// Every request carries a header of { api_key int16, api_version int16,
// correlation_id int32, client_id string }; every response carries
// { correlation_id int32, body }. Primitive encodings are documented on the
// kbin package.
package kmsg

import (
	"fmt"

	"github.com/dcrodman/kaf/kbin"
)

// Request is implemented by every request body kmsg knows how to encode.
type Request interface {
	// Key is the api_key identifying this request kind.
	Key() int16
	// Version is the currently-set api_version for this request.
	Version() int16
	// SetVersion pins the version this request will be encoded at. A
	// request whose version is never set is encoded at version 0.
	SetVersion(int16)
	// MaxVersion is the highest version this client's schema supports
	// for this request kind.
	MaxVersion() int16
	// AppendTo appends the request body's wire encoding (header
	// excluded) to dst and returns the extended slice.
	AppendTo(dst []byte) []byte
	// ResponseKind returns a zero-valued Response of the kind this
	// request produces, ready to have ReadFrom called on it.
	ResponseKind() Response
}

// Response is implemented by every response body kmsg knows how to decode.
type Response interface {
	Key() int16
	Version() int16
	SetVersion(int16)
	// ReadFrom decodes the response body (header already stripped) from
	// src. It must consume exactly len(src) bytes; trailing or missing
	// bytes are a ProtocolError at the caller.
	ReadFrom(src []byte) error
}

// ThrottleResponse is implemented by response kinds that carry a
// throttle_time_ms field, letting the broker connection layer report the
// throttle (to its throttle hook) without a type switch over every kind.
type ThrottleResponse interface {
	Throttle() int32
}

// The thirteen request kinds this client supports (spec §4.A), plus
// their numeric api_key. Values match the wire protocol's well-known keys.
const (
	ProduceKey          int16 = 0
	FetchKey            int16 = 1
	ListOffsetsKey      int16 = 2
	MetadataKey         int16 = 3
	OffsetCommitKey     int16 = 8
	OffsetFetchKey      int16 = 9
	GroupCoordinatorKey int16 = 10
	JoinGroupKey        int16 = 11
	HeartbeatKey        int16 = 12
	LeaveGroupKey       int16 = 13
	SyncGroupKey        int16 = 14
	DescribeGroupsKey   int16 = 15
	ListGroupsKey       int16 = 16

	// MaxKey is the highest api_key among the supported request kinds.
	MaxKey int16 = 16
)

// Header is the request/response framing envelope described in spec §4.A.
// AppendRequest/ReadResponseHeader below are the only places that touch it;
// everything else in this package deals with bodies only.
type Header struct {
	APIKey        int16
	APIVersion    int16
	CorrelationID int32
	ClientID      string
}

// AppendRequest appends a full request frame (header + body) to dst. The
// length prefix itself is the connection layer's responsibility (spec §4.C
// framing); this only produces the bytes that follow it.
func AppendRequest(dst []byte, clientID string, corrID int32, req Request) []byte {
	dst = kbin.AppendInt16(dst, req.Key())
	dst = kbin.AppendInt16(dst, req.Version())
	dst = kbin.AppendInt32(dst, corrID)
	dst = kbin.AppendString(dst, clientID)
	dst = req.AppendTo(dst)
	return dst
}

// ReadResponseHeader reads the four-byte correlation ID that prefixes every
// response body and returns the remaining bytes (the body).
func ReadResponseHeader(src []byte) (corrID int32, body []byte, err error) {
	if len(src) < 4 {
		return 0, nil, fmt.Errorf("kmsg: response shorter than header: %w", kbin.ErrNotEnoughData)
	}
	r := kbin.Reader{Src: src}
	corrID = r.Int32()
	return corrID, r.Src, nil
}

// ProtocolError is returned by Decode when a frame cannot be parsed: the
// declared length doesn't match bytes consumed, an enum value is unknown, or
// nested decompression fails (spec §4.A contract, §7.1).
type ProtocolError struct {
	APIKey  int16
	Version int16
	Err     error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("kmsg: protocol error decoding api key %d v%d: %v", e.APIKey, e.Version, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// NewRequest constructs a zero-valued request for the given api key, or nil
// if the key is not one of the thirteen supported kinds.
func NewRequest(key int16) Request {
	switch key {
	case ProduceKey:
		return new(ProduceRequest)
	case FetchKey:
		return new(FetchRequest)
	case ListOffsetsKey:
		return new(ListOffsetsRequest)
	case MetadataKey:
		return new(MetadataRequest)
	case OffsetCommitKey:
		return new(OffsetCommitRequest)
	case OffsetFetchKey:
		return new(OffsetFetchRequest)
	case GroupCoordinatorKey:
		return new(GroupCoordinatorRequest)
	case JoinGroupKey:
		return new(JoinGroupRequest)
	case HeartbeatKey:
		return new(HeartbeatRequest)
	case LeaveGroupKey:
		return new(LeaveGroupRequest)
	case SyncGroupKey:
		return new(SyncGroupRequest)
	case DescribeGroupsKey:
		return new(DescribeGroupsRequest)
	case ListGroupsKey:
		return new(ListGroupsRequest)
	}
	return nil
}

// Decode decodes a response body against the schema for (expectedAPIKey,
// expectedVersion), returning a ProtocolError if decoding fails or does not
// consume the entire buffer (spec §4.A contract).
func Decode(body []byte, expectedAPIKey, expectedVersion int16) (Response, error) {
	req := NewRequest(expectedAPIKey)
	if req == nil {
		return nil, &ProtocolError{expectedAPIKey, expectedVersion, fmt.Errorf("unknown api key %d", expectedAPIKey)}
	}
	resp := req.ResponseKind()
	resp.SetVersion(expectedVersion)
	if err := resp.ReadFrom(body); err != nil {
		return nil, &ProtocolError{expectedAPIKey, expectedVersion, err}
	}
	return resp, nil
}
