package kgo

import "fmt"

// Sentinel and structured errors matching the taxonomy in spec §7. These are
// concrete values/types, not a generic wrapping framework, per the teacher's
// style.
var (
	// ErrBrokerDead is returned to any request queued on, or later sent
	// to, a broker that has been permanently stopped. Requests already
	// written to its connection fail with ErrConnDead instead.
	ErrBrokerDead = fmt.Errorf("kgo: broker has been stopped")

	// ErrConnDead is a ConnectionError (spec §7.2): the connection's I/O
	// failed or hit unexpected EOF; every pending request on it
	// completes with this error and the connection is replaced.
	ErrConnDead = fmt.Errorf("kgo: connection is dead")

	// ErrCorrelationIDMismatch is a ProtocolError (spec §7.1): the
	// response frame's correlation_id did not match the request that was
	// waiting for it.
	ErrCorrelationIDMismatch = fmt.Errorf("kgo: correlation ID mismatch")

	// ErrInvalidRespSize is a ProtocolError: the 4-byte length prefix on
	// a response frame was negative.
	ErrInvalidRespSize = fmt.Errorf("kgo: invalid negative response size")

	// ErrNoLeader is returned by the cluster model when a partition has
	// no routable leader after exhausting the refresh/retry budget (spec
	// §3 "leader = -1 means no leader available").
	ErrNoLeader = fmt.Errorf("kgo: partition has no leader available")

	// ErrTimedOut marks a per-partition result abandoned because the
	// caller's overall deadline elapsed (spec §5 Cancellation & timeouts).
	ErrTimedOut = fmt.Errorf("kgo: operation timed out")
)

// ErrLargeRespSize is a ConnectionError: the broker declared a response
// larger than this client's configured read limit.
type ErrLargeRespSize struct {
	Size  int32
	Limit int32
}

func (e *ErrLargeRespSize) Error() string {
	return fmt.Sprintf("kgo: broker response size %d exceeds limit %d", e.Size, e.Limit)
}

// ErrDataLoss indicates a consumer's requested offset predates the earliest
// offset retained by the broker and the client had to clamp forward (spec
// S5 offset-out-of-range recovery uses the same signal via kerr).
type ErrDataLoss struct {
	Topic        string
	Partition    int32
	RequestedAt  int64
	ClampedTo    int64
}

func (e *ErrDataLoss) Error() string {
	return fmt.Sprintf("kgo: data loss detected on %s[%d]: requested offset %d, earliest available %d",
		e.Topic, e.Partition, e.RequestedAt, e.ClampedTo)
}

// ConfigurationError reports invalid user input (spec §7.4). NewClient
// raises it for an empty or invalid broker list or unsupported options;
// Fetch raises it for a partition count of zero when dividing max_bytes
// (spec §9 Open Question b); the consumers and the Producer raise it for an
// unknown topic or a missing group setting.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string { return "kgo: configuration error: " + e.Reason }

// GroupError surfaces when the group coordinator client exhausts its retry
// budget talking to the coordinator service and the consumer transitions to
// Disconnected (spec §7.6, §4.F).
type GroupError struct {
	Group string
	Err   error
}

func (e *GroupError) Error() string {
	return fmt.Sprintf("kgo: group %q: %v", e.Group, e.Err)
}

func (e *GroupError) Unwrap() error { return e.Err }
