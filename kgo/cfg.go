package kgo

import (
	"context"
	"net"
	"time"

	"github.com/dcrodman/kaf/kcompress"
	"github.com/dcrodman/kaf/kgo/sasl"
)

// Opt configures a Client at construction time, matching the teacher's
// options pattern (functional options over a private cfg struct).
type Opt interface {
	apply(*cfg)
}

type opt struct{ fn func(*cfg) }

func (o opt) apply(c *cfg) { o.fn(c) }

// cfg holds every recognized configuration option (spec §6 table, plus the
// ambient options the engine needs).
type cfg struct {
	seedBrokers []string
	clientID    string
	dialFn      func(ctx context.Context, network, addr string) (net.Conn, error)
	logger      Logger

	maxBrokerReadBytes int32

	retries              int
	retryBackoffMin      time.Duration
	retryBackoffMax      time.Duration
	refreshRetries       int

	maxWaitMillis int32
	minBytes      int32
	maxBytes      int32

	produceCompression kcompress.Codec

	heartbeatInterval time.Duration
	sessionTimeout    time.Duration

	autocommit       bool
	autocommitPeriod time.Duration

	groupName          string
	coordinatorHosts   []string
	partitionAllocator Allocator

	isolationLevel int8

	saslMechanism sasl.Mechanism

	hookList hooks
}

func defaultCfg() cfg {
	return cfg{
		clientID: "kgo",
		dialFn: func(ctx context.Context, network, addr string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, addr)
		},
		logger: nopLogger{},

		maxBrokerReadBytes: 100 << 20,

		retries:         5,
		retryBackoffMin: 100 * time.Millisecond,
		retryBackoffMax: 2 * time.Second,
		refreshRetries:  5,

		maxWaitMillis: 500,
		minBytes:      1,
		maxBytes:      50 << 20,

		produceCompression: kcompress.CodecNone,

		heartbeatInterval: 0, // derived from sessionTimeout/3 if unset
		sessionTimeout:    10 * time.Second,

		autocommit:       true,
		autocommitPeriod: 5 * time.Second,

		partitionAllocator: RoundRobinAllocator{},
	}
}

// validate raises ConfigurationError synchronously for invalid input (spec
// §7.4): an empty seed list, a negative max_bytes, or a SASL mechanism. A
// partition count of zero is not known here; perPartitionMaxBytes rejects it
// when Fetch divides max_bytes.
func (c *cfg) validate() error {
	if len(c.seedBrokers) == 0 {
		return &ConfigurationError{Reason: "no seed brokers configured"}
	}
	if c.maxBytes < 0 {
		return &ConfigurationError{Reason: "max_bytes must be non-negative"}
	}
	// coordinatorHosts is optional: it only enables the proactive
	// peer-loss watch in joinMembership (spec §6). A group member with no
	// coordinator_hosts still runs the full broker-driven state machine
	// (spec §4.F), just without that early rebalance signal between
	// heartbeats.
	if c.saslMechanism != nil {
		return &ConfigurationError{Reason: "SASL is not implemented at the protocol level this client speaks (no SASLHandshake/SASLAuthenticate request kinds)"}
	}
	return nil
}

// perPartitionMaxBytes divides max_bytes across the partitions being
// fetched in one call (spec §6 "max_bytes" row). A zero partition count is a
// ConfigurationError rather than a divide-by-zero (spec §9 Open Question b).
func (c *cfg) perPartitionMaxBytes(numPartitions int) (int32, error) {
	if numPartitions == 0 {
		return 0, &ConfigurationError{Reason: "cannot divide max_bytes across zero partitions"}
	}
	return c.maxBytes / int32(numPartitions), nil
}

func (c *cfg) heartbeatEvery() time.Duration {
	if c.heartbeatInterval > 0 {
		return c.heartbeatInterval
	}
	return c.sessionTimeout / 3
}

// WithSeedBrokers sets the initial bootstrap broker addresses
// ("host:port"). At least one is required.
func WithSeedBrokers(addrs ...string) Opt {
	return opt{func(c *cfg) { c.seedBrokers = append(c.seedBrokers[:0], addrs...) }}
}

// WithClientID sets the client_id sent on every request header.
func WithClientID(id string) Opt {
	return opt{func(c *cfg) { c.clientID = id }}
}

// WithDialFn overrides how the client dials broker TCP connections.
func WithDialFn(fn func(ctx context.Context, network, addr string) (net.Conn, error)) Opt {
	return opt{func(c *cfg) { c.dialFn = fn }}
}

// WithLogger installs a Logger; engine components log through it instead of
// fmt.Printf.
func WithLogger(l Logger) Opt {
	return opt{func(c *cfg) { c.logger = l }}
}

// WithMaxBrokerReadBytes caps the size of a single response frame this
// client will allocate for; larger declared sizes fail with
// *ErrLargeRespSize.
func WithMaxBrokerReadBytes(n int32) Opt {
	return opt{func(c *cfg) { c.maxBrokerReadBytes = n }}
}

// WithRetries sets the retriable-local retry budget (spec §4.H).
func WithRetries(n int) Opt {
	return opt{func(c *cfg) { c.retries = n }}
}

// WithRetryBackoff sets the capped exponential backoff range (spec §4.H:
// "starting at 100ms, capped at 2s").
func WithRetryBackoff(min, max time.Duration) Opt {
	return opt{func(c *cfg) { c.retryBackoffMin, c.retryBackoffMax = min, max }}
}

// WithFetchMaxWait sets the broker-side max_wait_time for Fetch (spec §6).
func WithFetchMaxWait(d time.Duration) Opt {
	return opt{func(c *cfg) { c.maxWaitMillis = int32(d / time.Millisecond) }}
}

// WithFetchMinBytes sets the broker-side min_bytes for Fetch (spec §6).
func WithFetchMinBytes(n int32) Opt {
	return opt{func(c *cfg) { c.minBytes = n }}
}

// WithFetchMaxBytes sets the client-declared max_bytes cap, divided across
// partitions being fetched (spec §6; known imprecise per spec §9 Open
// Question b).
func WithFetchMaxBytes(n int32) Opt {
	return opt{func(c *cfg) { c.maxBytes = n }}
}

// WithProduceCompression enables transparent compression of produced
// batches under the given codec (spec §4.B "Envelope producers").
func WithProduceCompression(codec kcompress.Codec) Opt {
	return opt{func(c *cfg) { c.produceCompression = codec }}
}

// WithHeartbeatInterval overrides the default session_timeout/3 heartbeat
// cadence (spec §4.F "Heartbeat timing").
func WithHeartbeatInterval(d time.Duration) Opt {
	return opt{func(c *cfg) { c.heartbeatInterval = d }}
}

// WithSessionTimeout sets the group session timeout (spec §6).
func WithSessionTimeout(d time.Duration) Opt {
	return opt{func(c *cfg) { c.sessionTimeout = d }}
}

// WithAutocommit toggles automatic OffsetCommit for a GroupedConsumer (spec
// §6). After each Consume, a commit is sent if at least period has passed
// since the last one; a non-positive period keeps the current one.
func WithAutocommit(enabled bool, period time.Duration) Opt {
	return opt{func(c *cfg) {
		c.autocommit = enabled
		if period > 0 {
			c.autocommitPeriod = period
		}
	}}
}

// WithGroup configures group-based partition coordination (spec §4.F):
// group name, the coordinator service's hosts, and the allocator used when
// this member becomes group leader (spec §4.G).
func WithGroup(name string, coordinatorHosts []string, allocator Allocator) Opt {
	return opt{func(c *cfg) {
		c.groupName = name
		c.coordinatorHosts = append(c.coordinatorHosts[:0], coordinatorHosts...)
		if allocator != nil {
			c.partitionAllocator = allocator
		}
	}}
}

// WithIsolationLevel sets the ListOffsets isolation level (read-uncommitted
// by default; transactional semantics are out of scope per spec §1, but the
// field is threaded through since the wire schema carries it).
func WithIsolationLevel(level int8) Opt {
	return opt{func(c *cfg) { c.isolationLevel = level }}
}

// WithSASL records a SASL mechanism's credentials. This wire protocol has no
// SASLHandshake/SASLAuthenticate request kinds (spec §1 non-goal), so
// setting this always fails validate() with a ConfigurationError; the option
// exists so callers get a clear construction-time error instead of the
// credentials being silently ignored.
func WithSASL(m sasl.Mechanism) Opt {
	return opt{func(c *cfg) { c.saslMechanism = m }}
}
