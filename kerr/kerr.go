// Package kerr maps the broker's int16 error codes to Go errors and
// classifies them the way the retry/backoff policy (spec §4.H) needs:
// retriable-local, refresh-then-retry, or fatal.
package kerr

import "fmt"

// Error is a broker-returned error code (spec §7 BrokerError(code)).
type Error struct {
	Message string
	Code    int16
	// Retriable is true for errors a client may retry without any
	// corrective action (e.g. RequestTimedOut).
	Retriable bool
	// RefreshThenRetry is true for errors that indicate stale routing
	// information; the cluster model must refresh metadata (or
	// coordinator discovery) before retrying.
	RefreshThenRetry bool
}

func (e *Error) Error() string { return fmt.Sprintf("%s (code %d)", e.Message, e.Code) }

func newErr(code int16, msg string, retriable, refresh bool) *Error {
	e := &Error{Message: msg, Code: code, Retriable: retriable, RefreshThenRetry: refresh}
	byCode[code] = e
	return e
}

var byCode = make(map[int16]*Error)

// The well-known broker error codes this client must recognize (spec §4.H,
// §7). Codes not listed here surface through ErrorForCode as a generic,
// fatal *Error.
var (
	UnknownServerError             = newErr(-1, "UNKNOWN_SERVER_ERROR", false, false)
	NoError                        = newErr(0, "NONE", false, false)
	OffsetOutOfRange                = newErr(1, "OFFSET_OUT_OF_RANGE", false, false)
	CorruptMessage                 = newErr(2, "CORRUPT_MESSAGE", true, false)
	UnknownTopicOrPartition        = newErr(3, "UNKNOWN_TOPIC_OR_PARTITION", false, true)
	InvalidFetchSize               = newErr(4, "INVALID_FETCH_SIZE", false, false)
	LeaderNotAvailable             = newErr(5, "LEADER_NOT_AVAILABLE", false, true)
	NotLeaderForPartition          = newErr(6, "NOT_LEADER_FOR_PARTITION", false, true)
	RequestTimedOut                = newErr(7, "REQUEST_TIMED_OUT", true, false)
	BrokerNotAvailable             = newErr(8, "BROKER_NOT_AVAILABLE", false, true)
	MessageSizeTooLarge            = newErr(10, "MESSAGE_TOO_LARGE", false, false)
	OffsetMetadataTooLarge         = newErr(12, "OFFSET_METADATA_TOO_LARGE", false, false)
	NetworkException               = newErr(13, "NETWORK_EXCEPTION", true, false)
	GroupLoadInProgress            = newErr(14, "COORDINATOR_LOAD_IN_PROGRESS", true, false)
	GroupCoordinatorNotAvailable   = newErr(15, "COORDINATOR_NOT_AVAILABLE", false, true)
	NotCoordinatorForGroup         = newErr(16, "NOT_COORDINATOR", false, true)
	InvalidTopicException          = newErr(17, "INVALID_TOPIC_EXCEPTION", false, false)
	RecordListTooLarge             = newErr(18, "RECORD_LIST_TOO_LARGE", false, false)
	NotEnoughReplicas              = newErr(19, "NOT_ENOUGH_REPLICAS", true, false)
	NotEnoughReplicasAfterAppend   = newErr(20, "NOT_ENOUGH_REPLICAS_AFTER_APPEND", true, false)
	InvalidRequiredAcks            = newErr(21, "INVALID_REQUIRED_ACKS", false, false)
	IllegalGeneration               = newErr(22, "ILLEGAL_GENERATION", false, false)
	InconsistentGroupProtocol      = newErr(23, "INCONSISTENT_GROUP_PROTOCOL", false, false)
	InvalidGroupID                  = newErr(24, "INVALID_GROUP_ID", false, false)
	UnknownMemberID                 = newErr(25, "UNKNOWN_MEMBER_ID", false, false)
	InvalidSessionTimeout          = newErr(26, "INVALID_SESSION_TIMEOUT", false, false)
	RebalanceInProgress             = newErr(27, "REBALANCE_IN_PROGRESS", false, false)
	InvalidCommitOffsetSize        = newErr(28, "INVALID_COMMIT_OFFSET_SIZE", false, false)
	TopicAuthorizationFailed       = newErr(29, "TOPIC_AUTHORIZATION_FAILED", false, false)
	GroupAuthorizationFailed       = newErr(30, "GROUP_AUTHORIZATION_FAILED", false, false)
	UnsupportedForMessageFormat    = newErr(43, "UNSUPPORTED_FOR_MESSAGE_FORMAT", false, false)
)

// ErrorForCode converts a broker-returned error code into a Go error. A code
// of 0 returns nil. Unknown codes return a generic, fatal *Error so callers
// always get a consistent type to classify.
func ErrorForCode(code int16) error {
	if code == 0 {
		return nil
	}
	if e, ok := byCode[code]; ok {
		return e
	}
	return &Error{Message: "UNKNOWN_ERROR_CODE", Code: code}
}

// IsRetriable reports whether err (expected to have come from ErrorForCode)
// can be retried without any corrective action such as a metadata refresh.
func IsRetriable(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Retriable
}

// IsRefreshThenRetry reports whether err indicates the caller should refresh
// routing information (metadata or group-coordinator discovery) before
// retrying, per spec §4.D "Routing algorithm" and §4.H.
func IsRefreshThenRetry(err error) bool {
	e, ok := err.(*Error)
	return ok && e.RefreshThenRetry
}

// Code returns the broker error code carried by err, or 0 if err did not
// originate from ErrorForCode.
func Code(err error) int16 {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return 0
}
