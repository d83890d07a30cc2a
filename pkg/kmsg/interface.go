// Package kmsg contains the wire-level request and response types for the
// subset of the Kafka protocol this client speaks, plus the version
// negotiation logic used to pick which request version to send to a given
// broker.
package kmsg

import "github.com/twmb/kreq/pkg/kbin"

// ApiKey identifies a Kafka request schema.
type ApiKey = int16

// The API keys this client speaks. Values match the Kafka wire protocol.
const (
	Produce          ApiKey = 0
	Fetch            ApiKey = 1
	Offset           ApiKey = 2
	Metadata         ApiKey = 3
	OffsetCommit     ApiKey = 8
	OffsetFetch      ApiKey = 9
	GroupCoordinator ApiKey = 10
	JoinGroup        ApiKey = 11
	Heartbeat        ApiKey = 12
	LeaveGroup       ApiKey = 13
	SyncGroup        ApiKey = 14
	DescribeGroups   ApiKey = 15
	ListGroups       ApiKey = 16
	SaslHandshake    ApiKey = 17
	ApiVersions      ApiKey = 18
	CreateTopics     ApiKey = 19
	DeleteTopics     ApiKey = 20
	DeleteRecords    ApiKey = 21
	CreatePartitions ApiKey = 37
	AlterConfigs     ApiKey = 33
	DescribeConfigs  ApiKey = 32
)

// MaxKey is the highest ApiKey this package knows the name of. It exists
// so a caller can size a [MaxKey+1]int16 version table; the negotiator
// itself keeps its table in a map.
const MaxKey = CreatePartitions

// Request is a type that can be issued to Kafka.
type Request interface {
	// Key returns the protocol API key for this message kind.
	Key() ApiKey
	// MinVersion returns the lowest protocol version this type supports
	// encoding.
	MinVersion() int16
	// MaxVersion returns the highest protocol version this type
	// supports encoding.
	MaxVersion() int16
	// SetVersion pins the version to encode as; it must be within
	// [MinVersion, MaxVersion].
	SetVersion(int16)
	// GetVersion returns the version currently pinned.
	GetVersion() int16
	// AppendTo appends this request's body (not the shared request
	// header) in wire form to dst, returning the grown slice.
	AppendTo(dst []byte) []byte
	// ResponseKind returns a zero-valued Response of the kind this
	// request expects in reply.
	ResponseKind() Response
}

// Response is a type Kafka replies with.
type Response interface {
	// ReadFrom parses src (the response body, header already stripped)
	// into the response. Insufficient bytes are an error; bytes left
	// over after the last field are not checked.
	ReadFrom(src []byte) error
}

// AdminRequest marks requests that must be routed to the cluster
// controller.
type AdminRequest interface {
	IsAdminRequest()
	Request
}

// CoordinatorScopedRequest marks requests that must be routed to a
// consumer group's coordinator broker.
type CoordinatorScopedRequest interface {
	IsGroupCoordinatorRequest()
	Request
}

// ThrottleResponse is implemented by any response carrying a
// throttle_time_ms field, allowing generic throttle observation.
type ThrottleResponse interface {
	Throttle() (millis int32)
}

// VersionedResponse is implemented by response types whose decode layout
// changes across protocol versions (Offset, OffsetFetch, Produce). The
// caller must call SetDecodeVersion with the negotiated request version
// before ReadFrom, or the response decodes as though it were version 0.
type VersionedResponse interface {
	Response
	SetDecodeVersion(version int16)
}

// AppendRequestHeader appends the shared Kafka request header (ApiKey,
// ApiVersion, CorrelationId, ClientId) ahead of a request's own body.
func AppendRequestHeader(dst []byte, key ApiKey, version int16, correlationID int32, clientID *string) []byte {
	var w kbin.Writer
	w.Int16(key)
	w.Int16(version)
	w.Int32(correlationID)
	w.NullableString(clientID)
	return append(dst, w.Bytes()...)
}

// AppendRequest renders the complete on-wire request: a reserved 4-byte
// length, the shared header, and the request's own AppendTo body. The
// length placeholder is back-patched once the full size is known, per the
// deferred length back-patching strategy used throughout this package.
func AppendRequest(dst []byte, r Request, correlationID int32, clientID *string) []byte {
	w := kbin.NewWriter(dst)
	res := w.Reserve()
	start := w.Len()
	w.Raw(AppendRequestHeader(nil, r.Key(), r.GetVersion(), correlationID, clientID))
	w.Raw(r.AppendTo(nil))
	w.Fill(res, int32(w.Len()-start))
	return w.Bytes()
}
