package kreq

import (
	"time"

	"github.com/twmb/kreq/pkg/kerr"
	"github.com/twmb/kreq/pkg/kmsg"
)

// BuilderConfig is everything a Builder needs to know up front. It is
// passed by value at construction time; there is no configuration loading
// behind it.
type BuilderConfig struct {
	// SocketTimeout bounds an ordinary request/response round trip and
	// is the default envelope deadline.
	SocketTimeout time.Duration

	// ApiVersionsTimeout bounds the ApiVersions handshake. It is shorter
	// than SocketTimeout because a legacy broker that does not recognize
	// the request closes the connection rather than replying, and there
	// is no point waiting a full socket timeout to learn that.
	ApiVersionsTimeout time.Duration

	// RetryCap is the default retry budget stamped onto envelopes whose
	// API does not pin its own (ApiVersions and SaslHandshake always use
	// NoRetries).
	RetryCap int

	// DisableApiVersions marks that dynamic version discovery is turned
	// off. SaslHandshake deadlines are clamped to ten seconds in that
	// mode when SocketTimeout is longer: without a version table there is
	// no way to know the broker even speaks the handshake, and a hung
	// wait against an ancient broker should fail fast.
	DisableApiVersions bool

	Clock  Clock
	Logger Logger
}

// maxSaslHandshakeWait is the deadline clamp applied to SaslHandshake
// when dynamic version discovery is disabled.
const maxSaslHandshakeWait = 10 * time.Second

// blockingGrace pads the deadline of Blocking group requests (JoinGroup,
// SyncGroup) past the session timeout, giving the coordinator time to
// respond after the session itself has elapsed.
const blockingGrace = 3 * time.Second

// produceExpiredGrace is the window granted to a Produce request whose
// first message has already expired, so the request is still sent once
// rather than failing without ever reaching the broker.
const produceExpiredGrace = 100 * time.Millisecond

// Builder is the request-construction surface of this engine: one method
// per supported API, each of which builds an Envelope with that API's
// deadline, retry, and priority rules and hands it to the broker.
//
// Every method except OffsetFetch and OffsetCommit returns the enqueued
// Envelope, or an error when nothing was sent: kerr.UnsupportedFeature
// when the broker cannot speak the request, kerr.InvalidArg when the
// arguments cannot be encoded, and kerr.PrevInProgress when the
// full-metadata suppression gate refused a duplicate. OffsetFetch
// returns a nil Envelope and a nil error when it had nothing to send;
// OffsetCommit reports whether it sent anything with a bool.
type Builder struct {
	broker Broker
	sup    *Suppressor
	cfg    BuilderConfig
}

// NewBuilder returns a Builder issuing through broker, with full-metadata
// suppression tracked in sup. A nil sup gets a fresh Suppressor; a nil
// cfg.Clock gets SystemClock; a nil cfg.Logger gets NopLogger.
func NewBuilder(broker Broker, sup *Suppressor, cfg BuilderConfig) *Builder {
	if sup == nil {
		sup = NewSuppressor()
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock
	}
	if cfg.Logger == nil {
		cfg.Logger = NopLogger
	}
	return &Builder{broker: broker, sup: sup, cfg: cfg}
}

func (b *Builder) now() time.Time { return b.cfg.Clock.Now() }

func (b *Builder) enqueue(env *Envelope) *Envelope {
	b.broker.Enqueue(env)
	return env
}

// Metadata builds and enqueues a MetadataRequest. A nil topics slice asks
// for every topic in the cluster; a non-nil empty slice asks for brokers
// only. Both of those full-cluster shapes pass through the suppression
// gate when unforced: if an identical unforced request is already in
// flight, nothing is sent and kerr.PrevInProgress is returned. A request
// with its own reply route counts as forced and bypasses the gate.
func (b *Builder) Metadata(topics []string, force bool, route *ReplyRoute, h Handler, opaque interface{}) (*Envelope, error) {
	req := &kmsg.MetadataRequest{Topics: topics}
	env := NewEnvelope(req, b.now().Add(b.cfg.SocketTimeout), b.cfg.RetryCap, route, h, opaque)
	env.Flash = true

	full := len(topics) == 0
	forced := force || route != nil
	if full && !forced {
		scope := ScopeTopics
		if topics != nil {
			scope = ScopeBrokers
		}
		if !b.sup.TryEnter(scope) {
			b.cfg.Logger.Log(LogLevelDebug, "full metadata request suppressed; an identical request is already in flight")
			return nil, kerr.PrevInProgress
		}
		env.OnTerminal = func() { b.sup.Leave(scope) }
	}
	return b.enqueue(env), nil
}

// ListOffsets builds and enqueues an OffsetRequest for the given
// partitions.
func (b *Builder) ListOffsets(partitions []kmsg.OffsetRequestTopicPartition, route *ReplyRoute, h Handler, opaque interface{}) (*Envelope, error) {
	if len(partitions) == 0 {
		return nil, kerr.InvalidArg
	}
	req := kmsg.NewOffsetRequest(partitions)
	env := NewEnvelope(req, b.now().Add(b.cfg.SocketTimeout), b.cfg.RetryCap, route, h, opaque)
	return b.enqueue(env), nil
}

// OffsetFetch builds and enqueues an OffsetFetchRequest for the
// partitions that still need one. Partitions that already carry a usable
// offset are skipped at encode time; if every partition is skipped, no
// request is sent at all and an empty successful reply is delivered to
// route synchronously instead, so the caller's queue always sees exactly
// one completion.
func (b *Builder) OffsetFetch(group string, partitions []kmsg.OffsetFetchRequestPartition, route *ReplyRoute, h Handler, opaque interface{}) (*Envelope, error) {
	if !kmsg.NeedsOffsetFetch(partitions) {
		Stamp(route).Deliver(Result{Resp: new(kmsg.OffsetFetchResponse)})
		return nil, nil
	}
	req := &kmsg.OffsetFetchRequest{Group: group, Partitions: partitions}
	env := NewEnvelope(req, b.now().Add(b.cfg.SocketTimeout), b.cfg.RetryCap, route, h, opaque)
	return b.enqueue(env), nil
}

// OffsetCommit builds and enqueues an OffsetCommitRequest for the
// partitions whose offsets are committable (non-negative). sent reports
// whether a request actually went out: when every offset is negative,
// nothing is sent, an empty successful reply is delivered to route, and
// sent is false.
func (b *Builder) OffsetCommit(group string, generationID int32, memberID string, partitions []kmsg.OffsetCommitRequestPartition, overrides []Override, route *ReplyRoute, h Handler, opaque interface{}) (env *Envelope, sent bool) {
	if !kmsg.NeedsOffsetCommit(partitions) {
		Stamp(route).Deliver(Result{Resp: new(kmsg.OffsetCommitResponse)})
		return nil, false
	}
	req := &kmsg.OffsetCommitRequest{
		Group:        group,
		GenerationID: generationID,
		MemberID:     memberID,
		Partitions:   partitions,
	}
	env = NewEnvelope(req, b.now().Add(b.cfg.SocketTimeout), b.cfg.RetryCap, route, h, opaque)
	env.Overrides = overrides
	return b.enqueue(env), true
}

// JoinGroup builds and enqueues a JoinGroupRequest. The envelope is
// Blocking: the coordinator holds the request for up to the session
// timeout during a rebalance, so the deadline is the session timeout plus
// a grace window rather than the ordinary socket timeout.
func (b *Builder) JoinGroup(req *kmsg.JoinGroupRequest, route *ReplyRoute, h Handler, opaque interface{}) (*Envelope, error) {
	deadline := b.now().Add(time.Duration(req.SessionTimeoutMs)*time.Millisecond + blockingGrace)
	env := NewEnvelope(req, deadline, b.cfg.RetryCap, route, h, opaque)
	env.Blocking = true
	return b.enqueue(env), nil
}

// SyncGroup builds and enqueues a SyncGroupRequest. Like JoinGroup it is
// Blocking, with the same session-plus-grace deadline.
func (b *Builder) SyncGroup(req *kmsg.SyncGroupRequest, sessionTimeoutMs int32, route *ReplyRoute, h Handler, opaque interface{}) (*Envelope, error) {
	deadline := b.now().Add(time.Duration(sessionTimeoutMs)*time.Millisecond + blockingGrace)
	env := NewEnvelope(req, deadline, b.cfg.RetryCap, route, h, opaque)
	env.Blocking = true
	return b.enqueue(env), nil
}

// Heartbeat builds and enqueues a HeartbeatRequest, bounded by the
// session timeout: a heartbeat that cannot complete within the session is
// worthless, the member is already considered dead.
func (b *Builder) Heartbeat(req *kmsg.HeartbeatRequest, sessionTimeoutMs int32, route *ReplyRoute, h Handler, opaque interface{}) (*Envelope, error) {
	deadline := b.now().Add(time.Duration(sessionTimeoutMs) * time.Millisecond)
	env := NewEnvelope(req, deadline, b.cfg.RetryCap, route, h, opaque)
	return b.enqueue(env), nil
}

// LeaveGroup builds and enqueues a LeaveGroupRequest.
func (b *Builder) LeaveGroup(req *kmsg.LeaveGroupRequest, route *ReplyRoute, h Handler, opaque interface{}) (*Envelope, error) {
	env := NewEnvelope(req, b.now().Add(b.cfg.SocketTimeout), b.cfg.RetryCap, route, h, opaque)
	return b.enqueue(env), nil
}

// Produce builds and enqueues a ProduceRequest carrying an already built
// message set. requiredAcks of zero flags the envelope NoResponse: the
// broker never replies, and the envelope completes as soon as the bytes
// are written.
//
// firstMessageDeadline is the expiry of the oldest message in the set and
// becomes the envelope deadline. If that moment has already passed, a
// short grace window is granted so the request is still sent once rather
// than expiring in the queue untransmitted.
func (b *Builder) Produce(topic string, partition int32, requiredAcks int16, timeoutMs int32, messageSet []byte, firstMessageDeadline time.Time, route *ReplyRoute, h Handler, opaque interface{}) (*Envelope, error) {
	if len(messageSet) == 0 {
		return nil, kerr.InvalidArg
	}
	req := &kmsg.ProduceRequest{
		RequiredAcks: requiredAcks,
		TimeoutMs:    timeoutMs,
		Topic:        topic,
		Partition:    partition,
		MessageSet:   messageSet,
	}
	deadline := firstMessageDeadline
	if now := b.now(); !deadline.After(now) {
		deadline = now.Add(produceExpiredGrace)
	}
	env := NewEnvelope(req, deadline, b.cfg.RetryCap, route, h, opaque)
	env.NoResponse = requiredAcks == 0
	env.MessageSet = messageSet
	return b.enqueue(env), nil
}

// ApiVersions builds and enqueues an ApiVersionsRequest. It is never
// retried and runs against the shortened ApiVersionsTimeout: a legacy
// broker closes the connection on an API key it does not know, so waiting
// longer or resending teaches us nothing.
func (b *Builder) ApiVersions(route *ReplyRoute, h Handler, opaque interface{}) (*Envelope, error) {
	req := &kmsg.ApiVersionsRequest{}
	env := NewEnvelope(req, b.now().Add(b.cfg.ApiVersionsTimeout), NoRetries, route, h, opaque)
	env.Flash = true
	return b.enqueue(env), nil
}

// SaslHandshake builds and enqueues a SaslHandshakeRequest. It is never
// retried. When dynamic version discovery is disabled and the socket
// timeout is long, the deadline is clamped to ten seconds.
func (b *Builder) SaslHandshake(mechanism string, route *ReplyRoute, h Handler, opaque interface{}) (*Envelope, error) {
	wait := b.cfg.SocketTimeout
	if b.cfg.DisableApiVersions && wait > maxSaslHandshakeWait {
		wait = maxSaslHandshakeWait
	}
	req := &kmsg.SaslHandshakeRequest{Mechanism: mechanism}
	env := NewEnvelope(req, b.now().Add(wait), NoRetries, route, h, opaque)
	env.Flash = true
	return b.enqueue(env), nil
}

// GroupCoordinator builds and enqueues a GroupCoordinatorRequest for the
// given group.
func (b *Builder) GroupCoordinator(group string, route *ReplyRoute, h Handler, opaque interface{}) (*Envelope, error) {
	req := &kmsg.GroupCoordinatorRequest{Group: group}
	env := NewEnvelope(req, b.now().Add(b.cfg.SocketTimeout), b.cfg.RetryCap, route, h, opaque)
	return b.enqueue(env), nil
}

// ListGroups builds and enqueues a ListGroupsRequest.
func (b *Builder) ListGroups(route *ReplyRoute, h Handler, opaque interface{}) (*Envelope, error) {
	env := NewEnvelope(&kmsg.ListGroupsRequest{}, b.now().Add(b.cfg.SocketTimeout), b.cfg.RetryCap, route, h, opaque)
	return b.enqueue(env), nil
}

// DescribeGroups builds and enqueues a DescribeGroupsRequest.
func (b *Builder) DescribeGroups(groups []string, route *ReplyRoute, h Handler, opaque interface{}) (*Envelope, error) {
	if len(groups) == 0 {
		return nil, kerr.InvalidArg
	}
	req := &kmsg.DescribeGroupsRequest{Groups: groups}
	env := NewEnvelope(req, b.now().Add(b.cfg.SocketTimeout), b.cfg.RetryCap, route, h, opaque)
	return b.enqueue(env), nil
}

// admin enqueues an admin request after confirming the broker can speak
// it at all, extending the deadline when the caller's server-side
// operation timeout is longer than the socket timeout: the broker is
// allowed to take opTimeout to act, so the envelope must outlive it.
func (b *Builder) admin(req kmsg.AdminRequest, minVersion int16, opTimeoutMs int32, route *ReplyRoute, h Handler, opaque interface{}) (*Envelope, error) {
	if _, _, ok := b.broker.ApiVersionSupported(req.Key(), minVersion, req.MaxVersion()); !ok {
		return nil, kerr.UnsupportedFeature
	}
	wait := b.cfg.SocketTimeout
	if opTimeout := time.Duration(opTimeoutMs) * time.Millisecond; opTimeout > wait {
		wait = opTimeout + time.Second
	}
	env := NewEnvelope(req, b.now().Add(wait), b.cfg.RetryCap, route, h, opaque)
	return b.enqueue(env), nil
}

// CreateTopics builds and enqueues a CreateTopicsRequest.
func (b *Builder) CreateTopics(req *kmsg.CreateTopicsRequest, route *ReplyRoute, h Handler, opaque interface{}) (*Envelope, error) {
	if len(req.Topics) == 0 {
		return nil, kerr.InvalidArg
	}
	return b.admin(req, req.MinVersion(), req.TimeoutMs, route, h, opaque)
}

// DeleteTopics builds and enqueues a DeleteTopicsRequest.
func (b *Builder) DeleteTopics(req *kmsg.DeleteTopicsRequest, route *ReplyRoute, h Handler, opaque interface{}) (*Envelope, error) {
	if len(req.Topics) == 0 {
		return nil, kerr.InvalidArg
	}
	return b.admin(req, req.MinVersion(), req.TimeoutMs, route, h, opaque)
}

// CreatePartitions builds and enqueues a CreatePartitionsRequest.
func (b *Builder) CreatePartitions(req *kmsg.CreatePartitionsRequest, route *ReplyRoute, h Handler, opaque interface{}) (*Envelope, error) {
	if len(req.Topics) == 0 {
		return nil, kerr.InvalidArg
	}
	return b.admin(req, req.MinVersion(), req.TimeoutMs, route, h, opaque)
}

// AlterConfigs builds and enqueues an AlterConfigsRequest. An Incremental
// request raises the minimum acceptable version to
// alterConfigsIncrementalMin; a broker that cannot speak that version
// gets nothing, and the call returns kerr.UnsupportedFeature.
func (b *Builder) AlterConfigs(req *kmsg.AlterConfigsRequest, route *ReplyRoute, h Handler, opaque interface{}) (*Envelope, error) {
	if len(req.Resources) == 0 {
		return nil, kerr.InvalidArg
	}
	min := req.MinVersion()
	if req.Incremental {
		min = alterConfigsIncrementalMin
	}
	return b.admin(req, min, 0, route, h, opaque)
}

// alterConfigsIncrementalMin mirrors the conservative incremental-support
// cutoff that kmsg.AlterConfigsRequest.SupportsIncremental checks.
const alterConfigsIncrementalMin = int16(1)

// DescribeConfigs builds and enqueues a DescribeConfigsRequest.
func (b *Builder) DescribeConfigs(req *kmsg.DescribeConfigsRequest, route *ReplyRoute, h Handler, opaque interface{}) (*Envelope, error) {
	if len(req.Resources) == 0 {
		return nil, kerr.InvalidArg
	}
	return b.admin(req, req.MinVersion(), 0, route, h, opaque)
}
