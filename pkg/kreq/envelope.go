// Package kreq implements the request/response engine that sits between a
// caller wanting something from a Kafka broker and the broker connection
// that actually puts bytes on the wire. It builds envelopes around
// kmsg.Request values, classifies the errors that come back, and drives
// the retry / metadata-refresh / coordinator-rediscovery loops that keep
// the higher-level client working through partial cluster failure.
//
// The broker connection itself, the consumer group state machine, and
// message batching all live outside this package and are reached only
// through the collaborator interfaces in collaborators.go.
package kreq

import (
	"sync/atomic"
	"time"

	"github.com/twmb/kreq/pkg/kmsg"
)

// State is where an Envelope sits in its lifecycle.
type State int8

const (
	Built State = iota
	Enqueued
	InFlight
	Retried
	Completed
	TimedOut
)

func (s State) String() string {
	switch s {
	case Built:
		return "built"
	case Enqueued:
		return "enqueued"
	case InFlight:
		return "in-flight"
	case Retried:
		return "retried"
	case Completed:
		return "completed"
	case TimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}

// NoRetries is the retry-cap sentinel that forces an Envelope to never be
// retried, no matter what the classifier returns. ApiVersions and
// SaslHandshake use this: a legacy broker that doesn't understand the
// request simply closes the connection, and resending teaches it nothing.
const NoRetries = 0

// Handler decodes a reply buffer (or acts on a non-nil err) for one
// in-flight Envelope. It returns the action the driver should take plus,
// when the call is done, the terminal result to deliver to the caller.
type Handler func(env *Envelope, reply []byte, err error) HandlerResult

// HandlerResult is what a Handler hands back to the driver.
type HandlerResult struct {
	// Resp is the decoded response, or nil if the handler only produced
	// an error or asked for a retry.
	Resp kmsg.Response
	// Err is the terminal error to surface to the caller. Nil means
	// success.
	Err error
	// Retry requests that the driver re-enqueue the same Envelope rather
	// than deliver Resp/Err to the caller.
	Retry bool
}

// Envelope is a single outstanding request: everything needed to encode
// it, route its reply, and decide what to do when that reply (or a
// failure) arrives.
type Envelope struct {
	Req kmsg.Request

	// CorrelationID is assigned by the broker connection when the
	// envelope is actually written; zero until then.
	CorrelationID int32

	// Deadline is an absolute wall-clock time. The broker's expiry
	// scanner fails the request with kerr.TimedOut (still queued) or
	// kerr.TimedOutQueue (sent, no reply) once it passes.
	Deadline time.Time

	RetryCount int
	RetryCap   int

	// Route is where the terminal result is delivered. A retry is
	// re-enqueued without delivering anything to Route.
	Route *ReplyRoute

	Handle Handler

	// Opaque is caller data threaded back through to Handle untouched.
	Opaque interface{}

	// Flash requests (Metadata, ApiVersions, SaslHandshake) may jump
	// ahead of ordinary data-plane traffic in the broker's send queue.
	Flash bool

	// NoResponse is set for acks=0 Produce requests: the broker never
	// replies, so the envelope never enters the in-flight map.
	NoResponse bool

	// Blocking marks session-length requests (JoinGroup, SyncGroup)
	// whose deadlines are derived from the group session timeout plus a
	// grace window rather than the ordinary socket timeout.
	Blocking bool

	// MessageSet is the pre-built, opaque batch of records a Produce
	// envelope carries. Unused by every other request kind.
	MessageSet []byte

	// Overrides are Stage 1 caller-supplied classification rules, tried
	// before the Stage 2 default table in Classify. A builder populates
	// this when an API's retry semantics depend on the call rather than
	// the error code alone (OffsetCommit's REBALANCE_IN_PROGRESS, which
	// has no Stage 2 default).
	Overrides []Override

	// OnTerminal, if set, runs exactly once when the envelope reaches a
	// true terminal state through Finalize (Completed, not a Retried
	// re-enqueue). A builder uses this to release resources it acquired
	// while building the envelope, such as a suppression gate slot.
	OnTerminal func()

	// stamp freezes the envelope's reply route at the epoch in force when
	// the envelope was built, so a route cancelled after construction but
	// before delivery is caught at delivery time rather than never.
	stamp Stamped

	state int32 // atomic State
}

// NewEnvelope builds an Envelope in the Built state. retryCap of NoRetries
// pins RetryCap to 0 regardless of the value passed.
func NewEnvelope(req kmsg.Request, deadline time.Time, retryCap int, route *ReplyRoute, h Handler, opaque interface{}) *Envelope {
	if retryCap == NoRetries {
		retryCap = 0
	}
	e := &Envelope{
		Req:      req,
		Deadline: deadline,
		RetryCap: retryCap,
		Route:    route,
		Handle:   h,
		Opaque:   opaque,
	}
	e.stamp = Stamp(route)
	e.setState(Built)
	return e
}

// Deliver sends res to this envelope's reply route, dropping it silently if
// the route was cancelled after the envelope was built but before this call.
func (e *Envelope) Deliver(res Result) { e.stamp.Deliver(res) }

func (e *Envelope) setState(s State) { atomic.StoreInt32(&e.state, int32(s)) }

// State returns the Envelope's current lifecycle state.
func (e *Envelope) State() State { return State(atomic.LoadInt32(&e.state)) }

// MarkEnqueued transitions Built/Retried -> Enqueued.
func (e *Envelope) MarkEnqueued() { e.setState(Enqueued) }

// MarkInFlight transitions Enqueued -> InFlight.
func (e *Envelope) MarkInFlight() { e.setState(InFlight) }

// CanRetry reports whether this envelope has retry budget remaining.
func (e *Envelope) CanRetry() bool { return e.RetryCount < e.RetryCap }

// MarkRetried bumps the retry counter and returns to the Retried state,
// from which the driver re-enqueues the envelope.
func (e *Envelope) MarkRetried() {
	e.RetryCount++
	e.setState(Retried)
}

// MarkCompleted transitions to the terminal Completed state.
func (e *Envelope) MarkCompleted() { e.setState(Completed) }

// MarkTimedOut transitions to the terminal TimedOut state.
func (e *Envelope) MarkTimedOut() { e.setState(TimedOut) }

// Expired reports whether clk.Now() is at or past the absolute deadline.
func (e *Envelope) Expired(now time.Time) bool {
	return !e.Deadline.After(now)
}
