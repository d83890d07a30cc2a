package kerr

// Local error codes never travel over the wire. They are fabricated by this
// client to describe conditions the broker never reported: a parse failure,
// a client-side timeout, a deliberate shutdown, and so on. Local codes
// occupy a negative range disjoint from the non-negative broker protocol
// codes, so the two can share a Code type without collisions.
const (
	codeBadMsg             Code = -199
	codeDestroy            Code = -197
	codeTransport          Code = -195
	codeInvalidArg         Code = -186
	codeTimedOut           Code = -185
	codeWaitCoord          Code = -180
	codePrevInProgress     Code = -177
	codeInProgress         Code = -178
	codeTimedOutQueue      Code = -166
	codeUnsupportedFeature Code = -165
)

var (
	// BadMsg is returned when a response buffer fails to parse: too few
	// bytes for a declared length, an array count that does not fit the
	// remaining buffer, or a count so large it cannot possibly be valid.
	BadMsg = &Error{"_BAD_MSG", codeBadMsg, false, "Received a malformed response from the broker."}

	// Destroy is returned for requests whose owning client tore down
	// while they were outstanding. It is never surfaced to a caller as
	// an actionable error; it only triggers silent resource release.
	Destroy = &Error{"_DESTROY", codeDestroy, false, "Broker or client is terminating."}

	// Transport covers local connection-layer failures: a reset
	// connection, an unexpected EOF, a dial failure. These are retried
	// like a broker-reported timeout.
	Transport = &Error{"_TRANSPORT", codeTransport, true, "Local transport error."}

	// InvalidArg is returned when a request builder is handed arguments
	// it cannot encode: an empty entity list for an admin request, a
	// Produce call with no message set, and so on.
	InvalidArg = &Error{"_INVALID_ARG", codeInvalidArg, false, "Invalid argument provided to a request builder."}

	// TimedOut is returned when a request's absolute deadline expires
	// while it is still queued (not yet written to a connection).
	TimedOut = &Error{"_TIMED_OUT", codeTimedOut, true, "Local timeout while the request was queued."}

	// TimedOutQueue is returned when a request's absolute deadline
	// expires after it was written to the connection but before a reply
	// arrived.
	TimedOutQueue = &Error{"_TIMED_OUT_QUEUE", codeTimedOutQueue, true, "Local timeout while awaiting a broker reply."}

	// WaitCoord signals that the group/transaction coordinator is not
	// yet known and must be discovered before the request can proceed.
	WaitCoord = &Error{"_WAIT_COORD", codeWaitCoord, false, "Waiting for coordinator to become known."}

	// PrevInProgress is returned by the full-request suppression gate
	// (see kreq) when an identical unforced request is already
	// in flight.
	PrevInProgress = &Error{"_PREV_IN_PROGRESS", codePrevInProgress, false, "A previous request of this kind is already in progress."}

	// InProgress is returned (not surfaced to the caller) by the retry
	// driver to tell a handler that a retry was enqueued and the
	// caller's result should not yet be finalized.
	InProgress = &Error{"_IN_PROGRESS", codeInProgress, false, "Request re-enqueued; result pending."}

	// UnsupportedFeature is returned when a negotiated broker
	// ApiVersion range has no overlap with the caller's requested
	// range, or when an admin API is not supported by the broker at all.
	UnsupportedFeature = &Error{"_UNSUPPORTED_FEATURE", codeUnsupportedFeature, false, "Requested feature is not supported by the broker."}
)

func init() {
	for _, e := range []*Error{
		BadMsg, Destroy, Transport, InvalidArg, TimedOut, TimedOutQueue,
		WaitCoord, PrevInProgress, InProgress, UnsupportedFeature,
	} {
		code2err[e.Code] = e
	}
}
