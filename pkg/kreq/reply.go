package kreq

import (
	"sync/atomic"

	"github.com/twmb/kreq/pkg/kmsg"
)

// Result is a terminal event delivered to a ReplyRoute's mailbox: either a
// decoded response or a terminal error, never both.
type Result struct {
	Resp kmsg.Response
	Err  error
}

// ReplyRoute is a reply-routing descriptor: a mailbox handle plus an
// epoch used for cancellation. Handlers deliver typed Results through it
// and never hold a raw callback or untyped pointer.
//
// Advancing the epoch (Cancel) does not reach onto the wire: an in-flight
// request that would now deliver to a canceled route is simply dropped
// after it arrives, preserving broker-side request accounting.
type ReplyRoute struct {
	mailbox chan<- Result
	epoch   int32
}

// NewReplyRoute wraps mailbox at epoch 0.
func NewReplyRoute(mailbox chan<- Result) *ReplyRoute {
	return &ReplyRoute{mailbox: mailbox}
}

// Epoch returns the route's current cancellation epoch.
func (r *ReplyRoute) Epoch() int32 { return atomic.LoadInt32(&r.epoch) }

// Cancel advances the epoch, invalidating any reply already stamped with
// an older one.
func (r *ReplyRoute) Cancel() { atomic.AddInt32(&r.epoch, 1) }

// Stamped captures the route's epoch at envelope-construction time so a
// later Deliver call can detect staleness.
type Stamped struct {
	route   *ReplyRoute
	atEpoch int32
}

// Stamp freezes r's current epoch for later staleness comparison.
func Stamp(r *ReplyRoute) Stamped {
	if r == nil {
		return Stamped{}
	}
	return Stamped{route: r, atEpoch: r.Epoch()}
}

// Deliver sends res to the stamped route's mailbox unless the route has
// since been canceled (epoch advanced) or was never set, in which case
// the result is silently dropped.
func (s Stamped) Deliver(res Result) {
	if s.route == nil {
		return
	}
	if s.route.Epoch() != s.atEpoch {
		return
	}
	select {
	case s.route.mailbox <- res:
	default:
	}
}
