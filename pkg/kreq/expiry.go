package kreq

import (
	"container/heap"
	"sync"
	"time"

	"github.com/twmb/kreq/pkg/kerr"
)

// Expirer is the broker's deadline-ordered expiry scanner: it tracks
// every outstanding Envelope by absolute deadline and fails the
// oldest-expiring ones first with TimedOut (still queued) or
// TimedOutQueue (written, awaiting reply).
type Expirer struct {
	mu sync.Mutex
	pq expiryHeap
}

// NewExpirer returns an empty Expirer.
func NewExpirer() *Expirer {
	return &Expirer{}
}

type expiryEntry struct {
	env  *Envelope
	sent bool // true once the request has been written to a connection
}

type expiryHeap []expiryEntry

func (h expiryHeap) Len() int { return len(h) }
func (h expiryHeap) Less(i, j int) bool {
	return h[i].env.Deadline.Before(h[j].env.Deadline)
}
func (h expiryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *expiryHeap) Push(x interface{}) {
	*h = append(*h, x.(expiryEntry))
}
func (h *expiryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// Track registers env for expiry scanning. sent distinguishes the
// TimedOut (still queued) from TimedOutQueue (sent, awaiting reply)
// terminal error the scanner fabricates once the deadline passes.
func (x *Expirer) Track(env *Envelope, sent bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	heap.Push(&x.pq, expiryEntry{env: env, sent: sent})
}

// MarkSent promotes every tracked entry matching env to the "sent" state,
// so a later expiry is reported as TimedOutQueue rather than TimedOut.
// Untrack followed by Track with sent=true is equivalent but this avoids
// reordering the heap.
func (x *Expirer) MarkSent(env *Envelope) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for i := range x.pq {
		if x.pq[i].env == env {
			x.pq[i].sent = true
		}
	}
}

// Untrack removes env from scanning, called once its reply arrives
// normally (no expiry needed).
func (x *Expirer) Untrack(env *Envelope) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for i := range x.pq {
		if x.pq[i].env == env {
			heap.Remove(&x.pq, i)
			return
		}
	}
}

// Scan pops every entry whose deadline is at or before now, transitions
// it to Envelope.TimedOut, and invokes deliver with the appropriate local
// error. It returns the number of envelopes expired.
func (x *Expirer) Scan(now time.Time, deliver func(env *Envelope, sent bool, err error)) int {
	x.mu.Lock()
	var expired []expiryEntry
	for x.pq.Len() > 0 && x.pq[0].env.Expired(now) {
		expired = append(expired, heap.Pop(&x.pq).(expiryEntry))
	}
	x.mu.Unlock()

	for _, e := range expired {
		e.env.MarkTimedOut()
		err := kerr.TimedOut
		if e.sent {
			err = kerr.TimedOutQueue
		}
		deliver(e.env, e.sent, err)
	}
	return len(expired)
}
