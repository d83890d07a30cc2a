package kreq

import "sync"

// Suppressor is the full-request suppression gate: two counters, one per
// full-cluster metadata shape, that stop a second unforced full-cluster
// Metadata request from going out while one is already outstanding.
//
// Every field here is a named cell in this struct rather than a package
// global, so a process can run more than one client without the gates
// bleeding into each other.
type Suppressor struct {
	mu      sync.Mutex
	cond    *sync.Cond
	topics  int
	brokers int
}

// NewSuppressor returns a ready-to-use Suppressor.
func NewSuppressor() *Suppressor {
	s := &Suppressor{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Scope selects which counter a suppressed request belongs to: the full
// topic list, or the all-brokers-only metadata shape.
type Scope int8

const (
	ScopeTopics Scope = iota
	ScopeBrokers
)

// TryEnter attempts to begin an unforced full-cluster request of the
// given scope. It returns ok=false if one is already in flight, in which
// case the caller must fail the send with kerr.PrevInProgress rather than
// transmitting. A forced request (one with its own caller reply queue)
// bypasses the gate entirely and must not call TryEnter at all.
func (s *Suppressor) TryEnter(scope Scope) (ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch scope {
	case ScopeTopics:
		if s.topics > 0 {
			return false
		}
		s.topics++
	case ScopeBrokers:
		if s.brokers > 0 {
			return false
		}
		s.brokers++
	}
	return true
}

// Leave decrements the counter for scope and wakes any goroutine blocked
// in Wait, called once the reply (success or failure) for the request
// that called TryEnter arrives.
func (s *Suppressor) Leave(scope Scope) {
	s.mu.Lock()
	switch scope {
	case ScopeTopics:
		if s.topics > 0 {
			s.topics--
		}
	case ScopeBrokers:
		if s.brokers > 0 {
			s.brokers--
		}
	}
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Wait blocks until scope's counter reaches zero. Callers that got a
// PrevInProgress result and want to retry once the in-flight request
// settles can use this instead of polling TryEnter.
func (s *Suppressor) Wait(scope Scope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		switch scope {
		case ScopeTopics:
			if s.topics == 0 {
				return
			}
		case ScopeBrokers:
			if s.brokers == 0 {
				return
			}
		}
		s.cond.Wait()
	}
}
