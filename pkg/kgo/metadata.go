package kgo

import (
	"sync"

	"github.com/twmb/kreq/pkg/kreq"
)

// RefreshSignal is a ready-made kreq.MetadataCollaborator: it coalesces
// refresh triggers into a single level-triggered signal the way a
// metadata cache would, rather than queueing one refresh per error. The
// cache itself lives outside this module; this type is the hook side of
// the contract, enough to wire a Client end to end and to observe the
// driver's behavior in tests.
type RefreshSignal struct {
	mu      sync.Mutex
	pending bool
	forced  bool
	downed  []TopicPartition

	// C is signaled (non-blocking) when a refresh becomes pending. A
	// metadata loop selects on it and calls Take to drain.
	C chan struct{}
}

// TopicPartition names one partition whose leader was reported
// unavailable.
type TopicPartition struct {
	Topic     string
	Partition int32
}

// NewRefreshSignal returns a RefreshSignal ready to be passed to
// WithMetadataCollaborator.
func NewRefreshSignal() *RefreshSignal {
	return &RefreshSignal{C: make(chan struct{}, 1)}
}

// RefreshKnownTopics implements kreq.MetadataCollaborator.
func (s *RefreshSignal) RefreshKnownTopics(reason string, force bool) {
	s.mu.Lock()
	s.pending = true
	s.forced = s.forced || force
	s.mu.Unlock()
	select {
	case s.C <- struct{}{}:
	default:
	}
}

// LeaderUnavailable implements kreq.MetadataCollaborator, recording the
// partition for the next refresh and raising the pending signal.
func (s *RefreshSignal) LeaderUnavailable(topic string, partition int32, reason string, err error) {
	s.mu.Lock()
	s.pending = true
	s.downed = append(s.downed, TopicPartition{Topic: topic, Partition: partition})
	s.mu.Unlock()
	select {
	case s.C <- struct{}{}:
	default:
	}
}

// Take drains the pending state, returning whether a refresh was wanted,
// whether any trigger forced it, and the partitions whose leaders were
// reported down since the last Take.
func (s *RefreshSignal) Take() (pending, forced bool, downed []TopicPartition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending, forced, downed = s.pending, s.forced, s.downed
	s.pending, s.forced, s.downed = false, false, nil
	return pending, forced, downed
}

// CoordSignal is a ready-made kreq.GroupCollaborator that records the
// coordinator rediscovery signals the driver fires, distinguishing the
// harsher dead signal from a plain re-query.
type CoordSignal struct {
	mu      sync.Mutex
	queries int
	deaths  int
	lastErr error
}

// NewCoordSignal returns a CoordSignal ready to be passed to
// WithGroupCollaborator.
func NewCoordSignal() *CoordSignal { return &CoordSignal{} }

// CoordQuery implements kreq.GroupCollaborator.
func (s *CoordSignal) CoordQuery(reason string) {
	s.mu.Lock()
	s.queries++
	s.mu.Unlock()
}

// CoordDead implements kreq.GroupCollaborator.
func (s *CoordSignal) CoordDead(err error, reason string) {
	s.mu.Lock()
	s.deaths++
	s.lastErr = err
	s.mu.Unlock()
}

// Counts returns how many plain queries and dead signals have fired.
func (s *CoordSignal) Counts() (queries, deaths int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries, s.deaths
}

var (
	_ kreq.MetadataCollaborator = (*RefreshSignal)(nil)
	_ kreq.GroupCollaborator    = (*CoordSignal)(nil)
)
