package kgo

import (
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/twmb/kreq/pkg/kerr"
)

func TestClassifyConnErr(t *testing.T) {
	if got := classifyConnErr(nil); got != nil {
		t.Fatalf("nil err classified as %v", got)
	}
	if got := classifyConnErr(io.EOF); got != kerr.Transport {
		t.Fatalf("EOF classified as %v, want Transport", got)
	}
	if got := classifyConnErr(io.ErrUnexpectedEOF); got != kerr.Transport {
		t.Fatalf("unexpected EOF classified as %v, want Transport", got)
	}
	opErr := &net.OpError{Op: "read", Err: errors.New("connection reset by peer")}
	if got := classifyConnErr(opErr); got != kerr.Transport {
		t.Fatalf("net.OpError classified as %v, want Transport", got)
	}
	other := errors.New("not a transport problem")
	if got := classifyConnErr(other); got != other {
		t.Fatalf("unrelated error classified as %v, want passed through", got)
	}
}

func TestRefreshSignalCoalesces(t *testing.T) {
	s := NewRefreshSignal()
	s.RefreshKnownTopics("stale leader", false)
	s.RefreshKnownTopics("stale leader", true)
	s.LeaderUnavailable("t", 3, "leader moved", kerr.NotLeaderForPartition)

	select {
	case <-s.C:
	case <-time.After(time.Second):
		t.Fatal("pending signal never raised")
	}

	pending, forced, downed := s.Take()
	if !pending || !forced {
		t.Fatalf("Take = (pending=%v, forced=%v), want both true", pending, forced)
	}
	if len(downed) != 1 || downed[0] != (TopicPartition{Topic: "t", Partition: 3}) {
		t.Fatalf("downed = %v, want [t/3]", downed)
	}

	if pending, _, _ := s.Take(); pending {
		t.Fatal("second Take must see a drained signal")
	}
}

func TestCoordSignalCounts(t *testing.T) {
	s := NewCoordSignal()
	s.CoordQuery("not coordinator")
	s.CoordDead(kerr.NotCoordinatorForGroup, "coordinator rejected generation")
	s.CoordDead(kerr.GroupCoordinatorNotAvailable, "connection lost")
	if q, d := s.Counts(); q != 1 || d != 2 {
		t.Fatalf("Counts = (%d, %d), want (1, 2)", q, d)
	}
}

func TestOffsetVocabulary(t *testing.T) {
	o := NewOffset()
	if tp := o.ToOffsetRequestTopicPartition("t", 0); tp.Timestamp != -1 {
		t.Fatalf("default offset timestamp = %d, want -1 (end)", tp.Timestamp)
	}
	if tp := o.AtStart().ToOffsetRequestTopicPartition("t", 0); tp.Timestamp != -2 {
		t.Fatalf("AtStart timestamp = %d, want -2", tp.Timestamp)
	}
	if tp := o.At(100).Relative(5).ToOffsetRequestTopicPartition("t", 0); tp.Timestamp != 105 {
		t.Fatalf("At(100).Relative(5) timestamp = %d, want 105", tp.Timestamp)
	}
}
