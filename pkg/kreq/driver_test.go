package kreq

import (
	"testing"
	"time"

	"github.com/twmb/kreq/pkg/kerr"
	"github.com/twmb/kreq/pkg/kmsg"
)

type recordingMetadata struct {
	refreshes int
	downs     int
}

func (m *recordingMetadata) RefreshKnownTopics(reason string, force bool) { m.refreshes++ }
func (m *recordingMetadata) LeaderUnavailable(topic string, partition int32, reason string, err error) {
	m.downs++
}

type recordingGroup struct {
	queries int
	deaths  int
}

func (g *recordingGroup) CoordQuery(reason string)           { g.queries++ }
func (g *recordingGroup) CoordDead(err error, reason string) { g.deaths++ }

func TestDriverRefreshRouting(t *testing.T) {
	md := &recordingMetadata{}
	grp := &recordingGroup{}
	d := NewDriver(&fakeBroker{}, md, grp)

	// A group-scoped request refreshing without Special queries the
	// coordinator.
	groupEnv := &Envelope{Req: &kmsg.HeartbeatRequest{}}
	d.Act(Refresh, groupEnv, kerr.NotCoordinatorForGroup)
	if grp.queries != 1 || grp.deaths != 0 {
		t.Fatalf("group refresh: queries=%d deaths=%d, want 1 query", grp.queries, grp.deaths)
	}

	// Refresh|Special fires the harsher coordinator-dead signal instead.
	d.Act(Refresh|Special, groupEnv, kerr.NotCoordinatorForGroup)
	if grp.deaths != 1 {
		t.Fatalf("special refresh: deaths=%d, want 1", grp.deaths)
	}
	if grp.queries != 1 {
		t.Fatalf("special refresh must not also query: queries=%d", grp.queries)
	}

	// A non-group request refreshes topic metadata.
	topicEnv := &Envelope{Req: kmsg.NewOffsetRequest(nil)}
	d.Act(Refresh, topicEnv, kerr.NotLeaderForPartition)
	if md.refreshes != 1 {
		t.Fatalf("metadata refreshes = %d, want 1", md.refreshes)
	}

	// A Produce request names its partition, so the precise
	// leader-unavailable hook fires instead of a general refresh.
	produceEnv := &Envelope{Req: &kmsg.ProduceRequest{Topic: "t", Partition: 2}}
	d.Act(Refresh, produceEnv, kerr.NotLeaderForPartition)
	if md.downs != 1 || md.refreshes != 1 {
		t.Fatalf("produce refresh: downs=%d refreshes=%d, want the leader hook only", md.downs, md.refreshes)
	}
}

func TestFinalizeDestroyIsSilent(t *testing.T) {
	var released bool
	env := &Envelope{Req: &kmsg.HeartbeatRequest{}, OnTerminal: func() { released = true }}
	res := Finalize(env, nil, kerr.Destroy)
	if res.Err != nil || res.Resp != nil {
		t.Fatalf("Finalize(Destroy) = %+v, want an empty result", res)
	}
	if !released {
		t.Fatal("OnTerminal must still run so resources are released")
	}
	if env.State() != Completed {
		t.Fatalf("state = %v, want completed", env.State())
	}
}

func TestReplyRouteCancellationDropsLateReplies(t *testing.T) {
	mailbox := make(chan Result, 1)
	route := NewReplyRoute(mailbox)
	env := NewEnvelope(&kmsg.HeartbeatRequest{}, time.Now().Add(time.Second), 0, route, nil, nil)

	route.Cancel()
	env.Deliver(Result{Err: kerr.RequestTimedOut})
	select {
	case res := <-mailbox:
		t.Fatalf("canceled route received %+v, want nothing", res)
	default:
	}

	// A fresh envelope stamped after the cancel delivers normally.
	env = NewEnvelope(&kmsg.HeartbeatRequest{}, time.Now().Add(time.Second), 0, route, nil, nil)
	env.Deliver(Result{})
	select {
	case <-mailbox:
	default:
		t.Fatal("live route must receive the result")
	}
}
