package kreq

import (
	"testing"
	"time"

	"github.com/twmb/kreq/pkg/kerr"
	"github.com/twmb/kreq/pkg/kmsg"
)

type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time { return f.t }

// buildBroker accepts every envelope and advertises every API up to
// maxVersion.
type buildBroker struct {
	enqueued   []*Envelope
	maxVersion int16
}

func (f *buildBroker) Enqueue(env *Envelope) { f.enqueued = append(f.enqueued, env) }
func (f *buildBroker) ApiVersionSupported(key, minReq, maxReq int16) (int16, uint32, bool) {
	if minReq > f.maxVersion {
		return -1, 0, false
	}
	v := maxReq
	if v > f.maxVersion {
		v = f.maxVersion
	}
	return v, 0, true
}

func newTestBuilder(t time.Time, bb *buildBroker) *Builder {
	return NewBuilder(bb, nil, BuilderConfig{
		SocketTimeout:      30 * time.Second,
		ApiVersionsTimeout: 5 * time.Second,
		RetryCap:           2,
		Clock:              fixedClock{t},
	})
}

func TestBuilderMetadataSuppression(t *testing.T) {
	now := time.Unix(1000, 0)
	bb := &buildBroker{maxVersion: 5}
	b := newTestBuilder(now, bb)

	env, err := b.Metadata(nil, false, nil, nil, nil)
	if err != nil || env == nil {
		t.Fatalf("first unforced all-topics request: env=%v err=%v, want enqueued", env, err)
	}
	if !env.Flash {
		t.Fatal("metadata envelopes must be flash")
	}

	if _, err := b.Metadata(nil, false, nil, nil, nil); err != kerr.PrevInProgress {
		t.Fatalf("second unforced all-topics request: err=%v, want PrevInProgress", err)
	}

	// A forced request (one with its own reply route) bypasses the gate.
	mailbox := make(chan Result, 1)
	if _, err := b.Metadata(nil, false, NewReplyRoute(mailbox), nil, nil); err != nil {
		t.Fatalf("forced request must bypass the gate, got %v", err)
	}

	// The first reply releases the gate and a third unforced request
	// proceeds.
	Finalize(env, nil, nil)
	if _, err := b.Metadata(nil, false, nil, nil, nil); err != nil {
		t.Fatalf("post-reply unforced request: err=%v, want admitted", err)
	}
}

func TestBuilderMetadataBrokersOnlyScopeIndependent(t *testing.T) {
	bb := &buildBroker{maxVersion: 5}
	b := newTestBuilder(time.Unix(1000, 0), bb)

	if _, err := b.Metadata(nil, false, nil, nil, nil); err != nil {
		t.Fatalf("all-topics request: %v", err)
	}
	if _, err := b.Metadata([]string{}, false, nil, nil, nil); err != nil {
		t.Fatalf("brokers-only request must use its own counter, got %v", err)
	}
}

func TestBuilderOffsetFetchSkipsSendWhenNoWork(t *testing.T) {
	bb := &buildBroker{maxVersion: 2}
	b := newTestBuilder(time.Unix(1000, 0), bb)

	mailbox := make(chan Result, 1)
	env, err := b.OffsetFetch("g", []kmsg.OffsetFetchRequestPartition{
		{Topic: "t", Partition: 0, CurrentOffset: 12345},
	}, NewReplyRoute(mailbox), nil, nil)
	if env != nil || err != nil {
		t.Fatalf("all partitions satisfied: env=%v err=%v, want neither", env, err)
	}
	if len(bb.enqueued) != 0 {
		t.Fatal("no request may be sent when every partition already has a usable offset")
	}
	select {
	case res := <-mailbox:
		if res.Err != nil {
			t.Fatalf("synthesized reply err=%v, want nil", res.Err)
		}
		if resp, ok := res.Resp.(*kmsg.OffsetFetchResponse); !ok || len(resp.Topics) != 0 {
			t.Fatalf("synthesized reply = %#v, want an empty OffsetFetchResponse", res.Resp)
		}
	default:
		t.Fatal("expected a synchronous empty reply on the caller's queue")
	}
}

func TestBuilderOffsetCommitNothingToSend(t *testing.T) {
	bb := &buildBroker{maxVersion: 2}
	b := newTestBuilder(time.Unix(1000, 0), bb)

	mailbox := make(chan Result, 1)
	env, sent := b.OffsetCommit("g", 1, "m", []kmsg.OffsetCommitRequestPartition{
		{Topic: "t", Partition: 0, Offset: -1},
	}, nil, NewReplyRoute(mailbox), nil, nil)
	if sent || env != nil {
		t.Fatalf("all offsets negative: env=%v sent=%v, want no send", env, sent)
	}
	if len(bb.enqueued) != 0 {
		t.Fatal("no request may be sent when every offset is negative")
	}

	env, sent = b.OffsetCommit("g", 1, "m", []kmsg.OffsetCommitRequestPartition{
		{Topic: "t", Partition: 0, Offset: 7},
	}, nil, nil, nil, nil)
	if !sent || env == nil {
		t.Fatal("a committable offset must produce a send")
	}
}

func TestBuilderGroupDeadlines(t *testing.T) {
	now := time.Unix(1000, 0)
	bb := &buildBroker{maxVersion: 2}
	b := newTestBuilder(now, bb)

	join := &kmsg.JoinGroupRequest{Group: "g", SessionTimeoutMs: 6000}
	env, err := b.JoinGroup(join, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !env.Blocking {
		t.Fatal("JoinGroup envelopes must be blocking")
	}
	if want := now.Add(9 * time.Second); !env.Deadline.Equal(want) {
		t.Fatalf("JoinGroup deadline = %v, want session+grace %v", env.Deadline, want)
	}

	hb := &kmsg.HeartbeatRequest{Group: "g", GenerationID: 1, MemberID: "m"}
	env, err = b.Heartbeat(hb, 6000, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if want := now.Add(6 * time.Second); !env.Deadline.Equal(want) {
		t.Fatalf("Heartbeat deadline = %v, want session %v", env.Deadline, want)
	}
}

func TestBuilderApiVersionsNeverRetries(t *testing.T) {
	now := time.Unix(1000, 0)
	bb := &buildBroker{maxVersion: 2}
	b := newTestBuilder(now, bb)

	env, err := b.ApiVersions(nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if env.RetryCap != 0 {
		t.Fatalf("ApiVersions RetryCap = %d, want 0", env.RetryCap)
	}
	if !env.Flash {
		t.Fatal("ApiVersions envelopes must be flash")
	}
	if want := now.Add(5 * time.Second); !env.Deadline.Equal(want) {
		t.Fatalf("ApiVersions deadline = %v, want %v", env.Deadline, want)
	}
}

func TestBuilderSaslHandshakeClamp(t *testing.T) {
	now := time.Unix(1000, 0)
	bb := &buildBroker{maxVersion: 2}
	b := NewBuilder(bb, nil, BuilderConfig{
		SocketTimeout:      30 * time.Second,
		DisableApiVersions: true,
		Clock:              fixedClock{now},
	})

	env, err := b.SaslHandshake("PLAIN", nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if want := now.Add(10 * time.Second); !env.Deadline.Equal(want) {
		t.Fatalf("clamped deadline = %v, want %v", env.Deadline, want)
	}
	if env.RetryCap != 0 {
		t.Fatalf("SaslHandshake RetryCap = %d, want 0", env.RetryCap)
	}
}

func TestBuilderProduceFlags(t *testing.T) {
	now := time.Unix(1000, 0)
	bb := &buildBroker{maxVersion: 2}
	b := newTestBuilder(now, bb)

	if _, err := b.Produce("t", 0, 1, 1000, nil, now.Add(time.Second), nil, nil, nil); err != kerr.InvalidArg {
		t.Fatalf("empty message set: err=%v, want InvalidArg", err)
	}

	env, err := b.Produce("t", 0, 0, 1000, []byte{1}, now.Add(time.Minute), nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !env.NoResponse {
		t.Fatal("acks=0 must flag NoResponse")
	}
	if want := now.Add(time.Minute); !env.Deadline.Equal(want) {
		t.Fatalf("deadline = %v, want first message expiry %v", env.Deadline, want)
	}

	// An already expired first message still gets a grace window so the
	// request goes out once.
	env, err = b.Produce("t", 0, 1, 1000, []byte{1}, now.Add(-time.Second), nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if want := now.Add(100 * time.Millisecond); !env.Deadline.Equal(want) {
		t.Fatalf("expired-message deadline = %v, want grace %v", env.Deadline, want)
	}
}

func TestBuilderAdminVersionGate(t *testing.T) {
	now := time.Unix(1000, 0)
	tooOld := &buildBroker{maxVersion: -1}
	b := newTestBuilder(now, tooOld)

	create := &kmsg.CreateTopicsRequest{Topics: []kmsg.CreatableTopic{{Topic: "t"}}}
	if _, err := b.CreateTopics(create, nil, nil, nil); err != kerr.UnsupportedFeature {
		t.Fatalf("unsupported broker: err=%v, want UnsupportedFeature", err)
	}

	v0Only := &buildBroker{maxVersion: 0}
	b = newTestBuilder(now, v0Only)
	alter := &kmsg.AlterConfigsRequest{
		Resources:   []kmsg.AlterConfigsResource{{ResourceName: "t"}},
		Incremental: true,
	}
	if _, err := b.AlterConfigs(alter, nil, nil, nil); err != kerr.UnsupportedFeature {
		t.Fatalf("incremental below the version cutoff: err=%v, want UnsupportedFeature", err)
	}
}

func TestBuilderAdminDeadlineExtension(t *testing.T) {
	now := time.Unix(1000, 0)
	bb := &buildBroker{maxVersion: 3}
	b := newTestBuilder(now, bb)

	create := &kmsg.CreateTopicsRequest{
		Topics:    []kmsg.CreatableTopic{{Topic: "t"}},
		TimeoutMs: 60_000,
	}
	env, err := b.CreateTopics(create, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if want := now.Add(61 * time.Second); !env.Deadline.Equal(want) {
		t.Fatalf("deadline = %v, want op timeout + 1s = %v", env.Deadline, want)
	}

	// An op timeout within the socket timeout leaves the deadline alone.
	create = &kmsg.CreateTopicsRequest{
		Topics:    []kmsg.CreatableTopic{{Topic: "t"}},
		TimeoutMs: 1000,
	}
	env, err = b.CreateTopics(create, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if want := now.Add(30 * time.Second); !env.Deadline.Equal(want) {
		t.Fatalf("deadline = %v, want socket timeout %v", env.Deadline, want)
	}
}
