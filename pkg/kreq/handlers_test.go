package kreq

import (
	"testing"

	"github.com/twmb/kreq/pkg/kbin"
	"github.com/twmb/kreq/pkg/kerr"
	"github.com/twmb/kreq/pkg/kmsg"
)

func TestOffsetEncodeGroupsSortedTopics(t *testing.T) {
	req := kmsg.NewOffsetRequest([]kmsg.OffsetRequestTopicPartition{
		{Topic: "t", Partition: 0, Timestamp: 1000},
		{Topic: "t", Partition: 1, Timestamp: 2000},
		{Topic: "u", Partition: 0, Timestamp: 3000},
	})
	req.SetVersion(1)

	body := req.AppendTo(nil)
	rd := kbin.Reader{Src: body}
	if got := rd.Int32(); got != -1 {
		t.Fatalf("ReplicaId = %d, want -1", got)
	}
	if got := rd.Int32(); got != 2 {
		t.Fatalf("TopicCnt = %d, want 2", got)
	}

	topic := rd.String()
	if topic != "t" {
		t.Fatalf("first topic = %q, want t", topic)
	}
	if got := rd.Int32(); got != 2 {
		t.Fatalf("t PartCnt = %d, want 2", got)
	}
	if p, ts := rd.Int32(), rd.Int64(); p != 0 || ts != 1000 {
		t.Fatalf("t partition 0 = (%d, %d), want (0, 1000)", p, ts)
	}
	if p, ts := rd.Int32(), rd.Int64(); p != 1 || ts != 2000 {
		t.Fatalf("t partition 1 = (%d, %d), want (1, 2000)", p, ts)
	}

	topic2 := rd.String()
	if topic2 != "u" {
		t.Fatalf("second topic = %q, want u", topic2)
	}
	if got := rd.Int32(); got != 1 {
		t.Fatalf("u PartCnt = %d, want 1", got)
	}
	if p, ts := rd.Int32(), rd.Int64(); p != 0 || ts != 3000 {
		t.Fatalf("u partition 0 = (%d, %d), want (0, 3000)", p, ts)
	}

	_, features, ok := kmsg.Negotiate(kmsg.NewBrokerVersions(nil), kmsg.Offset, kmsg.VersionRange{Min: 1, Max: 1})
	if !ok || features&kmsg.FeatureOffsetTime == 0 {
		t.Fatalf("expected FeatureOffsetTime at v1, got features=%v ok=%v", features, ok)
	}
}

func TestOffsetFetchSkipsSatisfiedPartitions(t *testing.T) {
	parts := []kmsg.OffsetFetchRequestPartition{
		{Topic: "t", Partition: 0, CurrentOffset: kmsg.OffsetInvalid},
		{Topic: "t", Partition: 1, CurrentOffset: 12345},
	}
	if !kmsg.NeedsOffsetFetch(parts) {
		t.Fatal("expected NeedsOffsetFetch true: partition 0 needs a request")
	}

	req := &kmsg.OffsetFetchRequest{Group: "g", Partitions: parts}
	req.SetVersion(1)
	body := req.AppendTo(nil)
	rd := kbin.Reader{Src: body}
	if got := rd.String(); got != "g" {
		t.Fatalf("group = %q, want g", got)
	}
	if got := rd.Int32(); got != 1 {
		t.Fatalf("TopicCnt = %d, want 1 (only the needed partition's topic)", got)
	}
	if got := rd.String(); got != "t" {
		t.Fatalf("topic = %q, want t", got)
	}
	if got := rd.Int32(); got != 1 {
		t.Fatalf("PartCnt = %d, want 1", got)
	}
	if got := rd.Int32(); got != 0 {
		t.Fatalf("only partition sent = %d, want 0", got)
	}

	allSatisfied := []kmsg.OffsetFetchRequestPartition{
		{Topic: "t", Partition: 1, CurrentOffset: 12345},
	}
	if kmsg.NeedsOffsetFetch(allSatisfied) {
		t.Fatal("expected NeedsOffsetFetch false when every partition already has a usable offset")
	}
}

func TestHandleOffsetFetchDropsUnrequestedAndNormalizesInvalid(t *testing.T) {
	resp := &kmsg.OffsetFetchResponse{
		Topics: []kmsg.OffsetFetchResponseTopic{
			{Topic: "t", Partitions: []kmsg.OffsetFetchResponsePartition{
				{Partition: 0, Offset: -1},
				{Partition: 9, Offset: 42}, // not requested
			}},
		},
	}
	want := []kmsg.OffsetFetchRequestPartition{{Topic: "t", Partition: 0, CurrentOffset: kmsg.OffsetInvalid}}

	var updated bool
	results := HandleOffsetFetch(resp, want, func(topic string, partition int32, offset int64, metadata *string) {
		updated = true
	}, nil)
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1 (partition 9 must be dropped)", len(results))
	}
	if results[0].Offset != kmsg.OffsetInvalid {
		t.Fatalf("Offset = %d, want normalized OffsetInvalid", results[0].Offset)
	}
	if !updated {
		t.Fatal("expected update callback to fire for the successfully fetched partition")
	}
}

func TestHandleOffsetCommitAllFailed(t *testing.T) {
	resp := &kmsg.OffsetCommitResponse{
		Topics: []kmsg.OffsetCommitResponseTopic{
			{Topic: "t", Partitions: []kmsg.OffsetCommitResponsePartition{
				{Partition: 0, ErrorCode: kerr.RebalanceInProgress.Code},
				{Partition: 1, ErrorCode: kerr.RebalanceInProgress.Code},
			}},
		},
	}
	err := HandleOffsetCommit(resp)
	if err != kerr.RebalanceInProgress {
		t.Fatalf("HandleOffsetCommit = %v, want RebalanceInProgress", err)
	}
}

func TestProduceTailOffsetAndThrottle(t *testing.T) {
	resp := &kmsg.ProduceResponse{
		Partition: kmsg.ProduceResponsePartition{BaseOffset: 100},
		ThrottleMs: 250,
	}
	obs := &fakeThrottleObserver{}
	res := HandleProduce(resp, 4, false, obs, 7)
	if len(res.Offsets) != 0 {
		t.Fatalf("expected no per-message offsets when produceOffsetReport=false, got %v", res.Offsets)
	}
	if got := res.BaseOffset + int64(4-1); got != 103 {
		t.Fatalf("tail offset = %d, want 103", got)
	}
	if obs.broker != 7 || obs.ms != 250 {
		t.Fatalf("throttle observed = (%d, %d), want (7, 250)", obs.broker, obs.ms)
	}
}

type fakeThrottleObserver struct {
	broker int32
	ms     int32
}

func (f *fakeThrottleObserver) Observe(broker int32, ms int32) { f.broker, f.ms = broker, ms }

func TestApiVersionsMalformedCount(t *testing.T) {
	var w kbin.Writer
	w.Int16(0)
	w.Int32(1_000_001)
	resp := new(kmsg.ApiVersionsResponse)
	if err := resp.ReadFrom(w.Bytes()); err != kerr.BadMsg {
		t.Fatalf("ReadFrom = %v, want kerr.BadMsg", err)
	}
	if resp.ApiKeys != nil {
		t.Fatal("expected no table published on a malformed count")
	}
}

func TestSyncGroupStaleReplyDiscarded(t *testing.T) {
	resp := &kmsg.SyncGroupResponse{MemberState: []byte{1, 2, 3}}
	state, err, ok := HandleSyncGroup(resp, JoinStateStable)
	if ok {
		t.Fatal("expected ok=false: group already advanced past WaitSync")
	}
	if state != nil || err != nil {
		t.Fatalf("expected no member state or error consumed on a stale reply, got state=%v err=%v", state, err)
	}

	state, err, ok = HandleSyncGroup(resp, JoinStateWaitSync)
	if !ok {
		t.Fatal("expected ok=true while still in WaitSync")
	}
	if string(state) != "\x01\x02\x03" {
		t.Fatalf("member state = %v, want [1 2 3]", state)
	}
	_ = err
}
