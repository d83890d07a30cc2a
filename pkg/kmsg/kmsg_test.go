package kmsg

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/go-cmp/cmp"

	"github.com/twmb/kreq/pkg/kbin"
)

func TestRequestHeaderLayout(t *testing.T) {
	req := &HeartbeatRequest{Group: "g", GenerationID: 3, MemberID: "m"}
	req.SetVersion(0)
	clientID := "me"
	wire := AppendRequest(nil, req, 42, &clientID)

	rd := kbin.Reader{Src: wire}
	size := rd.Int32()
	if int(size) != len(wire)-4 {
		t.Fatalf("length prefix = %d, want %d; wire:\n%s", size, len(wire)-4, spew.Sdump(wire))
	}
	if got := rd.Int16(); got != Heartbeat {
		t.Fatalf("ApiKey = %d, want %d", got, Heartbeat)
	}
	if got := rd.Int16(); got != 0 {
		t.Fatalf("ApiVersion = %d, want 0", got)
	}
	if got := rd.Int32(); got != 42 {
		t.Fatalf("CorrelationId = %d, want 42", got)
	}
	if got := rd.NullableString(); got == nil || *got != "me" {
		t.Fatalf("ClientId = %v, want me", got)
	}
	if got := rd.String(); got != "g" {
		t.Fatalf("body group = %q, want g", got)
	}
}

func TestMetadataTopicSentinels(t *testing.T) {
	for _, c := range []struct {
		name    string
		topics  []string
		version int16
		wantCnt int32
	}{
		{"v0 nil means all topics via empty array", nil, 0, 0},
		{"v1 nil means all topics via null array", nil, 1, -1},
		{"v1 empty means brokers only", []string{}, 1, 0},
		{"v1 explicit topics", []string{"a", "b"}, 1, 2},
	} {
		t.Run(c.name, func(t *testing.T) {
			req := &MetadataRequest{Topics: c.topics}
			req.SetVersion(c.version)
			rd := kbin.Reader{Src: req.AppendTo(nil)}
			if got := rd.ArrayLen(); got != c.wantCnt {
				t.Fatalf("topic count = %d, want %d", got, c.wantCnt)
			}
		})
	}
}

func TestOffsetCommitNullMetadataEncodesEmptyString(t *testing.T) {
	req := &OffsetCommitRequest{
		Group: "g",
		Partitions: []OffsetCommitRequestPartition{
			{Topic: "t", Partition: 0, Offset: 5, Metadata: nil},
		},
	}
	req.SetVersion(0)
	body := req.AppendTo(nil)

	rd := kbin.Reader{Src: body}
	_ = rd.String()   // group
	_ = rd.ArrayLen() // topic count
	_ = rd.String()   // topic
	_ = rd.ArrayLen() // partition count
	_ = rd.Int32()    // partition
	_ = rd.Int64()    // offset
	if got := rd.Int16(); got != 0 {
		t.Fatalf("metadata length = %d, want 0 (empty string, never null); body:\n%s", got, spew.Sdump(body))
	}
}

func TestOffsetCommitSkipsNegativeOffsets(t *testing.T) {
	req := &OffsetCommitRequest{
		Group: "g",
		Partitions: []OffsetCommitRequestPartition{
			{Topic: "t", Partition: 0, Offset: -1},
			{Topic: "t", Partition: 1, Offset: 9},
		},
	}
	req.SetVersion(0)
	rd := kbin.Reader{Src: req.AppendTo(nil)}
	_ = rd.String()
	if got := rd.ArrayLen(); got != 1 {
		t.Fatalf("topic count = %d, want 1", got)
	}
	_ = rd.String()
	if got := rd.ArrayLen(); got != 1 {
		t.Fatalf("partition count = %d, want 1 (negative offset skipped)", got)
	}
	if got := rd.Int32(); got != 1 {
		t.Fatalf("surviving partition = %d, want 1", got)
	}
}

func TestSyncGroupMemberAssignmentRoundTrip(t *testing.T) {
	in := &SyncGroupMemberAssignment{
		Version: 0,
		Topics: []SyncGroupAssignmentTopic{
			{Topic: "a", Partitions: []int32{0, 1, 2}},
			{Topic: "b", Partitions: []int32{4}},
		},
		UserData: []byte("ud"),
	}
	wire := in.AppendTo(nil)

	var out SyncGroupMemberAssignment
	if err := out.ReadFrom(wire); err != nil {
		t.Fatalf("ReadFrom: %v; wire:\n%s", err, spew.Sdump(wire))
	}
	if diff := cmp.Diff(*in, out); diff != "" {
		t.Fatalf("round trip mismatch (-in +out):\n%s", diff)
	}
}

func TestMetadataResponseDecode(t *testing.T) {
	var w kbin.Writer
	w.Int32(1) // brokers
	w.Int32(7)
	w.String("host")
	w.Int32(9092)
	w.NullableString(nil) // rack
	w.Int32(2)            // controller id
	w.Int32(1)            // topics
	w.Int16(0)            // topic error
	w.String("t")
	w.Int8(0)  // internal
	w.Int32(1) // partitions
	w.Int16(0)
	w.Int32(0) // partition
	w.Int32(7) // leader
	w.Int32(1) // replicas
	w.Int32(7)
	w.Int32(1) // isr
	w.Int32(7)
	w.Int32(0) // offline

	var resp MetadataResponse
	if err := resp.ReadFrom(w.Bytes()); err != nil {
		t.Fatalf("ReadFrom: %v; wire:\n%s", err, spew.Sdump(w.Bytes()))
	}
	want := MetadataResponse{
		Brokers:      []MetadataResponseBroker{{NodeID: 7, Host: "host", Port: 9092}},
		ControllerID: 2,
		Topics: []MetadataResponseTopic{{
			Topic: "t",
			Partitions: []MetadataResponsePartition{{
				Partition: 0, Leader: 7, Replicas: []int32{7}, ISR: []int32{7},
			}},
		}},
	}
	if diff := cmp.Diff(want, resp); diff != "" {
		t.Fatalf("decode mismatch (-want +got):\n%s", diff)
	}
}

func TestOffsetResponseV0RetainsFirstOffset(t *testing.T) {
	var w kbin.Writer
	w.Int32(1) // topics
	w.String("t")
	w.Int32(1) // partitions
	w.Int32(0) // partition
	w.Int16(0) // error
	w.Int32(3) // legacy offset array
	w.Int64(100)
	w.Int64(90)
	w.Int64(80)

	var resp OffsetResponse
	resp.SetDecodeVersion(0)
	if err := resp.ReadFrom(w.Bytes()); err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if got := resp.Topics[0].Partitions[0].Offset; got != 100 {
		t.Fatalf("retained offset = %d, want the first legacy offset 100", got)
	}
}

func TestNegotiate(t *testing.T) {
	bv := NewBrokerVersions([]ApiVersionsResponseKey{
		{ApiKey: Offset, MinVersion: 0, MaxVersion: 1},
		{ApiKey: Metadata, MinVersion: 2, MaxVersion: 5},
	})

	v, feat, ok := Negotiate(bv, Offset, VersionRange{Min: 0, Max: 1})
	if !ok || v != 1 || feat&FeatureOffsetTime == 0 {
		t.Fatalf("Offset: v=%d feat=%v ok=%v, want v=1 with FeatureOffsetTime", v, feat, ok)
	}

	if _, _, ok := Negotiate(bv, Metadata, VersionRange{Min: 0, Max: 1}); ok {
		t.Fatal("no overlap must fail")
	}

	// A broker with no entry for the key at all gets the caller's max:
	// pre-version-discovery brokers have no table to consult.
	v, _, ok = Negotiate(bv, Produce, VersionRange{Min: 0, Max: 2})
	if !ok || v != 2 {
		t.Fatalf("unknown key: v=%d ok=%v, want caller max 2", v, ok)
	}
}
