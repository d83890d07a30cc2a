package kmsg

import (
	"github.com/twmb/kreq/pkg/kbin"
	"github.com/twmb/kreq/pkg/kerr"
)

// Sentinel offset values used by OffsetFetch/OffsetCommit callers, mirrored
// from the committed-offset bookkeeping this engine treats as opaque.
const (
	// OffsetInvalid marks a partition with no usable current offset.
	OffsetInvalid = -1001
	// OffsetStored marks a partition whose offset should be read from
	// local persisted storage rather than fetched from the group.
	OffsetStored = -1000
)

// OffsetFetchRequestPartition is a partition a caller wants the group's
// committed offset for.
type OffsetFetchRequestPartition struct {
	Topic     string
	Partition int32

	// CurrentOffset is the partition's locally known offset. Partitions
	// whose CurrentOffset is neither OffsetInvalid nor OffsetStored
	// already have a usable offset and are skipped.
	CurrentOffset int64
}

// OffsetFetchRequest fetches a consumer group's committed offsets.
type OffsetFetchRequest struct {
	versioned

	Group      string
	Partitions []OffsetFetchRequestPartition
}

func (*OffsetFetchRequest) Key() ApiKey                { return OffsetFetch }
func (*OffsetFetchRequest) MinVersion() int16          { return 0 }
func (*OffsetFetchRequest) MaxVersion() int16          { return 2 }
func (*OffsetFetchRequest) IsGroupCoordinatorRequest() {}

// NeedsOffsetFetch reports whether at least one partition needs a wire
// request. If false, the request-building layer must send nothing and
// synthesize an empty, successful reply instead.
func NeedsOffsetFetch(parts []OffsetFetchRequestPartition) bool {
	for _, p := range parts {
		if p.CurrentOffset == OffsetInvalid || p.CurrentOffset == OffsetStored {
			return true
		}
	}
	return false
}

// AppendTo appends the OffsetFetchRequest body: group id, then
// topic-grouped partitions, skipping any partition that already has a
// usable offset.
func (r *OffsetFetchRequest) AppendTo(dst []byte) []byte {
	w := kbin.NewWriter(dst)
	w.String(r.Group)

	var needed []OffsetFetchRequestPartition
	for _, p := range r.Partitions {
		if p.CurrentOffset == OffsetInvalid || p.CurrentOffset == OffsetStored {
			needed = append(needed, p)
		}
	}
	grouped := groupByTopicFetch(needed)
	w.Int32(int32(len(grouped)))
	for _, g := range grouped {
		w.String(g.topic)
		partCntRes := w.Reserve()
		for _, p := range g.parts {
			w.Int32(p.Partition)
		}
		w.Fill(partCntRes, int32(len(g.parts)))
	}
	return w.Bytes()
}

func (r *OffsetFetchRequest) ResponseKind() Response { return new(OffsetFetchResponse) }

type fetchTopicGroup struct {
	topic string
	parts []OffsetFetchRequestPartition
}

func groupByTopicFetch(parts []OffsetFetchRequestPartition) []fetchTopicGroup {
	byTopic := make(map[string][]OffsetFetchRequestPartition)
	var order []string
	for _, p := range parts {
		if _, ok := byTopic[p.Topic]; !ok {
			order = append(order, p.Topic)
		}
		byTopic[p.Topic] = append(byTopic[p.Topic], p)
	}
	out := make([]fetchTopicGroup, 0, len(order))
	for _, t := range order {
		out = append(out, fetchTopicGroup{topic: t, parts: byTopic[t]})
	}
	return out
}

// OffsetFetchResponsePartition is one partition's committed-offset result.
type OffsetFetchResponsePartition struct {
	Partition int32
	Offset    int64
	Metadata  *string
	ErrorCode kerr.Code
}

// OffsetFetchResponseTopic is one topic's results in an OffsetFetchResponse.
type OffsetFetchResponseTopic struct {
	Topic      string
	Partitions []OffsetFetchResponsePartition
}

// OffsetFetchResponse is the decoded reply to OffsetFetchRequest.
type OffsetFetchResponse struct {
	Topics    []OffsetFetchResponseTopic
	ErrorCode kerr.Code // only present on v>=2; zero-value NoError otherwise

	decodeV2 bool
}

// SetDecodeVersion tells the response whether to expect the trailing
// top-level ErrorCode field, present only on v>=2.
func (r *OffsetFetchResponse) SetDecodeVersion(v int16) { r.decodeV2 = v >= 2 }

func (r *OffsetFetchResponse) ReadFrom(src []byte) error {
	rd := kbin.Reader{Src: src}
	nt := rd.ArrayLen()
	if nt > 0 {
		r.Topics = make([]OffsetFetchResponseTopic, 0, nt)
	}
	for i := int32(0); i < nt; i++ {
		var t OffsetFetchResponseTopic
		t.Topic = rd.String()
		np := rd.ArrayLen()
		if np > 0 {
			t.Partitions = make([]OffsetFetchResponsePartition, 0, np)
		}
		for j := int32(0); j < np; j++ {
			var p OffsetFetchResponsePartition
			p.Partition = rd.Int32()
			p.Offset = rd.Int64()
			p.Metadata = rd.NullableString()
			p.ErrorCode = kerr.Code(rd.Int16())
			t.Partitions = append(t.Partitions, p)
		}
		r.Topics = append(r.Topics, t)
	}
	if r.decodeV2 {
		r.ErrorCode = kerr.Code(rd.Int16())
	}
	if err := rd.Complete(); err != nil {
		return kerr.BadMsg
	}
	return nil
}
