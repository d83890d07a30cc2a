package kmsg

import (
	"sort"

	"github.com/twmb/kreq/pkg/kbin"
	"github.com/twmb/kreq/pkg/kerr"
)

// OffsetRequestTopicPartition describes one partition to list an offset
// for, at the given timestamp (v>=1) or legacy "timestamp or special
// offset" value (v0; -1 means latest, -2 means earliest).
type OffsetRequestTopicPartition struct {
	Topic     string
	Partition int32
	Timestamp int64
}

// OffsetRequest is the ListOffsets request.
type OffsetRequest struct {
	versioned

	// ReplicaID is always -1 for a non-replica (client) request.
	ReplicaID int32

	Partitions []OffsetRequestTopicPartition
}

// NewOffsetRequest returns an OffsetRequest with ReplicaID defaulted to -1,
// matching the only value a client ever sends.
func NewOffsetRequest(partitions []OffsetRequestTopicPartition) *OffsetRequest {
	return &OffsetRequest{ReplicaID: -1, Partitions: partitions}
}

func (*OffsetRequest) Key() ApiKey       { return Offset }
func (*OffsetRequest) MinVersion() int16 { return 0 }
func (*OffsetRequest) MaxVersion() int16 { return 1 }

// AppendTo appends the OffsetRequest body. Partitions are first grouped
// and sorted by topic so that identical-topic runs can be emitted under
// one topic header, whose PartitionCnt placeholder is reserved up front
// and back-patched once every partition in the run has been written.
func (r *OffsetRequest) AppendTo(dst []byte) []byte {
	w := kbin.NewWriter(dst)
	w.Int32(r.ReplicaID)

	grouped := groupByTopic(r.Partitions)
	w.Int32(int32(len(grouped)))
	for _, g := range grouped {
		w.String(g.topic)
		partCntRes := w.Reserve()
		for _, p := range g.parts {
			w.Int32(p.Partition)
			w.Int64(p.Timestamp)
			if r.Version == 0 {
				w.Int32(1) // max_offsets, always 1
			}
		}
		w.Fill(partCntRes, int32(len(g.parts)))
	}
	return w.Bytes()
}

func (r *OffsetRequest) ResponseKind() Response { return new(OffsetResponse) }

type topicGroup struct {
	topic string
	parts []OffsetRequestTopicPartition
}

// groupByTopic sorts partitions by topic name and groups consecutive
// runs, so every topic appears exactly once in the encoded array.
func groupByTopic(parts []OffsetRequestTopicPartition) []topicGroup {
	sorted := make([]OffsetRequestTopicPartition, len(parts))
	copy(sorted, parts)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Topic < sorted[j].Topic })

	var groups []topicGroup
	for _, p := range sorted {
		if len(groups) == 0 || groups[len(groups)-1].topic != p.Topic {
			groups = append(groups, topicGroup{topic: p.Topic})
		}
		g := &groups[len(groups)-1]
		g.parts = append(g.parts, p)
	}
	return groups
}

// OffsetResponsePartition is one partition's result in an OffsetResponse.
type OffsetResponsePartition struct {
	Partition int32
	ErrorCode kerr.Code
	Timestamp int64 // only meaningful on v>=1
	Offset    int64
}

// OffsetResponseTopic is one topic's results in an OffsetResponse.
type OffsetResponseTopic struct {
	Topic      string
	Partitions []OffsetResponsePartition
}

// OffsetResponse is the decoded reply to OffsetRequest.
type OffsetResponse struct {
	Topics []OffsetResponseTopic

	decodeV1 bool
}

// ReadFrom decodes an OffsetResponse. On v0 each partition replies with an
// OffsetArrayCnt array of legacy offsets; only the first is retained. On
// v1 a single (timestamp, offset) pair is returned per partition.
func (r *OffsetResponse) ReadFrom(src []byte) error {
	rd := kbin.Reader{Src: src}
	nt := rd.ArrayLen()
	if nt > 0 {
		r.Topics = make([]OffsetResponseTopic, 0, nt)
	}
	for i := int32(0); i < nt; i++ {
		var t OffsetResponseTopic
		t.Topic = rd.String()
		np := rd.ArrayLen()
		if np > 0 {
			t.Partitions = make([]OffsetResponsePartition, 0, np)
		}
		for j := int32(0); j < np; j++ {
			var p OffsetResponsePartition
			p.Partition = rd.Int32()
			p.ErrorCode = kerr.Code(rd.Int16())
			if r.version1() {
				p.Timestamp = rd.Int64()
				p.Offset = rd.Int64()
			} else {
				n := rd.ArrayLen()
				var first int64
				for k := int32(0); k < n; k++ {
					off := rd.Int64()
					if k == 0 {
						first = off
					}
				}
				p.Offset = first
			}
			t.Partitions = append(t.Partitions, p)
		}
		r.Topics = append(r.Topics, t)
	}
	if err := rd.Complete(); err != nil {
		return kerr.BadMsg
	}
	return nil
}

// version1 is a decode-time hint threaded in by the handler; see
// SetDecodeVersion.
func (r *OffsetResponse) version1() bool { return r.decodeV1 }

// SetDecodeVersion tells the response which request version produced the
// bytes about to be parsed, since the response wire format itself carries
// no version field. The handler sets this from the request's negotiated
// version before calling ReadFrom.
func (r *OffsetResponse) SetDecodeVersion(v int16) { r.decodeV1 = v >= 1 }
