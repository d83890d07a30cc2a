package kmsg

import (
	"github.com/twmb/kreq/pkg/kbin"
	"github.com/twmb/kreq/pkg/kerr"
)

// OffsetCommitRequestPartition is one partition's offset to commit.
type OffsetCommitRequestPartition struct {
	Topic     string
	Partition int32

	// Offset is the offset to commit. Partitions with a negative Offset
	// are skipped; there is nothing meaningful to commit for them.
	Offset int64

	// Metadata is optional caller metadata attached to the commit. A nil
	// Metadata is encoded as an empty string, never as a null string: a
	// compatibility workaround for old consumers/brokers that cannot
	// parse a null metadata field.
	Metadata *string
}

// OffsetCommitRequest commits a consumer group's offsets.
type OffsetCommitRequest struct {
	versioned

	Group string

	// GenerationID and MemberID are only encoded on v>=1.
	GenerationID int32
	MemberID     string

	Partitions []OffsetCommitRequestPartition
}

func (*OffsetCommitRequest) Key() ApiKey                { return OffsetCommit }
func (*OffsetCommitRequest) MinVersion() int16          { return 0 }
func (*OffsetCommitRequest) MaxVersion() int16          { return 2 }
func (*OffsetCommitRequest) IsGroupCoordinatorRequest() {}

// NeedsOffsetCommit reports whether any partition has a non-negative
// offset to send. If every offset is negative, the caller must send
// nothing and report that no request went out.
func NeedsOffsetCommit(parts []OffsetCommitRequestPartition) bool {
	for _, p := range parts {
		if p.Offset >= 0 {
			return true
		}
	}
	return false
}

// AppendTo appends the OffsetCommitRequest body.
func (r *OffsetCommitRequest) AppendTo(dst []byte) []byte {
	w := kbin.NewWriter(dst)
	w.String(r.Group)
	if r.Version >= 1 {
		w.Int32(r.GenerationID)
		w.String(r.MemberID)
	}
	if r.Version == 2 {
		// retention_time is hard-coded to -1; retention is not
		// configurable at this layer.
		w.Int64(-1)
	}

	var toCommit []OffsetCommitRequestPartition
	for _, p := range r.Partitions {
		if p.Offset >= 0 {
			toCommit = append(toCommit, p)
		}
	}
	grouped := groupByTopicCommit(toCommit)
	w.Int32(int32(len(grouped)))
	for _, g := range grouped {
		w.String(g.topic)
		partCntRes := w.Reserve()
		for _, p := range g.parts {
			w.Int32(p.Partition)
			w.Int64(p.Offset)
			if r.Version == 1 {
				w.Int64(-1) // timestamp, always -1
			}
			if p.Metadata == nil {
				w.String("") // never encode null metadata
			} else {
				w.String(*p.Metadata)
			}
		}
		w.Fill(partCntRes, int32(len(g.parts)))
	}
	return w.Bytes()
}

func (r *OffsetCommitRequest) ResponseKind() Response { return new(OffsetCommitResponse) }

type commitTopicGroup struct {
	topic string
	parts []OffsetCommitRequestPartition
}

func groupByTopicCommit(parts []OffsetCommitRequestPartition) []commitTopicGroup {
	byTopic := make(map[string][]OffsetCommitRequestPartition)
	var order []string
	for _, p := range parts {
		if _, ok := byTopic[p.Topic]; !ok {
			order = append(order, p.Topic)
		}
		byTopic[p.Topic] = append(byTopic[p.Topic], p)
	}
	out := make([]commitTopicGroup, 0, len(order))
	for _, t := range order {
		out = append(out, commitTopicGroup{topic: t, parts: byTopic[t]})
	}
	return out
}

// OffsetCommitResponsePartition is one partition's commit result.
type OffsetCommitResponsePartition struct {
	Partition int32
	ErrorCode kerr.Code
}

// OffsetCommitResponseTopic is one topic's results in an
// OffsetCommitResponse.
type OffsetCommitResponseTopic struct {
	Topic      string
	Partitions []OffsetCommitResponsePartition
}

// OffsetCommitResponse is the decoded reply to OffsetCommitRequest.
type OffsetCommitResponse struct {
	Topics []OffsetCommitResponseTopic
}

func (r *OffsetCommitResponse) ReadFrom(src []byte) error {
	rd := kbin.Reader{Src: src}
	nt := rd.ArrayLen()
	if nt > 0 {
		r.Topics = make([]OffsetCommitResponseTopic, 0, nt)
	}
	for i := int32(0); i < nt; i++ {
		var t OffsetCommitResponseTopic
		t.Topic = rd.String()
		np := rd.ArrayLen()
		if np > 0 {
			t.Partitions = make([]OffsetCommitResponsePartition, 0, np)
		}
		for j := int32(0); j < np; j++ {
			var p OffsetCommitResponsePartition
			p.Partition = rd.Int32()
			p.ErrorCode = kerr.Code(rd.Int16())
			t.Partitions = append(t.Partitions, p)
		}
		r.Topics = append(r.Topics, t)
	}
	if err := rd.Complete(); err != nil {
		return kerr.BadMsg
	}
	return nil
}

// AllFailedError reports the "all partitions failed" aggregation:
// if every partition in the response carries a non-nil error, the last
// one is returned so a caller checking only the top-level status still
// learns the batch failed; otherwise nil.
func (r *OffsetCommitResponse) AllFailedError() error {
	var last error
	var total int
	for _, t := range r.Topics {
		for _, p := range t.Partitions {
			total++
			if err := kerr.ErrorForCode(p.ErrorCode); err != nil {
				last = err
			} else {
				return nil
			}
		}
	}
	if total == 0 {
		return nil
	}
	return last
}
