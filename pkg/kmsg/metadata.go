package kmsg

import (
	"github.com/twmb/kreq/pkg/kbin"
	"github.com/twmb/kreq/pkg/kerr"
)

// MetadataRequest asks for cluster broker and topic metadata.
//
// Topics is nil for "all topics" (v>=1 encodes a null array; v=0 encodes
// an empty array, since v=0 has no way to spell null) and non-nil-but-empty
// for "brokers only" (v>=1 only; on v=0 an empty array also means all
// topics, there being no brokers-only mode at v=0).
type MetadataRequest struct {
	versioned

	// Topics to describe. See the doc comment above for the nil vs.
	// empty distinction.
	Topics []string

	// AllowAutoTopicCreation requests brokers create Topics that do not
	// yet exist. Only meaningful on v>=4; ignored below that.
	AllowAutoTopicCreation bool
}

func (*MetadataRequest) Key() ApiKey       { return Metadata }
func (*MetadataRequest) MinVersion() int16 { return 0 }
func (*MetadataRequest) MaxVersion() int16 { return 5 }

// AppendTo appends the MetadataRequest body: an i32 topic count
// (-1 for the "all topics" null-array sentinel) followed by that many
// topic-name strings.
func (r *MetadataRequest) AppendTo(dst []byte) []byte {
	w := kbin.NewWriter(dst)
	switch {
	case r.Topics == nil && r.Version == 0:
		// v0 has no null-array sentinel; an empty array already
		// means "all topics".
		w.Int32(0)
	case r.Topics == nil:
		w.Int32(-1)
	default:
		w.Int32(int32(len(r.Topics)))
		for _, t := range r.Topics {
			w.String(t)
		}
	}
	if r.Version >= 4 {
		var b int8
		if r.AllowAutoTopicCreation {
			b = 1
		}
		w.Int8(b)
	}
	return w.Bytes()
}

func (r *MetadataRequest) ResponseKind() Response { return new(MetadataResponse) }

// MetadataResponseBroker is one broker entry in a MetadataResponse.
type MetadataResponseBroker struct {
	NodeID int32
	Host   string
	Port   int32
	Rack   *string
}

// MetadataResponsePartition is one partition entry within a topic in a
// MetadataResponse.
type MetadataResponsePartition struct {
	ErrorCode       kerr.Code
	Partition       int32
	Leader          int32
	Replicas        []int32
	ISR             []int32
	OfflineReplicas []int32
}

// MetadataResponseTopic is one topic entry in a MetadataResponse.
type MetadataResponseTopic struct {
	ErrorCode  kerr.Code
	Topic      string
	IsInternal bool
	Partitions []MetadataResponsePartition
}

// MetadataResponse is the decoded reply to MetadataRequest.
type MetadataResponse struct {
	Brokers      []MetadataResponseBroker
	ControllerID int32
	Topics       []MetadataResponseTopic
}

func (r *MetadataResponse) ReadFrom(src []byte) error {
	rd := kbin.Reader{Src: src}
	nb := rd.ArrayLen()
	if nb > 0 {
		r.Brokers = make([]MetadataResponseBroker, 0, nb)
	}
	for i := int32(0); i < nb; i++ {
		var b MetadataResponseBroker
		b.NodeID = rd.Int32()
		b.Host = rd.String()
		b.Port = rd.Int32()
		b.Rack = rd.NullableString()
		r.Brokers = append(r.Brokers, b)
	}
	r.ControllerID = rd.Int32()
	nt := rd.ArrayLen()
	if nt > 0 {
		r.Topics = make([]MetadataResponseTopic, 0, nt)
	}
	for i := int32(0); i < nt; i++ {
		var t MetadataResponseTopic
		t.ErrorCode = kerr.Code(rd.Int16())
		t.Topic = rd.String()
		t.IsInternal = rd.Int8() != 0
		np := rd.ArrayLen()
		if np > 0 {
			t.Partitions = make([]MetadataResponsePartition, 0, np)
		}
		for j := int32(0); j < np; j++ {
			var p MetadataResponsePartition
			p.ErrorCode = kerr.Code(rd.Int16())
			p.Partition = rd.Int32()
			p.Leader = rd.Int32()
			p.Replicas = readInt32Array(&rd)
			p.ISR = readInt32Array(&rd)
			p.OfflineReplicas = readInt32Array(&rd)
			t.Partitions = append(t.Partitions, p)
		}
		r.Topics = append(r.Topics, t)
	}
	if err := rd.Complete(); err != nil {
		return kerr.BadMsg
	}
	return nil
}

func readInt32Array(rd *kbin.Reader) []int32 {
	n := rd.ArrayLen()
	if n <= 0 {
		return nil
	}
	out := make([]int32, 0, n)
	for i := int32(0); i < n; i++ {
		out = append(out, rd.Int32())
	}
	return out
}
