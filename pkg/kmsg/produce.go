package kmsg

import (
	"github.com/twmb/kreq/pkg/kbin"
	"github.com/twmb/kreq/pkg/kerr"
)

// ProduceRequest appends a pre-built message-set to a single
// topic-partition. Message batching, record encoding, and compression are
// external concerns: MessageSet is an opaque, already framed byte slice
// handed to us by that external builder.
type ProduceRequest struct {
	versioned

	RequiredAcks int16
	TimeoutMs    int32

	Topic      string
	Partition  int32
	MessageSet []byte
}

func (*ProduceRequest) Key() ApiKey       { return Produce }
func (*ProduceRequest) MinVersion() int16 { return 0 }
func (*ProduceRequest) MaxVersion() int16 { return 2 }

// AppendTo appends the ProduceRequest body: acks, timeout, then a single
// topic with a single partition carrying the message-set tail. One
// request always targets exactly one topic+partition at this layer.
func (r *ProduceRequest) AppendTo(dst []byte) []byte {
	w := kbin.NewWriter(dst)
	w.Int16(r.RequiredAcks)
	w.Int32(r.TimeoutMs)
	w.Int32(1) // TopicArrayCnt
	w.String(r.Topic)
	w.Int32(1) // PartitionArrayCnt
	w.Int32(r.Partition)
	w.Int32(int32(len(r.MessageSet)))
	w.Raw(r.MessageSet)
	return w.Bytes()
}

func (r *ProduceRequest) ResponseKind() Response { return new(ProduceResponse) }

// ProduceResponsePartition is the single partition result in a
// ProduceResponse (see ProduceRequest: one request, one partition).
type ProduceResponsePartition struct {
	Partition     int32
	ErrorCode     kerr.Code
	BaseOffset    int64
	LogAppendTime int64 // only meaningful on v>=2
}

// ProduceResponse is the decoded reply to ProduceRequest. A buggy broker
// that returns more than one topic or more than one partition is treated
// as BadMsg: this engine only ever asks about one.
type ProduceResponse struct {
	Topic      string
	Partition  ProduceResponsePartition
	ThrottleMs int32 // only present on v>=1

	decodeVersion int16
}

// SetDecodeVersion tells the response which request version produced the
// bytes about to be parsed, since throttle_time_ms and log_append_time are
// only present from v>=1 and v>=2 respectively.
func (r *ProduceResponse) SetDecodeVersion(v int16) { r.decodeVersion = v }

func (r *ProduceResponse) ReadFrom(src []byte) error {
	rd := kbin.Reader{Src: src}
	nt := rd.ArrayLen()
	if nt != 1 {
		return kerr.BadMsg
	}
	r.Topic = rd.String()
	np := rd.ArrayLen()
	if np != 1 {
		return kerr.BadMsg
	}
	r.Partition.Partition = rd.Int32()
	r.Partition.ErrorCode = kerr.Code(rd.Int16())
	r.Partition.BaseOffset = rd.Int64()
	if r.decodeVersion >= 2 {
		r.Partition.LogAppendTime = rd.Int64()
	}
	if r.decodeVersion >= 1 {
		r.ThrottleMs = rd.Int32()
	}
	if err := rd.Complete(); err != nil {
		return kerr.BadMsg
	}
	return nil
}

// Throttle implements kmsg.ThrottleResponse.
func (r *ProduceResponse) Throttle() int32 { return r.ThrottleMs }
