package kreq

import (
	"github.com/twmb/kreq/pkg/kerr"
	"github.com/twmb/kreq/pkg/kmsg"
)

// OffsetResult is one caller-supplied (topic, partition) re-associated
// with its decoded ListOffsets result.
type OffsetResult struct {
	Topic     string
	Partition int32
	Err       error
	Offset    int64
	Timestamp int64
}

// HandleOffset decodes an OffsetResponse and re-associates each returned
// partition with the caller's requested list by (topic, partition) key,
// not by wire order. want is the caller's original partition list; the
// broker is free to return them in a different order or grouping.
func HandleOffset(resp *kmsg.OffsetResponse, want []kmsg.OffsetRequestTopicPartition) []OffsetResult {
	type key struct {
		topic string
		part  int32
	}
	byKey := make(map[key]kmsg.OffsetResponsePartition, len(resp.Topics))
	for _, t := range resp.Topics {
		for _, p := range t.Partitions {
			byKey[key{t.Topic, p.Partition}] = p
		}
	}

	results := make([]OffsetResult, 0, len(want))
	for _, w := range want {
		p, ok := byKey[key{w.Topic, w.Partition}]
		if !ok {
			continue // broker said nothing about this partition
		}
		results = append(results, OffsetResult{
			Topic:     w.Topic,
			Partition: w.Partition,
			Err:       kerr.ErrorForCode(p.ErrorCode),
			Offset:    p.Offset,
			Timestamp: p.Timestamp,
		})
	}
	return results
}

// CommittedOffset is a single re-associated OffsetFetch result.
type CommittedOffset struct {
	Topic     string
	Partition int32
	Offset    int64
	Metadata  *string
	Err       error
}

// UpdateToppar is the external hook HandleOffsetFetch calls to persist a
// freshly fetched committed offset; the implementation is expected to
// take that partition's own lock, since the offset field it writes is
// shared with whatever subsystem consumes from the partition.
type UpdateToppar func(topic string, partition int32, offset int64, metadata *string)

// HandleOffsetFetch decodes an OffsetFetchResponse, re-associating each
// result with the caller's list. Results the caller never asked about are
// logged and dropped rather than synthesized as new entries. Broker-side
// "no committed offset" (-1) is normalized to kmsg.OffsetInvalid. When
// update is non-nil, it is invoked for every successfully fetched
// partition so the caller's toppar bookkeeping stays current.
func HandleOffsetFetch(resp *kmsg.OffsetFetchResponse, want []kmsg.OffsetFetchRequestPartition, update UpdateToppar, logger Logger) []CommittedOffset {
	if logger == nil {
		logger = NopLogger
	}
	type key struct {
		topic string
		part  int32
	}
	wanted := make(map[key]bool, len(want))
	for _, w := range want {
		wanted[key{w.Topic, w.Partition}] = true
	}

	var results []CommittedOffset
	for _, t := range resp.Topics {
		for _, p := range t.Partitions {
			k := key{t.Topic, p.Partition}
			if !wanted[k] {
				logger.Log(LogLevelWarn, "OffsetFetch reply named a partition that was not requested; dropping", "topic", t.Topic, "partition", p.Partition)
				continue
			}
			offset := p.Offset
			if offset == -1 {
				offset = kmsg.OffsetInvalid
			}
			err := kerr.ErrorForCode(p.ErrorCode)
			if err == nil && update != nil {
				update(t.Topic, p.Partition, offset, p.Metadata)
			}
			results = append(results, CommittedOffset{
				Topic:     t.Topic,
				Partition: p.Partition,
				Offset:    offset,
				Metadata:  p.Metadata,
				Err:       err,
			})
		}
	}
	return results
}

// HandleOffsetCommit aggregates per-partition commit failures: if every
// partition in resp failed, the returned error is the last per-partition
// error even though the top-level request may carry no error of its own,
// so callers that never inspect individual partitions still learn the
// batch failed.
func HandleOffsetCommit(resp *kmsg.OffsetCommitResponse) error {
	return resp.AllFailedError()
}

// ProduceResult is the outcome of one Produce request.
type ProduceResult struct {
	Err           error
	ThrottleMs    int32
	BaseOffset    int64
	LogAppendTime int64
	// Offsets holds one entry per message in the batch when
	// produceOffsetReport is set: message i gets BaseOffset+i. Otherwise
	// it is nil and only the tail message (index count-1) is considered
	// acknowledged, at BaseOffset+count-1.
	Offsets []int64
}

// HandleProduce decodes a ProduceResponse for a batch of count messages,
// reports the decoded throttle time to obs, and, when
// produceOffsetReport is set, assigns every message an incrementing
// offset in Offsets. When it is not set, Offsets is nil and no
// per-message offset is computed; the tail message's offset is
// BaseOffset+count-1 and is not stored in the result.
func HandleProduce(resp *kmsg.ProduceResponse, count int, produceOffsetReport bool, obs ThrottleObserver, brokerID int32) ProduceResult {
	res := ProduceResult{
		Err:           kerr.ErrorForCode(resp.Partition.ErrorCode),
		ThrottleMs:    resp.ThrottleMs,
		BaseOffset:    resp.Partition.BaseOffset,
		LogAppendTime: resp.Partition.LogAppendTime,
	}
	if obs != nil && resp.ThrottleMs > 0 {
		obs.Observe(brokerID, resp.ThrottleMs)
	}
	if res.Err != nil || count <= 0 {
		return res
	}
	if produceOffsetReport {
		res.Offsets = make([]int64, count)
		for i := range res.Offsets {
			res.Offsets[i] = resp.Partition.BaseOffset + int64(i)
		}
	}
	return res
}

// JoinState is the consumer-group join state the SyncGroup reply gate
// checks against.
type JoinState int8

const (
	JoinStateUnjoined JoinState = iota
	JoinStateWaitSync
	JoinStateStable
)

// HandleSyncGroup is the SyncGroup reply gate: if the
// group's join state is no longer WaitSync, the reply is discarded
// without action (not an error) and ok is false. Otherwise the decoded
// member-state blob is returned for the (external) group state machine to
// interpret.
func HandleSyncGroup(resp *kmsg.SyncGroupResponse, currentState JoinState) (memberState []byte, err error, ok bool) {
	if currentState != JoinStateWaitSync {
		return nil, nil, false
	}
	return resp.MemberState, kerr.ErrorForCode(resp.ErrorCode), true
}

// HandleApiVersions validates and republishes a negotiated API table.
// kmsg.ApiVersionsResponse.ReadFrom already rejects ApiArrayCnt >
// maxApiVersionsEntries with kerr.BadMsg and sorts the surviving table by
// ApiKey; this wraps that with the broker-reported top-level ErrorCode.
func HandleApiVersions(resp *kmsg.ApiVersionsResponse) (kmsg.BrokerVersions, error) {
	if err := kerr.ErrorForCode(resp.ErrorCode); err != nil {
		return kmsg.BrokerVersions{}, err
	}
	return kmsg.NewBrokerVersions(resp.ApiKeys), nil
}
