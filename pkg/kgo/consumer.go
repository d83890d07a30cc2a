package kgo

import "github.com/twmb/kreq/pkg/kmsg"

// Offset describes where a partition should be read from. Building the
// offset-related requests this engine transports (ListOffsets,
// OffsetFetch) needs some way for a caller to express "start", "end",
// "exactly here", or "relative to here", and this type is that
// vocabulary.
//
// The consumer group state machine that originally consumed this type
// (partition assignment, session/heartbeat management, fetch draining)
// is a consumer group concern, not a request/response engine concern,
// and is not part of this package.
type Offset struct {
	at           int64
	relative     int64
	epoch        int32
	currentEpoch int32
}

// NewOffset creates an Offset to use when building an OffsetRequest or
// OffsetFetchRequest partition.
//
// The default offset begins at the end.
func NewOffset() Offset {
	return Offset{
		at:    -1,
		epoch: -1,
	}
}

// AtStart returns a copy of the calling offset, changing the returned
// offset to begin at the beginning of a partition.
func (o Offset) AtStart() Offset {
	o.at = -2
	return o
}

// AtEnd returns a copy of the calling offset, changing the returned
// offset to begin at the end of a partition.
func (o Offset) AtEnd() Offset {
	o.at = -1
	return o
}

// Relative returns a copy of the calling offset, changing the returned
// offset to be n relative to what it currently is.
// ToOffsetRequestTopicPartition adds n only to an exact, non-negative
// offset; for an offset at the start or the end, n is not applied.
func (o Offset) Relative(n int64) Offset {
	o.relative = n
	return o
}

// WithEpoch returns a copy of the calling offset, changing the returned
// offset to use the given epoch; negative values are stored as -1. The
// epoch is only stored: ToOffsetRequestTopicPartition does not encode it
// and nothing in this package performs truncation detection with it.
func (o Offset) WithEpoch(e int32) Offset {
	if e < 0 {
		e = -1
	}
	o.epoch = e
	return o
}

// At returns a copy of the calling offset, changing the returned offset
// to begin at exactly the requested offset.
//
// There are two potential special offsets to use: -2 allows for
// consuming at the start, and -1 allows for consuming at the end. These
// two offsets are equivalent to calling AtStart or AtEnd.
//
// If the offset is less than -2, the client bounds it to -2 to consume
// at the start.
func (o Offset) At(at int64) Offset {
	if at < -2 {
		at = -2
	}
	o.at = at
	return o
}

// resolved returns the raw (timestamp-or-special, relative) pair this
// Offset encodes, for a caller building the wire request partitions
// themselves. kmsg.OffsetRequestTopicPartition.Timestamp takes exactly
// this special-offset/timestamp union.
func (o Offset) resolved() (at, relative int64) {
	return o.at, o.relative
}

// ToOffsetRequestTopicPartition builds the ListOffsets wire partition for
// topic/partition at this Offset. relative is folded in at request-build
// time rather than resolved against a known log-end offset, matching the
// legacy v0/v1 ListOffsets request's timestamp-or-special-value field;
// true relative-to-end resolution requires a first round trip and is a
// caller concern layered above this engine.
func (o Offset) ToOffsetRequestTopicPartition(topic string, partition int32) kmsg.OffsetRequestTopicPartition {
	at, relative := o.resolved()
	if relative != 0 && at >= 0 {
		at += relative
	}
	return kmsg.OffsetRequestTopicPartition{
		Topic:     topic,
		Partition: partition,
		Timestamp: at,
	}
}
