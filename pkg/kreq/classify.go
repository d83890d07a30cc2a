package kreq

import "github.com/twmb/kreq/pkg/kerr"

// Action is one bit of the error-action bitmask. Multiple bits may be
// set at once, e.g. Refresh|Retry from a Stage 1 override.
type Action uint8

const (
	Permanent Action = 1 << iota
	Ignore
	Refresh
	Retry
	Inform
	Special
)

func (a Action) Has(bit Action) bool { return a&bit != 0 }

// Override is one entry of a caller-supplied Stage 1 override list: "if
// the error is Code, OR Bits into the result instead of consulting the
// default table."
type Override struct {
	Bits Action
	Code kerr.Code
}

// defaults is the Stage 2 table. Anything not listed here falls through
// to the Permanent case in Classify.
var defaults = map[kerr.Code]Action{
	0: 0, // NoError

	kerr.LeaderNotAvailable.Code:           Refresh,
	kerr.NotLeaderForPartition.Code:        Refresh,
	kerr.BrokerNotAvailable.Code:           Refresh,
	kerr.ReplicaNotAvailable.Code:          Refresh,
	kerr.GroupCoordinatorNotAvailable.Code: Refresh,
	kerr.NotCoordinatorForGroup.Code:       Refresh,
	kerr.WaitCoord.Code:                    Refresh,

	kerr.TimedOut.Code:                     Retry,
	kerr.TimedOutQueue.Code:                Retry,
	kerr.RequestTimedOut.Code:              Retry,
	kerr.NotEnoughReplicas.Code:            Retry,
	kerr.NotEnoughReplicasAfterAppend.Code: Retry,
	kerr.Transport.Code:                    Retry,

	kerr.Destroy.Code:                Permanent,
	kerr.InvalidSessionTimeout.Code:  Permanent,
	kerr.UnsupportedFeature.Code:     Permanent,
}

// Classify maps a Kafka error code plus an optional caller override list
// and an optional owning envelope into an action bitmask.
//
// Stage 1: the override list is scanned in order; every entry whose Code
// matches has its Bits OR'd into the result. If any entry matched, the
// result is returned without consulting the default table.
//
// Stage 2: the default table above is consulted; anything not explicitly
// listed is treated as Permanent, matching the table's "any other" row.
//
// After classification, if env is nil the Retry bit is cleared: a retry
// without an envelope to re-enqueue is impossible (this covers certain
// error-fabrication paths that synthesize an error with no originating
// request).
func Classify(code kerr.Code, overrides []Override, env *Envelope) Action {
	var bits Action
	matched := false
	for _, o := range overrides {
		if o.Code == code {
			bits |= o.Bits
			matched = true
		}
	}
	if !matched {
		if b, ok := defaults[code]; ok {
			bits = b
		} else {
			bits = Permanent
		}
	}
	if env == nil {
		bits &^= Retry
	}
	return bits
}
