package kreq

import (
	"testing"
	"time"

	"github.com/twmb/kreq/pkg/kerr"
	"github.com/twmb/kreq/pkg/kmsg"
)

func TestExpirerScanDistinguishesQueuedFromSent(t *testing.T) {
	now := time.Unix(1000, 0)
	x := NewExpirer()

	queued := NewEnvelope(&kmsg.HeartbeatRequest{}, now.Add(-time.Second), 0, nil, nil, nil)
	sent := NewEnvelope(&kmsg.HeartbeatRequest{}, now.Add(-time.Second), 0, nil, nil, nil)
	alive := NewEnvelope(&kmsg.HeartbeatRequest{}, now.Add(time.Minute), 0, nil, nil, nil)
	x.Track(queued, false)
	x.Track(sent, false)
	x.Track(alive, false)
	x.MarkSent(sent)

	got := map[*Envelope]error{}
	n := x.Scan(now, func(env *Envelope, sentFlag bool, err error) {
		got[env] = err
	})
	if n != 2 {
		t.Fatalf("expired %d envelopes, want 2", n)
	}
	if got[queued] != kerr.TimedOut {
		t.Fatalf("queued envelope err = %v, want TimedOut", got[queued])
	}
	if got[sent] != kerr.TimedOutQueue {
		t.Fatalf("sent envelope err = %v, want TimedOutQueue", got[sent])
	}
	if queued.State() != TimedOut {
		t.Fatalf("queued state = %v, want timed-out", queued.State())
	}

	// The still-live envelope survives the scan and can be untracked when
	// its reply arrives.
	x.Untrack(alive)
	if n := x.Scan(now.Add(2*time.Minute), func(*Envelope, bool, error) {}); n != 0 {
		t.Fatalf("untracked envelope expired anyway (%d)", n)
	}
}
