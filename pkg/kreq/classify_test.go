package kreq

import (
	"testing"

	"github.com/twmb/kreq/pkg/kerr"
)

func TestClassifyDefaults(t *testing.T) {
	cases := []struct {
		name string
		code kerr.Code
		want Action
	}{
		{"NoError", 0, 0},
		{"LeaderNotAvailable", kerr.LeaderNotAvailable.Code, Refresh},
		{"NotCoordinatorForGroup", kerr.NotCoordinatorForGroup.Code, Refresh},
		{"WaitCoord", kerr.WaitCoord.Code, Refresh},
		{"TimedOut", kerr.TimedOut.Code, Retry},
		{"RequestTimedOut", kerr.RequestTimedOut.Code, Retry},
		{"Transport", kerr.Transport.Code, Retry},
		{"Destroy", kerr.Destroy.Code, Permanent},
		{"UnsupportedFeature", kerr.UnsupportedFeature.Code, Permanent},
		{"UnknownServerError falls through", kerr.UnknownServerError.Code, Permanent},
	}
	env := &Envelope{RetryCap: 3}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Classify(c.code, nil, env)
			if got != c.want {
				t.Fatalf("Classify(%v) = %v, want %v", c.code, got, c.want)
			}
		})
	}
}

func TestClassifyOverrideShortCircuits(t *testing.T) {
	overrides := []Override{
		{Bits: Ignore, Code: kerr.LeaderNotAvailable.Code},
	}
	got := Classify(kerr.LeaderNotAvailable.Code, overrides, &Envelope{RetryCap: 1})
	if got != Ignore {
		t.Fatalf("Classify with override = %v, want exactly Ignore (no default Refresh bit)", got)
	}
}

func TestClassifyMultipleOverridesOR(t *testing.T) {
	overrides := []Override{
		{Bits: Inform, Code: kerr.RequestTimedOut.Code},
		{Bits: Special, Code: kerr.RequestTimedOut.Code},
	}
	got := Classify(kerr.RequestTimedOut.Code, overrides, &Envelope{RetryCap: 1})
	if got != Inform|Special {
		t.Fatalf("Classify = %v, want Inform|Special", got)
	}
}

// TestClassifyNilEnvelopeClearsRetry: if the envelope is absent, Retry is
// never present in the result, even though the default table would
// otherwise set it — retry without a buffer to re-enqueue is impossible.
func TestClassifyNilEnvelopeClearsRetry(t *testing.T) {
	got := Classify(kerr.TimedOut.Code, nil, nil)
	if got.Has(Retry) {
		t.Fatalf("Classify with nil envelope = %v, must not have Retry set", got)
	}
}

func TestOffsetCommitScenarioAllRebalanceInProgress(t *testing.T) {
	// Every partition returns REBALANCE_IN_PROGRESS. This
	// code has no Stage 2 default (it would fall through to Permanent),
	// so the OffsetCommit caller supplies the Retry override itself,
	// matching how callers steer per-call semantics via Stage 1.
	overrides := []Override{{Bits: Retry, Code: kerr.RebalanceInProgress.Code}}
	env := &Envelope{RetryCap: 2}
	bits := Classify(kerr.RebalanceInProgress.Code, overrides, env)
	if bits != Retry {
		t.Fatalf("Classify(RebalanceInProgress) = %v, want Retry", bits)
	}
	d := NewDriver(&fakeBroker{}, nil, nil)
	if !d.Act(bits, env, kerr.RebalanceInProgress) {
		t.Fatal("first Act should retry (within cap)")
	}
	if !d.Act(bits, env, kerr.RebalanceInProgress) {
		t.Fatal("second Act should retry (within cap)")
	}
	if d.Act(bits, env, kerr.RebalanceInProgress) {
		t.Fatal("third Act should not retry: cap exhausted")
	}
	if env.RetryCount != 2 {
		t.Fatalf("RetryCount = %d, want 2", env.RetryCount)
	}
}

type fakeBroker struct {
	enqueued []*Envelope
}

func (f *fakeBroker) Enqueue(env *Envelope) { f.enqueued = append(f.enqueued, env) }
func (f *fakeBroker) ApiVersionSupported(key, minReq, maxReq int16) (int16, uint32, bool) {
	return maxReq, 0, true
}
