package kreq

import (
	"github.com/twmb/kreq/pkg/kerr"
	"github.com/twmb/kreq/pkg/kmsg"
)

// Driver acts on an Action bitmask once an envelope's reply (or a locally
// fabricated failure) has been classified. It never decodes anything
// itself, it only decides whether to re-enqueue, kick a refresh, or let a
// handler's terminal result through.
type Driver struct {
	Broker   Broker
	Metadata MetadataCollaborator
	Group    GroupCollaborator
}

// NewDriver builds a Driver wired to its three collaborators.
func NewDriver(broker Broker, md MetadataCollaborator, grp GroupCollaborator) *Driver {
	return &Driver{Broker: broker, Metadata: md, Group: grp}
}

// Act carries out the corrective actions named by bits for env's error
// err. It returns true if env was re-enqueued and the caller's
// result should be withheld (the handler should return kerr.InProgress
// rather than finalize anything).
func (d *Driver) Act(bits Action, env *Envelope, err error) (retried bool) {
	if bits.Has(Refresh) {
		d.refresh(bits, env, err)
	}
	if bits.Has(Retry) {
		if env != nil && env.CanRetry() {
			env.MarkRetried()
			d.Broker.Enqueue(env)
			return true
		}
		// Retry budget exhausted: fall through to terminal completion.
	}
	return false
}

func (d *Driver) refresh(bits Action, env *Envelope, err error) {
	reason := "error-action classifier"
	if bits.Has(Special) {
		// Refresh|Special for group errors: the harsher coord_dead
		// signal, which itself schedules rediscovery.
		if d.Group != nil {
			d.Group.CoordDead(err, reason)
		}
		return
	}
	if isGroupScoped(env) {
		if d.Group != nil {
			d.Group.CoordQuery(reason)
		}
		return
	}
	if d.Metadata == nil {
		return
	}
	// A Produce envelope names the exact partition whose leader went
	// stale; everything else can only ask for a general refresh.
	if env != nil {
		if pr, ok := env.Req.(*kmsg.ProduceRequest); ok {
			d.Metadata.LeaderUnavailable(pr.Topic, pr.Partition, reason, err)
			return
		}
	}
	d.Metadata.RefreshKnownTopics(reason, false)
}

func isGroupScoped(env *Envelope) bool {
	if env == nil {
		return false
	}
	_, ok := env.Req.(interface{ IsGroupCoordinatorRequest() })
	return ok
}

// Finalize is called by a handler once it has a terminal outcome for env
// (no further retry). kerr.Destroy always short-circuits to a silent
// resource release rather than being surfaced to the caller as an
// actionable error.
func Finalize(env *Envelope, resp kmsg.Response, err error) Result {
	env.MarkCompleted()
	if env.OnTerminal != nil {
		env.OnTerminal()
	}
	if err == kerr.Destroy {
		return Result{}
	}
	return Result{Resp: resp, Err: err}
}
