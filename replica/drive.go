package replica

import (
	"time"

	"github.com/minutemodem/eparl/ballot"
	"github.com/minutemodem/eparl/command"
	"github.com/minutemodem/eparl/message"
	"github.com/minutemodem/eparl/set"
	"github.com/minutemodem/eparl/types"
)

// phase is the coordinator-side state of an in-flight instance state
// machine.
type phase int

const (
	phasePreAccept phase = iota
	phaseAccept
	phaseRecover
)

// preAcceptResp is one replica's PreAcceptOK contribution, tracked so the
// coordinator can check fast-path agreement between responses.
type preAcceptResp struct {
	seq  types.SeqNum
	deps set.Set[types.InstanceID]
}

// preAccEntry is one PreAccepted respondent surfaced during recovery
// analysis.
type preAccEntry struct {
	replica types.ReplicaID
	inst    *message.RecoveredInstance
}

// recoveryState tracks a recovery attempt's in-progress Prepare and, if
// needed, TryPreAccept rounds.
type recoveryState struct {
	prepareResponses map[types.ReplicaID]*message.PrepareOK
	decided          bool

	tryPreAcceptSent bool
	tryPreAcceptOKs  set.Set[types.ReplicaID]
	possibleQuorum   set.Set[types.ReplicaID]
}

// drive is the coordinator's working state for one instance it is
// actively driving, whether as original proposer or as a recovering
// replica.
type drive struct {
	id     types.InstanceID
	cmd    command.Command
	noOp   bool
	ballot ballot.Ballot
	seq    types.SeqNum
	deps   set.Set[types.InstanceID]
	phase  phase

	preAcceptResponses map[types.ReplicaID]preAcceptResp
	acceptAcks         set.Set[types.ReplicaID]

	rec *recoveryState

	timer *time.Timer
}

// armTimer replaces d's phase timer with one that posts fn onto the
// coordinator's dispatcher after the given duration, stopping whatever
// timer was previously armed.
func (c *Coordinator) armTimer(d *drive, after time.Duration, fn func()) {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(after, func() { c.post(fn) })
}

func fastPathAgrees(resp map[types.ReplicaID]preAcceptResp) bool {
	first := true
	var seq types.SeqNum
	var deps set.Set[types.InstanceID]
	for _, r := range resp {
		if first {
			seq, deps = r.seq, r.deps
			first = false
			continue
		}
		if seq != r.seq || !deps.Equals(r.deps) {
			return false
		}
	}
	return true
}

func firstPreAcceptResp(resp map[types.ReplicaID]preAcceptResp) preAcceptResp {
	for _, r := range resp {
		return r
	}
	return preAcceptResp{}
}
