// Package store holds the per-replica instance store: the protocol record for every
// command undergoing consensus, and the pure consensus-kernel functions
// that compute a new command's initial (seq, deps) against it.
package store

import (
	"github.com/minutemodem/eparl/ballot"
	"github.com/minutemodem/eparl/command"
	"github.com/minutemodem/eparl/set"
	"github.com/minutemodem/eparl/types"
)

// Instance is the protocol record for a single command. Once Status
// reaches Committed, (Seq, Deps, Command) are immutable.
type Instance struct {
	ID      types.InstanceID
	Command command.Command
	Seq     types.SeqNum
	Deps    set.Set[types.InstanceID]
	Status  types.Status
	Ballot  ballot.Ballot

	// NoOp marks an instance sealed during recovery's "never existed"
	// classification: a slot with no real command, empty
	// deps, committed so that dependants can still make progress.
	NoOp bool
}

// Clone returns a deep-enough copy of inst: Deps is copied so callers can
// mutate the result without corrupting the stored record.
func (inst *Instance) Clone() *Instance {
	if inst == nil {
		return nil
	}
	out := *inst
	out.Deps = inst.Deps.Clone()
	return &out
}
