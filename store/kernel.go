package store

import (
	"github.com/minutemodem/eparl/command"
	"github.com/minutemodem/eparl/set"
	"github.com/minutemodem/eparl/types"
)

// SeqDeps is a (seq, deps) pair, the unit the consensus kernel computes
// and merges throughout PreAccept, Accept, and recovery.
type SeqDeps struct {
	Seq  types.SeqNum
	Deps set.Set[types.InstanceID]
}

// Equal reports whether a and b carry identical seq and deps. Fast-path
// agreement is defined in terms of this equality between *responses*, not
// between a response and the coordinator's own seed values.
func (a SeqDeps) Equal(b SeqDeps) bool {
	return a.Seq == b.Seq && a.Deps.Equals(b.Deps)
}

// Clone returns a SeqDeps with its own copy of Deps.
func (a SeqDeps) Clone() SeqDeps {
	return SeqDeps{Seq: a.Seq, Deps: a.Deps.Clone()}
}

// interferes reports whether inst should be counted when computing
// seq/deps for cmd against exclude. Placeholder instances without a
// command yet, and no-op instances sealed by recovery, never interfere
// with anything: a placeholder carries no information about what it
// conflicts with, and a no-op is defined to conflict with nothing.
func interferes(mod command.Module, cmd command.Command, inst *Instance, exclude types.InstanceID) bool {
	if inst.ID == exclude {
		return false
	}
	if inst.NoOp || len(inst.Command) == 0 {
		return false
	}
	return mod.Interferes(cmd, inst.Command)
}

// LocalSeqDeps computes the (seq, deps) for cmd against every instance
// currently in s, excluding the instance identified by exclude (a replica
// re-deriving seq/deps for an instance it already has a record for must
// not count that record against itself). This implements the initial
// seq/deps computation, reused by PreAccept recipients recomputing
// against their own local store.
func LocalSeqDeps(s *Store, mod command.Module, cmd command.Command, exclude types.InstanceID) SeqDeps {
	deps := set.New[types.InstanceID](0)
	var maxSeq types.SeqNum
	var anyInterfering bool

	for _, inst := range s.All() {
		if !interferes(mod, cmd, inst, exclude) {
			continue
		}
		anyInterfering = true
		deps.Add(inst.ID)
		if inst.Seq > maxSeq {
			maxSeq = inst.Seq
		}
	}

	if !anyInterfering {
		return SeqDeps{Seq: 1, Deps: deps}
	}
	return SeqDeps{Seq: maxSeq + 1, Deps: deps}
}

// MergeSeqDeps folds an incoming (seq, deps) into the accumulator acc:
// seq becomes the element-wise max, deps becomes the union. It mutates
// and returns acc.
func MergeSeqDeps(acc SeqDeps, incoming SeqDeps) SeqDeps {
	if incoming.Seq > acc.Seq {
		acc.Seq = incoming.Seq
	}
	acc.Deps.Union(incoming.Deps)
	return acc
}
