// Package message defines the wire message kinds and an encode/decode
// codec satisfying the round-trip property: decode(encode(m)) == m.
package message

import (
	"github.com/minutemodem/eparl/ballot"
	"github.com/minutemodem/eparl/command"
	"github.com/minutemodem/eparl/store"
	"github.com/minutemodem/eparl/types"
)

// Kind discriminates the wire message types.
type Kind uint8

const (
	KindPreAccept Kind = iota + 1
	KindPreAcceptOK
	KindAccept
	KindAcceptOK
	KindCommit
	KindPrepare
	KindPrepareOK
	KindTryPreAccept
	KindTryPreAcceptOK
	KindSyncRequest
	KindSyncResponse
)

func (k Kind) String() string {
	switch k {
	case KindPreAccept:
		return "PreAccept"
	case KindPreAcceptOK:
		return "PreAcceptOK"
	case KindAccept:
		return "Accept"
	case KindAcceptOK:
		return "AcceptOK"
	case KindCommit:
		return "Commit"
	case KindPrepare:
		return "Prepare"
	case KindPrepareOK:
		return "PrepareOK"
	case KindTryPreAccept:
		return "TryPreAccept"
	case KindTryPreAcceptOK:
		return "TryPreAcceptOK"
	case KindSyncRequest:
		return "SyncRequest"
	case KindSyncResponse:
		return "SyncResponse"
	default:
		return "Unknown"
	}
}

// Message is implemented by every wire message kind.
type Message interface {
	Kind() Kind
}

// PreAccept carries a proposed or re-proposed command for the fast-path
// attempt.
type PreAccept struct {
	InstanceID types.InstanceID
	Command    command.Command
	Seq        types.SeqNum
	Deps       []types.InstanceID
	Ballot     ballot.Ballot
}

func (PreAccept) Kind() Kind { return KindPreAccept }

// PreAcceptOK is a recipient's reply to PreAccept.
type PreAcceptOK struct {
	InstanceID types.InstanceID
	Seq        types.SeqNum
	Deps       []types.InstanceID
	From       types.ReplicaID
}

func (PreAcceptOK) Kind() Kind { return KindPreAcceptOK }

// Accept drives the slow path.
type Accept struct {
	InstanceID types.InstanceID
	Seq        types.SeqNum
	Deps       []types.InstanceID
	Ballot     ballot.Ballot
	NoOp       bool
}

func (Accept) Kind() Kind { return KindAccept }

// AcceptOK is a recipient's reply to Accept.
type AcceptOK struct {
	InstanceID types.InstanceID
	From       types.ReplicaID
}

func (AcceptOK) Kind() Kind { return KindAcceptOK }

// Commit is final: every recipient unconditionally adopts the committed
// (seq, deps, command).
type Commit struct {
	InstanceID types.InstanceID
	Command    command.Command
	Seq        types.SeqNum
	Deps       []types.InstanceID
	NoOp       bool
}

func (Commit) Kind() Kind { return KindCommit }

// Prepare starts recovery: the sender has bumped its ballot and is asking
// every replica what it knows about InstanceID.
type Prepare struct {
	InstanceID types.InstanceID
	Ballot     ballot.Ballot
	From       types.ReplicaID
}

func (Prepare) Kind() Kind { return KindPrepare }

// PrepareOK replies with whatever the recipient has stored for
// InstanceID, or a nil Instance if it has nothing.
type PrepareOK struct {
	InstanceID types.InstanceID
	Instance   *RecoveredInstance // nil if the recipient has no record
	From       types.ReplicaID
}

func (PrepareOK) Kind() Kind { return KindPrepareOK }

// RecoveredInstance is the (possibly partial) instance state a PrepareOK
// carries back, independent of store.Instance so the message package has
// no dependency on the live *store.Instance pointer type.
type RecoveredInstance struct {
	Command command.Command
	Seq     types.SeqNum
	Deps    []types.InstanceID
	Status  types.Status
	Ballot  ballot.Ballot
	NoOp    bool
}

// FromStoreInstance copies the relevant fields of inst into a
// RecoveredInstance for wire transmission.
func FromStoreInstance(inst *store.Instance) *RecoveredInstance {
	if inst == nil {
		return nil
	}
	return &RecoveredInstance{
		Command: inst.Command,
		Seq:     inst.Seq,
		Deps:    inst.Deps.List(),
		Status:  inst.Status,
		Ballot:  inst.Ballot,
		NoOp:    inst.NoOp,
	}
}

// TryPreAccept asks a respondent that did not PreAccept whether it can
// adopt (seq, deps) without conflict, per the recovery analyzer's
// TryPreAccept optimization.
type TryPreAccept struct {
	InstanceID types.InstanceID
	Command    command.Command
	Seq        types.SeqNum
	Deps       []types.InstanceID
	Ballot     ballot.Ballot
}

func (TryPreAccept) Kind() Kind { return KindTryPreAccept }

// TryPreAcceptOK is the recipient's verdict.
type TryPreAcceptOK struct {
	InstanceID       types.InstanceID
	OK               bool
	From             types.ReplicaID
	ConflictReplica  types.ReplicaID
	ConflictInstance types.InstanceID
	ConflictStatus   types.Status
}

func (TryPreAcceptOK) Kind() Kind { return KindTryPreAcceptOK }

// SyncRequest is broadcast by a joining or restarted replica.
type SyncRequest struct {
	From types.ReplicaID
}

func (SyncRequest) Kind() Kind { return KindSyncRequest }

// SyncResponse carries every committed instance the responder knows
// about.
type SyncResponse struct {
	From      types.ReplicaID
	Instances []SyncedInstance
}

func (SyncResponse) Kind() Kind { return KindSyncResponse }

// SyncedInstance is one committed instance shipped in a SyncResponse.
type SyncedInstance struct {
	InstanceID types.InstanceID
	Command    command.Command
	Seq        types.SeqNum
	Deps       []types.InstanceID
	NoOp       bool
}
