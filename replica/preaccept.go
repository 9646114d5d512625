package replica

import (
	"bytes"

	"github.com/minutemodem/eparl/ballot"
	"github.com/minutemodem/eparl/command"
	"github.com/minutemodem/eparl/message"
	"github.com/minutemodem/eparl/quorum"
	"github.com/minutemodem/eparl/set"
	"github.com/minutemodem/eparl/store"
	"github.com/minutemodem/eparl/types"
)

// startPreAccept begins the fast-path attempt for a freshly proposed (or
// recovery-restarted) instance: compute the initial (seq, deps) against
// the local store, record it, and broadcast PreAccept to every replica
// including self.
func (c *Coordinator) startPreAccept(id types.InstanceID, cmd command.Command, b ballot.Ballot) {
	sd := store.LocalSeqDeps(c.store, c.module, cmd, id)

	inst := &store.Instance{ID: id, Command: cmd, Seq: sd.Seq, Deps: sd.Deps, Status: types.StatusPreAccepted, Ballot: b}
	c.store.Put(inst)

	d := &drive{id: id, cmd: cmd, ballot: b, seq: sd.Seq, deps: sd.Deps.Clone(), phase: phasePreAccept}
	c.drives[id] = d

	c.armTimer(d, c.params.PreAcceptTimeout, func() { c.onPhaseTimeout(id) })
	c.trans.Broadcast(message.PreAccept{InstanceID: id, Command: cmd, Seq: sd.Seq, Deps: sd.Deps.List(), Ballot: b})
}

// restartPreAccept re-broadcasts PreAccept for an instance a recovering
// replica is reproposing from scratch, under d's (already bumped)
// ballot.
func (c *Coordinator) restartPreAccept(d *drive, cmd command.Command, seq types.SeqNum, deps set.Set[types.InstanceID]) {
	if cmd != nil {
		d.cmd = cmd
	}
	d.seq = seq
	d.deps = deps
	d.phase = phasePreAccept
	d.preAcceptResponses = nil

	inst := &store.Instance{ID: d.id, Command: d.cmd, Seq: d.seq, Deps: d.deps.Clone(), Status: types.StatusPreAccepted, Ballot: d.ballot, NoOp: d.noOp}
	c.store.Put(inst)

	c.armTimer(d, c.params.PreAcceptTimeout, func() { c.onPhaseTimeout(d.id) })
	c.trans.Broadcast(message.PreAccept{InstanceID: d.id, Command: d.cmd, Seq: d.seq, Deps: d.deps.List(), Ballot: d.ballot})
}

// onPreAccept is the recipient-side handler: re-run
// interference locally, merge with the incoming proposal, store as
// PreAccepted, and reply.
func (c *Coordinator) onPreAccept(from types.ReplicaID, m message.PreAccept) {
	if !c.acceptBallot(m.InstanceID, m.Ballot) {
		return
	}
	if c.statusAtLeast(m.InstanceID, types.StatusAccepted) {
		return
	}

	local := store.LocalSeqDeps(c.store, c.module, m.Command, m.InstanceID)
	seq := m.Seq
	if local.Seq > seq {
		seq = local.Seq
	}
	deps := set.Of(m.Deps...)
	deps.Union(local.Deps)

	if existing := c.store.Get(m.InstanceID); existing != nil {
		invariant(m.Ballot.GreaterEqual(existing.Ballot), "ballot regression on PreAccept for %v: stored=%v incoming=%v", m.InstanceID, existing.Ballot, m.Ballot)
	}

	inst := &store.Instance{ID: m.InstanceID, Command: m.Command, Seq: seq, Deps: deps, Status: types.StatusPreAccepted, Ballot: m.Ballot}
	c.store.Put(inst)
	c.armWatchdog(m.InstanceID)

	c.trans.Send(from, message.PreAcceptOK{InstanceID: m.InstanceID, Seq: seq, Deps: deps.List(), From: c.self})
}

// onPreAcceptOK drives the coordinator-side fast/slow decision. Responses are compared against each other, never against the
// coordinator's own seed.
func (c *Coordinator) onPreAcceptOK(from types.ReplicaID, m message.PreAcceptOK) {
	d, ok := c.drives[m.InstanceID]
	if !ok || d.phase != phasePreAccept {
		return
	}
	if d.preAcceptResponses == nil {
		d.preAcceptResponses = make(map[types.ReplicaID]preAcceptResp)
	}
	d.preAcceptResponses[from] = preAcceptResp{seq: m.Seq, deps: set.Of(m.Deps...)}

	n := c.members.ClusterSize()
	count := len(d.preAcceptResponses)
	if !quorum.HasFast(count, n) {
		return
	}

	if fastPathAgrees(d.preAcceptResponses) {
		agreed := firstPreAcceptResp(d.preAcceptResponses)
		d.seq, d.deps = agreed.seq, agreed.deps.Clone()
		if c.metrics != nil {
			c.metrics.FastPathCommits.Inc()
		}
		c.commitInstance(d)
		return
	}

	merged := store.SeqDeps{Seq: d.seq, Deps: d.deps.Clone()}
	for _, r := range d.preAcceptResponses {
		merged = store.MergeSeqDeps(merged, store.SeqDeps{Seq: r.seq, Deps: r.deps})
	}
	d.seq, d.deps = merged.Seq, merged.Deps
	c.startAccept(d)
}

// startAccept begins the slow-path Accept round.
func (c *Coordinator) startAccept(d *drive) {
	d.phase = phaseAccept
	d.acceptAcks = set.New[types.ReplicaID](0)

	inst := &store.Instance{ID: d.id, Command: d.cmd, Seq: d.seq, Deps: d.deps.Clone(), Status: types.StatusAccepted, Ballot: d.ballot, NoOp: d.noOp}
	c.store.Put(inst)

	c.armTimer(d, c.params.AcceptTimeout, func() { c.onPhaseTimeout(d.id) })
	c.trans.Broadcast(message.Accept{InstanceID: d.id, Seq: d.seq, Deps: d.deps.List(), Ballot: d.ballot, NoOp: d.noOp})
}

func (c *Coordinator) onAccept(from types.ReplicaID, m message.Accept) {
	if !c.acceptBallot(m.InstanceID, m.Ballot) {
		return
	}
	if c.statusAtLeast(m.InstanceID, types.StatusCommitted) {
		return
	}

	existing := c.store.Get(m.InstanceID)
	var cmd command.Command
	if existing != nil {
		cmd = existing.Command
		invariant(m.Ballot.GreaterEqual(existing.Ballot), "ballot regression on Accept for %v: stored=%v incoming=%v", m.InstanceID, existing.Ballot, m.Ballot)
	}

	inst := &store.Instance{ID: m.InstanceID, Command: cmd, Seq: m.Seq, Deps: set.Of(m.Deps...), Status: types.StatusAccepted, Ballot: m.Ballot, NoOp: m.NoOp}
	c.store.Put(inst)
	c.armWatchdog(m.InstanceID)

	c.trans.Send(from, message.AcceptOK{InstanceID: m.InstanceID, From: c.self})
}

func (c *Coordinator) onAcceptOK(from types.ReplicaID, m message.AcceptOK) {
	d, ok := c.drives[m.InstanceID]
	if !ok || d.phase != phaseAccept {
		return
	}
	if d.acceptAcks == nil {
		d.acceptAcks = set.New[types.ReplicaID](0)
	}
	d.acceptAcks.Add(from)

	if quorum.HasSlow(d.acceptAcks.Len(), c.members.ClusterSize()) {
		if c.metrics != nil {
			c.metrics.SlowPathCommits.Inc()
		}
		c.commitInstance(d)
	}
}

// commitInstance broadcasts Commit and retires d's drive; the store
// update and the Executor hand-off happen uniformly for every recipient
// (including the coordinator itself) in onCommit, reached through the
// same broadcast loop-back as every other phase.
func (c *Coordinator) commitInstance(d *drive) {
	if d.timer != nil {
		d.timer.Stop()
	}
	delete(c.drives, d.id)
	c.trans.Broadcast(message.Commit{InstanceID: d.id, Command: d.cmd, Seq: d.seq, Deps: d.deps.List(), NoOp: d.noOp})
}

// onCommit is unconditional: the coordinator holding slow-quorum of
// Accepts (or a recovering replica adopting a seen Commit) is
// authoritative, so no ballot check gates it.
func (c *Coordinator) onCommit(from types.ReplicaID, m message.Commit) {
	existing := c.store.Get(m.InstanceID)
	deps := set.Of(m.Deps...)

	var b ballot.Ballot
	if existing != nil {
		b = existing.Ballot
		if existing.Status >= types.StatusCommitted {
			invariant(existing.Seq == m.Seq && existing.Deps.Equals(deps) && bytes.Equal(existing.Command, m.Command) && existing.NoOp == m.NoOp,
				"committed instance mutated: %v stored=(seq=%v deps=%v noop=%v) incoming=(seq=%v deps=%v noop=%v)",
				m.InstanceID, existing.Seq, existing.Deps.List(), existing.NoOp, m.Seq, m.Deps, m.NoOp)
		}
	}

	inst := &store.Instance{ID: m.InstanceID, Command: m.Command, Seq: m.Seq, Deps: deps, Status: types.StatusCommitted, Ballot: b, NoOp: m.NoOp}
	c.store.Put(inst)
	c.cancelWatchdog(m.InstanceID)
	c.exec.NotifyCommitted(inst)
}

// onPhaseTimeout fires when a PreAccept or Accept round has not reached
// its quorum in time. A
// PreAccept round that reached at least slow-quorum still has a path
// forward via Accept; anything short of that, or a stalled Accept round,
// escalates to recovery.
func (c *Coordinator) onPhaseTimeout(id types.InstanceID) {
	d, ok := c.drives[id]
	if !ok {
		return
	}

	if d.phase == phasePreAccept {
		n := c.members.ClusterSize()
		if quorum.HasSlow(len(d.preAcceptResponses), n) {
			merged := store.SeqDeps{Seq: d.seq, Deps: d.deps.Clone()}
			for _, r := range d.preAcceptResponses {
				merged = store.MergeSeqDeps(merged, store.SeqDeps{Seq: r.seq, Deps: r.deps})
			}
			d.seq, d.deps = merged.Seq, merged.Deps
			c.startAccept(d)
			return
		}
	}

	c.startRecovery(id)
}
