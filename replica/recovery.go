package replica

import (
	"github.com/minutemodem/eparl/ballot"
	"github.com/minutemodem/eparl/command"
	"github.com/minutemodem/eparl/message"
	"github.com/minutemodem/eparl/quorum"
	"github.com/minutemodem/eparl/set"
	"github.com/minutemodem/eparl/store"
	"github.com/minutemodem/eparl/types"
)

// startRecovery begins the recovery analyzer: bump the
// ballot and broadcast Prepare, including to self through the same
// broadcast loop-back every other phase uses.
func (c *Coordinator) startRecovery(id types.InstanceID) {
	if d, ok := c.drives[id]; ok && d.phase == phaseRecover {
		return
	}

	existing := c.store.Get(id)
	var known ballot.Ballot
	if existing != nil {
		known = existing.Ballot
	}
	newBallot := ballot.HigherThan(known, c.self)

	d := &drive{id: id, ballot: newBallot, phase: phaseRecover, deps: set.New[types.InstanceID](0)}
	d.rec = &recoveryState{prepareResponses: make(map[types.ReplicaID]*message.PrepareOK)}
	c.drives[id] = d

	if c.metrics != nil {
		c.metrics.RecoveriesStarted.Inc()
	}

	c.armTimer(d, c.params.RecoveryTimeout, func() { c.onRecoveryTimeout(id) })
	c.trans.Broadcast(message.Prepare{InstanceID: id, Ballot: newBallot, From: c.self})
}

func (c *Coordinator) onRecoveryTimeout(id types.InstanceID) {
	d, ok := c.drives[id]
	if !ok || d.phase != phaseRecover {
		return
	}
	delete(c.drives, id)
	if c.metrics != nil {
		c.metrics.RecoveriesFailed.Inc()
	}
	c.pending.resolve(id, outcome{err: ErrRecoveryTimeout})
}

// onPrepare is the recipient-side handler: reply
// only if the new ballot is at least as high as the one stored, updating
// the stored ballot either way.
func (c *Coordinator) onPrepare(from types.ReplicaID, m message.Prepare) {
	existing := c.store.Get(m.InstanceID)
	if existing != nil && !m.Ballot.GreaterEqual(existing.Ballot) {
		return
	}

	var reply *message.RecoveredInstance
	if existing != nil {
		invariant(m.Ballot.GreaterEqual(existing.Ballot), "ballot regression on Prepare for %v: stored=%v incoming=%v", m.InstanceID, existing.Ballot, m.Ballot)
		updated := existing.Clone()
		updated.Ballot = m.Ballot
		c.store.Put(updated)
		reply = message.FromStoreInstance(updated)
	} else {
		c.store.Put(&store.Instance{ID: m.InstanceID, Deps: set.New[types.InstanceID](0), Status: types.StatusNone, Ballot: m.Ballot})
	}

	c.trans.Send(from, message.PrepareOK{InstanceID: m.InstanceID, Instance: reply, From: c.self})
}

func (c *Coordinator) onPrepareOK(from types.ReplicaID, m message.PrepareOK) {
	d, ok := c.drives[m.InstanceID]
	if !ok || d.phase != phaseRecover || d.rec.decided {
		return
	}
	d.rec.prepareResponses[from] = &m

	if !quorum.HasSlow(len(d.rec.prepareResponses), c.members.ClusterSize()) {
		return
	}
	c.decideRecovery(d)
}

// decideRecovery applies the priority-ordered recovery decision table
// once a slow-quorum of PrepareOK responses has been collected.
func (c *Coordinator) decideRecovery(d *drive) {
	n := c.members.ClusterSize()
	resp := d.rec.prepareResponses
	proposer := d.id.Replica

	// Rule 1: any respondent reports Committed.
	for _, r := range resp {
		if r.Instance != nil && r.Instance.Status == types.StatusCommitted {
			d.rec.decided = true
			d.cmd = r.Instance.Command
			d.seq = r.Instance.Seq
			d.deps = set.Of(r.Instance.Deps...)
			d.noOp = r.Instance.NoOp
			if c.metrics != nil {
				c.metrics.SlowPathCommits.Inc()
			}
			c.commitInstance(d)
			return
		}
	}

	// Rule 2: any respondent reports Accepted; take the greatest ballot.
	var bestAccepted *message.RecoveredInstance
	for _, r := range resp {
		if r.Instance != nil && r.Instance.Status == types.StatusAccepted {
			if bestAccepted == nil || r.Instance.Ballot.GreaterThan(bestAccepted.Ballot) {
				bestAccepted = r.Instance
			}
		}
	}
	if bestAccepted != nil {
		d.rec.decided = true
		d.cmd = bestAccepted.Command
		d.seq = bestAccepted.Seq
		d.deps = set.Of(bestAccepted.Deps...)
		d.noOp = bestAccepted.NoOp
		c.startAccept(d)
		return
	}

	var preAccepted []preAccEntry
	proposerResponded := false
	for r, pr := range resp {
		if r == proposer {
			proposerResponded = true
		}
		if pr.Instance != nil && pr.Instance.Status == types.StatusPreAccepted {
			preAccepted = append(preAccepted, preAccEntry{replica: r, inst: pr.Instance})
		}
	}

	// Rule 3: >= fast-quorum PreAccepted agree on (seq, deps).
	if quorum.HasFast(len(preAccepted), n) && preAcceptedAgree(preAccepted) {
		first := preAccepted[0].inst
		d.rec.decided = true
		d.cmd = first.Command
		d.seq = first.Seq
		d.deps = set.Of(first.Deps...)
		d.noOp = first.NoOp
		c.startAccept(d)
		return
	}

	// Rule 4: proposer silent, >= slow-quorum PreAccepted -> merge, Accept.
	if !proposerResponded && quorum.HasSlow(len(preAccepted), n) {
		d.rec.decided = true
		cmd, seq, deps := mergePreAccepted(preAccepted)
		d.cmd, d.seq, d.deps = cmd, seq, deps
		c.startAccept(d)
		return
	}

	// Rule 5: proposer silent, >= ceil((slow-quorum+1)/2) PreAccepted ->
	// TryPreAccept optimization.
	tryThreshold := (quorum.SlowSize(n) + 2) / 2
	if !proposerResponded && len(preAccepted) >= tryThreshold {
		c.startTryPreAccept(d, preAccepted)
		return
	}

	// Rule 6: >= 1 PreAccepted -> restart Phase 1 from scratch, merged.
	if len(preAccepted) >= 1 {
		d.rec.decided = true
		cmd, seq, deps := mergePreAccepted(preAccepted)
		c.restartPreAccept(d, cmd, seq, deps)
		return
	}

	// Rule 7: never existed; seal the slot with a no-op so dependants can
	// still make progress.
	d.rec.decided = true
	d.cmd = nil
	d.seq = 1
	d.deps = set.New[types.InstanceID](0)
	d.noOp = true
	c.startAccept(d)
}

func preAcceptedAgree(entries []preAccEntry) bool {
	if len(entries) == 0 {
		return false
	}
	first := entries[0].inst
	firstDeps := set.Of(first.Deps...)
	for _, e := range entries[1:] {
		if e.inst.Seq != first.Seq || !set.Of(e.inst.Deps...).Equals(firstDeps) {
			return false
		}
	}
	return true
}

func mergePreAccepted(entries []preAccEntry) (command.Command, types.SeqNum, set.Set[types.InstanceID]) {
	merged := store.SeqDeps{Deps: set.New[types.InstanceID](0)}
	var cmd command.Command
	for _, e := range entries {
		merged = store.MergeSeqDeps(merged, store.SeqDeps{Seq: e.inst.Seq, Deps: set.Of(e.inst.Deps...)})
		if cmd == nil {
			cmd = e.inst.Command
		}
	}
	return cmd, merged.Seq, merged.Deps
}

// startTryPreAccept asks every respondent that did not PreAccept whether
// it can adopt the merged (seq, deps) without conflict.
func (c *Coordinator) startTryPreAccept(d *drive, preAccepted []preAccEntry) {
	cmd, seq, deps := mergePreAccepted(preAccepted)
	d.cmd, d.seq, d.deps = cmd, seq, deps

	d.rec.tryPreAcceptSent = true
	d.rec.tryPreAcceptOKs = set.New[types.ReplicaID](0)

	already := set.New[types.ReplicaID](len(preAccepted))
	for _, e := range preAccepted {
		already.Add(e.replica)
	}
	d.rec.possibleQuorum = set.New[types.ReplicaID](0)
	for _, r := range c.members.Peers() {
		if !already.Contains(r) {
			d.rec.possibleQuorum.Add(r)
		}
	}

	c.armTimer(d, c.params.RecoveryTimeout, func() { c.onRecoveryTimeout(d.id) })
	for _, r := range d.rec.possibleQuorum.List() {
		c.trans.Send(r, message.TryPreAccept{InstanceID: d.id, Command: d.cmd, Seq: d.seq, Deps: d.deps.List(), Ballot: d.ballot})
	}
}

// onTryPreAccept is the recipient-side handler: conflict if some other
// interfering instance not in the proposed deps has seq >= the proposed
// seq and does not already depend on this instance.
func (c *Coordinator) onTryPreAccept(from types.ReplicaID, m message.TryPreAccept) {
	if !c.acceptBallot(m.InstanceID, m.Ballot) {
		return
	}

	proposedDeps := set.Of(m.Deps...)
	for _, inst := range c.store.All() {
		if inst.ID == m.InstanceID || inst.NoOp || len(inst.Command) == 0 {
			continue
		}
		if proposedDeps.Contains(inst.ID) {
			continue
		}
		if inst.Seq < m.Seq {
			continue
		}
		if inst.Deps.Contains(m.InstanceID) {
			continue
		}
		if !c.module.Interferes(m.Command, inst.Command) {
			continue
		}
		c.trans.Send(from, message.TryPreAcceptOK{
			InstanceID: m.InstanceID, OK: false, From: c.self,
			ConflictReplica: inst.ID.Replica, ConflictInstance: inst.ID, ConflictStatus: inst.Status,
		})
		return
	}

	if existing := c.store.Get(m.InstanceID); existing != nil {
		invariant(m.Ballot.GreaterEqual(existing.Ballot), "ballot regression on TryPreAccept for %v: stored=%v incoming=%v", m.InstanceID, existing.Ballot, m.Ballot)
	}

	inst := &store.Instance{ID: m.InstanceID, Command: m.Command, Seq: m.Seq, Deps: proposedDeps, Status: types.StatusPreAccepted, Ballot: m.Ballot}
	c.store.Put(inst)
	c.trans.Send(from, message.TryPreAcceptOK{InstanceID: m.InstanceID, OK: true, From: c.self})
}

func (c *Coordinator) onTryPreAcceptOK(from types.ReplicaID, m message.TryPreAcceptOK) {
	d, ok := c.drives[m.InstanceID]
	if !ok || d.phase != phaseRecover || !d.rec.tryPreAcceptSent || d.rec.decided {
		return
	}

	if !m.OK {
		d.rec.possibleQuorum.Remove(from)
		if m.ConflictStatus == types.StatusCommitted {
			c.restartPhase1(d)
			return
		}
		if d.rec.possibleQuorum.Len()+d.rec.tryPreAcceptOKs.Len() < quorum.SlowSize(c.members.ClusterSize()) {
			c.restartPhase1(d)
		}
		return
	}

	d.rec.tryPreAcceptOKs.Add(from)
	if quorum.HasSlow(d.rec.tryPreAcceptOKs.Len(), c.members.ClusterSize()) {
		d.rec.decided = true
		c.startAccept(d)
	}
}

func (c *Coordinator) restartPhase1(d *drive) {
	d.rec.decided = true
	c.restartPreAccept(d, d.cmd, d.seq, d.deps)
}
