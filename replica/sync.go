package replica

import (
	"github.com/minutemodem/eparl/message"
	"github.com/minutemodem/eparl/set"
	"github.com/minutemodem/eparl/store"
	"github.com/minutemodem/eparl/types"
)

// startSync broadcasts SyncRequest after JoinSyncDelay, bringing a freshly joined or restarted replica to
// at-least-one-copy-has-it state for every previously committed command.
func (c *Coordinator) startSync() {
	c.trans.Broadcast(message.SyncRequest{From: c.self})
}

func (c *Coordinator) onSyncRequest(from types.ReplicaID, m message.SyncRequest) {
	committed := c.store.Committed()
	synced := make([]message.SyncedInstance, 0, len(committed))
	for _, inst := range committed {
		synced = append(synced, message.SyncedInstance{
			InstanceID: inst.ID, Command: inst.Command, Seq: inst.Seq, Deps: inst.Deps.List(), NoOp: inst.NoOp,
		})
	}
	c.trans.Send(from, message.SyncResponse{From: c.self, Instances: synced})
}

// onSyncResponse inserts or upgrades each synced instance: only records
// with status below Committed are overwritten, so an already-committed
// local copy is never regressed.
func (c *Coordinator) onSyncResponse(from types.ReplicaID, m message.SyncResponse) {
	for _, si := range m.Instances {
		existing := c.store.Get(si.InstanceID)
		if existing != nil && existing.Status >= types.StatusCommitted {
			continue
		}

		inst := &store.Instance{
			ID: si.InstanceID, Command: si.Command, Seq: si.Seq, Deps: set.Of(si.Deps...),
			Status: types.StatusCommitted, NoOp: si.NoOp,
		}
		if existing != nil {
			inst.Ballot = existing.Ballot
		}
		c.store.Put(inst)
		c.cancelWatchdog(si.InstanceID)
		c.exec.NotifyCommitted(inst)
	}
}
