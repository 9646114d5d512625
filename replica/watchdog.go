package replica

import (
	"time"

	"github.com/minutemodem/eparl/types"
)

// watchdog lets a replica that merely responded to another replica's
// PreAccept/Accept (never obtained a Commit) notice a silent coordinator
// and take over recovery itself. The original proposer never arms one for its own
// instances: its own phase timers already cover that case.
func (c *Coordinator) armWatchdog(id types.InstanceID) {
	if id.Replica == c.self {
		return
	}
	if t, ok := c.watchdogs[id]; ok {
		t.Stop()
	}
	deadline := c.params.PreAcceptTimeout + c.params.AcceptTimeout
	c.watchdogs[id] = time.AfterFunc(deadline, func() { c.post(func() { c.watchdogFired(id) }) })
}

func (c *Coordinator) cancelWatchdog(id types.InstanceID) {
	if t, ok := c.watchdogs[id]; ok {
		t.Stop()
		delete(c.watchdogs, id)
	}
}

func (c *Coordinator) watchdogFired(id types.InstanceID) {
	delete(c.watchdogs, id)
	if c.statusAtLeast(id, types.StatusCommitted) {
		return
	}
	c.startRecovery(id)
}
