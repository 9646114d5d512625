package replica

import (
	"sync"

	"github.com/minutemodem/eparl/command"
	"github.com/minutemodem/eparl/types"
)

// outcome is delivered to a blocked Propose caller once its instance
// executes, or fails terminally.
type outcome struct {
	result command.Result
	err    error
}

// pendingProposals tracks callers blocked in Propose, indexed by the
// instance id assigned to their command. Entries are removed once the
// executor reports a result or the caller gives up waiting.
type pendingProposals struct {
	mu   sync.Mutex
	wait map[types.InstanceID]chan outcome
}

func newPendingProposals() *pendingProposals {
	return &pendingProposals{wait: make(map[types.InstanceID]chan outcome)}
}

func (p *pendingProposals) register(id types.InstanceID) chan outcome {
	ch := make(chan outcome, 1)
	p.mu.Lock()
	p.wait[id] = ch
	p.mu.Unlock()
	return ch
}

// resolve delivers o to id's waiter, if one is still registered. Safe to
// call from any goroutine, including the executor's.
func (p *pendingProposals) resolve(id types.InstanceID, o outcome) {
	p.mu.Lock()
	ch, ok := p.wait[id]
	if ok {
		delete(p.wait, id)
	}
	p.mu.Unlock()
	if ok {
		ch <- o
	}
}

// cancel removes id's waiter without delivering anything, for when the
// caller has already stopped listening (context cancellation, local
// timeout).
func (p *pendingProposals) cancel(id types.InstanceID) {
	p.mu.Lock()
	delete(p.wait, id)
	p.mu.Unlock()
}
