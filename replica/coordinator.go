// Package replica implements the replica coordinator: it
// routes every protocol message, owns the instance store, and drives
// each in-flight instance's state machine and recovery analysis. Every
// mutation of the instance store and of in-flight drive state happens on
// a single dispatcher goroutine, reached only by posting closures onto
// the coordinator's inbox — a single-threaded dispatcher owning the
// store, rather than a thread per instance.
package replica

import (
	"context"
	"sync"
	"time"

	"github.com/luxfi/log"

	"github.com/minutemodem/eparl/ballot"
	"github.com/minutemodem/eparl/command"
	"github.com/minutemodem/eparl/config"
	"github.com/minutemodem/eparl/executor"
	"github.com/minutemodem/eparl/membership"
	"github.com/minutemodem/eparl/message"
	"github.com/minutemodem/eparl/metrics"
	"github.com/minutemodem/eparl/quorum"
	"github.com/minutemodem/eparl/store"
	"github.com/minutemodem/eparl/transport"
	"github.com/minutemodem/eparl/types"
)

const inboxSize = 1024

// Info summarizes a running coordinator's static cluster view.
type Info struct {
	ReplicaID   types.ReplicaID
	ClusterSize int
	Replicas    []types.ReplicaID
}

// Coordinator is one replica's protocol router, instance store owner,
// and proposal intake.
type Coordinator struct {
	self    types.ReplicaID
	members membership.Membership
	trans   transport.Transport
	module  command.Module
	store   *store.Store
	exec    *executor.Executor
	params  config.Parameters
	metrics *metrics.Metrics
	logger  log.Logger

	pending *pendingProposals

	reachMu   sync.Mutex
	reachable map[types.ReplicaID]bool

	inbox chan func()
	done  chan struct{}
	wg    sync.WaitGroup

	nextNum   types.InstanceNum
	drives    map[types.InstanceID]*drive
	watchdogs map[types.InstanceID]*time.Timer
}

// New builds a Coordinator for the local replica identified by
// members.Self(). Call Start to begin processing.
func New(module command.Module, initial command.State, members membership.Membership, trans transport.Transport, params config.Parameters, m *metrics.Metrics, logger log.Logger) *Coordinator {
	if logger == nil {
		logger = log.NewNoOpLogger()
	}

	c := &Coordinator{
		self:      members.Self(),
		members:   members,
		trans:     trans,
		module:    module,
		store:     store.New(),
		params:    params,
		metrics:   m,
		logger:    logger,
		pending:   newPendingProposals(),
		reachable: make(map[types.ReplicaID]bool),
		inbox:     make(chan func(), inboxSize),
		done:      make(chan struct{}),
		nextNum:   1,
		drives:    make(map[types.InstanceID]*drive),
		watchdogs: make(map[types.InstanceID]*time.Timer),
	}
	for _, r := range members.Peers() {
		c.reachable[r] = true
	}
	c.exec = executor.New(module, initial, c.onExecuted, c.onRecoveryNeeded, m, logger)
	trans.RegisterHandler(c.handleInbound)

	return c
}

// Start launches the dispatcher goroutine and schedules the startup sync
// broadcast.
func (c *Coordinator) Start() {
	c.wg.Add(1)
	go c.run()
	time.AfterFunc(c.params.JoinSyncDelay, func() { c.post(c.startSync) })
}

// Close stops the dispatcher. Any proposals still blocked in Propose
// return ctx.Err() or time out on their own deadline; Close does not
// resolve them itself. Calling Close again after it has returned is a
// no-op.
func (c *Coordinator) Close() error {
	select {
	case <-c.done:
		return nil
	default:
	}
	close(c.done)
	c.wg.Wait()
	return nil
}

func (c *Coordinator) run() {
	defer c.wg.Done()
	for {
		select {
		case fn := <-c.inbox:
			fn()
		case <-c.done:
			return
		}
	}
}

// post schedules fn to run on the dispatcher goroutine. It must never be
// called from within a closure already running on the dispatcher for a
// blocking send (the channel is buffered for exactly this reentrant
// case: a timer or executor callback posting its own follow-up work).
func (c *Coordinator) post(fn func()) {
	select {
	case c.inbox <- fn:
	case <-c.done:
	}
}

// Self returns the replica this coordinator drives.
func (c *Coordinator) Self() types.ReplicaID { return c.self }

// Info reports the static cluster view.
func (c *Coordinator) Info() Info {
	return Info{
		ReplicaID:   c.self,
		ClusterSize: c.members.ClusterSize(),
		Replicas:    c.members.Peers(),
	}
}

// SetReachable marks replica r reachable or not. There is no
// failure-detector component of its own; this is the hook
// Propose's NoQuorum precondition consults, and what tests and the sim
// CLI use to model a partition.
func (c *Coordinator) SetReachable(r types.ReplicaID, reachable bool) {
	c.reachMu.Lock()
	c.reachable[r] = reachable
	c.reachMu.Unlock()
}

func (c *Coordinator) markReachable(r types.ReplicaID) {
	c.reachMu.Lock()
	c.reachable[r] = true
	c.reachMu.Unlock()
}

func (c *Coordinator) availableCount() int {
	c.reachMu.Lock()
	defer c.reachMu.Unlock()
	n := 0
	for _, ok := range c.reachable {
		if ok {
			n++
		}
	}
	return n
}

func (c *Coordinator) handleInbound(from types.ReplicaID, msg message.Message) {
	c.markReachable(from)
	c.post(func() { c.dispatch(from, msg) })
}

func (c *Coordinator) dispatch(from types.ReplicaID, msg message.Message) {
	switch m := msg.(type) {
	case message.PreAccept:
		c.onPreAccept(from, m)
	case message.PreAcceptOK:
		c.onPreAcceptOK(from, m)
	case message.Accept:
		c.onAccept(from, m)
	case message.AcceptOK:
		c.onAcceptOK(from, m)
	case message.Commit:
		c.onCommit(from, m)
	case message.Prepare:
		c.onPrepare(from, m)
	case message.PrepareOK:
		c.onPrepareOK(from, m)
	case message.TryPreAccept:
		c.onTryPreAccept(from, m)
	case message.TryPreAcceptOK:
		c.onTryPreAcceptOK(from, m)
	case message.SyncRequest:
		c.onSyncRequest(from, m)
	case message.SyncResponse:
		c.onSyncResponse(from, m)
	}
}

// Propose submits cmd for consensus and blocks until it is committed and
// executed, fails with NoQuorum, or fails with ErrRecoveryTimeout.
func (c *Coordinator) Propose(ctx context.Context, cmd command.Command) (command.Result, error) {
	clusterSize := c.members.ClusterSize()
	needed := quorum.SlowSize(clusterSize)
	if avail := c.availableCount(); avail < needed {
		return nil, &NoQuorum{ClusterSize: clusterSize, Available: avail, Needed: needed}
	}

	type alloc struct {
		id   types.InstanceID
		wait chan outcome
	}
	allocCh := make(chan alloc, 1)
	c.post(func() {
		id := types.InstanceID{Replica: c.self, Num: c.nextNum}
		c.nextNum++
		wait := c.pending.register(id)
		allocCh <- alloc{id: id, wait: wait}
		c.startPreAccept(id, cmd, ballot.Initial(c.self))
	})

	a := <-allocCh

	timer := time.NewTimer(c.params.ProposeTimeout + c.params.RecoveryTimeout)
	defer timer.Stop()

	select {
	case o := <-a.wait:
		return o.result, o.err
	case <-ctx.Done():
		c.pending.cancel(a.id)
		return nil, ctx.Err()
	case <-timer.C:
		c.pending.cancel(a.id)
		return nil, ErrRecoveryTimeout
	}
}

func (c *Coordinator) onExecuted(id types.InstanceID, result command.Result) {
	c.pending.resolve(id, outcome{result: result})
}

func (c *Coordinator) onRecoveryNeeded(id types.InstanceID) {
	c.startRecovery(id)
}

func (c *Coordinator) acceptBallot(id types.InstanceID, b ballot.Ballot) bool {
	inst := c.store.Get(id)
	if inst == nil {
		return true
	}
	return b.GreaterEqual(inst.Ballot)
}

func (c *Coordinator) statusAtLeast(id types.InstanceID, min types.Status) bool {
	inst := c.store.Get(id)
	return inst != nil && inst.Status >= min
}
