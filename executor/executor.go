// Package executor implements the dependency-graph ordering and command
// execution component of: once an instance commits, the
// executor waits for its transitive dependencies to also commit, then
// runs ready instances in a deterministic, SCC-respecting order.
package executor

import (
	"sort"

	"github.com/luxfi/log"

	"github.com/minutemodem/eparl/command"
	"github.com/minutemodem/eparl/metrics"
	"github.com/minutemodem/eparl/set"
	"github.com/minutemodem/eparl/store"
	"github.com/minutemodem/eparl/types"
)

// Callback is invoked once per executed instance, carrying the result
// Execute produced, so the replica coordinator can resolve the original
// proposer's pending call.
type Callback func(id types.InstanceID, result command.Result)

// RecoveryRequester is invoked when the executor finds a dependency it
// has never heard of, asking the replica coordinator to recover it.
type RecoveryRequester func(id types.InstanceID)

// Executor owns the application state exclusively: "Shared
// resource policy" requires every mutation to go through here, never
// concurrently with Execute.
type Executor struct {
	module command.Module
	state  command.State

	committed map[types.InstanceID]*store.Instance
	executed  set.Set[types.InstanceID]

	// requestedRecovery dedupes RecoveryRequester calls for ids already
	// asked about, so a repeatedly-stalled SCC doesn't spam the
	// coordinator on every NotifyCommitted.
	requestedRecovery set.Set[types.InstanceID]

	onExecuted   Callback
	requestRecov RecoveryRequester
	metrics      *metrics.Metrics
	logger       log.Logger
}

// New returns an Executor seeded with initial application state.
func New(module command.Module, initial command.State, onExecuted Callback, requestRecov RecoveryRequester, m *metrics.Metrics, logger log.Logger) *Executor {
	if logger == nil {
		logger = log.NewNoOpLogger()
	}
	return &Executor{
		module:            module,
		state:             initial,
		committed:         make(map[types.InstanceID]*store.Instance),
		executed:          set.New[types.InstanceID](0),
		requestedRecovery: set.New[types.InstanceID](0),
		onExecuted:        onExecuted,
		requestRecov:      requestRecov,
		metrics:           m,
		logger:            logger,
	}
}

// NotifyCommitted records inst as committed-but-not-yet-executed and
// attempts to run the maximal ready prefix of the dependency graph.
// Callers (the replica coordinator) must invoke this in the order they
// observe Commit, and never concurrently.
func (e *Executor) NotifyCommitted(inst *store.Instance) {
	if e.executed.Contains(inst.ID) {
		return
	}
	if _, ok := e.committed[inst.ID]; !ok {
		e.committed[inst.ID] = inst
	}
	e.drain()
}

// State returns the current application state, for inspection by tests
// and the sim CLI. Callers must not mutate the returned value.
func (e *Executor) State() command.State {
	return e.state
}

// drain runs Tarjan over the current committed-not-executed graph and
// executes every SCC that is fully ready, in dependency-first order.
func (e *Executor) drain() {
	vertices := make([]types.InstanceID, 0, len(e.committed))
	for id := range e.committed {
		vertices = append(vertices, id)
	}
	sort.Slice(vertices, func(i, j int) bool { return vertices[i].Less(vertices[j]) })

	edges := make(map[types.InstanceID][]types.InstanceID, len(vertices))
	missing := make(map[types.InstanceID][]types.InstanceID)
	for _, id := range vertices {
		inst := e.committed[id]
		var es []types.InstanceID
		for _, dep := range inst.Deps.List() {
			if e.executed.Contains(dep) {
				continue
			}
			if _, ok := e.committed[dep]; ok {
				es = append(es, dep)
				continue
			}
			missing[id] = append(missing[id], dep)
		}
		sort.Slice(es, func(i, j int) bool { return es[i].Less(es[j]) })
		edges[id] = es
	}

	sccs := tarjanSCCs(vertices, edges)

	stalled := set.New[types.InstanceID](0)
	for _, scc := range sccs {
		blocked := false
		var missingDeps []types.InstanceID
		for _, id := range scc {
			if deps, ok := missing[id]; ok {
				blocked = true
				missingDeps = append(missingDeps, deps...)
			}
			for _, dep := range edges[id] {
				if stalled.Contains(dep) {
					blocked = true
				}
			}
		}
		if blocked {
			for _, id := range scc {
				stalled.Add(id)
			}
			for _, dep := range missingDeps {
				e.requestRecoveryOnce(dep)
			}
			continue
		}
		e.executeSCC(scc)
	}
}

// executeSCC runs every instance in scc, ordered by (seq, replica_id,
// instance_num) ascending, the within-SCC tie-break.
func (e *Executor) executeSCC(scc []types.InstanceID) {
	sort.Slice(scc, func(i, j int) bool {
		a, b := e.committed[scc[i]], e.committed[scc[j]]
		if a.Seq != b.Seq {
			return a.Seq < b.Seq
		}
		return a.ID.Less(b.ID)
	})

	for _, id := range scc {
		inst := e.committed[id]
		var result command.Result
		if !inst.NoOp {
			result, e.state = e.module.Execute(inst.Command, e.state)
		}
		delete(e.committed, id)
		e.executed.Add(id)
		e.requestedRecovery.Remove(id)
		if e.metrics != nil {
			e.metrics.ExecutedTotal.Inc()
			e.metrics.ExecutorQueueDepth.Set(float64(len(e.committed)))
		}
		if e.onExecuted != nil {
			e.onExecuted(id, result)
		}
	}
}

func (e *Executor) requestRecoveryOnce(id types.InstanceID) {
	if e.requestedRecovery.Contains(id) {
		return
	}
	e.requestedRecovery.Add(id)
	if e.requestRecov != nil {
		e.requestRecov(id)
	}
}
