package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/btree"

	"github.com/minutemodem/eparl/types"
)

// btreeDegree is the branching factor for the per-replica ordered index.
// Instance stores in a single long-running replica stay small relative to
// typical btree workloads, so a modest degree keeps rebalancing cheap.
const btreeDegree = 32

// Store is the instance store owned exclusively by one replica's
// coordinator. It supports insertion, lookup, and a full scan used for
// interference checks and sync. Entries are never deleted: instance GC
// is out of scope.
//
// In addition to the map lookup, Store keeps one btree per replica
// ordered by InstanceNum. This secondary index gives sync-on-join and
// interference scans a deterministic, ordered iteration instead of Go's
// randomized map order.
type Store struct {
	mu      sync.RWMutex
	byID    map[types.InstanceID]*Instance
	ordered map[types.ReplicaID]*btree.BTreeG[types.InstanceID]
}

// New returns an empty instance store.
func New() *Store {
	return &Store{
		byID:    make(map[types.InstanceID]*Instance),
		ordered: make(map[types.ReplicaID]*btree.BTreeG[types.InstanceID]),
	}
}

func instanceIDLess(a, b types.InstanceID) bool {
	return a.Less(b)
}

func (s *Store) treeFor(replica types.ReplicaID) *btree.BTreeG[types.InstanceID] {
	t, ok := s.ordered[replica]
	if !ok {
		t = btree.NewG(btreeDegree, instanceIDLess)
		s.ordered[replica] = t
	}
	return t
}

// invariant panics if cond is false. Status regression is a contract
// violation - a bug if it ever fires - never a condition Store silently
// tolerates.
func invariant(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("store: invariant violated: "+format, args...))
	}
}

// Put inserts inst or overwrites the existing record for inst.ID. Callers
// are responsible for enforcing the ballot monotonicity invariant before
// calling Put (the replica coordinator does so via its ballot guard on
// every write-side message); Put itself enforces that status never
// regresses, since no caller has a legitimate reason to move an instance
// backwards along the None < PreAccepted < Accepted < Committed <
// Executed lattice.
func (s *Store) Put(inst *Instance) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byID[inst.ID]; ok {
		invariant(inst.Status >= existing.Status, "status regression for %v: %v -> %v", inst.ID, existing.Status, inst.Status)
	}

	s.byID[inst.ID] = inst
	s.treeFor(inst.ID.Replica).ReplaceOrInsert(inst.ID)
}

// Get returns the stored instance for id, or nil if unknown.
func (s *Store) Get(id types.InstanceID) *Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.byID[id]
}

// Exists reports whether id has any record, regardless of status.
func (s *Store) Exists(id types.InstanceID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.byID[id]
	return ok
}

// All returns every stored instance. The slice is ordered by
// (Replica, InstanceNum) for determinism.
func (s *Store) All() []*Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()

	replicas := make([]types.ReplicaID, 0, len(s.ordered))
	for r := range s.ordered {
		replicas = append(replicas, r)
	}
	sort.Slice(replicas, func(i, j int) bool { return replicas[i] < replicas[j] })

	out := make([]*Instance, 0, len(s.byID))
	for _, r := range replicas {
		s.ordered[r].Ascend(func(id types.InstanceID) bool {
			out = append(out, s.byID[id])
			return true
		})
	}
	return out
}

// Committed returns every stored instance with Status >= Committed,
// ordered by (Replica, InstanceNum). Used by sync-on-join responses.
func (s *Store) Committed() []*Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()

	replicas := make([]types.ReplicaID, 0, len(s.ordered))
	for r := range s.ordered {
		replicas = append(replicas, r)
	}
	sort.Slice(replicas, func(i, j int) bool { return replicas[i] < replicas[j] })

	var out []*Instance
	for _, r := range replicas {
		s.ordered[r].Ascend(func(id types.InstanceID) bool {
			inst := s.byID[id]
			if inst.Status >= types.StatusCommitted {
				out = append(out, inst)
			}
			return true
		})
	}
	return out
}

// NextInstanceNum returns one past the highest InstanceNum stored for
// replica, or 1 if none is stored yet. The replica coordinator does not
// call it: its local counter starts at 1 and is tracked in memory.
func (s *Store) NextInstanceNum(replica types.ReplicaID) types.InstanceNum {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tree, ok := s.ordered[replica]
	if !ok || tree.Len() == 0 {
		return 1
	}
	max, _ := tree.Max()
	return max.Num + 1
}
