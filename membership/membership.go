// Package membership maps the protocol's small-integer ReplicaIDs onto
// network-facing peer handles. Cluster membership is static for the
// lifetime of a run;
// this module only needs to enumerate the current replica set.
package membership

import (
	"fmt"

	"github.com/luxfi/ids"

	"github.com/minutemodem/eparl/types"
)

// Membership resolves ReplicaIDs to network identities and enumerates the
// static cluster.
type Membership interface {
	Self() types.ReplicaID
	ClusterSize() int
	Peers() []types.ReplicaID
	NodeID(r types.ReplicaID) ids.NodeID
}

// Static is a fixed-size cluster membership: replica i is deterministically
// assigned ids.NodeID with its low byte set to i, which is enough for
// logs and demos to tell replicas apart without a discovery service.
type Static struct {
	self    types.ReplicaID
	size    int
	nodeIDs []ids.NodeID
}

// NewStatic builds a Static membership for a cluster of size replicas,
// with self identifying which one this process is.
func NewStatic(size int, self types.ReplicaID) (*Static, error) {
	if size < 1 {
		return nil, fmt.Errorf("membership: cluster size must be >= 1, got %d", size)
	}
	if int(self) >= size {
		return nil, fmt.Errorf("membership: replica %d out of range for cluster size %d", self, size)
	}

	nodeIDs := make([]ids.NodeID, size)
	for i := range nodeIDs {
		var n ids.NodeID
		n[0] = byte(i)
		nodeIDs[i] = n
	}

	return &Static{self: self, size: size, nodeIDs: nodeIDs}, nil
}

func (s *Static) Self() types.ReplicaID { return s.self }

func (s *Static) ClusterSize() int { return s.size }

// Peers returns every replica in the cluster including self.
func (s *Static) Peers() []types.ReplicaID {
	out := make([]types.ReplicaID, s.size)
	for i := range out {
		out[i] = types.ReplicaID(i)
	}
	return out
}

func (s *Static) NodeID(r types.ReplicaID) ids.NodeID {
	return s.nodeIDs[r]
}
