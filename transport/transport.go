// Package transport defines the interface the replica coordinator uses to
// ship protocol messages between replicas. Every send is fire-and-forget
// and every message either arrives intact or not at all — never
// corrupted, never reordered-within-a-delivery.
package transport

import (
	"github.com/minutemodem/eparl/message"
	"github.com/minutemodem/eparl/types"
)

// Handler is invoked for every inbound message, on a goroutine owned by
// the transport. Implementations must not block the transport's delivery
// path for long; the replica coordinator dispatches quickly and hands
// long work off to its own goroutines.
type Handler func(from types.ReplicaID, msg message.Message)

// Transport ships messages between the replicas of one static cluster.
// Send and Broadcast never block on a peer being slow or unreachable:
// message loss and peer unavailability are transient conditions the
// protocol already tolerates.
type Transport interface {
	// Self returns which replica this transport instance belongs to.
	Self() types.ReplicaID

	// Send ships msg to a single peer, including possibly self.
	Send(to types.ReplicaID, msg message.Message)

	// Broadcast ships msg to every replica in the cluster, including
	// self.
	Broadcast(msg message.Message)

	// RegisterHandler installs the callback invoked for every inbound
	// message. Only one handler is supported per transport instance.
	RegisterHandler(h Handler)

	// Close releases any resources the transport holds.
	Close() error
}
