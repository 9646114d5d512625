// Package ballot implements the totally ordered (epoch, counter, replica)
// recovery tokens described in. A Ballot's zero value is the
// "no ballot seen yet" state; Initial is the first real ballot a replica
// assigns to an instance it proposes.
package ballot

import (
	"fmt"

	"github.com/minutemodem/eparl/types"
)

// Ballot is compared lexicographically on (Epoch, Counter, Replica).
type Ballot struct {
	Epoch   uint32
	Counter uint32
	Replica types.ReplicaID
}

// Initial returns the first ballot a replica uses when proposing a fresh
// instance: epoch 0, counter 0.
func Initial(replica types.ReplicaID) Ballot {
	return Ballot{Epoch: 0, Counter: 0, Replica: replica}
}

// HigherThan returns a ballot strictly greater than other, tagged with
// replica as the new owner. A recovering replica calls this to produce a
// ballot strictly greater than any it has observed for the instance.
// HigherThan(Ballot{}, replica) is Initial(replica) for any replica other
// than 0: the zero value means "no ballot seen yet". For replica 0 the
// zero value and Initial(0) are the same value, so it is bumped to epoch
// 1 like any other ballot, keeping the result strictly greater.
func HigherThan(other Ballot, replica types.ReplicaID) Ballot {
	if other == (Ballot{}) && replica != 0 {
		return Initial(replica)
	}
	return Ballot{Epoch: other.Epoch + 1, Counter: 0, Replica: replica}
}

// Compare returns -1, 0, or 1 as b sorts before, equal to, or after other.
func (b Ballot) Compare(other Ballot) int {
	if b.Epoch != other.Epoch {
		return cmpUint32(b.Epoch, other.Epoch)
	}
	if b.Counter != other.Counter {
		return cmpUint32(b.Counter, other.Counter)
	}
	if b.Replica != other.Replica {
		return cmpUint16(uint16(b.Replica), uint16(other.Replica))
	}
	return 0
}

func cmpUint32(a, b uint32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpUint16(a, b uint16) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// GreaterEqual reports whether b >= other.
func (b Ballot) GreaterEqual(other Ballot) bool {
	return b.Compare(other) >= 0
}

// GreaterThan reports whether b > other.
func (b Ballot) GreaterThan(other Ballot) bool {
	return b.Compare(other) > 0
}

func (b Ballot) String() string {
	return fmt.Sprintf("%d.%d@%d", b.Epoch, b.Counter, b.Replica)
}
