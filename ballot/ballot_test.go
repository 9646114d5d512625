package ballot_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/minutemodem/eparl/ballot"
	"github.com/minutemodem/eparl/types"
)

func TestInitialIsLowestForReplica(t *testing.T) {
	require := require.New(t)

	b := ballot.Initial(3)
	require.Equal(uint32(0), b.Epoch)
	require.Equal(uint32(0), b.Counter)
	require.Equal(types.ReplicaID(3), b.Replica)
}

func TestHigherThanIsStrictlyGreater(t *testing.T) {
	require := require.New(t)

	b := ballot.Initial(1)
	h := ballot.HigherThan(b, 2)
	require.True(h.GreaterThan(b))

	// Bumping again always produces something strictly greater than the
	// previous bump, regardless of which replica is recovering.
	h2 := ballot.HigherThan(h, 1)
	require.True(h2.GreaterThan(h))
}

func TestHigherThanOfZeroValueIsInitial(t *testing.T) {
	require := require.New(t)

	var zero ballot.Ballot
	require.Equal(ballot.Initial(5), ballot.HigherThan(zero, 5))
}

func TestCompareIsStrictTotalOrder(t *testing.T) {
	require := require.New(t)

	cases := []ballot.Ballot{
		{Epoch: 0, Counter: 0, Replica: 0},
		{Epoch: 0, Counter: 0, Replica: 1},
		{Epoch: 0, Counter: 1, Replica: 0},
		{Epoch: 1, Counter: 0, Replica: 0},
	}
	for i := range cases {
		for j := range cases {
			switch {
			case i < j:
				require.True(cases[i].Compare(cases[j]) < 0, "%v should be < %v", cases[i], cases[j])
				require.True(cases[j].Compare(cases[i]) > 0)
			case i == j:
				require.Equal(0, cases[i].Compare(cases[j]))
			default:
				require.True(cases[i].Compare(cases[j]) > 0)
			}
		}
	}
}

func TestGreaterEqual(t *testing.T) {
	require := require.New(t)

	a := ballot.Ballot{Epoch: 1, Counter: 2, Replica: 0}
	require.True(a.GreaterEqual(a))
	require.True(a.GreaterEqual(ballot.Ballot{Epoch: 1, Counter: 1, Replica: 9}))
	require.False(a.GreaterEqual(ballot.Ballot{Epoch: 1, Counter: 3, Replica: 0}))
}
