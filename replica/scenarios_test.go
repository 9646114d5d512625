package replica_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/minutemodem/eparl/kvcmd"
)

// TestConcurrentInterferingProposalsBothCommit proposes two commands that
// touch the same key from two replicas at once. When their PreAccept
// rounds overlap, the replies disagree on deps and the slow path runs;
// the test checks that both proposals commit and that a later read
// returns one of the two written values.
func TestConcurrentInterferingProposalsBothCommit(t *testing.T) {
	require := require.New(t)

	coords := cluster(t, 5)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	results := make([]int, 2)
	errs := make([]error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		r, err := coords[0].Propose(ctx, kvcmd.Put("shared", 1))
		if v, ok := r.(int); ok {
			results[0] = v
		}
		errs[0] = err
	}()
	go func() {
		defer wg.Done()
		r, err := coords[1].Propose(ctx, kvcmd.Put("shared", 2))
		if v, ok := r.(int); ok {
			results[1] = v
		}
		errs[1] = err
	}()
	wg.Wait()

	require.NoError(errs[0])
	require.NoError(errs[1])

	final, err := coords[2].Propose(ctx, kvcmd.Get("shared"))
	require.NoError(err)
	require.Contains([]int{1, 2}, final)
}

// TestClusterStaysAvailableAfterAReplicaStops exercises a coordinator
// crash scenario: a replica is stopped mid-run, and the
// surviving majority must still be able to commit and execute further
// commands.
func TestClusterStaysAvailableAfterAReplicaStops(t *testing.T) {
	require := require.New(t)

	coords := cluster(t, 5)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := coords[4].Propose(ctx, kvcmd.Put("warmup", 1))
	require.NoError(err)

	require.NoError(coords[4].Close())
	for _, c := range coords {
		c.SetReachable(4, false)
	}

	result, err := coords[0].Propose(ctx, kvcmd.Put("after-crash", 9))
	require.NoError(err)
	require.Equal(9, result)
}

// TestWriteCommittedAtOneReplicaIsReadAtAnother starts all three replicas
// together, commits a put proposed at replica 0, and checks that a get
// proposed later at replica 2 returns the written value. No replica
// joins late, so this does not isolate the startup sync round.
func TestWriteCommittedAtOneReplicaIsReadAtAnother(t *testing.T) {
	require := require.New(t)

	coords := cluster(t, 3)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := coords[0].Propose(ctx, kvcmd.Put("k", 5))
	require.NoError(err)

	time.Sleep(100 * time.Millisecond)

	result, err := coords[2].Propose(ctx, kvcmd.Get("k"))
	require.NoError(err)
	require.Equal(5, result)
}
