package replica_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/minutemodem/eparl/config"
	"github.com/minutemodem/eparl/kvcmd"
	"github.com/minutemodem/eparl/membership"
	"github.com/minutemodem/eparl/replica"
	"github.com/minutemodem/eparl/transport/chantransport"
	"github.com/minutemodem/eparl/types"
)

func testParams(n int) config.Parameters {
	p := config.DefaultParameters(n, 0)
	p.ProposeTimeout = time.Second
	p.PreAcceptTimeout = 50 * time.Millisecond
	p.AcceptTimeout = 50 * time.Millisecond
	p.RecoveryTimeout = 200 * time.Millisecond
	p.JoinSyncDelay = 10 * time.Millisecond
	return p
}

// cluster builds n fully wired coordinators sharing an in-process
// chantransport cluster, each running the kvcmd KV module.
func cluster(t *testing.T, n int) []*replica.Coordinator {
	t.Helper()

	transports := chantransport.NewCluster(n)
	coords := make([]*replica.Coordinator, n)
	for i := 0; i < n; i++ {
		m, err := membership.NewStatic(n, types.ReplicaID(i))
		require.NoError(t, err)

		params := testParams(n)
		params.Replica = i
		c := replica.New(kvcmd.Module{}, kvcmd.InitialState(), m, transports[i], params, nil, nil)
		coords[i] = c
	}
	for _, c := range coords {
		c.Start()
	}
	t.Cleanup(func() {
		for _, c := range coords {
			c.Close()
		}
	})
	return coords
}

func TestProposeCommitsAndExecutesOnAllReplicas(t *testing.T) {
	require := require.New(t)

	coords := cluster(t, 3)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := coords[0].Propose(ctx, kvcmd.Put("x", 7))
	require.NoError(err)
	require.Equal(7, result)

	result, err = coords[1].Propose(ctx, kvcmd.Get("x"))
	require.NoError(err)
	require.Equal(7, result)
}

func TestProposeFailsWithNoQuorumWhenTooFewReachable(t *testing.T) {
	require := require.New(t)

	coords := cluster(t, 5)

	coords[0].SetReachable(2, false)
	coords[0].SetReachable(3, false)
	coords[0].SetReachable(4, false)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := coords[0].Propose(ctx, kvcmd.Put("x", 1))
	require.Error(err)

	var noQuorum *replica.NoQuorum
	require.ErrorAs(err, &noQuorum)
}

func TestIndependentKeysBothCommitAndExecute(t *testing.T) {
	require := require.New(t)

	coords := cluster(t, 3)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resultA, errA := coords[0].Propose(ctx, kvcmd.Put("a", 1))
	resultB, errB := coords[1].Propose(ctx, kvcmd.Put("b", 2))

	require.NoError(errA)
	require.NoError(errB)
	require.Equal(1, resultA)
	require.Equal(2, resultB)
}

func TestInfoReportsClusterView(t *testing.T) {
	require := require.New(t)

	coords := cluster(t, 3)
	info := coords[1].Info()

	require.Equal(types.ReplicaID(1), info.ReplicaID)
	require.Equal(3, info.ClusterSize)
	require.Len(info.Replicas, 3)
}
