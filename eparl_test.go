package eparl_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/minutemodem/eparl"
	"github.com/minutemodem/eparl/kvcmd"
	"github.com/minutemodem/eparl/membership"
	"github.com/minutemodem/eparl/types"
)

func startCluster(t *testing.T, n int) []*eparl.Handle {
	t.Helper()
	transports := eparl.ClusterTransports(n)
	handles := make([]*eparl.Handle, n)
	for i := 0; i < n; i++ {
		members, err := membership.NewStatic(n, types.ReplicaID(i))
		require.NoError(t, err)
		params := eparl.DefaultParameters(n, i)
		h, err := eparl.Start(kvcmd.Module{}, n, eparl.Options{
			ReplicaID: i,
			Transport: transports[i],
			Members:   members,
			Params:    &params,
		})
		require.NoError(t, err)
		handles[i] = h
	}
	t.Cleanup(func() {
		for _, h := range handles {
			h.Close()
		}
	})
	return handles
}

func TestStartProposeInfoReplicas(t *testing.T) {
	require := require.New(t)

	handles := startCluster(t, 3)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := eparl.Propose(ctx, handles[0], kvcmd.Put("x", 1))
	require.NoError(err)
	require.Equal(1, result)

	info := eparl.GetInfo(handles[0])
	require.Equal(3, info.ClusterSize)
	require.Len(eparl.Replicas(handles[0]), 3)
}

func TestStartWithoutTransportFails(t *testing.T) {
	require := require.New(t)

	_, err := eparl.Start(kvcmd.Module{}, 3, eparl.Options{})
	require.Error(err)
}

func TestStartUsesModuleInitialStateWhenNotProvided(t *testing.T) {
	require := require.New(t)

	handles := startCluster(t, 3)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := eparl.Propose(ctx, handles[0], kvcmd.Get("missing"))
	require.NoError(err)
	require.Equal(0, result)
}
