package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/minutemodem/eparl"
	"github.com/minutemodem/eparl/kvcmd"
	"github.com/minutemodem/eparl/membership"
	"github.com/minutemodem/eparl/types"
)

func simCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Run an in-process cluster and exercise fast path, slow path, and crash recovery",
		RunE: func(cmd *cobra.Command, args []string) error {
			nodes, _ := cmd.Flags().GetInt("nodes")
			return runSim(nodes)
		},
	}
	cmd.Flags().Int("nodes", 5, "cluster size")
	return cmd
}

func runSim(n int) error {
	if n < 5 {
		return fmt.Errorf("sim: need at least 5 nodes, got %d", n)
	}

	transports := eparl.ClusterTransports(n)
	handles := make([]*eparl.Handle, n)
	for i := 0; i < n; i++ {
		members, err := membership.NewStatic(n, types.ReplicaID(i))
		if err != nil {
			return err
		}
		params := eparl.DefaultParameters(n, i)
		h, err := eparl.Start(kvcmd.Module{}, n, eparl.Options{
			ReplicaID:    i,
			Transport:    transports[i],
			Members:      members,
			Params:       &params,
			InitialState: kvcmd.InitialState(),
		})
		if err != nil {
			return err
		}
		handles[i] = h
	}
	defer func() {
		for _, h := range handles {
			h.Close()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fmt.Println("=== S1: unanimous fast path ===")
	result, err := eparl.Propose(ctx, handles[0], kvcmd.Put("alpha", 1))
	report("put alpha=1", result, err)

	fmt.Println("=== S2: concurrent interfering proposals, slow path ===")
	type outcome struct {
		result eparl.Result
		err    error
	}
	outcomes := make(chan outcome, 2)
	go func() {
		r, e := eparl.Propose(ctx, handles[1], kvcmd.Put("beta", 2))
		outcomes <- outcome{r, e}
	}()
	go func() {
		r, e := eparl.Propose(ctx, handles[2], kvcmd.Put("beta", 3))
		outcomes <- outcome{r, e}
	}()
	for i := 0; i < 2; i++ {
		o := <-outcomes
		report("put beta=?", o.result, o.err)
	}

	fmt.Println("=== S3: independent keys both fast-commit ===")
	resultA, errA := eparl.Propose(ctx, handles[3], kvcmd.Put("gamma", 4))
	resultB, errB := eparl.Propose(ctx, handles[4], kvcmd.Put("delta", 5))
	report("put gamma=4", resultA, errA)
	report("put delta=5", resultB, errB)

	fmt.Println("=== S4: replica crash, surviving cluster still commits ===")
	handles[n-1].Close()
	for i := 0; i < n-1; i++ {
		eparl.SetReachable(handles[i], types.ReplicaID(n-1), false)
	}
	result, err = eparl.Propose(ctx, handles[0], kvcmd.Put("epsilon", 6))
	report("put epsilon=6 after crash", result, err)

	fmt.Println("=== final reads ===")
	for _, key := range []string{"alpha", "beta", "gamma", "delta", "epsilon"} {
		result, err := eparl.Propose(ctx, handles[0], kvcmd.Get(key))
		report("get "+key, result, err)
	}
	return nil
}

func report(label string, result eparl.Result, err error) {
	if err != nil {
		fmt.Printf("%-24s error: %v\n", label, err)
		return
	}
	fmt.Printf("%-24s result: %v\n", label, result)
}
