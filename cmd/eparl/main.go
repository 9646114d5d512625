package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "eparl",
	Short: "eparl consensus tools: in-process simulation and cluster demos",
	Long: `eparl drives a leaderless egalitarian consensus engine over a
user-supplied command module. This CLI runs in-process simulations
exercising the fast path, the slow path, concurrent proposals, and
recovery after a replica crash.`,
}

func main() {
	rootCmd.AddCommand(simCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
