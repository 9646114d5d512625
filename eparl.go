// Package eparl is the single-import SDK surface for the egalitarian
// consensus engine: start(command_module, cluster_size, ...) → handle,
// propose(handle, command), info(handle), replicas(handle).
package eparl

import (
	"context"
	"fmt"

	"github.com/luxfi/log"

	"github.com/minutemodem/eparl/command"
	"github.com/minutemodem/eparl/config"
	"github.com/minutemodem/eparl/membership"
	"github.com/minutemodem/eparl/metrics"
	"github.com/minutemodem/eparl/replica"
	"github.com/minutemodem/eparl/transport"
	"github.com/minutemodem/eparl/transport/chantransport"
	"github.com/minutemodem/eparl/types"
)

// Re-exported types and errors for a clean single-import experience.
type (
	Command = command.Command
	Module  = command.Module
	State   = command.State
	Result  = command.Result

	Info   = replica.Info
	Params = config.Parameters

	NoQuorum = replica.NoQuorum
)

var ErrRecoveryTimeout = replica.ErrRecoveryTimeout

// DefaultParameters returns the default per-replica timeouts for a
// cluster of the given size.
func DefaultParameters(clusterSize, replicaID int) Params {
	return config.DefaultParameters(clusterSize, replicaID)
}

// Handle is a running replica: the result of start().
type Handle struct {
	coord *replica.Coordinator
	trans transport.Transport
}

// Options configures start() beyond the required (module, cluster_size).
type Options struct {
	// ReplicaID is which replica in [0, ClusterSize) this process is.
	// Defaults to 0, matching a single-process demo cluster.
	ReplicaID int

	// InitialState seeds the executor's application state. Defaults to module.InitialState() if the module
	// implements an InitialStater, else nil.
	InitialState command.State

	// Params overrides the default timeouts. Defaults to
	// DefaultParameters(clusterSize, ReplicaID).
	Params *Params

	// Transport is the wire transport. It is required: Start returns an
	// error when it is nil. ClusterTransports builds in-process ones.
	Transport transport.Transport

	// Members overrides cluster membership resolution. Defaults to a
	// membership.Static built from ClusterSize/ReplicaID.
	Members membership.Membership

	// Metrics registers protocol counters/gauges with a caller-supplied
	// Prometheus registerer. Nil disables metrics.
	Metrics *metrics.Metrics

	Logger log.Logger
}

// InitialStater is implemented by command.Module implementations that
// have a natural zero state, such as kvcmd.Module.
type InitialStater interface {
	InitialState() command.State
}

// ClusterTransports builds n interconnected in-process transports, for
// callers running a full cluster within one process (tests, the eparl
// sim CLI).
func ClusterTransports(n int) []*chantransport.Chan {
	return chantransport.NewCluster(n)
}

// Start launches one replica of an n-replica cluster and returns a Handle
// for it. The caller is responsible for calling
// Start on every replica in the cluster and for wiring each one's
// transport so they can reach each other; ClusterTransports does this for
// an in-process cluster.
func Start(module command.Module, clusterSize int, opts Options) (*Handle, error) {
	if clusterSize < 1 {
		return nil, fmt.Errorf("eparl: cluster size must be >= 1, got %d", clusterSize)
	}

	members := opts.Members
	if members == nil {
		m, err := membership.NewStatic(clusterSize, types.ReplicaID(opts.ReplicaID))
		if err != nil {
			return nil, err
		}
		members = m
	}

	params := DefaultParameters(clusterSize, opts.ReplicaID)
	if opts.Params != nil {
		params = *opts.Params
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("eparl: invalid parameters: %w", err)
	}

	trans := opts.Transport
	if trans == nil {
		return nil, fmt.Errorf("eparl: Options.Transport is required for a multi-process cluster; use ClusterTransports for an in-process one")
	}

	initial := opts.InitialState
	if initial == nil {
		if is, ok := module.(InitialStater); ok {
			initial = is.InitialState()
		}
	}

	coord := replica.New(module, initial, members, trans, params, opts.Metrics, opts.Logger)
	coord.Start()

	return &Handle{coord: coord, trans: trans}, nil
}

// Propose submits cmd for consensus and blocks until it commits and
// executes.
func Propose(ctx context.Context, h *Handle, cmd command.Command) (command.Result, error) {
	return h.coord.Propose(ctx, cmd)
}

// GetInfo reports the replica's static cluster view.
func GetInfo(h *Handle) Info {
	return h.coord.Info()
}

// Replicas lists every replica identifier in the cluster.
func Replicas(h *Handle) []types.ReplicaID {
	return h.coord.Info().Replicas
}

// SetReachable marks a peer reachable or not, the hook tests and the sim
// CLI use to model a network partition.
func SetReachable(h *Handle, r types.ReplicaID, reachable bool) {
	h.coord.SetReachable(r, reachable)
}

// Close stops the replica's dispatcher and releases its transport.
func (h *Handle) Close() error {
	err := h.coord.Close()
	if cerr := h.trans.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
