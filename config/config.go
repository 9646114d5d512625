// Package config holds the tunable Parameters for a replica, with the
// usual Parameters / DefaultParameters / Validate trio.
package config

import (
	"errors"
	"time"
)

// Validation errors, declared as sentinel values so callers can compare
// with errors.Is.
var (
	ErrClusterSizeTooSmall = errors.New("cluster size must be >= 1")
	ErrReplicaOutOfRange   = errors.New("replica id must be < cluster size")
	ErrTimeoutTooLow       = errors.New("timeouts must be positive")
)

// Parameters configures one replica's coordinator.
type Parameters struct {
	// ClusterSize is the static cluster size N.
	ClusterSize int

	// Replica is this process's ReplicaID, in [0, ClusterSize).
	Replica int

	// ProposeTimeout plus RecoveryTimeout bounds how long propose()
	// blocks before surfacing RecoveryTimeout to the caller.
	ProposeTimeout time.Duration

	// PreAcceptTimeout and AcceptTimeout are the per-phase timeouts
	// after which an instance state machine transitions to recovering.
	PreAcceptTimeout time.Duration
	AcceptTimeout    time.Duration

	// RecoveryTimeout bounds a single recovery attempt before it
	// surfaces RecoveryTimeout to any waiting proposer.
	RecoveryTimeout time.Duration

	// JoinSyncDelay is the brief delay after startup before a
	// coordinator broadcasts SyncRequest, to allow cluster discovery.
	JoinSyncDelay time.Duration
}

// DefaultParameters returns sane defaults for a cluster of the given
// size.
func DefaultParameters(clusterSize, replica int) Parameters {
	return Parameters{
		ClusterSize:      clusterSize,
		Replica:          replica,
		ProposeTimeout:   5 * time.Second,
		PreAcceptTimeout: 150 * time.Millisecond,
		AcceptTimeout:    150 * time.Millisecond,
		RecoveryTimeout:  2 * time.Second,
		JoinSyncDelay:    50 * time.Millisecond,
	}
}

// Validate checks the parameters for internal consistency.
func (p Parameters) Validate() error {
	if p.ClusterSize < 1 {
		return ErrClusterSizeTooSmall
	}
	if p.Replica < 0 || p.Replica >= p.ClusterSize {
		return ErrReplicaOutOfRange
	}
	if p.ProposeTimeout <= 0 || p.PreAcceptTimeout <= 0 ||
		p.AcceptTimeout <= 0 || p.RecoveryTimeout <= 0 {
		return ErrTimeoutTooLow
	}
	return nil
}
