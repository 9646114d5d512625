// Package command defines the user-supplied command contract: an opaque
// command payload, an interference predicate, and a deterministic
// execution function over application state.
package command

// Command is an opaque payload. The consensus engine never inspects it
// except through the user-supplied Module.
type Command []byte

// State is the opaque application state threaded through Execute calls.
// Ownership is exclusive to the executor; Execute must not retain a
// reference to the state it is handed across calls.
type State any

// Result is whatever Execute decides to hand back to the original
// proposer.
type Result any

// Module is the user command contract. Interferes must be symmetric, and
// reflexive for commands that conflict with themselves (the common case:
// two writes to the same key always interfere, including with
// themselves, so that a retried submission still orders against itself).
// Execute must be deterministic: identical (cmd, state) must produce an
// identical (result, nextState) on every replica, since the engine relies
// on this for the execution-determinism guarantee.
type Module interface {
	// Interferes reports whether a and b cannot be reordered relative to
	// each other.
	Interferes(a, b Command) bool

	// Execute applies cmd to state, returning a result for the proposer
	// and the new state.
	Execute(cmd Command, state State) (Result, State)
}
