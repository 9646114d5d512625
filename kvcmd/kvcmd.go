// Package kvcmd is a tiny key/value command.Module: two commands
// interfere iff they touch the same key. It is the module end-to-end
// scenarios are phrased against, used by the replica package's
// integration tests and the eparl sim CLI.
package kvcmd

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/minutemodem/eparl/command"
)

type kind uint8

const (
	kindPut kind = iota
	kindGet
)

type op struct {
	Kind  kind
	Key   string
	Value int
}

// Put encodes a "put key=value" command.
func Put(key string, value int) command.Command {
	return encode(op{Kind: kindPut, Key: key, Value: value})
}

// Get encodes a "get key" command.
func Get(key string) command.Command {
	return encode(op{Kind: kindGet, Key: key})
}

func encode(o op) command.Command {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(o); err != nil {
		panic(fmt.Sprintf("kvcmd: encode: %v", err))
	}
	return command.Command(buf.Bytes())
}

func decode(c command.Command) (op, error) {
	var o op
	if err := gob.NewDecoder(bytes.NewReader(c)).Decode(&o); err != nil {
		return op{}, err
	}
	return o, nil
}

// State is the KV store's application state. The executor owns it
// exclusively, so Execute returns
// a fresh copy on every write rather than mutating in place.
type State map[string]int

// Module implements command.Module.
type Module struct{}

// Interferes reports whether a and b touch the same key. A malformed
// command is treated as interfering with everything, so it is never
// silently reordered around.
func (Module) Interferes(a, b command.Command) bool {
	oa, errA := decode(a)
	ob, errB := decode(b)
	if errA != nil || errB != nil {
		return true
	}
	return oa.Key == ob.Key
}

// Execute applies cmd to state, returning the affected value as Result.
func (Module) Execute(c command.Command, st command.State) (command.Result, command.State) {
	state, _ := st.(State)
	if state == nil {
		state = State{}
	}

	o, err := decode(c)
	if err != nil {
		return nil, state
	}

	switch o.Kind {
	case kindPut:
		next := make(State, len(state)+1)
		for k, v := range state {
			next[k] = v
		}
		next[o.Key] = o.Value
		return o.Value, next
	case kindGet:
		return state[o.Key], state
	default:
		return nil, state
	}
}

// InitialState returns an empty KV store.
func InitialState() command.State { return State{} }

// InitialState implements eparl.InitialStater, so Start can seed the
// executor without the caller passing Options.InitialState explicitly.
func (Module) InitialState() command.State { return State{} }
