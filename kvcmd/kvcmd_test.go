package kvcmd_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/minutemodem/eparl/kvcmd"
)

func TestInterferesIffSameKey(t *testing.T) {
	require := require.New(t)

	mod := kvcmd.Module{}
	require.True(mod.Interferes(kvcmd.Put("x", 1), kvcmd.Put("x", 2)))
	require.False(mod.Interferes(kvcmd.Put("x", 1), kvcmd.Put("y", 2)))
	require.True(mod.Interferes(kvcmd.Put("x", 1), kvcmd.Get("x")))
}

func TestExecutePutThenGet(t *testing.T) {
	require := require.New(t)

	mod := kvcmd.Module{}
	state := kvcmd.InitialState()

	result, state := mod.Execute(kvcmd.Put("x", 42), state)
	require.Equal(42, result)
	require.Equal(42, state.(kvcmd.State)["x"])

	result, _ = mod.Execute(kvcmd.Get("x"), state)
	require.Equal(42, result)
}

func TestExecuteGetOnMissingKeyReturnsZeroValue(t *testing.T) {
	require := require.New(t)

	mod := kvcmd.Module{}
	result, _ := mod.Execute(kvcmd.Get("missing"), kvcmd.InitialState())
	require.Equal(0, result)
}

func TestExecuteDoesNotMutateThePreviousStateValue(t *testing.T) {
	require := require.New(t)

	mod := kvcmd.Module{}
	before := kvcmd.InitialState()
	_, after := mod.Execute(kvcmd.Put("x", 1), before)

	require.Empty(before.(kvcmd.State))
	require.Equal(1, after.(kvcmd.State)["x"])
}
