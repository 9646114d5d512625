package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/minutemodem/eparl/config"
)

func TestDefaultParametersValidate(t *testing.T) {
	require := require.New(t)

	p := config.DefaultParameters(3, 1)
	require.NoError(p.Validate())
}

func TestValidateRejectsBadClusterSize(t *testing.T) {
	require := require.New(t)

	p := config.DefaultParameters(0, 0)
	require.ErrorIs(p.Validate(), config.ErrClusterSizeTooSmall)
}

func TestValidateRejectsReplicaOutOfRange(t *testing.T) {
	require := require.New(t)

	p := config.DefaultParameters(3, 3)
	require.ErrorIs(p.Validate(), config.ErrReplicaOutOfRange)
}

func TestValidateRejectsNonPositiveTimeout(t *testing.T) {
	require := require.New(t)

	p := config.DefaultParameters(3, 0)
	p.AcceptTimeout = 0
	require.ErrorIs(p.Validate(), config.ErrTimeoutTooLow)
}
