package quorum_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/minutemodem/eparl/quorum"
)

func TestQuorumSizesFromSpecTable(t *testing.T) {
	require := require.New(t)

	cases := []struct {
		n          int
		fast, slow int
	}{
		{3, 3, 2},
		{5, 4, 3},
		{7, 6, 4},
		{9, 7, 5},
	}
	for _, c := range cases {
		require.Equal(c.fast, quorum.FastSize(c.n), "fast quorum for n=%d", c.n)
		require.Equal(c.slow, quorum.SlowSize(c.n), "slow quorum for n=%d", c.n)
	}
}

func TestHasFastHasSlow(t *testing.T) {
	require := require.New(t)

	require.False(quorum.HasFast(2, 5))
	require.True(quorum.HasFast(4, 5))
	require.False(quorum.HasSlow(2, 5))
	require.True(quorum.HasSlow(3, 5))
}
