package ring

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewIndex_PowersOfTwo(t *testing.T) {
	for _, n := range []int{1, 2, 4, 8, 1024, 1 << 20} {
		idx, err := NewIndex(n)
		require.NoError(t, err, "n=%d", n)
		require.Equal(t, n, idx.Len())
	}
}

func TestNewIndex_RejectsOthers(t *testing.T) {
	for _, n := range []int{0, -1, -8, 3, 6, 1000, 1023} {
		_, err := NewIndex(n)
		require.ErrorIs(t, err, ErrConfig, "n=%d", n)
	}
}

func TestIndex_NextWraps(t *testing.T) {
	idx, err := NewIndex(4)
	require.NoError(t, err)

	require.Equal(t, 1, idx.Next(0))
	require.Equal(t, 3, idx.Next(2))
	require.Equal(t, 0, idx.Next(3))
}

func TestIndex_SingleSlot(t *testing.T) {
	idx, err := NewIndex(1)
	require.NoError(t, err)
	require.Equal(t, 0, idx.Next(0))
}
