package cmd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStress_Wraps(t *testing.T) {
	out, _, err := execute(t, "", "stress",
		"--writers", "4", "--messages", "100", "--readers", "2",
		"--slot-size", "32", "--total-size", "1024")
	require.NoError(t, err)
	require.Contains(t, out, "wrote 400 messages with 4 writers")
	require.Contains(t, out, "buffered 32/32 entries, all intact")
}

func TestStress_BelowCapacity(t *testing.T) {
	out, _, err := execute(t, "", "stress", "--writers", "2", "--messages", "5", "--readers", "0")
	require.NoError(t, err)
	require.Contains(t, out, "buffered 10/10 entries")
}

func TestStress_SlotTooSmall(t *testing.T) {
	_, _, err := execute(t, "", "stress", "--slot-size", "8", "--total-size", "64")
	require.ErrorContains(t, err, "slots hold 7")
}

func TestStress_InvalidCounts(t *testing.T) {
	_, _, err := execute(t, "", "stress", "--writers", "0")
	require.Error(t, err)
}
