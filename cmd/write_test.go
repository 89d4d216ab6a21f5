package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrite(t *testing.T) {
	tests := []struct {
		name  string
		stdin string
		args  []string
		want  string
	}{
		{
			name: "arguments in order",
			args: []string{"write", "--slot-size", "8", "--total-size", "32", "msg1", "msg2", "msg3"},
			want: "msg1\nmsg2\nmsg3\n",
		},
		{
			name: "oldest evicted when full",
			args: []string{"write", "--slot-size", "8", "--total-size", "32", "a", "b", "c", "d", "e"},
			want: "b\nc\nd\ne\n",
		},
		{
			name: "long message keeps its tail",
			args: []string{"write", "--slot-size", "4", "--total-size", "8", "abcdef"},
			want: "def\n",
		},
		{
			name:  "stdin lines",
			stdin: "one\ntwo\r\nthree",
			args:  []string{"write"},
			want:  "one\ntwo\nthree\n",
		},
		{
			name: "quiet",
			args: []string{"write", "-q", "hidden"},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := execute(t, tt.stdin, tt.args...)
			require.NoError(t, err)
			require.Equal(t, tt.want, out)
		})
	}
}

func TestWrite_ConfigFileSizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sizes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("slot_size: 8\ntotal_size: 16\n"), 0o600))

	out, _, err := execute(t, "", "write", "--config", path, "1", "2", "3")
	require.NoError(t, err)
	require.Equal(t, "2\n3\n", out)
}

func TestWrite_EnvSizes(t *testing.T) {
	t.Setenv("KLOGGER_SLOT_SIZE", "4")
	t.Setenv("KLOGGER_TOTAL_SIZE", "8")

	out, _, err := execute(t, "", "write", "x", "y", "zzzzz")
	require.NoError(t, err)
	require.Equal(t, "y\nzzz\n", out)
}

func TestWrite_FlagBeatsEnv(t *testing.T) {
	t.Setenv("KLOGGER_SLOT_SIZE", "4")
	t.Setenv("KLOGGER_TOTAL_SIZE", "8")

	out, _, err := execute(t, "", "write", "--slot-size", "8", "abcdefg")
	require.NoError(t, err)
	require.Equal(t, "abcdefg\n", out)
}
