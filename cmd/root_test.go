package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

// resetFlags puts every flag back to its default. rootCmd is package state,
// so flag values would otherwise leak between tests.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// execute runs the CLI in an isolated directory and returns stdout and stderr.
func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("KLOGGER_DEBUG", "")

	resetFlags(rootCmd)
	t.Cleanup(func() { resetFlags(rootCmd) })

	var out, errOut bytes.Buffer
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)

	err := Execute()
	return out.String(), errOut.String(), err
}

func TestRoot_CommandsRegistered(t *testing.T) {
	names := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"write", "cat", "follow", "watch", "stress", "stats", "config"} {
		require.True(t, names[want], "%s should be registered with rootCmd", want)
	}
}

func TestRoot_InvalidGeometry(t *testing.T) {
	_, _, err := execute(t, "", "write", "--slot-size", "8", "--total-size", "24", "x")
	require.Error(t, err)
	require.Contains(t, err.Error(), "power of two")
}

func TestRoot_MissingConfigFile(t *testing.T) {
	_, _, err := execute(t, "", "write", "--config", "nope.yaml", "x")
	require.ErrorContains(t, err, "reading config")
}

func TestWatch_TooManyArgs(t *testing.T) {
	_, _, err := execute(t, "", "watch", "a.log", "b.log")
	require.Error(t, err)
}
