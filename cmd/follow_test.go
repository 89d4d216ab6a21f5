package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// stopImmediately makes follow return as soon as the file is being watched.
func stopImmediately(t *testing.T) {
	t.Helper()
	original := notifyContext
	t.Cleanup(func() { notifyContext = original })
	notifyContext = func(parent context.Context) (context.Context, context.CancelFunc) {
		ctx, cancel := context.WithCancel(parent)
		cancel()
		return ctx, cancel
	}
}

func TestFollow_FromStart(t *testing.T) {
	stopImmediately(t)
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(path, []byte("a\nb\nc\n"), 0o600))

	out, _, err := execute(t, "", "follow", "--from-start", "--slot-size", "8", "--total-size", "16", path)
	require.NoError(t, err)
	require.Equal(t, "b\nc\n", out)
}

func TestFollow_SkipsExisting(t *testing.T) {
	stopImmediately(t)
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o600))

	out, _, err := execute(t, "", "follow", path)
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestFollow_MissingFile(t *testing.T) {
	stopImmediately(t)
	_, _, err := execute(t, "", "follow", filepath.Join(t.TempDir(), "missing.log"))
	require.Error(t, err)
}

func TestFollow_RequiresPath(t *testing.T) {
	_, _, err := execute(t, "", "follow")
	require.Error(t, err)
}
