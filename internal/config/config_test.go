package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/klogger/internal/ring"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "klogger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaults_AreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 256, cfg.SlotSize)
	require.Equal(t, 262144, cfg.TotalSize)
	require.Equal(t, ExporterNone, cfg.Trace.Exporter)
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	require.Equal(t, Defaults(), cfg)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
slot_size: 64
total_size: 1024
max_open: 4
session_idle_timeout: 30s
log:
  debug: true
  level: warn
trace:
  exporter: stdout
`)

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	require.Equal(t, 64, cfg.SlotSize)
	require.Equal(t, 1024, cfg.TotalSize)
	require.Equal(t, int64(4), cfg.MaxOpen)
	require.Equal(t, 30*time.Second, cfg.SessionIdleTimeout)
	require.True(t, cfg.Log.Debug)
	require.Equal(t, "warn", cfg.Log.Level)
	require.Equal(t, 500, cfg.Log.Buffer)
	require.Equal(t, ExporterStdout, cfg.Trace.Exporter)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("KLOGGER_SLOT_SIZE", "128")
	t.Setenv("KLOGGER_LOG_LEVEL", "error")
	path := writeConfig(t, "slot_size: 64\ntotal_size: 4096\n")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	require.Equal(t, 128, cfg.SlotSize)
	require.Equal(t, 4096, cfg.TotalSize)
	require.Equal(t, "error", cfg.Log.Level)
}

func TestLoad_InvalidGeometry(t *testing.T) {
	path := writeConfig(t, "slot_size: 100\ntotal_size: 300\n")

	_, err := Load(viper.New(), path)
	require.ErrorIs(t, err, ring.ErrConfig)
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.SlotSize = 1
	cfg.MaxOpen = -1
	cfg.SessionIdleTimeout = -time.Second
	cfg.Log.Level = "loud"
	cfg.Trace.Exporter = "zipkin"

	err := cfg.Validate()
	require.ErrorIs(t, err, ring.ErrConfig)
	require.ErrorContains(t, err, "max_open")
	require.ErrorContains(t, err, "session_idle_timeout")
	require.ErrorContains(t, err, "log.level")
	require.ErrorContains(t, err, "trace.exporter")
}

func TestValidate_OTLPNeedsEndpoint(t *testing.T) {
	cfg := Defaults()
	cfg.Trace.Exporter = ExporterOTLP
	require.ErrorContains(t, cfg.Validate(), "trace.endpoint")

	cfg.Trace.Endpoint = "localhost:4317"
	require.NoError(t, cfg.Validate())
}

func TestConfig_RingAndDevice(t *testing.T) {
	cfg := Defaults()
	cfg.MaxOpen = 9
	cfg.SessionIdleTimeout = time.Minute

	require.Equal(t, ring.DefaultConfig(), cfg.Ring())
	require.Equal(t, int64(9), cfg.Device().MaxOpen)
	require.Equal(t, time.Minute, cfg.Device().IdleTimeout)
}

func TestConfig_YAML(t *testing.T) {
	cfg := Defaults()
	cfg.SessionIdleTimeout = 90 * time.Second

	out, err := cfg.YAML()
	require.NoError(t, err)
	require.Contains(t, string(out), "slot_size: 256")
	require.Contains(t, string(out), "session_idle_timeout: 1m30s")

	var back map[string]any
	require.NoError(t, yaml.Unmarshal(out, &back))
	require.Equal(t, 262144, back["total_size"])
}
