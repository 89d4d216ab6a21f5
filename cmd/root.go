// Package cmd implements the klogger command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/klogger/internal/config"
	"github.com/zjrosen/klogger/internal/device"
	"github.com/zjrosen/klogger/internal/log"
	"github.com/zjrosen/klogger/internal/ring"
	"github.com/zjrosen/klogger/internal/tracing"
)

// version is set at build time via -ldflags.
var version = "dev"

const defaultLogPath = "klogger-debug.log"

var (
	cfgFile string
	debug   bool
	logFile string
)

var rootCmd = &cobra.Command{
	Use:   "klogger",
	Short: "In-memory ring log device",
	Long: `klogger keeps the most recent short text messages in a fixed-size ring
and serves them back as a newline-delimited stream. Once the ring is full the
oldest message is dropped for every new one.

Sizes come from --slot-size/--total-size, a klogger.yaml config file or
KLOGGER_* environment variables.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default: ./klogger.yaml or ~/.config/klogger/klogger.yaml)")
	flags.BoolVarP(&debug, "debug", "d", false, "enable debug logging")
	flags.StringVar(&logFile, "log-file", "", "debug log path (default: "+defaultLogPath+")")
	flags.Int("slot-size", ring.DefaultSlotSize, "bytes per message slot, terminator included")
	flags.Int("total-size", ring.DefaultTotalSize, "bytes of slot storage; total/slot must be a power of two")
	flags.Int64("max-open", 0, "maximum concurrently open sessions (0 = unlimited)")
	flags.Duration("idle-timeout", 0, "close sessions idle for this long (0 = never)")
	flags.String("trace", config.ExporterNone, "span exporter: none, stdout or otlp")
	flags.String("trace-endpoint", "", "OTLP gRPC collector address (host:port)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// env is everything a command needs, built once per invocation.
type env struct {
	cfg     config.Config
	dev     *device.Device
	closers []func()
}

// Close releases the device, flushes spans and closes the log file.
func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// flagKeys maps persistent flags to config keys.
var flagKeys = map[string]string{
	"slot-size":      "slot_size",
	"total-size":     "total_size",
	"max-open":       "max_open",
	"idle-timeout":   "session_idle_timeout",
	"trace":          "trace.exporter",
	"trace-endpoint": "trace.endpoint",
}

// loadConfig resolves flags, env and config file into a Config.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	v := viper.New()
	for flag, key := range flagKeys {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return config.Config{}, fmt.Errorf("binding --%s: %w", flag, err)
			}
		}
	}
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return config.Config{}, err
	}
	if debug {
		cfg.Log.Debug = true
	}
	if logFile != "" {
		cfg.Log.Path = logFile
	}
	return cfg, nil
}

// initLogging starts the debug log. useTea routes it through tea.LogToFile
// so the TUI keeps the terminal.
func initLogging(cfg config.LogConfig, useTea bool) (func(), error) {
	if !cfg.Debug && os.Getenv("KLOGGER_DEBUG") == "" {
		return func() {}, nil
	}
	path := cfg.Path
	if path == "" {
		path = defaultLogPath
	}

	var (
		cleanup func()
		err     error
	)
	if useTea {
		cleanup, err = log.InitWithTeaLog(path, "klogger", cfg.Buffer)
	} else {
		cleanup, err = log.Init(path, cfg.Buffer)
	}
	if err != nil {
		return nil, fmt.Errorf("opening debug log: %w", err)
	}

	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		cleanup()
		return nil, err
	}
	log.SetMinLevel(level)
	return cleanup, nil
}

type setupOptions struct {
	teaLog bool
}

// setup loads configuration and builds the ring and device for one run.
func setup(cmd *cobra.Command, opts setupOptions) (*env, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg}
	closeLog, err := initLogging(cfg.Log, opts.teaLog)
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, closeLog)

	shutdownTracing, err := tracing.Setup(cmd.Context(), cfg.Trace)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.closers = append(e.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(ctx)
	})

	r, err := ring.New(cfg.Ring())
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("building ring: %w", err)
	}
	e.dev = device.New(r, cfg.Device())
	e.closers = append(e.closers, e.dev.Shutdown)

	log.Info(log.CatCLI, "device ready", "command", cmd.Name(),
		"slots", r.Capacity(), "slot_size", r.SlotSize())
	return e, nil
}

// drainTo opens a fresh session and copies the whole stream to w.
func drainTo(ctx context.Context, dev *device.Device, w io.Writer) error {
	h, err := dev.Open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = h.Close() }()

	if _, err := h.WriteTo(w); err != nil {
		return fmt.Errorf("reading stream: %w", err)
	}
	return nil
}
