// Package config loads klogger settings from defaults, an optional YAML file,
// KLOGGER_* environment variables and bound command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/klogger/internal/device"
	"github.com/zjrosen/klogger/internal/log"
	"github.com/zjrosen/klogger/internal/ring"
)

// EnvPrefix prefixes every environment override, e.g. KLOGGER_SLOT_SIZE.
const EnvPrefix = "KLOGGER"

// Trace exporters understood by internal/tracing.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// Config holds all settings. Sizes are fixed once a ring is built from them.
type Config struct {
	SlotSize           int           `mapstructure:"slot_size" yaml:"slot_size"`
	TotalSize          int           `mapstructure:"total_size" yaml:"total_size"`
	MaxOpen            int64         `mapstructure:"max_open" yaml:"max_open"`
	SessionIdleTimeout time.Duration `mapstructure:"session_idle_timeout" yaml:"session_idle_timeout"`

	Log   LogConfig   `mapstructure:"log" yaml:"log"`
	Trace TraceConfig `mapstructure:"trace" yaml:"trace"`
}

// LogConfig configures internal/log.
type LogConfig struct {
	// Debug enables logging. Off by default.
	Debug bool `mapstructure:"debug" yaml:"debug"`
	// Path is the log file. Empty means klogger-debug.log in the working directory.
	Path string `mapstructure:"path" yaml:"path,omitempty"`
	// Level is the minimum level written.
	Level string `mapstructure:"level" yaml:"level"`
	// Buffer is the number of recent lines kept in memory.
	Buffer int `mapstructure:"buffer" yaml:"buffer"`
}

// TraceConfig selects the span exporter.
type TraceConfig struct {
	Exporter string `mapstructure:"exporter" yaml:"exporter"`
	// Endpoint is the OTLP gRPC collector address (host:port).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	Insecure bool   `mapstructure:"insecure" yaml:"insecure"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		SlotSize:  ring.DefaultSlotSize,
		TotalSize: ring.DefaultTotalSize,
		Log: LogConfig{
			Level:  "debug",
			Buffer: 500,
		},
		Trace: TraceConfig{
			Exporter: ExporterNone,
		},
	}
}

// SetDefaults registers Defaults on v so that env overrides and
// Unmarshal see every key.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("slot_size", d.SlotSize)
	v.SetDefault("total_size", d.TotalSize)
	v.SetDefault("max_open", d.MaxOpen)
	v.SetDefault("session_idle_timeout", d.SessionIdleTimeout)
	v.SetDefault("log.debug", d.Log.Debug)
	v.SetDefault("log.path", d.Log.Path)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.buffer", d.Log.Buffer)
	v.SetDefault("trace.exporter", d.Trace.Exporter)
	v.SetDefault("trace.endpoint", d.Trace.Endpoint)
	v.SetDefault("trace.insecure", d.Trace.Insecure)
}

// Load resolves the configuration held by v. If path is non-empty the file
// must exist; otherwise an optional klogger.yaml is searched in the working
// directory and $HOME/.config/klogger.
func Load(v *viper.Viper, path string) (Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("klogger")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/klogger")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	} else {
		log.Debug(log.CatConfig, "config file loaded", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every field and reports all problems at once.
func (c Config) Validate() error {
	var errs []error
	if err := c.Ring().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.MaxOpen < 0 {
		errs = append(errs, fmt.Errorf("max_open must not be negative, got %d", c.MaxOpen))
	}
	if c.SessionIdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("session_idle_timeout must not be negative, got %s", c.SessionIdleTimeout))
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Trace.Exporter {
	case ExporterNone, ExporterStdout, "":
	case ExporterOTLP:
		if c.Trace.Endpoint == "" {
			errs = append(errs, errors.New("trace.endpoint is required for the otlp exporter"))
		}
	default:
		errs = append(errs, fmt.Errorf("trace.exporter must be one of none, stdout, otlp; got %q", c.Trace.Exporter))
	}
	return errors.Join(errs...)
}

// Ring returns the ring geometry.
func (c Config) Ring() ring.Config {
	return ring.Config{
		SlotSize:  c.SlotSize,
		TotalSize: c.TotalSize,
	}
}

// Device returns the device settings.
func (c Config) Device() device.Config {
	return device.Config{
		MaxOpen:     c.MaxOpen,
		IdleTimeout: c.SessionIdleTimeout,
	}
}

// YAML renders the configuration as a YAML document.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
