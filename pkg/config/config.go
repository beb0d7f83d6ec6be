// Package config loads, validates, and saves the cpxd configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (CPX_*)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/opencpx/cpx/pkg/cluster"
	"github.com/opencpx/cpx/pkg/store"
)

// Config is the static configuration of a cpxd node. Dynamic data
// (agents, queues, clients, release options) lives in the store and is
// managed through cpxctl.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry tracing and Pyroscope profiling
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Server configures the public HTTP listener
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// WWW points at the static asset roots served to the agent UI
	WWW WWWConfig `mapstructure:"www" yaml:"www"`

	// NLS configures the language catalog directory
	NLS NLSConfig `mapstructure:"nls" yaml:"nls"`

	// Key is the RSA private key used for the login handshake
	Key KeyConfig `mapstructure:"key" yaml:"key"`

	// Session controls session liveness and long-poll behavior
	Session SessionConfig `mapstructure:"session" yaml:"session"`

	// Store configures the persistent agent/queue store (SQLite or
	// PostgreSQL)
	Store store.Config `mapstructure:"store" yaml:"store"`

	// Cluster configures gossip membership and queue leadership
	Cluster cluster.Config `mapstructure:"cluster" yaml:"cluster"`

	// Metrics toggles Prometheus collection; the endpoint rides the main
	// listener at /metrics
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Wrapup sets the fallback automatic wrapup cutoff for clients that
	// do not configure their own
	Wrapup WrapupConfig `mapstructure:"wrapup" yaml:"wrapup"`

	// CDR configures the call detail record journal
	CDR CDRConfig `mapstructure:"cdr" yaml:"cdr"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format, text or json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written: stdout, stderr, or a path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing. When
// enabled, spans are exported to an OTLP-compatible collector.
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure disables TLS towards the collector
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate is the trace sampling rate, 0.0 to 1.0
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server URL
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes selects which profiles to collect
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// ServerConfig configures the public HTTP listener.
type ServerConfig struct {
	// Host is the listen address. Default 0.0.0.0.
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the listen port. Default 5050.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// ReadTimeout bounds reading a request. Default 10s.
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout bounds writing a response. It must exceed the poll
	// timeout or long polls are cut short. Default 90s.
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout bounds keep-alive connections. Default 120s.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

// WWWConfig points at the static asset roots.
type WWWConfig struct {
	// AgentRoot holds the agent UI. Default www/agent.
	AgentRoot string `mapstructure:"agent_root" yaml:"agent_root"`

	// ContribRoot is searched after AgentRoot. Default www/contrib.
	ContribRoot string `mapstructure:"contrib_root" yaml:"contrib_root"`

	// DynamicRoot backs /dynamic/<path>. Empty disables it.
	DynamicRoot string `mapstructure:"dynamic_root" yaml:"dynamic_root,omitempty"`
}

// NLSConfig configures the language catalog directory.
type NLSConfig struct {
	// Dir is the catalog root. Default <agent_root>/application/nls.
	Dir string `mapstructure:"dir" yaml:"dir"`

	// Watch refreshes the language set on directory changes. Default true.
	Watch bool `mapstructure:"watch" yaml:"watch"`
}

// KeyConfig locates the RSA private key for the login handshake.
type KeyConfig struct {
	// Path is the PEM file holding the key. Required to start cpxd;
	// 'cpxd config init' generates one.
	Path string `mapstructure:"path" yaml:"path"`
}

// SessionConfig controls session liveness and long-poll behavior.
type SessionConfig struct {
	// IdleTimeout reclaims sessions with no poll and no keep-alive.
	// Default 60s.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// PollTimeout bounds a single long poll before it answers 408.
	// Default 30s.
	PollTimeout time.Duration `mapstructure:"poll_timeout" yaml:"poll_timeout"`
}

// MetricsConfig toggles Prometheus metrics collection.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// WrapupConfig sets wrapup defaults.
type WrapupConfig struct {
	// Autoend ends wrapup automatically after this duration for clients
	// without their own setting. Zero disables the fallback.
	Autoend time.Duration `mapstructure:"autoend" yaml:"autoend,omitempty"`
}

// CDRConfig configures the call detail record journal.
type CDRConfig struct {
	// Enabled turns on persistent journaling. When disabled, lifecycle
	// records are kept in memory and lost on restart.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Dir is the journal directory. Default <config dir>/cpx/cdr.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// Load loads configuration from file, environment, and defaults.
// An empty configPath uses the default location; a missing file is not
// an error, the defaults apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !configFileFound {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// MustLoad loads configuration and turns a missing file into an error
// with instructions instead of silently running on defaults.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  cpxd config init\n\n"+
				"Or specify a custom config file:\n"+
				"  cpxd <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  cpxd config init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the configuration as YAML. Permissions are 0600:
// the file may carry database credentials.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper configures environment variables and config file search.
// Environment variables use the CPX_ prefix with underscores, for
// example CPX_LOGGING_LEVEL=DEBUG or CPX_SERVER_PORT=8080.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("CPX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. Returns
// whether a file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks returns the combined decode hook for custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
	)
}

// durationDecodeHook converts strings like "30s", "5m", "1h" into
// time.Duration. Raw integers are taken as nanoseconds.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path. Uses
// XDG_CONFIG_HOME if set, otherwise ~/.config, or the current directory
// as a last resort.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "cpx")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "cpx")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default
// location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for the
// init command).
func GetConfigDir() string {
	return getConfigDir()
}
