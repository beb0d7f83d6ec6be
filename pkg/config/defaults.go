package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/opencpx/cpx/pkg/cluster"
	"github.com/opencpx/cpx/pkg/store"
)

// ApplyDefaults fills in any unspecified configuration fields. Zero
// values are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyServerDefaults(&cfg.Server)
	applyWWWDefaults(&cfg.WWW)
	applyNLSDefaults(cfg)
	applySessionDefaults(&cfg.Session)
	applyCDRDefaults(&cfg.CDR)
	cfg.Store.ApplyDefaults()
	cfg.Cluster.ApplyDefaults()

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	// the server must be able to hold a poll open until it times out
	if cfg.Server.WriteTimeout <= cfg.Session.PollTimeout {
		cfg.Server.WriteTimeout = cfg.Session.PollTimeout + 60*time.Second
	}
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 5050
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 120 * time.Second
	}
}

func applyWWWDefaults(cfg *WWWConfig) {
	if cfg.AgentRoot == "" {
		cfg.AgentRoot = "www/agent"
	}
	if cfg.ContribRoot == "" {
		cfg.ContribRoot = "www/contrib"
	}
}

func applyNLSDefaults(cfg *Config) {
	if cfg.NLS.Dir == "" {
		cfg.NLS.Dir = filepath.Join(cfg.WWW.AgentRoot, "application", "nls")
	}
}

func applyCDRDefaults(cfg *CDRConfig) {
	if cfg.Dir == "" {
		configDir := os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			homeDir, _ := os.UserHomeDir()
			configDir = filepath.Join(homeDir, ".config")
		}
		cfg.Dir = filepath.Join(configDir, "cpx", "cdr")
	}
}

func applySessionDefaults(cfg *SessionConfig) {
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.PollTimeout == 0 {
		cfg.PollTimeout = 30 * time.Second
	}
}

// GetDefaultConfig returns a Config with all default values applied.
// Used for generating sample configuration files and in tests.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Store: store.Config{
			Type: store.DatabaseTypeSQLite,
		},
		Cluster: cluster.Config{},
		NLS: NLSConfig{
			Watch: true,
		},
		Key: KeyConfig{
			Path: "cpx_key.pem",
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
