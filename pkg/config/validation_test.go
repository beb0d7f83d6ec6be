package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opencpx/cpx/pkg/store"
)

func TestValidateDefaultsPass(t *testing.T) {
	t.Parallel()

	require.NoError(t, Validate(GetDefaultConfig()))
}

func TestValidateNilConfig(t *testing.T) {
	t.Parallel()

	require.Error(t, Validate(nil))
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	t.Parallel()

	cfg := GetDefaultConfig()
	cfg.Logging.Level = "LOUD"
	err := Validate(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "logging.level")
}

func TestValidateRejectsBadPort(t *testing.T) {
	t.Parallel()

	cfg := GetDefaultConfig()
	cfg.Server.Port = 70000
	err := Validate(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "server.port")
}

func TestValidateRejectsMissingSQLitePath(t *testing.T) {
	t.Parallel()

	cfg := GetDefaultConfig()
	cfg.Store.SQLite.Path = ""
	require.Error(t, Validate(cfg))
}

func TestValidateRejectsPostgresWithoutHost(t *testing.T) {
	t.Parallel()

	cfg := GetDefaultConfig()
	cfg.Store.Type = store.DatabaseTypePostgres
	cfg.Store.Postgres.Host = ""
	cfg.Store.Postgres.Database = "cpx"
	require.Error(t, Validate(cfg))
}

func TestValidateRejectsWriteTimeoutBelowPoll(t *testing.T) {
	t.Parallel()

	cfg := GetDefaultConfig()
	cfg.Server.WriteTimeout = 10 * time.Second
	cfg.Session.PollTimeout = 30 * time.Second
	err := Validate(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "write_timeout")
}

func TestValidateRejectsBadSampleRate(t *testing.T) {
	t.Parallel()

	cfg := GetDefaultConfig()
	cfg.Telemetry.SampleRate = 1.5
	require.Error(t, Validate(cfg))
}
