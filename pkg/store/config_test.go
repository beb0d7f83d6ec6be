package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestApplyDefaults_SQLitePath(t *testing.T) {
	t.Run("UsesXDGConfigHome", func(t *testing.T) {
		tmpDir := t.TempDir()
		t.Setenv("XDG_CONFIG_HOME", tmpDir)

		cfg := &Config{Type: DatabaseTypeSQLite}
		cfg.ApplyDefaults()

		expected := filepath.Join(tmpDir, "cpx", "config.db")
		if cfg.SQLite.Path != expected {
			t.Errorf("SQLite.Path = %q, expected %q", cfg.SQLite.Path, expected)
		}
	})

	t.Run("FallbackWithoutXDG", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")

		cfg := &Config{Type: DatabaseTypeSQLite}
		cfg.ApplyDefaults()

		if filepath.Base(cfg.SQLite.Path) != "config.db" {
			t.Errorf("SQLite.Path = %q, expected filename 'config.db'", cfg.SQLite.Path)
		}
		home, _ := os.UserHomeDir()
		expectedDir := filepath.Join(home, ".config", "cpx")
		if filepath.Dir(cfg.SQLite.Path) != expectedDir {
			t.Errorf("dir = %q, expected %q", filepath.Dir(cfg.SQLite.Path), expectedDir)
		}
	})
}

func TestApplyDefaults_PreservesExplicitPath(t *testing.T) {
	customPath := "/custom/path/to/db.sqlite"
	cfg := &Config{
		Type:   DatabaseTypeSQLite,
		SQLite: SQLiteConfig{Path: customPath},
	}
	cfg.ApplyDefaults()

	if cfg.SQLite.Path != customPath {
		t.Errorf("SQLite.Path = %q, expected %q (explicit path should be preserved)", cfg.SQLite.Path, customPath)
	}
}

func TestApplyDefaults_Postgres(t *testing.T) {
	cfg := &Config{Type: DatabaseTypePostgres}
	cfg.ApplyDefaults()

	if cfg.Postgres.Port != 5432 {
		t.Errorf("Port = %d, expected 5432", cfg.Postgres.Port)
	}
	if cfg.Postgres.SSLMode != "disable" {
		t.Errorf("SSLMode = %q, expected 'disable'", cfg.Postgres.SSLMode)
	}
	if cfg.Postgres.MaxOpenConns != 25 {
		t.Errorf("MaxOpenConns = %d, expected 25", cfg.Postgres.MaxOpenConns)
	}
}

func TestConfigValidation(t *testing.T) {
	t.Run("sqlite requires path", func(t *testing.T) {
		config := &Config{
			Type:   DatabaseTypeSQLite,
			SQLite: SQLiteConfig{Path: ""},
		}
		if err := config.Validate(); err == nil {
			t.Error("expected error for empty sqlite path")
		}
	})

	t.Run("postgres requires host", func(t *testing.T) {
		config := &Config{
			Type: DatabaseTypePostgres,
			Postgres: PostgresConfig{
				Database: "cpx",
				User:     "cpx",
			},
		}
		if err := config.Validate(); err == nil {
			t.Error("expected error for missing postgres host")
		}
	})

	t.Run("postgres requires database", func(t *testing.T) {
		config := &Config{
			Type: DatabaseTypePostgres,
			Postgres: PostgresConfig{
				Host: "localhost",
				User: "cpx",
			},
		}
		if err := config.Validate(); err == nil {
			t.Error("expected error for missing postgres database")
		}
	})

	t.Run("unknown type rejected", func(t *testing.T) {
		config := &Config{Type: "oracle"}
		if err := config.Validate(); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}

func TestPostgresDSN(t *testing.T) {
	config := PostgresConfig{
		Host:        "localhost",
		Port:        5432,
		Database:    "cpx",
		User:        "admin",
		Password:    "secret",
		SSLMode:     "require",
		SSLRootCert: "/path/to/cert",
	}

	dsn := config.DSN()

	for _, part := range []string{"host=localhost", "port=5432", "dbname=cpx", "sslmode=require", "sslrootcert=/path/to/cert"} {
		if !strings.Contains(dsn, part) {
			t.Errorf("DSN %q should contain %q", dsn, part)
		}
	}
}
