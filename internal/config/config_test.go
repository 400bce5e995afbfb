package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// Run from an empty directory so no stray config file is picked up.
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("server.host = %q, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Server.Port != 5588 {
		t.Errorf("server.port = %d, want 5588", cfg.Server.Port)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("database.driver = %q, want sqlite", cfg.Database.Driver)
	}
	if cfg.Database.Path != "./data/iqdb.sqlite" {
		t.Errorf("database.path = %q, want ./data/iqdb.sqlite", cfg.Database.Path)
	}
	if cfg.Query.DefaultLimit != 10 {
		t.Errorf("query.default_limit = %d, want 10", cfg.Query.DefaultLimit)
	}
	if cfg.Ingest.MaxDecoders != 4 {
		t.Errorf("ingest.max_decoders = %d, want 4", cfg.Ingest.MaxDecoders)
	}
	if cfg.Ingest.FetchTimeout != 30*time.Second {
		t.Errorf("ingest.fetch_timeout = %v, want 30s", cfg.Ingest.FetchTimeout)
	}
	if cfg.Storage.Enabled {
		t.Error("storage.enabled = true, want false")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("IQDB_SERVER_PORT", "9000")
	t.Setenv("IQDB_LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("server.port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log.level = %q, want debug", cfg.Log.Level)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte("server:\n  port: 7700\n  mode: debug\nquery:\n  default_limit: 25\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7700 {
		t.Errorf("server.port = %d, want 7700", cfg.Server.Port)
	}
	if cfg.Server.Mode != "debug" {
		t.Errorf("server.mode = %q, want debug", cfg.Server.Mode)
	}
	if cfg.Query.DefaultLimit != 25 {
		t.Errorf("query.default_limit = %d, want 25", cfg.Query.DefaultLimit)
	}
	// File values override defaults; untouched keys keep theirs.
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("server.host = %q, want default", cfg.Server.Host)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}
