package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != DefaultAddr || cfg.DBPath != DefaultDBPath || cfg.SweepInterval != DefaultSweepInterval {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
	if cfg.Retention != 0 {
		t.Fatalf("expected retention disabled by default, got %v", cfg.Retention)
	}
}

func TestLoadBackfillsEmptyFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hub.yaml")
	content := "addr: \":9999\"\nretention: 72h\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9999" {
		t.Fatalf("expected :9999, got %s", cfg.Addr)
	}
	if cfg.Retention != 72*time.Hour {
		t.Fatalf("expected 72h retention, got %v", cfg.Retention)
	}
	if cfg.DBPath != DefaultDBPath || cfg.SweepInterval != DefaultSweepInterval {
		t.Fatalf("expected backfilled defaults, got %+v", cfg)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("addr: [unclosed"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestInitRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hub.yaml")
	if err := Init(path); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := Init(path); err == nil {
		t.Fatal("expected overwrite refusal")
	}

	// The generated file must round-trip through Load.
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load generated: %v", err)
	}
	if cfg.Addr != DefaultAddr {
		t.Fatalf("expected default addr, got %s", cfg.Addr)
	}
}
