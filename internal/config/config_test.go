package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultHasExpectedValues(t *testing.T) {
	cfg := Default()
	if cfg.Logging.Level != "info" || !cfg.Logging.Pretty {
		t.Fatalf("unexpected default logging config: %+v", cfg.Logging)
	}
	if cfg.Maintenance.Enabled {
		t.Fatal("expected maintenance disabled by default")
	}
	if cfg.Maintenance.RepackSchedule == "" || cfg.Maintenance.VerifySchedule == "" {
		t.Fatal("expected default cron schedules to be set")
	}
}

func TestLoadAppliesOverridesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "barrow.yaml")
	yaml := "DataFile: /tmp/barrow.db\nLogging:\n  Level: debug\nMaintenance:\n  Enabled: true\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataFile != "/tmp/barrow.db" {
		t.Fatalf("DataFile = %q, want /tmp/barrow.db", cfg.DataFile)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if !cfg.Maintenance.Enabled {
		t.Fatal("expected Maintenance.Enabled to be overridden to true")
	}
	if cfg.Maintenance.RepackSchedule != Default().Maintenance.RepackSchedule {
		t.Fatal("expected RepackSchedule to retain its default since the file didn't override it")
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nosuch.yaml")); err == nil {
		t.Fatal("expected an error loading a nonexistent config file")
	}
}

func TestLoadInvalidYAMLErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("DataFile: [unterminated"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error parsing invalid YAML")
	}
}
