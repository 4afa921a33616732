package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"segue/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "[paths]\ndata_dir = \""+t.TempDir()+"\"\n")

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists || resolved == "" {
		t.Fatalf("expected config at %s to be found", path)
	}
	if cfg.Workflow.Workers <= 0 {
		t.Error("workers default not applied")
	}
	if cfg.Analysis.ExtractionTimeout <= 0 {
		t.Error("extraction timeout default not applied")
	}
	if cfg.FeatureStore.Backend != config.BackendDir {
		t.Errorf("backend default = %q, want %q", cfg.FeatureStore.Backend, config.BackendDir)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	path := writeConfig(t, "[feature_store]\nbackend = \"postgres\"\n")
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected error for unsupported backend")
	}
}

func TestLoadRequiresMinioSettings(t *testing.T) {
	path := writeConfig(t, "[feature_store]\nbackend = \"minio\"\n")
	_, _, _, err := config.Load(path)
	if err == nil {
		t.Fatal("expected error for incomplete minio settings")
	}
	if !strings.Contains(err.Error(), "endpoint") {
		t.Errorf("error should name the missing endpoint, got %v", err)
	}
}

func TestExpandTilde(t *testing.T) {
	path := writeConfig(t, "[paths]\ndata_dir = \"~/segue-data\"\n")
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if strings.HasPrefix(cfg.Paths.DataDir, "~") {
		t.Errorf("tilde not expanded: %s", cfg.Paths.DataDir)
	}
	if !filepath.IsAbs(cfg.Paths.DataDir) {
		t.Errorf("expected absolute path, got %s", cfg.Paths.DataDir)
	}
}

func TestWriteSampleRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := config.WriteSample(path); err != nil {
		t.Fatalf("WriteSample: %v", err)
	}
	if err := config.WriteSample(path); err == nil {
		t.Fatal("expected error when sample already exists")
	}
	// The sample must itself be loadable.
	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config does not load: %v", err)
	}
}
