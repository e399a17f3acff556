package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Storage.StateDir != ".conductor/state" {
		t.Errorf("expected default state dir '.conductor/state', got %q", cfg.Storage.StateDir)
	}

	if cfg.Orchestrator.MaxParallel != 4 {
		t.Errorf("expected default max_parallel 4, got %d", cfg.Orchestrator.MaxParallel)
	}

	if !cfg.Orchestrator.CheckpointStages {
		t.Error("expected checkpoint_stages to default to true")
	}

	if cfg.Retry.Strategy != "exponential_backoff" {
		t.Errorf("expected default strategy exponential_backoff, got %q", cfg.Retry.Strategy)
	}

	if cfg.Retry.BaseDelay != time.Second {
		t.Errorf("expected base delay 1s, got %v", cfg.Retry.BaseDelay)
	}

	if cfg.Bus.Persist {
		t.Error("expected bus persistence to default to false")
	}
}

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
storage:
  state_dir: /tmp/conductor-state
  records_db: /tmp/conductor.db
orchestrator:
  max_parallel: 8
  checkpoint_stages: false
retry:
  strategy: linear_backoff
  base_delay: 500ms
  max_retries: 5
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Storage.StateDir != "/tmp/conductor-state" {
		t.Errorf("expected overridden state dir, got %q", cfg.Storage.StateDir)
	}
	if cfg.Orchestrator.MaxParallel != 8 {
		t.Errorf("expected max_parallel 8, got %d", cfg.Orchestrator.MaxParallel)
	}
	if cfg.Orchestrator.CheckpointStages {
		t.Error("expected checkpoint_stages false")
	}
	if cfg.Retry.Strategy != "linear_backoff" {
		t.Errorf("expected linear_backoff, got %q", cfg.Retry.Strategy)
	}
	if cfg.Retry.BaseDelay != 500*time.Millisecond {
		t.Errorf("expected 500ms base delay, got %v", cfg.Retry.BaseDelay)
	}
	if cfg.Retry.MaxRetries != 5 {
		t.Errorf("expected max_retries 5, got %d", cfg.Retry.MaxRetries)
	}

	// Unset keys keep their defaults.
	if cfg.Storage.DefinitionsDir != ".conductor/workflows" {
		t.Errorf("expected default definitions dir, got %q", cfg.Storage.DefinitionsDir)
	}
}

func TestLoadFromPathMissingFile(t *testing.T) {
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}
