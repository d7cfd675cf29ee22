package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// chdir changes the working directory for the test and restores it on
// cleanup, mirroring t.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}

func TestDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RedisURL != "redis://127.0.0.1:6379/0" {
		t.Errorf("redis url: %q", cfg.RedisURL)
	}
	if cfg.Namespace != "paneward" {
		t.Errorf("namespace: %q", cfg.Namespace)
	}
	if cfg.SnapshotRetention != 20 || cfg.Parallelism != 4 {
		t.Errorf("defaults: %+v", cfg)
	}
	if cfg.StoreTimeoutDuration != 5*time.Second {
		t.Errorf("store timeout: %v", cfg.StoreTimeoutDuration)
	}
	if cfg.ConfigFile != "" {
		t.Errorf("no config file should be found, got %q", cfg.ConfigFile)
	}
}

func TestFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("HOME", t.TempDir())

	yaml := `
redis_url: redis://redis.internal:6379/2
namespace: team-a
snapshot_retention: 5
mux_timeout: 10s
redact_patterns:
  - "internal-token-[a-z]+"
`
	if err := os.WriteFile(filepath.Join(dir, ".paneward.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RedisURL != "redis://redis.internal:6379/2" || cfg.Namespace != "team-a" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.SnapshotRetention != 5 {
		t.Errorf("retention: %d", cfg.SnapshotRetention)
	}
	if cfg.MuxTimeoutDuration != 10*time.Second {
		t.Errorf("mux timeout: %v", cfg.MuxTimeoutDuration)
	}
	if len(cfg.RedactPatterns) != 1 {
		t.Errorf("redact patterns: %v", cfg.RedactPatterns)
	}
	// Untouched keys keep defaults.
	if cfg.CompressAt != 4096 {
		t.Errorf("compress_at: %d", cfg.CompressAt)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("HOME", t.TempDir())

	yaml := "redis_url: redis://from-file:6379\n"
	if err := os.WriteFile(filepath.Join(dir, ".paneward.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PANEWARD_REDIS_URL", "redis://from-env:6379")
	t.Setenv("PANEWARD_SNAPSHOT_RETENTION", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RedisURL != "redis://from-env:6379" {
		t.Errorf("env must win: %q", cfg.RedisURL)
	}
	if cfg.SnapshotRetention != 3 {
		t.Errorf("retention: %d", cfg.SnapshotRetention)
	}
}

func TestInvalidTimeoutRejected(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PANEWARD_STORE_TIMEOUT", "not-a-duration")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for bad duration")
	}
}

func TestInvalidRetentionRejected(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PANEWARD_SNAPSHOT_RETENTION", "-2")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for negative retention")
	}
}
