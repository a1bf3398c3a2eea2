package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFromFileAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aeronc.yaml")
	if err := os.WriteFile(path, []byte("aeron_directory_name: /dev/shm/aeron\n"), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.AeronDirectoryName != "/dev/shm/aeron" {
		t.Fatalf("AeronDirectoryName = %q", cfg.AeronDirectoryName)
	}
	if cfg.DriverTimeoutMs != defaultDriverTimeoutMs {
		t.Fatalf("DriverTimeoutMs = %d, want default", cfg.DriverTimeoutMs)
	}
	if cfg.IdleStrategy != defaultIdleStrategy {
		t.Fatalf("IdleStrategy = %q, want default", cfg.IdleStrategy)
	}
}

func TestLoadFromEnvOverridesFileValues(t *testing.T) {
	cfg := Default()
	t.Setenv("AERONC_DRIVER_TIMEOUT_MS", "3000")
	t.Setenv("AERONC_USE_INVOKER", "true")

	LoadFromEnv(cfg)

	if cfg.DriverTimeoutMs != 3000 {
		t.Fatalf("DriverTimeoutMs = %d, want 3000", cfg.DriverTimeoutMs)
	}
	if !cfg.UseConductorAgentInvoker {
		t.Fatalf("UseConductorAgentInvoker = false, want true")
	}
}

func TestDurationHelpersConvertMillis(t *testing.T) {
	cfg := Default()
	cfg.DriverTimeoutMs = 2500
	if got := cfg.DriverTimeout().Milliseconds(); got != 2500 {
		t.Fatalf("DriverTimeout = %dms, want 2500ms", got)
	}
}
