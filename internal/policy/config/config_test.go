package config

import (
	"os"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, e := range os.Environ() {
		if len(e) > len("POLICY_") && e[:len("POLICY_")] == "POLICY_" {
			name := e[:indexByte(e, '=')]
			os.Unsetenv(name)
		}
	}
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Env != "prod" {
		t.Errorf("expected Env=prod, got %q", cfg.Env)
	}
	if cfg.Store.PoolSize != 32 {
		t.Errorf("expected PoolSize=32, got %d", cfg.Store.PoolSize)
	}
	if cfg.LRU.Capacity != 10_000 {
		t.Errorf("expected LRU.Capacity=10000, got %d", cfg.LRU.Capacity)
	}
	if cfg.Bloom.FPRate != 0.01 {
		t.Errorf("expected Bloom.FPRate=0.01, got %v", cfg.Bloom.FPRate)
	}
	if cfg.Alias.MaxDepth != 4 {
		t.Errorf("expected Alias.MaxDepth=4, got %d", cfg.Alias.MaxDepth)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	clearEnv(t)
	os.Setenv("POLICY_STORE_POOLSIZE", "64")
	os.Setenv("POLICY_ALIAS_MAXDEPTH", "8")
	defer clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Store.PoolSize != 64 {
		t.Errorf("expected PoolSize=64, got %d", cfg.Store.PoolSize)
	}
	if cfg.Alias.MaxDepth != 8 {
		t.Errorf("expected MaxDepth=8, got %d", cfg.Alias.MaxDepth)
	}
}

func TestLoadInvalidSinkhole(t *testing.T) {
	clearEnv(t)
	os.Setenv("POLICY_SINKHOLE_V4", "not-an-ip")
	defer clearEnv(t)

	if _, err := Load(); err == nil {
		t.Fatalf("expected validation error for bad sinkhole v4 address")
	}
}
