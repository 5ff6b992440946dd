package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	m, err := NewManager("")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	cfg := m.Get()
	if cfg.Alerting.ProfitThreshold != 2.0 {
		t.Errorf("expected profit threshold 2.0, got %f", cfg.Alerting.ProfitThreshold)
	}
	if cfg.Alerting.CooldownSec != 300 {
		t.Errorf("expected cooldown 300, got %d", cfg.Alerting.CooldownSec)
	}
	if cfg.RPC.MaxRetries != 3 {
		t.Errorf("expected 3 retries, got %d", cfg.RPC.MaxRetries)
	}
	if cfg.API.Port != 8002 {
		t.Errorf("expected API port 8002, got %d", cfg.API.Port)
	}
	if len(cfg.RPC.Endpoints) != 1 {
		t.Fatalf("expected 1 default endpoint, got %d", len(cfg.RPC.Endpoints))
	}
	if !cfg.Modes.DryRun {
		t.Error("expected dry_run default true")
	}
}

func TestEnvOverrides(t *testing.T) {
	os.Setenv("PROFIT_ALERT_THRESHOLD", "3.5")
	os.Setenv("RPC_ENDPOINTS", "https://a.example.com, https://b.example.com")
	defer os.Unsetenv("PROFIT_ALERT_THRESHOLD")
	defer os.Unsetenv("RPC_ENDPOINTS")

	m, err := NewManager("")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	cfg := m.Get()
	if cfg.Alerting.ProfitThreshold != 3.5 {
		t.Errorf("expected env override 3.5, got %f", cfg.Alerting.ProfitThreshold)
	}
	if len(cfg.RPC.Endpoints) != 2 {
		t.Fatalf("expected 2 endpoints, got %v", cfg.RPC.Endpoints)
	}
	if cfg.RPC.Endpoints[1] != "https://b.example.com" {
		t.Errorf("unexpected second endpoint: %s", cfg.RPC.Endpoints[1])
	}
}

func TestYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
alerting:
  profit_threshold: 1.25
  watchlist_max_size: 50
rpc:
  endpoints:
    - https://rpc-one.example.com
    - https://rpc-two.example.com
modes:
  rpc_mode: fixtures
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	cfg := m.Get()
	if cfg.Alerting.ProfitThreshold != 1.25 {
		t.Errorf("expected 1.25 from file, got %f", cfg.Alerting.ProfitThreshold)
	}
	if cfg.Alerting.WatchlistMaxSize != 50 {
		t.Errorf("expected watchlist cap 50, got %d", cfg.Alerting.WatchlistMaxSize)
	}
	if len(cfg.RPC.Endpoints) != 2 {
		t.Fatalf("expected 2 endpoints, got %v", cfg.RPC.Endpoints)
	}
	if cfg.Modes.RPCMode != "fixtures" {
		t.Errorf("expected fixtures mode, got %s", cfg.Modes.RPCMode)
	}
	// untouched sections keep defaults
	if cfg.Alerting.GainFilter != 5.0 {
		t.Errorf("expected default gain filter 5.0, got %f", cfg.Alerting.GainFilter)
	}
}

func TestDurationHelpers(t *testing.T) {
	m, err := NewManager("")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	if got := m.RPCTimeout().Seconds(); got != 2.5 {
		t.Errorf("expected 2.5s RPC timeout, got %fs", got)
	}
	if got := m.Cooldown().Seconds(); got != 300 {
		t.Errorf("expected 300s cooldown, got %fs", got)
	}
}
