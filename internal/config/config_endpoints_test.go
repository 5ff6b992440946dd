package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEndpointEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
rpc:
  endpoints:
    - https://file-one.example.com
    - https://file-two.example.com
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	os.Setenv("RPC_ENDPOINTS", "https://env-one.example.com,https://env-two.example.com,https://env-three.example.com")
	defer os.Unsetenv("RPC_ENDPOINTS")

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	eps := m.Get().RPC.Endpoints
	if len(eps) != 3 {
		t.Fatalf("env should win over the file, got %v", eps)
	}
	if eps[0] != "https://env-one.example.com" {
		t.Errorf("unexpected first endpoint: %s", eps[0])
	}
}

func TestEndpointCommaSplitTrimsBlanks(t *testing.T) {
	os.Setenv("RPC_ENDPOINTS", " https://a.example.com ,, https://b.example.com ,")
	defer os.Unsetenv("RPC_ENDPOINTS")

	m, err := NewManager("")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	eps := m.Get().RPC.Endpoints
	if len(eps) != 2 {
		t.Fatalf("expected blanks dropped, got %v", eps)
	}
	if eps[0] != "https://a.example.com" || eps[1] != "https://b.example.com" {
		t.Errorf("expected trimmed endpoints, got %v", eps)
	}
}

func TestEndpointEmptyListFallsBackToDefault(t *testing.T) {
	os.Setenv("RPC_ENDPOINTS", " , ,")
	defer os.Unsetenv("RPC_ENDPOINTS")

	m, err := NewManager("")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	eps := m.Get().RPC.Endpoints
	if len(eps) != 1 || eps[0] != "https://api.mainnet-beta.solana.com" {
		t.Errorf("blank endpoint list should fall back to the public node, got %v", eps)
	}
}
